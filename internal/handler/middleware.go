package handler

import (
	"log"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"voipbilling/internal/metrics"
	"voipbilling/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// 超过该耗时的请求额外打一条慢请求日志
const slowRequestThreshold = 500 * time.Millisecond

// RequestIDMiddleware 透传或生成请求ID，便于和信令侧日志对齐
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDHeader)
}

// routeOf 指标按路由模板聚合，未匹配的路径统一归到 unmatched
func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// AccessLogMiddleware 访问日志与 HTTP 指标
func AccessLogMiddleware() gin.HandlerFunc {
	m := metrics.GetMetrics()
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := routeOf(c)

		m.HTTPRequestTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(route).Observe(latency.Seconds())

		log.Printf("[HTTP] rid=%s %s %s -> %d (%v, %s)",
			requestID(c), c.Request.Method, c.Request.URL.RequestURI(), status, latency, c.ClientIP())
		if latency > slowRequestThreshold {
			log.Printf("[HTTP] rid=%s 慢请求 %s %s 耗时 %v", requestID(c), c.Request.Method, route, latency)
		}
	}
}

// RecoveryMiddleware 处理器 panic 时记录请求ID和堆栈，按统一响应格式返回 500
func RecoveryMiddleware() gin.HandlerFunc {
	m := metrics.GetMetrics()
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				m.HTTPPanicTotal.Inc()
				log.Printf("[PANIC] rid=%s %s %s: %v\n%s",
					requestID(c), c.Request.Method, c.Request.URL.Path, err, debug.Stack())
				c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
					Code:    response.CodeServerError,
					Message: "服务器内部错误，请求ID: " + requestID(c),
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware allowOrigins 为空时允许任意来源；否则只回显白名单内的 Origin
func CORSMiddleware(allowOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowOrigins))
	for _, o := range allowOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowed) == 0:
			c.Header("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		case origin != "":
			// 不在白名单：不下发 CORS 头，由浏览器拦截
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader)
		c.Header("Access-Control-Expose-Headers", requestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

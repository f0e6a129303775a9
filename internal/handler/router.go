package handler

import (
	"context"
	"net/http"
	"time"

	"voipbilling/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck 健康检查依赖项（MySQL、Redis 等）
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// SetupRouter 配置路由
func SetupRouter(h *Handler, server config.ServerConfig, checks ...HealthCheck) *gin.Engine {
	if server.Mode != "" {
		gin.SetMode(server.Mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 注册中间件，Recovery 在访问日志内层，panic 的请求也会按 500 记录
	r.Use(RequestIDMiddleware())
	r.Use(AccessLogMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(CORSMiddleware(server.AllowOrigins))

	api := r.Group("/api/v1")
	{
		// 呼叫事件
		calls := api.Group("/calls")
		{
			calls.POST("/starting", h.CallStarting)
			calls.POST("/ended", h.CallEnded)
			calls.POST("/terminated", h.CallTerminated)
		}

		// 账务
		ledger := api.Group("/ledger")
		{
			ledger.POST("/credit", h.Credit)
			ledger.POST("/debit", h.Debit)
			ledger.POST("/refund", h.Refund)
			ledger.POST("/adjustment", h.Adjustment)
		}

		// 账户查询
		account := api.Group("/account")
		{
			account.GET("/detail", h.GetAccount)
			account.GET("/summary", h.GetSummary)
			account.GET("/calls", h.ListCalls)
			account.GET("/transactions", h.ListTransactions)
			account.GET("/reconcile", h.Reconcile)
		}

		api.POST("/rates/quote", h.Quote)
		api.GET("/campaign/next-caller-id", h.NextCallerID)

		// 管理
		admin := api.Group("/admin")
		{
			admin.GET("/destinations", h.ListDestinations)
			admin.GET("/destinations/lookup", h.LookupDestination)
			admin.POST("/destinations", h.CreateDestination)
			admin.PUT("/destinations/:id", h.UpdateDestination)
			admin.DELETE("/destinations/:id", h.DeleteDestination)

			admin.GET("/rate-cards", h.ListRateCards)
			admin.POST("/rate-cards", h.CreateRateCard)
			admin.POST("/rate-cards/:id/status", h.ChangeRateCardStatus)
			admin.GET("/rate-cards/:id/rates", h.ListRates)
			admin.POST("/rate-cards/:id/rates", h.AddRate)

			admin.POST("/accounts", h.CreateAccount)
			admin.PUT("/accounts/:id", h.UpdateAccount)
			admin.POST("/campaigns", h.ConfigureCampaign)
		}
	}

	// 健康检查
	r.GET("/health", healthHandler(checks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func healthHandler(checks []HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		deps := gin.H{}
		healthy := true
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				deps[hc.Name] = err.Error()
				healthy = false
				continue
			}
			deps[hc.Name] = "ok"
		}

		if !healthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "deps": deps})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "deps": deps})
	}
}

package handler

import (
	"errors"
	"log"

	"voipbilling/internal/service"
	"voipbilling/pkg/response"

	"github.com/gin-gonic/gin"
)

var errorCodes = []struct {
	err  error
	code int
}{
	{service.ErrInvalidArgument, response.CodeParamError},
	{service.ErrRateNotFound, response.CodeRateNotFound},
	{service.ErrNoRateCard, response.CodeNoRateCard},
	{service.ErrInsufficientCredit, response.CodeInsufficientCredit},
	{service.ErrCapacityExceeded, response.CodeCapacityExceeded},
	{service.ErrConfiguration, response.CodeRateConfiguration},
	{service.ErrIdempotencyConflict, response.CodeIdempotencyConflict},
	{service.ErrAccountNotFound, response.CodeAccountNotFound},
	{service.ErrAdmissionUnderflow, response.CodeAdmissionUnderflow},
	{service.ErrNotFound, response.CodeNotFound},
	{service.ErrConflict, response.CodeConflict},
	{service.ErrStorageUnavailable, response.CodeUnavailable},
}

// codeOf 业务错误映射为错误码，未知错误返回 CodeServerError
func codeOf(err error) int {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return response.CodeServerError
}

// fail 写出错误响应，存储类和未知错误不向调用方暴露细节
func fail(c *gin.Context, err error) {
	code := codeOf(err)
	switch code {
	case response.CodeServerError:
		log.Printf("[Handler] %s %s 内部错误: %v", c.Request.Method, c.Request.URL.Path, err)
		response.ServerError(c, "服务器内部错误")
	case response.CodeUnavailable:
		log.Printf("[Handler] %s %s 存储不可用: %v", c.Request.Method, c.Request.URL.Path, err)
		response.Error(c, code, service.ErrStorageUnavailable.Error())
	default:
		response.BusinessError(c, code, err.Error())
	}
}

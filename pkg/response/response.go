package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeNotFound      = 404
	CodeConflict      = 409
	CodeServerError   = 500
	CodeUnavailable   = 503 // 可重试
	CodeBusinessError = 1000
)

// 计费业务错误码，调用方（机器人、拨号器）按码区分提示
const (
	CodeRateNotFound        = 1001
	CodeNoRateCard          = 1002
	CodeInsufficientCredit  = 1003
	CodeCapacityExceeded    = 1004
	CodeRateConfiguration   = 1005
	CodeIdempotencyConflict = 1006
	CodeAccountNotFound     = 1007
	CodeAdmissionUnderflow  = 1008
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}

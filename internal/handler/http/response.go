package http

import "github.com/gin-gonic/gin"

const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// SuccessBody 是所有成功响应的外层结构
type SuccessBody struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorBody 是所有失败响应的外层结构
type ErrorBody struct {
	Status string `json:"status"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

func SuccessResponse(c *gin.Context, code int, message string, data any) {
	c.JSON(code, SuccessBody{Status: StatusSuccess, Message: message, Data: data})
}

func ErrorResponse(c *gin.Context, code int, kind, message string) {
	c.AbortWithStatusJSON(code, ErrorBody{Status: StatusFailed, Kind: kind, Error: message})
}

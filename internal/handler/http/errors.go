package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"clipsync/internal/service"
)

var statusByKind = map[service.ErrorKind]int{
	service.KindValidation:       http.StatusBadRequest,
	service.KindInvalidReference: http.StatusBadRequest,
	service.KindNotFound:         http.StatusNotFound,
	service.KindConflict:         http.StatusConflict,
	service.KindForbidden:        http.StatusForbidden,
	service.KindBadRequest:       http.StatusBadRequest,
	service.KindUnauthorized:     http.StatusUnauthorized,
	service.KindInternal:         http.StatusInternalServerError,
}

// HandleServiceError 把服务层错误映射为 HTTP 响应。内部错误只记录日志，不把细节返回给客户端。
func HandleServiceError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	if kind == service.KindInternal {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Unhandled internal server error")
		ErrorResponse(c, status, string(kind), "An unexpected error occurred")
		return
	}

	message := err.Error()
	var svcErr *service.Error
	if errors.As(err, &svcErr) && svcErr.Message != "" {
		message = svcErr.Message
	}
	ErrorResponse(c, status, string(kind), message)
}

// bindError 返回请求体格式错误的响应
func bindError(c *gin.Context, err error) {
	logrus.WithError(err).WithField("path", c.FullPath()).Warn("Invalid request body")
	ErrorResponse(c, http.StatusBadRequest, string(service.KindValidation), "Invalid input: "+err.Error())
}

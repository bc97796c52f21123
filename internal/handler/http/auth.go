package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"clipsync/internal/service"
)

// AuthHandler 封装了与用户认证相关的 HTTP 处理逻辑
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// CredentialsRequest 是注册和登录共用的请求体
type CredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register 处理用户注册请求，同时登记当前设备
func (h *AuthHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, device, err := h.authService.Register(c.Request.Context(), req.Email, req.Password, c.Request.UserAgent())
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": user.ID, "device_id": device.ID}).Info("Handler.Register: User registered successfully")
	SuccessResponse(c, http.StatusCreated, "User registered successfully", gin.H{
		"user":   user,
		"device": device,
	})
}

// Login 处理用户登录请求，返回 token 和当前设备
func (h *AuthHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Password, c.Request.UserAgent())
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithField("user_id", result.User.ID).Info("Handler.Login: User logged in successfully")
	SuccessResponse(c, http.StatusOK, "Login successful", result)
}

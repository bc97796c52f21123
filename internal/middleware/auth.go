package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"clipsync/internal/service"
)

// 认证信息在 gin 上下文中的键
const (
	ContextUserID   = "user_id"
	ContextDeviceID = "device_id"
)

// ErrMissingAuthHeader 表示缺少 Authorization 头
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// ErrMalformedAuthHeader 表示 Authorization 头不是 "Bearer <token>" 格式
var ErrMalformedAuthHeader = errors.New("malformed Authorization header")

// TokenVerifier 校验访问 token，service.JWTTokenService 实现了它
type TokenVerifier interface {
	Verify(token string) (*service.TokenClaims, error)
}

// Auth 返回一个 Gin 中间件，用于验证 Bearer token，
// 并把 user_id 和 device_id 写入上下文。
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	// 在创建中间件时就进行检查，避免运行时 panic
	if verifier == nil {
		panic("TokenVerifier cannot be nil for Auth middleware")
	}

	return func(c *gin.Context) {
		// 1. 从请求头提取 Token
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingAuthHeader) {
				logrus.Warn("Auth middleware: Missing Authorization header")
				abortUnauthorized(c, "Authorization header is required")
			} else {
				logrus.WithError(err).Warn("Auth middleware: Malformed Authorization header")
				abortUnauthorized(c, "Invalid token format")
			}
			return
		}

		// 2. 验证 Token
		claims, err := verifier.Verify(tokenStr)
		if err != nil {
			logrus.WithError(err).Warn("Auth middleware: Invalid token")
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		// 3. 将身份信息存储在 Gin 上下文中，供后续处理程序使用
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextDeviceID, claims.DeviceID)
		logrus.WithFields(logrus.Fields{
			"user_id":   claims.UserID,
			"device_id": claims.DeviceID,
		}).Debug("Auth middleware: Device authenticated via JWT")

		c.Next()
	}
}

// DeviceID 返回认证中间件写入的设备 ID
func DeviceID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextDeviceID)
	return id, id != ""
}

// UserID 返回认证中间件写入的用户 ID
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextUserID)
	return id, id != ""
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"status": "FAILED",
		"kind":   string(service.KindUnauthorized),
		"error":  message,
	})
}

// extractToken 从 Gin 上下文中提取 Bearer Token
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}
	// Authorization header 格式应为 "Bearer <token>"，忽略 "Bearer" 的大小写
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrMalformedAuthHeader
	}
	return parts[1], nil
}

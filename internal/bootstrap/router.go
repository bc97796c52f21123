package bootstrap

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	httpHandler "clipsync/internal/handler/http"
	"clipsync/internal/middleware"
)

// Handlers 汇总路由需要的全部处理器
type Handlers struct {
	Auth    *httpHandler.AuthHandler
	Room    *httpHandler.RoomHandler
	Session *httpHandler.SessionHandler
}

// NewRouter 创建 Gin Engine 并注册中间件和路由。redisClient 为 nil 时不启用限流。
func NewRouter(cfg *Config, log *logrus.Logger, h Handlers, tokens middleware.TokenVerifier, redisClient *redis.Client) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORSAllowedOrigin))
	if redisClient != nil {
		router.Use(middleware.RateLimit(redisClient, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow))
	}

	api := router.Group("/api/v1")
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", h.Auth.Register)
		authRoutes.POST("/login", h.Auth.Login)
	}

	roomRoutes := api.Group("/rooms", middleware.Auth(tokens))
	{
		roomRoutes.GET("", h.Room.ListRooms)
		roomRoutes.POST("", h.Room.CreateRoom)
		roomRoutes.POST("/join", h.Room.JoinRoom)
		roomRoutes.GET("/:id", h.Room.GetRoom)
		roomRoutes.PATCH("/:id", h.Room.UpdateRoom)
		roomRoutes.DELETE("/:id", h.Room.DeleteRoom)
		roomRoutes.GET("/:id/qrcode", h.Room.QRCode)
		roomRoutes.POST("/:id/leave", h.Room.LeaveRoom)
		roomRoutes.PATCH("/:id/devices/add", h.Room.AddDevices)
		roomRoutes.PATCH("/:id/devices/remove", h.Room.RemoveDevices)
	}

	sessionRoutes := api.Group("/sessions")
	{
		sessionRoutes.POST("", h.Session.CreateSession)
		sessionRoutes.POST("/join", h.Session.JoinSession)
		sessionRoutes.GET("/current", h.Session.CurrentSession)
		sessionRoutes.POST("/leave", h.Session.LeaveSession)
		sessionRoutes.GET("/qrcode", h.Session.QRCode)
		sessionRoutes.POST("/messages", h.Session.SendMessage)
	}

	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	return router
}

// CORSMiddleware 允许配置的前端来源携带 cookie 跨域访问
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next() // 处理请求
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "clipsync/internal/handler/http"
	"clipsync/internal/infra/gateway"
	gormpersistence "clipsync/internal/infra/persistence/gorm"
	"clipsync/internal/infra/setup"
	redisstate "clipsync/internal/infra/state/redis"
	"clipsync/internal/notifier"
	"clipsync/internal/service"
	"clipsync/internal/worker"
)

const gatewayHTTPTimeout = 5 * time.Second

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client        // 仅在 queue 模式下非空
	AsynqServer *worker.WorkerServer // 仅在 queue 模式下非空
	Notifier    *notifier.Notifier
	HttpServer  *http.Server

	notifierCtx  context.Context
	stopNotifier context.CancelFunc
	notifierDone chan struct{}
}

// NewLogger 根据配置创建 Logger，同时配置 logrus 的全局 Logger
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel) // cfg.LogLevel 已被 LoadConfig 验证
	log.SetLevel(level)
	log.SetOutput(os.Stdout)

	// 服务层使用包级别的 logrus，保持相同的格式和级别
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)
	return log
}

// newPublisher 根据配置选择推送网关
func newPublisher(cfg *Config, redisClient *redis.Client) notifier.Publisher {
	if cfg.GatewayDriver == GatewayRedis {
		return gateway.NewRedisPublisher(redisClient, cfg.KeyPrefix)
	}
	return gateway.NewCentrifugoPublisher(cfg.CentrifugoURL, cfg.CentrifugoAPIKey, &http.Client{Timeout: gatewayHTTPTimeout})
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		// 使用标准错误输出，因为 logrus 还未配置
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := NewLogger(cfg)
	log.Infof("Logger initialized (Level: %s, Format: %T)", log.GetLevel().String(), log.Formatter)
	log.Info("Configuration loaded successfully")

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	log.WithField("driver", cfg.DBDriver).Info("Database initialized")

	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	// 4. 初始化事件推送
	publisher := newPublisher(cfg, redisClient)
	var (
		dispatcher   notifier.Dispatcher
		asynqClient  *asynq.Client
		workerServer *worker.WorkerServer
	)
	if cfg.NotifyMode == NotifyModeQueue {
		redisClientOpt := asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
		asynqClient = asynq.NewClient(redisClientOpt)
		dispatcher = notifier.NewQueueDispatcher(asynqClient, cfg.NotifyMaxRetry)
		workerServer = worker.NewWorkerServer(redisClientOpt, publisher, cfg.WorkerConcurrency, log)
		log.Info("Asynq client and worker server initialized")
	} else {
		dispatcher = notifier.NewDirectDispatcher(publisher)
	}
	events := notifier.New(dispatcher, cfg.NotifyBuffer, cfg.NotifyTimeout, log)
	log.WithFields(logrus.Fields{"mode": cfg.NotifyMode, "gateway": cfg.GatewayDriver}).Info("Notifier initialized")

	// 5. 初始化 Repositories
	log.Info("Initializing repositories...")
	userRepo := gormpersistence.NewGormUserRepository(db)
	deviceRepo := gormpersistence.NewGormDeviceRepository(db)
	roomRepo := gormpersistence.NewGormRoomRepository(db)
	sessionRepo := redisstate.NewRedisSessionRepository(redisClient, cfg.KeyPrefix)
	log.Info("Repositories initialized")

	// 6. 初始化 Services
	log.Info("Initializing services...")
	tokens, err := service.NewJWTTokenService(cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create TokenService: %w", err)
	}
	// 房间和会话共用一个邀请码命名空间
	codes := service.NewInviteCodeGenerator(cfg.InviteCodePrefix, roomRepo, sessionRepo)
	authService := service.NewAuthService(userRepo, deviceRepo, tokens, cfg.StoreTimeout)
	roomService := service.NewRoomService(roomRepo, deviceRepo, codes, events, cfg.StoreTimeout)
	sessionService := service.NewSessionService(sessionRepo, codes, events, cfg.SessionTTL, cfg.StoreTimeout)
	log.Info("Services initialized")

	// 7. 初始化 Handlers 和路由
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	cookies := httpHandler.NewSessionCookies(cfg.CookieSecret, cfg.CookieSecure, cfg.SessionTTL)
	router := NewRouter(cfg, log, Handlers{
		Auth:    httpHandler.NewAuthHandler(authService),
		Room:    httpHandler.NewRoomHandler(roomService),
		Session: httpHandler.NewSessionHandler(sessionService, cookies),
	}, tokens, redisClient)
	log.Info("Router setup complete")

	// 8. 初始化 HTTP Server
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	notifierCtx, stopNotifier := context.WithCancel(context.Background())
	app := &App{
		Config:       cfg,
		Log:          log,
		DB:           db,
		RedisClient:  redisClient,
		AsynqClient:  asynqClient,
		AsynqServer:  workerServer,
		Notifier:     events,
		HttpServer:   httpServer,
		notifierCtx:  notifierCtx,
		stopNotifier: stopNotifier,
		notifierDone: make(chan struct{}),
	}
	log.Info("Application assembled successfully")
	return app, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	go func() {
		defer close(a.notifierDone)
		a.Notifier.Run(a.notifierCtx)
	}()

	if a.AsynqServer != nil {
		go a.AsynqServer.Start()
		a.Log.Info("Asynq worker server routine started")
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用。先停止接收请求，再排空事件队列，最后关闭连接。
func (a *App) Shutdown(ctx context.Context) {
	a.Log.Info("Shutting down application...")

	// 1. 优雅关闭 HTTP 服务器
	a.Log.Info("Shutting down HTTP server...")
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 2. 排空事件队列，超时后放弃剩余事件
	a.Notifier.Close()
	select {
	case <-a.notifierDone:
	case <-ctx.Done():
		a.Log.Warn("Timed out draining notifier queue")
	}
	a.stopNotifier()

	// 3. 优雅关闭 Worker Server 和 Asynq Client
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		} else {
			a.Log.Info("Asynq client closed.")
		}
	}

	// 4. 关闭 Redis 连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}

	// 5. 关闭数据库连接池
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.Log.Errorf("Error closing database connection: %v", err)
		} else {
			a.Log.Info("Database connection closed.")
		}
	}

	a.Log.Info("Application shutdown complete.")
}

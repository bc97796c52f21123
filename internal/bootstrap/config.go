package bootstrap

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"clipsync/internal/infra/setup"
)

// 通知模式
const (
	NotifyModeQueue  = "queue"
	NotifyModeDirect = "direct"
)

// 推送网关驱动
const (
	GatewayCentrifugo = "centrifugo"
	GatewayRedis      = "redis"
)

// Config 结构体用于存储从环境变量或 .env 文件加载的配置
type Config struct {
	AppEnv     string `env:"APP_ENV" envDefault:"development"`
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	DBDriver   string `env:"DB_DRIVER" envDefault:"mysql"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBHost     string `env:"DB_HOST"`
	DBPort     string `env:"DB_PORT"`
	DBName     string `env:"DB_NAME" envDefault:"clipsync"`

	RedisAddr     string `env:"REDIS_ADDR,notEmpty"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix     string `env:"REDIS_KEY_PREFIX" envDefault:"clip:"`

	JWTSecret      string `env:"JWT_SECRET,notEmpty"`
	JWTExpiryHours int    `env:"JWT_EXPIRY_HOURS" envDefault:"24"`
	CookieSecret   string `env:"COOKIE_SECRET,notEmpty"`
	CookieSecure   bool   `env:"COOKIE_SECURE" envDefault:"false"`

	InviteCodePrefix string        `env:"INVITE_CODE_PREFIX" envDefault:"CLIP"`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	StoreTimeout     time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	NotifyMode        string        `env:"NOTIFY_MODE" envDefault:"queue"`
	NotifyBuffer      int           `env:"NOTIFY_BUFFER" envDefault:"256"`
	NotifyTimeout     time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
	NotifyMaxRetry    int           `env:"NOTIFY_MAX_RETRY" envDefault:"5"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" envDefault:"10"`

	GatewayDriver    string `env:"GATEWAY_DRIVER" envDefault:"centrifugo"`
	CentrifugoURL    string `env:"CENTRIFUGO_URL" envDefault:"http://localhost:8000/api"`
	CentrifugoAPIKey string `env:"CENTRIFUGO_API_KEY"`

	RateLimitMax      int           `env:"RATE_LIMIT_MAX" envDefault:"100"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1s"`
	CORSAllowedOrigin string        `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)，忽略错误，允许只使用环境变量
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", c.LogLevel)
		c.LogLevel = "info" // 修正配置值
	}
	switch c.DBDriver {
	case setup.DriverMySQL, setup.DriverPostgres, setup.DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.NotifyMode {
	case NotifyModeQueue, NotifyModeDirect:
	default:
		return fmt.Errorf("unsupported NOTIFY_MODE %q", c.NotifyMode)
	}
	switch c.GatewayDriver {
	case GatewayRedis:
	case GatewayCentrifugo:
		if c.CentrifugoURL == "" {
			return fmt.Errorf("CENTRIFUGO_URL must be set when GATEWAY_DRIVER is %q", GatewayCentrifugo)
		}
	default:
		return fmt.Errorf("unsupported GATEWAY_DRIVER %q", c.GatewayDriver)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

// IsProduction 判断是否运行在生产环境
func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

// DBConfig 返回数据库连接参数
func (c *Config) DBConfig() setup.DBConfig {
	level, _ := logrus.ParseLevel(c.LogLevel)
	return setup.DBConfig{
		Driver:   c.DBDriver,
		User:     c.DBUser,
		Password: c.DBPassword,
		Host:     c.DBHost,
		Port:     c.DBPort,
		Name:     c.DBName,
		LogLevel: level,
	}
}

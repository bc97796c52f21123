package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 支持的数据库驱动
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DBConfig 描述数据库连接参数。
// SQLite 驱动只使用 Name (文件路径或 ":memory:")。
type DBConfig struct {
	Driver   string
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	LogLevel logrus.Level
}

// InitDB 根据驱动打开数据库连接并设置连接池
func InitDB(cfg DBConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gormLogLevel := logger.Warn
	if cfg.LogLevel >= logrus.DebugLevel {
		gormLogLevel = logger.Info // debug 模式下打印 SQL
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true, // 把驱动的唯一约束错误翻译为 gorm.ErrDuplicatedKey
		Logger:         logger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB() // 获取底层的 *sql.DB 对象
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1) // SQLite 只允许单个写连接
	} else {
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	logrus.WithField("driver", cfg.Driver).Info("Database connected")
	return db, nil
}

// dialectorFor 从配置构建对应驱动的 DSN
func dialectorFor(cfg DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverMySQL, "":
		if cfg.User == "" {
			return nil, fmt.Errorf("DB_USER must be set for mysql")
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, hostOr(cfg.Host), portOr(cfg.Port, "3306"), cfg.Name)
		return mysql.Open(dsn), nil
	case DriverPostgres:
		if cfg.User == "" {
			return nil, fmt.Errorf("DB_USER must be set for postgres")
		}
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			hostOr(cfg.Host), cfg.User, cfg.Password, cfg.Name, portOr(cfg.Port, "5432"))
		return postgres.Open(dsn), nil
	case DriverSQLite:
		name := cfg.Name
		if name == "" {
			name = "clipsync.db"
		}
		return sqlite.Open(name), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
}

func hostOr(host string) string {
	if host == "" {
		return "127.0.0.1" // 本地开发默认值
	}
	return host
}

func portOr(port, fallback string) string {
	if port == "" {
		return fallback
	}
	return port
}

// InitRedis 初始化 Redis 连接并检查连通性
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxConnAge:   30 * time.Minute, // 连接最大存活时间
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	logrus.WithField("addr", addr).Info("Redis connected")
	return client, nil
}

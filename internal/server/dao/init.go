package dao

import (
	"context"
	"fmt"
	"time"

	"forge/internal/common"
	"forge/internal/pipeline"
	"forge/internal/server/model"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB connects to the configured SQL backend and migrates the schema.
func OpenDB(cfg common.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.StoreBackend {
	case "mysql":
		dialector = mysql.Open(MySQLDSN(cfg))
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("store backend %q is not a SQL database", cfg.StoreBackend)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// MySQLDSN builds the connection string for the mysql backend.
func MySQLDSN(cfg common.Config) string {
	dsn := mysqldriver.NewConfig()
	dsn.User = cfg.DBUser
	dsn.Passwd = cfg.DBPassword
	dsn.Net = "tcp"
	dsn.Addr = fmt.Sprintf("%s:%d", cfg.DBHost, cfg.DBPort)
	dsn.DBName = cfg.DBName
	dsn.ParseTime = true
	dsn.Loc = time.Local
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	return dsn.FormatDSN()
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Pipeline{})
}

// NewStore builds the pipeline store selected by STORE_BACKEND. The returned
// func releases its connections.
func NewStore(ctx context.Context, cfg common.Config, log *zap.Logger) (pipeline.Store, func(), error) {
	switch cfg.StoreBackend {
	case "", "memory":
		log.Warn("using in-memory pipeline store, state is lost on restart")
		return pipeline.NewMemoryStore(), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return NewRedisStore(client, ""), func() { _ = client.Close() }, nil
	default:
		db, err := OpenDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return NewPipelineDao(db), closeFn, nil
	}
}

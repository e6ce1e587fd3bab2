// Package repository provides the durable activity store behind presence tracking
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jgirmay/presencehub/pkg/config"
)

// Open connects the activity store selected by cfg.Store. It returns a nil
// repository for store "none"; callers run without durable persistence then.
func Open(ctx context.Context, cfg *config.Config) (ActivityRepository, error) {
	switch cfg.Store {
	case "none":
		return nil, nil
	case "redis":
		repo, err := openRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "gorm":
		repo, err := openGorm(cfg.Database)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported store %q", cfg.Store)
	}
}

func openGorm(cfg config.DatabaseConfig) (*ActivityRepositoryImpl, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	repo := NewActivityRepository(db)
	if err := repo.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return repo, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*RedisActivityRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisActivityRepository(client), nil
}

package main

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/jgirmay/presencehub/pkg/auth"
	"github.com/jgirmay/presencehub/pkg/config"
	"github.com/jgirmay/presencehub/pkg/logging"
	"github.com/jgirmay/presencehub/pkg/services/presence"
	"github.com/jgirmay/presencehub/pkg/services/realtime"
)

// buildAuthenticator selects the identity adapter for the configured mode
func buildAuthenticator(cfg config.AuthConfig) (auth.Authenticator, error) {
	switch strings.ToLower(cfg.Mode) {
	case "jwt":
		return auth.NewTokenManager(cfg.SecretKey, cfg.TokenTTL, cfg.Issuer, cfg.Audience), nil
	case "header":
		return auth.HeaderAuthenticator{}, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

func trackerConfig(cfg config.PresenceConfig) presence.Config {
	tc := presence.DefaultConfig()
	tc.FlushInterval = cfg.FlushInterval
	tc.SeedWindow = cfg.SeedWindow
	tc.ShardCount = cfg.ShardCount
	return tc
}

func channelConfig(cfg config.PresenceConfig) realtime.ChannelConfig {
	return realtime.ChannelConfig{
		QueueSize:     cfg.SendQueueSize,
		WriteTimeout:  cfg.WriteTimeout,
		ReadTimeout:   cfg.ReadTimeout,
		PingInterval:  cfg.PingInterval,
		MaxFrameBytes: cfg.MaxFrameBytes,
	}
}

// logConfiguration logs the loaded configuration
func logConfiguration(logger *logging.Logger, cfg *config.Config) {
	fields := []zap.Field{
		zap.String("addr", cfg.Addr()),
		zap.String("store", cfg.Store),
		zap.String("auth_mode", cfg.Auth.Mode),
		zap.Duration("flush_interval", cfg.Presence.FlushInterval),
		zap.Duration("seed_window", cfg.Presence.SeedWindow),
		zap.Int("shard_count", cfg.Presence.ShardCount),
		zap.Int("send_queue_size", cfg.Presence.SendQueueSize),
		zap.Bool("relay_enabled", cfg.Relay.Enabled),
	}
	switch cfg.Store {
	case "gorm":
		fields = append(fields,
			zap.String("database_driver", cfg.Database.Driver),
			zap.String("database_dsn", maskDSN(cfg.Database.Driver, cfg.Database.DSN)),
		)
	case "redis":
		fields = append(fields, zap.String("redis_addr", cfg.Redis.Addr))
	}
	logger.Info("configuration loaded", fields...)
}

// maskDSN reduces a connection string to its non-secret parts. Postgres
// DSNs, URL or key=value, are parsed and rebuilt from user, host, port and
// database; any other DSN loses its query parameters.
func maskDSN(driver, dsn string) string {
	if driver == "postgres" {
		pc, err := pgconn.ParseConfig(dsn)
		if err != nil {
			return "***"
		}
		return fmt.Sprintf("%s@%s:%d/%s", pc.User, pc.Host, pc.Port, pc.Database)
	}
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		return dsn[:i] + "?***"
	}
	return dsn
}

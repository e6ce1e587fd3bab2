package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/jgirmay/presencehub/internal/health"
	"github.com/jgirmay/presencehub/internal/relay"
	"github.com/jgirmay/presencehub/pkg/config"
	"github.com/jgirmay/presencehub/pkg/http/handlers"
	"github.com/jgirmay/presencehub/pkg/http/middleware"
	"github.com/jgirmay/presencehub/pkg/logging"
	"github.com/jgirmay/presencehub/pkg/metrics"
	"github.com/jgirmay/presencehub/pkg/repository"
	"github.com/jgirmay/presencehub/pkg/services/presence"
	"github.com/jgirmay/presencehub/pkg/services/realtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "presenced: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.LogLevel(cfg.Logging.Level), cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logConfiguration(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics()

	// A missing store degrades presence after restart but never blocks startup
	store, err := repository.Open(ctx, cfg)
	if err != nil {
		logger.Error("durable store unavailable, running without persistence", zap.Error(err))
		store = nil
	}

	var trackerStore presence.Store
	if store != nil {
		trackerStore = store
		defer store.Close()
	}
	tracker := presence.NewTracker(trackerStore, trackerConfig(cfg.Presence), logger, m)
	tracker.Start(ctx)

	registry := realtime.NewConnectionRegistry(cfg.Presence.ShardCount, logger, m)
	registry.OnEmpty(func(userID string) {
		logger.Debug("user has no open channels", zap.String("user_id", userID))
	})
	notifier := realtime.NewNotifier(registry, logger)

	authn, err := buildAuthenticator(cfg.Auth)
	if err != nil {
		return err
	}

	checker := health.NewChecker(2 * time.Second)
	if store != nil {
		checker.Register("store", store)
	}

	var rl *relay.Relay
	if cfg.Relay.Enabled {
		nc, err := relay.Connect(cfg.Relay.URL, logger)
		if err != nil {
			logger.Error("relay disabled", zap.Error(err))
		} else {
			defer nc.Close()
			checker.Register("nats", health.PingFunc(func(ctx context.Context) error {
				return relay.Ping(ctx, nc)
			}))
			rl = relay.New(nc, relay.Config{
				Subject:          cfg.Relay.Subject,
				HeartbeatSubject: cfg.Relay.HeartbeatSubject,
			}, notifier, tracker, logger, m)
			if err := rl.Start(); err != nil {
				logger.Error("relay failed to subscribe", zap.Error(err))
				rl = nil
			}
		}
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimw.Recoverer)

	var writer repository.ActivityWriter
	if store != nil {
		writer = store
	}
	handlers.RegisterPresenceRoutes(
		router,
		handlers.NewPresenceHandlers(tracker, writer, registry, notifier, checker, logger),
		handlers.NewWebSocketHandler(registry, tracker, authn, channelConfig(cfg.Presence), logger),
		authn,
	)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// websocket connections are hijacked, so Shutdown does not wait for them
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}
	if rl != nil {
		if err := rl.Stop(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			logger.Warn("relay drain error", zap.Error(err))
		}
	}
	registry.CloseAll()
	tracker.Stop()

	logger.Info("graceful shutdown complete",
		zap.Int("pending_flush", tracker.PendingCount()),
	)
	return nil
}

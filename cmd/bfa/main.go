package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/cash-console-bfa/internal/config"
	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/handler"
	"github.com/boddenberg/cash-console-bfa/internal/infra/client"
	"github.com/boddenberg/cash-console-bfa/internal/infra/observability"
	"github.com/boddenberg/cash-console-bfa/internal/infra/resilience"
	"github.com/boddenberg/cash-console-bfa/internal/infra/sessionstore"
	"github.com/boddenberg/cash-console-bfa/internal/port"
	"github.com/boddenberg/cash-console-bfa/internal/service"
	"github.com/boddenberg/cash-console-bfa/internal/session"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("backend_url", cfg.BackendURL),
		zap.String("session_store", cfg.SessionStore),
		zap.String("time_zone", cfg.TimeZone),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("session_ttl", cfg.SessionTTL),
		zap.Duration("controller_ttl", cfg.ControllerTTL),
	)

	loc, err := domain.LoadTimeZone(cfg.TimeZone)
	if err != nil {
		logger.Fatal("failed to load time zone", zap.Error(err))
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "cash-console-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		FailureRatio:   cfg.BreakerFailureRatio,
		MinRequests:    cfg.BreakerMinRequests,
		OpenTimeout:    cfg.BreakerOpenTimeout,
	}
	cb := resilience.NewCircuitBreaker("backend", resilienceCfg, client.IsBackendFailure)
	bulkhead := resilience.NewBulkhead(resilienceCfg.MaxConcurrency)

	// --- Backend client ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	api := client.New(httpClient, cfg.BackendURL, cb, bulkhead, metrics, logger)

	// --- Session store ---
	var store port.SessionStore
	var ready func(ctx context.Context) error

	switch cfg.SessionStore {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		redisStore := sessionstore.NewRedis(rdb, cfg.SessionTTL)
		defer redisStore.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisStore.Ping(pingCtx); err != nil {
			logger.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		cancel()

		store = redisStore
		ready = redisStore.Ping
		logger.Info("using Redis session store", zap.String("addr", cfg.RedisAddr))
	default:
		memStore := sessionstore.NewMemory(cfg.SessionTTL)
		defer memStore.Close()
		store = memStore
		logger.Info("using in-memory session store")
	}

	// --- Services ---
	sessions := session.NewService(client.NewAuthClient(api), store, cfg.SessionTTL, metrics, logger)
	console := service.NewConsole(sessions, api, service.ConsoleConfig{
		ControllerTTL: cfg.ControllerTTL,
		CategoryTTL:   cfg.CategoryCacheTTL,
		Location:      loc,
	}, metrics, logger)
	defer console.Close()

	// --- Router ---
	router := handler.NewRouter(console, handler.Options{
		CookieSecure:   cfg.CookieSecure,
		LoginRateLimit: cfg.LoginRateLimit,
		Ready:          ready,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"posengine/backend/internal/cache"
	"posengine/backend/internal/config"
	"posengine/backend/internal/httpapi"
	"posengine/backend/internal/logging"
	"posengine/backend/internal/metrics"
	"posengine/backend/internal/service"
	"posengine/backend/internal/store"
	"posengine/backend/internal/store/breaker"
	pgstore "posengine/backend/internal/store/postgres"
	"posengine/backend/internal/store/seed"
	"posengine/backend/internal/store/sqlite"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	repo, closeRepo, err := openRepository(ctx, cfg, logger, bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal("repository unavailable", zap.Error(err))
	}
	closers = append(closers, closeRepo)

	cacheStore, closeCache := openCache(ctx, cfg, logger)
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	registry := metrics.New()
	svc := service.New(repo, service.Options{
		Cache:          cacheStore,
		CacheTTL:       cfg.CacheTTL(),
		Logger:         logger.Named("service"),
		Metrics:        registry,
		ReceiptBaseURL: cfg.ReceiptBaseURL,
		AtomicStock:    cfg.AtomicStockDecrement,

		TerminalIdleTTL:     cfg.TerminalIdleTTL(),
		MaxTerminalsPerUser: cfg.MaxTerminalsPerUser,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Logger:        logger.Named("http"),
		Metrics:       registry,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("POS engine listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// openRepository picks postgres behind a circuit breaker when DATABASE_URL is
// set and a local sqlite file seeded with the demo tenant otherwise.
func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger, seedCost int) (store.Repository, func() error, error) {
	if cfg.DatabaseURL != "" {
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with local fallback: %w", err)
		}
		if cfg.SeedDemo {
			if err := seedStore(ctx, pg, seedCost, logger); err != nil {
				_ = pg.Close()
				return nil, nil, err
			}
		}
		logger.Info("repository: postgres")
		repo := breaker.Wrap(pg, breaker.Settings{
			Name:        "postgres",
			MaxFailures: uint32(cfg.BreakerMaxFailures),
			OpenFor:     cfg.BreakerOpenFor(),
		}, logger.Named("breaker"))
		return repo, pg.Close, nil
	}

	local, err := sqlite.Open(ctx, cfg.LocalDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite open %s: %w", cfg.LocalDBPath, err)
	}
	if err := seedStore(ctx, local, seedCost, logger); err != nil {
		_ = local.Close()
		return nil, nil, err
	}
	logger.Warn("DATABASE_URL not set, using local sqlite store", zap.String("path", cfg.LocalDBPath))
	return local, local.Close, nil
}

type seeder interface {
	Seed(ctx context.Context, data seed.Data) error
}

func seedStore(ctx context.Context, target seeder, cost int, logger *zap.Logger) error {
	data, err := seed.Demo(cost)
	if err != nil {
		return fmt.Errorf("build demo seed: %w", err)
	}
	if err := target.Seed(ctx, data); err != nil {
		return fmt.Errorf("seed demo tenant: %w", err)
	}
	if data.UsedDefaultPasswords {
		logger.Warn("demo accounts use default passwords; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD")
	}
	return nil
}

func openCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.Cache, func() error) {
	if cfg.RedisAddr == "" {
		logger.Info("cache: noop")
		return cache.Noop{}, nil
	}
	redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, using noop cache", zap.Error(err))
		_ = redisCache.Close()
		return cache.Noop{}, nil
	}
	logger.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
	return redisCache, redisCache.Close
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/kenyabank/internal/api"
	"github.com/ayo6706/kenyabank/internal/auth"
	"github.com/ayo6706/kenyabank/internal/cache"
	"github.com/ayo6706/kenyabank/internal/config"
	"github.com/ayo6706/kenyabank/internal/db"
	"github.com/ayo6706/kenyabank/internal/gateway"
	"github.com/ayo6706/kenyabank/internal/idempotency"
	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/ayo6706/kenyabank/internal/observability"
	"github.com/ayo6706/kenyabank/internal/repository"
	"github.com/ayo6706/kenyabank/internal/security"
	"github.com/ayo6706/kenyabank/internal/service"
	"github.com/ayo6706/kenyabank/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// container holds everything wired from one configuration.
type container struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redis.Client
	store  *repository.Store
	caches *cache.Caches
	tokens *auth.TokenManager
	gw     gateway.Gateway
	audit  *service.AuditService
	auth   *service.AuthService
}

func (c *container) close() {
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
	_ = c.logger.Sync()
}

// bootstrap loads configuration, connects Postgres and, when reachable, Redis.
func bootstrap(ctx context.Context) (*container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	observability.Init()

	c := &container{cfg: cfg, logger: logger}

	c.pool, err = db.Connect(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		c.close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if cfg.MigrationsAuto {
		if err := db.MigrateUp(cfg.DatabaseURL); err != nil {
			c.close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	// Redis is an accelerator only; without it every read goes to Postgres.
	var cacheClient redis.Cmdable
	c.redis, err = newRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", zap.Error(err))
	} else {
		cacheClient = c.redis
	}

	c.store = repository.NewStore(c.pool)
	c.caches = cache.New(cacheClient)
	c.tokens = auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTokenTTL)
	c.audit = service.NewAuditService(c.store)

	if cfg.MpesaMock {
		logger.Warn("using mock M-Pesa gateway")
		c.gw = gateway.NewMockGateway()
	} else {
		c.gw = gateway.NewMpesaGateway(cfg.Mpesa, c.caches.MpesaToken)
	}

	c.auth, err = service.NewAuthService(c.store, c.tokens, c.audit, c.caches, service.AuthConfig{
		MaxLoginAttempts: cfg.MaxLoginAttempts,
		LockoutDuration:  cfg.AccountLockout,
		LoginRate:        cfg.LoginRateLimit,
		WelcomeBonus:     cfg.WelcomeBonus,
	})
	if err != nil {
		c.close()
		return nil, fmt.Errorf("init auth service: %w", err)
	}
	return c, nil
}

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer c.close()
	cfg, logger := c.cfg, c.logger

	accounts := service.NewAccountService(c.store, c.audit, c.caches)

	var cachePinger service.Pinger
	if c.redis != nil {
		cachePinger = service.PingFunc(func(ctx context.Context) error {
			return c.redis.Ping(ctx).Err()
		})
	}

	var idemClient redis.Cmdable
	if c.redis != nil {
		idemClient = c.redis
	}

	services := api.Services{
		Auth:        c.auth,
		Accounts:    accounts,
		Admin:       service.NewAdminService(accounts),
		Transfers:   service.NewTransferService(c.store, c.audit, c.caches, security.NewSigner(cfg.TransactionSigningKey)),
		Deposits:    service.NewDepositService(c.store, c.gw, c.audit, c.caches),
		Callbacks:   service.NewCallbackService(c.store, c.audit, c.caches),
		Health:      service.NewHealthService(c.store, cachePinger, c.gw),
		Tokens:      c.tokens,
		Idempotency: idempotency.NewStore(c.store, idemClient, cfg.IdempotencyTTL),
	}

	retention := worker.NewRetentionWorker(service.NewRetentionService(c.store, cfg.RetentionPeriod)).
		WithInterval(cfg.RetentionInterval)
	stopRetention := retention.Run(ctx)
	logger.Info("retention worker started", zap.Duration("interval", cfg.RetentionInterval), zap.Duration("period", cfg.RetentionPeriod))

	reconciliation := worker.NewReconciliationWorker(service.NewReconciliationService(c.store, cfg.PendingMaxAge)).
		WithInterval(cfg.PendingCheckInterval)
	stopReconciliation := reconciliation.Run(ctx)
	logger.Info("reconciliation worker started", zap.Duration("interval", cfg.PendingCheckInterval), zap.Duration("max_age", cfg.PendingMaxAge))

	router := api.NewRouter(services, api.Options{
		CORSOrigins:        cfg.CORSOrigins,
		PublicRateLimitRPS: cfg.PublicRateLimitRPS,
		AuthRateLimitRPS:   cfg.AuthRateLimitRPS,
	}, logger)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Deposits wait on the provider, so leave room beyond its timeout.
		WriteTimeout: cfg.Mpesa.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort), zap.Bool("mpesa_mock", cfg.MpesaMock))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stopRetention()
			stopReconciliation()
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("stopping workers")
	stopRetention()
	stopReconciliation()

	logger.Info("shutdown complete")
	return nil
}

// CreateAdmin provisions an administrator without a welcome bonus.
func CreateAdmin(ctx context.Context, email, fullName, phone, password string) (*models.Profile, error) {
	c, err := bootstrap(ctx)
	if err != nil {
		return nil, err
	}
	defer c.close()

	profile, err := c.auth.CreateAdmin(ctx, service.RegisterRequest{
		Email:    email,
		FullName: fullName,
		Phone:    phone,
		Password: password,
		Meta:     service.RequestMeta{UserAgent: "kenyabank-cli"},
	})
	if err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	return profile, nil
}

// Migrate applies ("up") or rolls back ("down") schema migrations.
func Migrate(direction string, steps int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	switch direction {
	case "up":
		return db.MigrateUp(cfg.DatabaseURL)
	case "down":
		return db.MigrateDown(cfg.DatabaseURL, steps)
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, errors.New("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

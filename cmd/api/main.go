// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/petlove/backoffice-api/internal/admin"
	"github.com/petlove/backoffice-api/internal/auth"
	"github.com/petlove/backoffice-api/internal/config"
	"github.com/petlove/backoffice-api/internal/core"
	"github.com/petlove/backoffice-api/internal/health"
	"github.com/petlove/backoffice-api/internal/middleware"
	"github.com/petlove/backoffice-api/internal/migrations"
	"github.com/petlove/backoffice-api/internal/notify"
	"github.com/petlove/backoffice-api/internal/passwordreset"
	"github.com/petlove/backoffice-api/internal/rbac"
	"github.com/petlove/backoffice-api/internal/server"
	"github.com/petlove/backoffice-api/internal/signedtoken"
	"github.com/petlove/backoffice-api/internal/user"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	if cfg.Database.AutoMigrate {
		if err := migrations.Up(ctx, db.DB.DB); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	if cfg.Security.LegacyPasswordFallback {
		logger.Warn("legacy plaintext password fallback is enabled")
	}

	var notifier notify.Notifier
	switch cfg.Notify.Driver {
	case "redis":
		notifier = notify.NewRedisStreamNotifier(redis.Client, cfg.Notify.Stream, cfg.Notify.MaxLen)
	default:
		notifier = notify.NewLogNotifier(logger)
	}
	dispatcher := notify.NewDispatcher(notifier, cfg.Notify.Timeout)
	logger.Info("notifier initialized", "driver", cfg.Notify.Driver)

	links, err := signedtoken.New([]byte(cfg.SignedToken.Secret))
	if err != nil {
		return err
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "HS256",
		"key_id", jwtManager.GetKeyID(),
		"access_token_expire", jwtManager.AccessTokenTTL(),
	)

	hasher := core.NewPasswordHasher()

	userRepo := user.NewRepository(db.DB)
	userSvc := user.NewService(userRepo)
	userHandler := user.NewHandler(userSvc)

	resetSvc := passwordreset.NewService(
		passwordreset.NewRepository(db.DB),
		userSvc,
		hasher,
		links,
		dispatcher,
		passwordreset.Config{
			FrontendURL: cfg.Auth.FrontendURL,
			LinkTTL:     cfg.SignedToken.TTL,
			Production:  cfg.IsProduction(),
		},
	)

	refreshStore := auth.NewRefreshStore(
		auth.NewRepository(db.DB),
		cfg.JWT.RefreshTokenExpire,
	)

	blacklist := auth.NewBlacklist(redis.Client)

	authSvc := auth.NewService(auth.Dependencies{
		Users:     userSvc,
		Hasher:    hasher,
		JWT:       jwtManager,
		Refresh:   refreshStore,
		Resets:    resetSvc,
		Links:     links,
		Blacklist: blacklist,
		Mailer:    dispatcher,
	}, auth.Config{
		LegacyPasswordFallback: cfg.Security.LegacyPasswordFallback,
		WelcomeTTL:             cfg.SignedToken.TTL,
		FrontendURL:            cfg.Auth.FrontendURL,
	})
	authHandler := auth.NewHandler(authSvc)

	permissions := rbac.NewService(rbac.NewRepository(db.DB), redis.Client, rbac.DefaultCacheTTL)

	healthHandler := health.NewHandler(
		health.Check{Name: "database", Checker: db},
		health.Check{Name: "redis", Checker: redis},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		DBPing:     db.Ping,
		RedisPing:  redis.Ping,
		Sessions:   authSvc,
		Users:      userSvc,
		Resets:     resetSvc,
		Revoked:    blacklist,
	})

	janitor := auth.NewJanitor(cfg.Auth.CleanupInterval, logger, map[string]auth.Purger{
		"refresh_tokens":        refreshStore,
		"password_reset_tokens": resetSvc,
	})
	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go janitor.Run(janitorCtx)

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit:    middleware.LimitFromConfig(cfg.RateLimit),
			FailOpen: true,
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	authenticator := middleware.Authenticator(authSvc)
	credentialLimiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit:    middleware.LimitFromConfig(cfg.AuthRateLimit),
		KeyFunc:  middleware.KeyByIPAndRoute,
		FailOpen: true,
	}).Handler

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator, credentialLimiter)
		userHandler.RegisterRoutes(r, authenticator)
		adminHandler.RegisterRoutes(r, authenticator, permissions)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	stopJanitor()

	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Error("notification dispatcher close error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deez125/novix-gateway/internal/access"
	"github.com/deez125/novix-gateway/internal/activity"
	"github.com/deez125/novix-gateway/internal/admin"
	"github.com/deez125/novix-gateway/internal/auth"
	"github.com/deez125/novix-gateway/internal/billing"
	"github.com/deez125/novix-gateway/internal/config"
	"github.com/deez125/novix-gateway/internal/core"
	"github.com/deez125/novix-gateway/internal/device"
	"github.com/deez125/novix-gateway/internal/health"
	"github.com/deez125/novix-gateway/internal/middleware"
	"github.com/deez125/novix-gateway/internal/plex"
	"github.com/deez125/novix-gateway/internal/server"
	"github.com/deez125/novix-gateway/internal/tautulli"
	"github.com/deez125/novix-gateway/internal/user"
)

const (
	drainDelay     = 5 * time.Second
	webhookPath    = "/api/webhook/stripe"
	deviceCodeRate = 30
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

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

	if _, err := os.Stat(configPath); err != nil {
		configPath = ""
	}

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
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis client ready",
		"pool_size", cfg.Redis.PoolSize,
		"required", cfg.Redis.Required,
	)

	deviceTokens, err := auth.LoadDeviceTokens(cfg.Device)
	if err != nil {
		return err
	}
	logger.Info("device token signer initialized",
		"algorithm", "ES256",
		"key_id", deviceTokens.KeyID(),
	)
	sessions := auth.NewSessionVerifier(cfg.Session)

	activityRepo := activity.NewRepository(db.DB)
	ledger := activity.NewLedger(activityRepo)

	plexClient := plex.NewClient(cfg.Plex)
	directory := plex.NewBreakerDirectory(plexClient, cfg.Plex.Breaker)

	var cleaners []access.MemberCleaner
	if cfg.Tautulli.Enabled() {
		cleaners = append(cleaners, tautulli.NewClient(cfg.Tautulli))
		logger.Info("tautulli cleanup enabled", "url", cfg.Tautulli.URL)
	}

	tiers := access.NewTierMap(cfg.Tiers)
	accessSvc := access.NewService(
		access.NewTranslator(directory, tiers),
		access.NewReconciler(directory, ledger, cleaners...),
		ledger,
	)

	userRepo := user.NewRepository(db.DB)
	userSvc := user.NewService(userRepo, accessSvc, ledger)
	userHandler := user.NewHandler(userSvc)

	billingDeps := billing.Deps{
		Users:     userRepo,
		Authority: billing.NewStripeAuthority(cfg.Stripe, nil),
		Access:    accessSvc,
		Ledger:    ledger,
		Tiers:     tiers,
		Plans:     billing.NewPlans(cfg.Stripe, cfg.App.FrontendURL),
	}
	processor := billing.NewProcessor(
		billingDeps,
		billing.NewRedisDeduper(redis.Client, cfg.Webhook.DedupTTL),
	)
	billingHandler := billing.NewHandler(processor, billing.NewManager(billingDeps))

	deviceSvc := device.NewService(
		device.NewRepository(db.DB),
		userRepo,
		deviceTokens,
		ledger,
		cfg.Device,
		cfg.App.FrontendURL,
	)
	deviceHandler := device.NewHandler(deviceSvc)

	plexHandler := plex.NewHandler(plexClient)
	activityHandler := activity.NewHandler(ledger)

	healthHandler := health.NewHandler(
		health.Dependency{Name: "database", Checker: db, Critical: true},
		health.Dependency{Name: "redis", Checker: redis, Critical: cfg.Redis.Required},
		health.Dependency{Name: "plex", Checker: directory},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:     db.Stats,
		RedisStats:  redis.PoolStats,
		DBPing:      db.Ping,
		RedisPing:   redis.Ping,
		PlexPing:    directory.Ping,
		PlexBreaker: directory.State,
		MemberCounts: func(ctx context.Context) ([]user.StatusCount, error) {
			return user.CountByStatus(ctx, db.DB)
		},
		Logger: logger,
	})

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
			Limit:    middleware.FromConfig(cfg.RateLimit),
			FailOpen: true,
			BypassFunc: func(r *http.Request) bool {
				return r.URL.Path == webhookPath
			},
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/.well-known/jwks.json", deviceTokens.JWKSHandler())

	session := middleware.Authenticator(sessions)
	deviceAuth := func(next http.Handler) http.Handler {
		return middleware.Authenticator(deviceTokens)(
			middleware.TieredRateLimiter(redis.Client, middleware.DefaultTiers)(next),
		)
	}
	pairingLimit := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit:    middleware.PerMinute(deviceCodeRate, deviceCodeRate),
		KeyFunc:  middleware.KeyByIPAndEndpoint,
		FailOpen: true,
	}).Handler

	router.Route("/api", func(r chi.Router) {
		billingHandler.RegisterRoutes(r, session)
		plexHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(pairingLimit)
			deviceHandler.RegisterRoutes(r, session, deviceAuth)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminKey(cfg.Admin.APIKey))

			userHandler.RegisterRoutes(r)
			activityHandler.RegisterRoutes(r)
			billingHandler.RegisterAdminRoutes(r)
			plexHandler.RegisterAdminRoutes(r)
			adminHandler.RegisterRoutes(r)
		})
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

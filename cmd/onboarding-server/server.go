package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehr/onboarding/internal/config"
	"github.com/ehr/onboarding/internal/domain/assessment"
	"github.com/ehr/onboarding/internal/platform/auth"
	"github.com/ehr/onboarding/internal/platform/db"
	"github.com/ehr/onboarding/internal/platform/hipaa"
	"github.com/ehr/onboarding/internal/platform/middleware"
	"github.com/ehr/onboarding/internal/platform/submission"
)

func runServer(catalogPath string) error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "onboarding-server",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	sealer, err := hipaa.NewSealer(cfg.HIPAAEncryptionKey, cfg.HIPAAPreviousKeys, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize encryption")
	}

	// Storage
	deps := map[string]db.Pinger{}
	snapshots := assessment.NewSnapshotRepoPG(pool, sealer)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		snapshots = assessment.NewCachedSnapshotRepo(rdb, snapshots, sealer, cfg.SnapshotTTL)
		deps["redis"] = db.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		logger.Info().Dur("ttl", cfg.SnapshotTTL).Msg("snapshot cache enabled")
	}
	results := assessment.NewResultRepoPG(pool, sealer)

	// Assessment engine
	catalog, err := loadCatalog(catalogPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load question catalog")
	}
	engine, err := assessment.NewEngine(catalog, assessment.WithContacts(assessment.Contacts{
		CrisisLineName:  cfg.CrisisLineName,
		CrisisLinePhone: cfg.CrisisLinePhone,
		EmergencyName:   cfg.EmergencyName,
		EmergencyPhone:  cfg.EmergencyPhone,
	}))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build assessment engine")
	}

	var submitter assessment.Submitter
	if cfg.SubmissionURL != "" {
		client, err := submission.NewClient(cfg.SubmissionURL, cfg.SubmissionSecret,
			submission.WithTimeout(cfg.SubmissionTimeout))
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid submission endpoint")
		}
		submitter = client
	} else {
		logger.Warn().Msg("SUBMISSION_URL is not set: submissions will return degraded responses")
	}

	svc := assessment.NewService(engine, assessment.NewStore(snapshots, logger), results,
		submitter, cfg.AssessmentVersion, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-Tenant-ID", auth.DevUserHeader},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, deps))

	// API group
	apiV1 := e.Group("/api/v1")

	// Auth middleware
	switch mode := cfg.ResolvedAuthMode(); mode {
	case config.AuthModeDevelopment:
		apiV1.Use(auth.DevAuthMiddleware())
	case config.AuthModeLocal:
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     localIssuer,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	default:
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}
	logger.Info().Str("auth_mode", cfg.ResolvedAuthMode()).Msg("authentication configured")

	// Tenant, audit and rate limiting
	apiV1.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))
	apiV1.Use(middleware.Audit(logger, nil))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	rateLimitCfg.KeyFunc = func(c echo.Context) string {
		return auth.UserIDFromContext(c.Request().Context())
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	assessment.NewHandler(svc).RegisterRoutes(apiV1)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting onboarding server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

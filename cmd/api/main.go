package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arbiterhq/arbiter/internal/auth"
	"github.com/arbiterhq/arbiter/internal/background"
	"github.com/arbiterhq/arbiter/internal/config"
	"github.com/arbiterhq/arbiter/internal/database"
	"github.com/arbiterhq/arbiter/internal/handlers"
	middlewareCustom "github.com/arbiterhq/arbiter/internal/middleware"
	"github.com/arbiterhq/arbiter/internal/repositories"
	"github.com/arbiterhq/arbiter/internal/risk"
	"github.com/arbiterhq/arbiter/internal/routes"
	"github.com/arbiterhq/arbiter/internal/services"
	pkghttp "github.com/arbiterhq/arbiter/pkg/http"
	pkglogger "github.com/arbiterhq/arbiter/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(cfg.Database.DSN()); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	loginLogRepo := repositories.NewLoginLogRepository(db)
	stepUpRepo := repositories.NewStepUpRepository(db)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(stepUpRepo, loginLogRepo, logger, cfg.Auth.CleanupInterval, cfg.Auth.LogRetention)

	// Token, remember-me, and challenge code managers
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTokenExpiry)
	rememberManager := auth.NewRememberManager(cfg.Auth.JWTSecret, cfg.Auth.RememberTokenExpiry)
	otpManager := auth.NewOTPManager(cfg.Risk.OTPDigits)

	// Timing delay for auth security
	timingConfig := auth.TimingConfig{
		BaseDelayMs:    cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs:  cfg.Auth.TimingDelayRandomMs,
		DelayOnSuccess: cfg.Auth.TimingDelayOnSuccess,
	}
	timingDelay := auth.NewTimingDelay(timingConfig)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Risk decision pipeline
	extractor := risk.NewExtractor(loginLogRepo, risk.ExtractorConfig{
		ShortWindow: cfg.Risk.ShortWindow,
		LongWindow:  cfg.Risk.LongWindow,
		RatioWindow: cfg.Risk.RatioWindow,
		BurstLimit:  cfg.Risk.BurstLimit,
	}, logger)

	scorer := risk.NewProcessScorer(cfg.Risk.ScorerCommand, cfg.Risk.ScorerTimeout, logger)

	var refiner risk.Refiner = risk.NopRefiner{}
	if cfg.Risk.AdvisoryURL != "" {
		refiner = risk.NewAdvisoryRefiner(
			cfg.Risk.AdvisoryURL,
			cfg.Risk.AdvisoryAPIKey,
			cfg.Risk.AdvisoryModel,
			cfg.Risk.AdvisoryTimeout,
			logger,
		)
	}

	engine := risk.NewEngine(extractor, scorer, refiner, logger)

	// Challenge code delivery
	var emailService services.EmailService
	if cfg.Server.Env == "production" {
		emailService, err = services.NewAWSSESEmailService(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		emailService = services.NewLogEmailService(logger)
	}

	// Initialize services
	loginService := services.NewLoginService(
		userRepo,
		loginLogRepo,
		stepUpRepo,
		engine,
		tokenManager,
		rememberManager,
		otpManager,
		emailService,
		timingDelay,
		logger,
		auditLogger,
		cfg.Risk.StepUpTTL,
	)
	stepUpService := services.NewStepUpService(
		stepUpRepo,
		loginLogRepo,
		otpManager,
		tokenManager,
		rememberManager,
		timingDelay,
		logger,
		auditLogger,
		cfg.Risk.StepUpMaxRetries,
	)
	activityService := services.NewActivityService(loginLogRepo, logger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieSettings := handlers.CookieSettings{
		Config: auth.CookieConfig{
			Domain:   cfg.Server.CookieDomain,
			Secure:   cfg.Server.CookieSecure,
			SameSite: cfg.Server.CookieSameSite,
		},
		SessionMaxAge:  int(cfg.Auth.SessionTokenExpiry.Seconds()),
		RememberMaxAge: int(cfg.Auth.RememberTokenExpiry.Seconds()),
		DeviceMaxAge:   int((365 * 24 * time.Hour).Seconds()),
		StepUpMaxAge:   int(cfg.Risk.StepUpTTL.Seconds()),
	}
	authHandler := handlers.NewAuthHandler(loginService, stepUpService, ipConfig, cookieSettings)
	activityHandler := handlers.NewActivityHandler(activityService)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	rateLimitConfig := middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Auth.LoginRatePerMinute}
	routes.RegisterRoutes(router, authHandler, activityHandler, tokenManager, rateLimitConfig)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

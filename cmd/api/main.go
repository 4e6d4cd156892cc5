package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/jmercer-dev/authgate/internal/auth"
	"github.com/jmercer-dev/authgate/internal/background"
	"github.com/jmercer-dev/authgate/internal/config"
	"github.com/jmercer-dev/authgate/internal/database"
	"github.com/jmercer-dev/authgate/internal/handlers"
	middlewareCustom "github.com/jmercer-dev/authgate/internal/middleware"
	"github.com/jmercer-dev/authgate/internal/ratelimit"
	"github.com/jmercer-dev/authgate/internal/repositories"
	"github.com/jmercer-dev/authgate/internal/routes"
	"github.com/jmercer-dev/authgate/internal/services"
	pkgauth "github.com/jmercer-dev/authgate/pkg/auth"
	pkghttp "github.com/jmercer-dev/authgate/pkg/http"
	pkglogger "github.com/jmercer-dev/authgate/pkg/logger"
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

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("rate_limit_backend", cfg.RateLimit.Backend),
	)

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)

	// Limiter backends: in-process counters for a single instance, redis
	// counters when several instances must share attempt budgets
	ipLimiterConfig := ratelimit.Config{
		MaxAttempts:   cfg.RateLimit.IPMaxAttempts,
		Window:        cfg.RateLimit.IPWindow,
		BlockDuration: cfg.RateLimit.IPBlockDuration,
	}
	accountLimiterConfig := ratelimit.Config{
		MaxAttempts:   cfg.RateLimit.AccountMaxAttempts,
		Window:        cfg.RateLimit.AccountWindow,
		BlockDuration: cfg.RateLimit.AccountBlockDuration,
	}

	var ipLimiter, accountLimiter ratelimit.Limiter
	var janitors []background.LimiterJanitor

	if cfg.RateLimit.Backend == "redis" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisClient.Close()

		ipLimiter = ratelimit.NewRedisLimiter(redisClient, "rl:ip", ipLimiterConfig)
		accountLimiter = ratelimit.NewRedisLimiter(redisClient, "rl:acct", accountLimiterConfig)
	} else {
		memIP := ratelimit.NewSlidingWindowLimiter(ipLimiterConfig)
		memAccount := ratelimit.NewSlidingWindowLimiter(accountLimiterConfig)
		ipLimiter = memIP
		accountLimiter = memAccount
		janitors = append(janitors, memIP, memAccount)
	}

	// Initialize security services
	auditLogger := pkglogger.NewAuditLogger(logger)
	clock := ratelimit.SystemClock()

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.SessionTTL)
	hasher := pkgauth.NewBcryptHasher()

	lockoutService := services.NewLockoutService(accountRepo, hasher, services.LockoutConfig{
		MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
		LockDuration:      cfg.Lockout.LockDuration,
	}, clock, logger)

	sessionService := services.NewSessionService(sessionRepo, tokenManager, clock, logger)

	monitor := services.NewSecurityMonitor(services.MonitorConfig{
		Window:                cfg.Monitor.Window,
		MaxFailuresPerIP:      cfg.Monitor.MaxFailuresPerIP,
		MaxFailuresPerAccount: cfg.Monitor.MaxFailuresPerAccount,
		MaxTokenInvalidPerIP:  cfg.Monitor.MaxTokenInvalidPerIP,
		RapidWindow:           cfg.Monitor.RapidWindow,
		RapidThreshold:        cfg.Monitor.RapidThreshold,
	}, logger)

	gateway := services.NewAuthGateway(ipLimiter, accountLimiter, lockoutService, sessionService, monitor, auditLogger, clock, logger)

	// Background sweep of expired sessions and stale tracking state
	sweeper := background.NewSweeper(sessionService, monitor, janitors, logger, cfg.Auth.SweepInterval)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(gateway, ipConfig)
	adminHandler := handlers.NewAdminHandler(lockoutService, sessionService, monitor, auditLogger, ipConfig)
	healthHandler := handlers.NewHealthHandler(db)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, adminHandler, healthHandler, gateway, accountRepo, ipConfig)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start sweep task
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	go sweeper.Start(sweepCtx)

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

	sweepCancel()
	sweeper.Stop()
	gateway.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

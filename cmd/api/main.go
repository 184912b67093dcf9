package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	internalauth "github.com/storelane/authd/internal/auth"
	"github.com/storelane/authd/internal/background"
	"github.com/storelane/authd/internal/config"
	"github.com/storelane/authd/internal/database"
	"github.com/storelane/authd/internal/handlers"
	middlewareCustom "github.com/storelane/authd/internal/middleware"
	"github.com/storelane/authd/internal/models"
	"github.com/storelane/authd/internal/ratelimit"
	"github.com/storelane/authd/internal/repositories"
	"github.com/storelane/authd/internal/revocation"
	"github.com/storelane/authd/internal/routes"
	"github.com/storelane/authd/internal/services"
	pkgauth "github.com/storelane/authd/pkg/auth"
	pkghttp "github.com/storelane/authd/pkg/http"
	pkglogger "github.com/storelane/authd/pkg/logger"
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

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)

	// Token codec and password hasher
	codec := internalauth.NewCodec(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
		cfg.Auth.TokenLeeway,
	)
	hasher := pkgauth.NewHasher(cfg.Auth.BcryptCost)

	// In-memory attempt limiter and revocation registry
	limiter := ratelimit.New(ratelimit.Config{
		Threshold: cfg.Auth.LockoutThreshold,
		Window:    cfg.Auth.LockoutWindow,
		Lockout:   cfg.Auth.LockoutDuration,
	})
	registry := revocation.NewRegistry()

	// Background sweeper drops expired registry and limiter entries
	sweeper := background.NewSweeper(registry, limiter, logger, cfg.Auth.SweepInterval)

	// Initialize services
	auditLogger := pkglogger.NewAuditLogger(logger)
	sessionService := services.NewSessionService(
		userRepo, hasher, codec, limiter, registry, logger, auditLogger,
	)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(sessionService, ipConfig)

	// Bootstrap first user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureSeedUser(ctx, userRepo, hasher, logger); err != nil {
		logger.Error("failed to ensure seed user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	rateLimitConfig := middlewareCustom.RateLimitConfig{
		RequestsPerMinute: cfg.Auth.LoginRatePerMinute,
	}
	routes.RegisterRoutes(router, authHandler, db, rateLimitConfig)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start sweeper
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureSeedUser creates the first user if SEED_EMAIL and SEED_PASSWORD are set
func ensureSeedUser(ctx context.Context, userRepo *repositories.UserRepository, hasher *pkgauth.Hasher, logger *slog.Logger) error {
	seedEmail := os.Getenv("SEED_EMAIL")
	seedPassword := os.Getenv("SEED_PASSWORD")

	if seedEmail == "" || seedPassword == "" {
		logger.Info("no SEED_EMAIL or SEED_PASSWORD set, skipping seed user creation")
		return nil
	}

	_, err := userRepo.GetByEmail(ctx, seedEmail)
	if err == nil {
		logger.Info("seed user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if seed user exists: %w", err)
	}

	passwordHash, err := hasher.Hash(seedPassword)
	if err != nil {
		return fmt.Errorf("failed to hash seed password: %w", err)
	}

	if _, err := userRepo.Create(ctx, seedEmail, passwordHash); err != nil {
		return fmt.Errorf("failed to create seed user: %w", err)
	}

	logger.Info("seed user created successfully")
	return nil
}

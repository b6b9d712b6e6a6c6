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

	"github.com/mvollmer/gatehouse/internal/auth"
	"github.com/mvollmer/gatehouse/internal/background"
	"github.com/mvollmer/gatehouse/internal/config"
	"github.com/mvollmer/gatehouse/internal/database"
	"github.com/mvollmer/gatehouse/internal/handlers"
	"github.com/mvollmer/gatehouse/internal/locks"
	middlewareCustom "github.com/mvollmer/gatehouse/internal/middleware"
	"github.com/mvollmer/gatehouse/internal/models"
	"github.com/mvollmer/gatehouse/internal/repositories"
	"github.com/mvollmer/gatehouse/internal/routes"
	"github.com/mvollmer/gatehouse/internal/services"
	pkgauth "github.com/mvollmer/gatehouse/pkg/auth"
	pkghttp "github.com/mvollmer/gatehouse/pkg/http"
	pkglogger "github.com/mvollmer/gatehouse/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		migrateCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		err := db.Migrate(migrateCtx)
		cancel()
		if err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	statusRepo := repositories.NewUserStatusRepository(db)
	passwordRepo := repositories.NewPasswordRepository(db)
	tenantRepo := repositories.NewTenantRepository(db)
	roleRepo := repositories.NewRoleRepository(db)
	grantRepo := repositories.NewPermissionGrantRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger)
	hasher := pkgauth.NewHasher()

	// Account status tracking and lockout
	tracker := services.NewAccountStatusTracker(statusRepo, services.ThrottleConfig{
		MaxIncorrectAttempts: cfg.Auth.MaxIncorrectAttempts,
		ThrottleDuration:     cfg.Auth.ThrottleDuration,
	}, logger)

	// Password policy and verification
	policy := services.NewPasswordPolicyEnforcer(passwordRepo, hasher, services.PolicyConfig{
		MinimumLength:            cfg.Policy.MinimumLength,
		Blacklist:                cfg.Policy.Blacklist,
		BlacklistPrefixMode:      cfg.Policy.BlacklistPrefixMode,
		BlacklistCaseInsensitive: cfg.Policy.BlacklistCaseInsensitive,
		HistoryDepth:             cfg.Policy.HistoryDepth,
		ReuseBlockingDays:        cfg.Policy.ReuseBlockingDays,
	}, logger)

	passwordAuth := services.NewPasswordAuthenticator(
		userRepo, passwordRepo, tracker, policy, hasher,
		services.PasswordConfig{
			ExpiryDays:        cfg.Auth.PasswordExpiryDays,
			MaxInactivityDays: cfg.Auth.MaxInactivityDays,
			ResetValidity:     cfg.Auth.ResetValidity,
		},
		logger, auditLogger,
	)

	apiKeyAuth := services.NewAPIKeyAuthenticator(apiKeyRepo, userRepo, tracker, logger, auditLogger)

	tokenAuth := services.NewExternalTokenAuthenticator(userRepo, tracker, services.ReconcileConfig{
		UpdateIdentityProvider:  cfg.External.UpdateIdentityProvider,
		EnforceIdentityProvider: cfg.External.EnforceIdentityProvider,
		UpdateExternalID:        cfg.External.UpdateExternalID,
		UpdateNameAndEmail:      cfg.External.UpdateNameAndEmail,
	}, logger, auditLogger)

	resolver := services.NewTenantVisibilityResolver(userRepo, tenantRepo, roleRepo, logger)
	aggregator := services.NewPermissionAggregator(grantRepo, logger)

	// Reset emails go through SES when enabled, otherwise to the log
	var emailService services.EmailService
	if cfg.Email.Enabled {
		sesService, err := services.NewAWSSESEmailService(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		emailService = sesService
	} else {
		emailService = services.NewLoggingEmailService(logger)
	}

	invalidator := services.NewSessionInvalidator(cfg.Peers.URLs, cfg.Peers.SharedSecret, cfg.Peers.Timeout, logger)
	userLocks := locks.NewArena(cfg.Auth.LockArenaIdleEviction)

	coordinator := services.NewAuthCoordinator(
		passwordAuth, apiKeyAuth, tokenAuth,
		resolver, aggregator, tracker,
		userRepo, passwordRepo,
		emailService, invalidator, userLocks,
		services.CoordinatorConfig{
			ResetRequestInterval: cfg.Auth.ResetRequestInterval,
			ResetValidity:        cfg.Auth.ResetValidity,
		},
		logger,
	)

	// Session tokens and revocation
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTokenExpiry)
	revoker := auth.NewRevoker(cfg.Auth.SessionTokenExpiry)

	var tokenValidator auth.ExternalTokenValidator
	if cfg.External.SharedKey != "" {
		tokenValidator = auth.NewSharedKeyTokenValidator([]byte(cfg.External.SharedKey), cfg.External.Issuer)
	} else {
		logger.Info("no EXTERNAL_TOKEN_KEY configured, federated token login disabled")
	}

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	authHandler := handlers.NewAuthHandler(coordinator, tokenManager, tokenValidator, revoker, timingDelay)

	// Bootstrap first admin user if configured
	adminCtx, adminCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(adminCtx, userRepo, statusRepo, passwordRepo, hasher, &cfg.Auth, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	adminCancel()

	sweepManager := background.NewSweepManager(
		userLocks, revoker, passwordRepo, cfg.Auth.ResetValidity, logger, cfg.Auth.SweepInterval)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.RealIP(pkghttp.NewIPConfig(cfg.Server.TrustedProxies)))
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, tokenManager, revoker, cfg.Peers.SharedSecret)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
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

	// Start sweep task
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	go sweepManager.Start(sweepCtx)

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
	sweepManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_USER_ID and ADMIN_PASSWORD are set
func ensureAdminUser(
	ctx context.Context,
	userRepo *repositories.UserRepository,
	statusRepo *repositories.UserStatusRepository,
	passwordRepo *repositories.PasswordRepository,
	hasher *pkgauth.Hasher,
	authCfg *config.AuthConfig,
	logger *slog.Logger,
) error {
	adminUserID := os.Getenv("ADMIN_USER_ID")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminUserID == "" || adminPassword == "" {
		logger.Info("no ADMIN_USER_ID or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	// Check if admin already exists
	_, err := userRepo.GetByUserID(ctx, adminUserID)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	user := &models.User{
		UserID:             adminUserID,
		TenantID:           models.GlobalTenantID,
		Name:               "Administrator",
		IsActive:           true,
		ResourceIsWildcard: true,
	}
	if adminEmail := os.Getenv("ADMIN_EMAIL"); adminEmail != "" {
		user.EmailAddress = &adminEmail
	}

	created, err := userRepo.Create(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	now := time.Now().UTC()
	password := &models.Password{
		UserRef:          created.Ref,
		SerialNumber:     1,
		PasswordHash:     hasher.Hash(adminUserID, adminPassword),
		PasswordCreation: now,
		PasswordExpiry:   now.AddDate(0, 0, authCfg.PasswordExpiryDays),
		UserExpiry:       now.AddDate(0, 0, authCfg.MaxInactivityDays),
	}
	if err := passwordRepo.Create(ctx, password); err != nil {
		return fmt.Errorf("failed to store admin password: %w", err)
	}

	status := &models.UserStatus{
		UserRef:                     created.Ref,
		CurrentPasswordSerialNumber: 1,
	}
	if err := statusRepo.Save(ctx, status); err != nil {
		return fmt.Errorf("failed to store admin user status: %w", err)
	}

	logger.Info("admin user created successfully", slog.String("user_id", adminUserID))
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

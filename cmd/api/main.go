package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/background"
	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/handlers"
	middlewareCustom "github.com/BradenHooton/bastion/internal/middleware"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/ratelimit"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/routes"
	"github.com/BradenHooton/bastion/internal/services"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize repositories
	adminRepo := repositories.NewAdminUserRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	lockoutRepo := repositories.NewLockoutRepository(db)
	ipRuleRepo := repositories.NewIPRuleRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	twoFactorRepo := repositories.NewTwoFactorRepository(db)
	twoFactorAttemptRepo := repositories.NewTwoFactorAttemptRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	configRepo := repositories.NewSecurityConfigRepository(db)

	// Security alerts go out through SES when recipients are configured
	var alerter services.SecurityAlerter = services.NoopAlerter{}
	if cfg.Alerts.Enabled() {
		sesAlerter, err := services.NewSESAlerter(ctx, cfg.Alerts.AWSRegion, cfg.Alerts.FromAddress, cfg.Alerts.Recipients, logger)
		if err != nil {
			logger.Error("failed to initialize security alerts", slog.Any("error", err))
			os.Exit(1)
		}
		alerter = sesAlerter
	}

	totpManager, err := auth.NewTOTPManager(cfg.Security.TOTPEncryptionKey, cfg.Security.TOTPIssuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	configService := services.NewSecurityConfigService(configRepo, cfg.Security.ConfigCacheTTL, logger)
	auditService := services.NewAuditService(auditRepo, configService, alerter, cfg.Security.AuditQueueSize, logger)
	lockoutService := services.NewLockoutService(attemptRepo, lockoutRepo, configService, alerter, logger)
	ipRuleService := services.NewIPRuleService(ipRuleRepo, configService, logger)
	sessionService := services.NewSessionService(sessionRepo, configService, logger)
	twoFactorService := services.NewTwoFactorService(
		twoFactorRepo,
		twoFactorAttemptRepo,
		totpManager,
		configService,
		services.TwoFactorLimits{MaxFailures: cfg.Security.TwoFactorMaxFailures, Window: cfg.Security.TwoFactorFailureWindow},
		logger,
	)
	authenticator := services.NewPasswordAuthenticator(adminRepo, logger)
	loginService := services.NewLoginService(
		lockoutService,
		authenticator,
		sessionService,
		twoFactorService,
		auditService,
		configService,
		auth.FailureDelay{Base: cfg.Security.FailureDelayBase, Jitter: cfg.Security.FailureDelayJitter},
		logger,
	)

	// The audit worker outlives the signal context so requests still in flight during
	// shutdown are recorded; Stop drains it.
	auditService.Start(context.Background())

	// Rate limiter: Redis when configured so limits hold across replicas
	var store ratelimit.Store
	if cfg.RateLimit.RedisAddr != "" {
		redisStore, err := ratelimit.NewRedisStore(ctx, cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisDB)
		if err != nil {
			logger.Error("failed to connect to rate limit store", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		memStore := ratelimit.NewMemoryStore()
		memStore.Start(ctx, cfg.RateLimit.Window)
		store = memStore
	}
	limiter := ratelimit.NewLimiter(store, cfg.RateLimit.Window, cfg.RateLimit.MaxRequests, logger)

	// Bootstrap first admin user if configured
	bootstrapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := ensureAdminUser(bootstrapCtx, adminRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	cookies := auth.CookieConfig{
		Domain:   cfg.Security.CookieDomain,
		Secure:   cfg.Security.CookieSecure,
		SameSite: cfg.Security.CookieSameSite,
	}

	// Initialize handlers
	h := routes.Handlers{
		Health:         handlers.NewHealthHandler(db, auditService, logger),
		Auth:           handlers.NewAuthHandler(loginService, sessionService, auditService, cookies, logger),
		Sessions:       handlers.NewSessionHandler(sessionService, auditService, logger),
		TwoFactor:      handlers.NewTwoFactorHandler(twoFactorService, auditService, logger),
		SecurityConfig: handlers.NewSecurityConfigHandler(configService, auditService, logger),
		IPRules:        handlers.NewIPRuleHandler(ipRuleService, auditService, logger),
		Lockouts:       handlers.NewLockoutHandler(lockoutService, auditService, logger),
		Audit:          handlers.NewAuditHandler(auditService, logger),
	}
	gates := routes.Gates{
		Limiter:             limiter,
		IPRules:             ipRuleService,
		Sessions:            sessionService,
		Admins:              adminRepo,
		TwoFactor:           twoFactorService,
		LoginBurstPerMinute: cfg.Security.LoginBurstPerMinute,
	}

	// Setup router. ClientIP runs first so every later middleware sees the same address.
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.ClientIP(pkghttp.ParseIPConfig(cfg.Server.TrustedProxies)))
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, h, gates, logger)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(
		sessionRepo,
		background.AttemptPruners{attemptRepo, twoFactorAttemptRepo},
		auditRepo,
		ipRuleRepo,
		configService,
		logger,
		cfg.Security.CleanupInterval,
		cfg.Security.AttemptRetention,
	)
	go cleanupManager.Start(ctx)

	// Start server
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error", slog.Any("error", err))
	}

	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Flush queued audit entries after in-flight requests finish
	auditService.Stop()
	lockoutService.WaitForAlerts()

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// ensureAdminUser creates the first SUPER_ADMIN if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, adminRepo *repositories.AdminUserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	// Check if admin already exists
	_, err := adminRepo.GetByEmail(ctx, services.NormalizeEmail(adminEmail))
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(adminPassword, models.DefaultSecurityConfig().MinPasswordLength); err != nil {
		return fmt.Errorf("ADMIN_PASSWORD rejected: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	_, err = adminRepo.Create(ctx, &models.AdminUser{
		Email:        services.NormalizeEmail(adminEmail),
		PasswordHash: hashedPassword,
		Name:         "Admin",
		Role:         models.RoleSuperAdmin,
		IsActive:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}

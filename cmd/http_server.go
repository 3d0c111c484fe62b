package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/frahmantamala/tenant-auth/internal/activity"
	activityPostgres "github.com/frahmantamala/tenant-auth/internal/activity/postgres"
	"github.com/frahmantamala/tenant-auth/internal/auth"
	authPostgres "github.com/frahmantamala/tenant-auth/internal/auth/postgres"
	"github.com/frahmantamala/tenant-auth/internal/authz"
	authzPostgres "github.com/frahmantamala/tenant-auth/internal/authz/postgres"
	"github.com/frahmantamala/tenant-auth/internal/core/events"
	"github.com/frahmantamala/tenant-auth/internal/invitation"
	invitationPostgres "github.com/frahmantamala/tenant-auth/internal/invitation/postgres"
	"github.com/frahmantamala/tenant-auth/internal/notification"
	"github.com/frahmantamala/tenant-auth/internal/otp"
	otpPostgres "github.com/frahmantamala/tenant-auth/internal/otp/postgres"
	"github.com/frahmantamala/tenant-auth/internal/tenancy"
	tenancyPostgres "github.com/frahmantamala/tenant-auth/internal/tenancy/postgres"
	"github.com/frahmantamala/tenant-auth/internal/token"
	tokenPostgres "github.com/frahmantamala/tenant-auth/internal/token/postgres"
	tokenRedis "github.com/frahmantamala/tenant-auth/internal/token/redis"
	"github.com/frahmantamala/tenant-auth/internal/transport"
	"github.com/frahmantamala/tenant-auth/internal/transport/middleware"
	"github.com/frahmantamala/tenant-auth/internal/transport/rest"
	"github.com/frahmantamala/tenant-auth/internal/transport/swagger"
	"github.com/frahmantamala/tenant-auth/internal/twofactor"
	twofactorPostgres "github.com/frahmantamala/tenant-auth/internal/twofactor/postgres"
	"github.com/frahmantamala/tenant-auth/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Gorm   *gorm.DB
	Redis  *redis.Client
	Bus    *events.EventBus
	Logger *slog.Logger

	Recorder   activity.Recorder
	Notifier   notification.Notifier
	Blacklist  token.Blacklist
	Limiter    middleware.Limiter
	shutdownFn []func()
}

// Close releases everything in reverse order of acquisition.
func (d *Dependencies) Close() {
	for i := len(d.shutdownFn) - 1; i >= 0; i-- {
		d.shutdownFn[i]()
	}
}

func (d *Dependencies) onClose(fn func()) {
	d.shutdownFn = append(d.shutdownFn, fn)
}

func startHTTPServer() {
	deps, err := initializeDependencies(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	cfg := deps.Config
	if _, err := swagger.LoadDocument(context.Background(), cfg.Server.OpenAPIPath); err != nil {
		deps.Logger.Error("openapi document is invalid", "path", cfg.Server.OpenAPIPath, "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, buildRoutes(deps), deps.Logger)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.Close()
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func buildRoutes(deps *Dependencies) rest.Routes {
	cfg := deps.Config
	lg := deps.Logger
	base := transport.NewBaseHandler(lg)

	users := authPostgres.NewUserRepository(deps.Gorm)
	resolver := authz.NewResolver(authzPostgres.NewAuthzReader(deps.DB), lg)
	tenancies := tenancy.NewService(tenancyPostgres.NewTenancyRepository(deps.Gorm), resolver, deps.Recorder, lg)
	invitations := invitation.NewService(
		invitationPostgres.NewInvitationRepository(deps.Gorm),
		tenancies, users, deps.Notifier, deps.Recorder,
		invitation.Config{TTL: cfg.Invitation.TTL, AcceptURL: cfg.Invitation.AcceptURL},
		lg,
	)
	otps := newOTPService(deps)
	twoFactors := newTwoFactorService(deps)
	issuer := newIssuer(deps)

	authService := auth.NewService(auth.Dependencies{
		Users: users,
		Authenticator: auth.NewAuthenticator(users,
			auth.LockoutConfig{Threshold: cfg.Lockout.Threshold, Duration: cfg.Lockout.Duration},
			cfg.Security.BCryptCost, lg),
		TwoFactor:  twoFactors,
		Tokens:     issuer,
		OTPs:       otps,
		Notifier:   deps.Notifier,
		Recorder:   deps.Recorder,
		BCryptCost: cfg.Security.BCryptCost,
	}, lg)

	checks := map[string]rest.CheckFunc{"postgres": deps.DB.PingContext}
	if deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
	}

	return rest.Routes{
		Health:         rest.NewHealthHandler(lg, checks),
		Auth:           auth.NewHandler(base, authService),
		TwoFactor:      twofactor.NewHandler(base, twoFactors),
		Tenancy:        tenancy.NewHandler(base, tenancies),
		Invitations:    invitation.NewHandler(base, invitations, resolver),
		Gate:           authz.NewGate(base, resolver),
		Tokens:         issuer,
		Limiter:        deps.Limiter,
		RateLimits:     cfg.RateLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OpenAPIPath:    cfg.Server.OpenAPIPath,
	}
}

func newOTPService(deps *Dependencies) *otp.Service {
	c := deps.Config.OTP
	return otp.NewService(otpPostgres.NewOTPRepository(deps.Gorm),
		otp.Config{TTL: c.TTL, MaxAttempts: c.MaxAttempts, BlockDuration: c.BlockDuration}, deps.Logger)
}

func newTwoFactorService(deps *Dependencies) *twofactor.Service {
	c := deps.Config.TwoFactor
	return twofactor.NewService(twofactorPostgres.NewTwoFactorRepository(deps.Gorm), deps.Recorder,
		twofactor.Config{
			SessionTTL:      c.SessionTTL,
			Skew:            c.Skew,
			BackupCodeCount: c.BackupCodeCount,
			BackupCodeKey:   []byte(deps.Config.Security.BackupCodeSecret),
			Issuer:          c.Issuer,
		},
		deps.Logger)
}

func newIssuer(deps *Dependencies) *token.Issuer {
	s := deps.Config.Security
	return token.NewIssuer(token.Config{
		AccessSecret:        []byte(s.AccessTokenSecret),
		RefreshSecret:       []byte(s.RefreshTokenSecret),
		AccessTTL:           s.AccessTokenDuration,
		RememberMeAccessTTL: s.RememberMeAccessDuration,
		RefreshTTL:          s.RefreshTokenDuration,
		Issuer:              s.Issuer,
	}, deps.Blacklist, deps.Logger)
}

func initializeDependencies(path string) (*Dependencies, error) {
	config, err := loadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	deps := &Dependencies{Config: config, Logger: logger.LoggerWrapper()}

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	deps.DB = db
	deps.onClose(func() {
		if err := db.Close(); err != nil {
			deps.Logger.Error("Database close error", "error", err)
		}
	})

	gormDB, err := initGorm(db)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}
	deps.Gorm = gormDB

	if config.Redis.Addr != "" {
		client, err := initRedis(config.Redis)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		deps.Redis = client
		deps.onClose(func() { _ = client.Close() })
		deps.Blacklist = tokenRedis.NewBlacklist(client, config.Redis.KeyPrefix)
		deps.Limiter = middleware.NewRedisLimiter(client, config.Redis.KeyPrefix)
	} else {
		deps.Blacklist = tokenPostgres.NewBlacklistRepository(gormDB)
		deps.Limiter = middleware.NewMemoryLimiter()
	}

	bus := events.NewEventBus(deps.Logger)
	activity.NewStore(activityPostgres.NewActivityRepository(gormDB), deps.Logger).Subscribe(bus)
	deps.Bus = bus
	deps.Recorder = activity.NewBusRecorder(bus)
	// registered after the db so pending activity rows are written before it closes
	deps.onClose(bus.Close)

	if config.Notification.GatewayURL != "" {
		client := notification.NewGatewayClient(notification.GatewayConfig{
			URL:            config.Notification.GatewayURL,
			APIKey:         config.Notification.APIKey,
			Timeout:        config.Notification.Timeout,
			MaxWorkers:     config.Notification.MaxWorkers,
			JobQueueSize:   config.Notification.JobQueueSize,
			WorkerPoolSize: config.Notification.WorkerPoolSize,
		}, deps.Logger)
		deps.Notifier = client
		deps.onClose(client.Shutdown)
	} else {
		deps.Logger.Warn("no notification gateway configured, messages will only be logged")
		deps.Notifier = notification.NewLogNotifier(deps.Logger)
	}

	return deps, nil
}

// initDB opens the pgx-backed pool shared by sqlx and gorm.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
	})
}

func initRedis(cfg internal.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := internal.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

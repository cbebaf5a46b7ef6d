package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/pmapp/authsvc/internal/auth"
	"github.com/pmapp/authsvc/internal/config"
	"github.com/pmapp/authsvc/internal/domain"
	"github.com/pmapp/authsvc/internal/event"
	"github.com/pmapp/authsvc/internal/guard"
	handler "github.com/pmapp/authsvc/internal/handler/http"
	"github.com/pmapp/authsvc/internal/mailer"
	"github.com/pmapp/authsvc/internal/otp"
	"github.com/pmapp/authsvc/internal/password"
	"github.com/pmapp/authsvc/internal/repository/postgres"
	"github.com/pmapp/authsvc/internal/service"
	"github.com/pmapp/authsvc/migrations"
	"github.com/pmapp/authsvc/pkg/breaker"
	"github.com/pmapp/authsvc/pkg/database"
	"github.com/pmapp/authsvc/pkg/health"
	pkgkafka "github.com/pmapp/authsvc/pkg/kafka"
	"github.com/pmapp/authsvc/pkg/middleware"
	"github.com/pmapp/authsvc/pkg/tracing"
)

const (
	serviceName     = "auth"
	janitorInterval = 5 * time.Minute
)

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	memoryGuard    *guard.Memory
	limiter        *middleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.closeResources()
		}
	}()

	// Initialize OpenTelemetry tracing.
	traceCfg := tracing.DefaultConfig(serviceName)
	traceCfg.Environment = cfg.Environment
	traceCfg.OTLPEndpoint = cfg.OTELEndpoint
	traceCfg.SampleRate = cfg.OTELSampleRate
	traceCfg.Enabled = cfg.OTELEnabled
	tracerShutdown, err := tracing.InitTracer(ctx, traceCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	// Initialize PostgreSQL connection pool.
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := prometheus.Register(database.NewPoolStatsCollector(pool, serviceName)); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if cfg.RunMigrationsOnStart {
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")
	}

	if cfg.SlowQueryMillis > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)
	}

	// Rate/lockout guard.
	var g guard.Guard
	switch cfg.GuardBackend {
	case config.GuardRedis:
		client, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			return nil, err
		}
		a.redis = client
		g = guard.NewRedis(client, 0)
		logger.Info("guard backend: redis", slog.String("addr", cfg.Redis().Addr()))
	default:
		a.memoryGuard = guard.NewMemory()
		g = a.memoryGuard
		logger.Info("guard backend: memory")
	}

	// Events are optional; the noop emitter keeps the service unaware.
	var emitter event.Emitter = event.Noop{}
	if cfg.EventsEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		emitter = event.NewProducer(a.producer, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Crypto primitives.
	hasher, err := password.New(cfg.PasswordParams())
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}
	codes, err := otp.NewService(cfg.OTPParams(), cfg.OTPLength, cfg.OTPTTL())
	if err != nil {
		return nil, fmt.Errorf("otp service: %w", err)
	}
	tokens, err := auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	// Outbound mail.
	renderer, err := mailer.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("mail templates: %w", err)
	}
	smtp := mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.MailFrom,
	})
	sender := mailer.NewBreakerSender(smtp, breaker.New(breaker.DefaultConfig("smtp"), logger))
	mail := mailer.New(sender, renderer, cfg.AppName, cfg.OTPTTL(), logger)

	// Build the dependency graph.
	authService := service.NewAuthService(service.Deps{
		Users:    postgres.NewUserRepository(pool),
		Otps:     postgres.NewOtpRepository(pool),
		Sessions: postgres.NewRefreshSessionRepository(pool),
		Hasher:   hasher,
		Codes:    codes,
		Tokens:   tokens,
		Guard:    g,
		Mailer:   mail,
		Events:   emitter,
		Logger:   logger,
	}, service.Config{
		OtpCooldown:      cfg.OTPCooldown(),
		Lockout:          cfg.LockoutPolicy(),
		RevokeAllOnReuse: cfg.RefreshReuseRevokeAll,
	})

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if a.redis != nil {
		client := a.redis
		healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	if a.producer != nil {
		producer := a.producer
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
	}

	a.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
		Max:        cfg.RateLimitMax,
		Window:     cfg.RateLimitWindow(),
		TrustProxy: cfg.RateLimitTrustProxy,
	}, logger)

	// HTTP router.
	router := handler.NewRouter(authService, accessVerifier(tokens), healthHandler, logger, handler.RouterConfig{
		ServiceName: serviceName,
		CORS:        middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins),
		Cookies: handler.CookieConfig{
			Secure: cfg.IsProduction(),
			Path:   "/api/v1/auth",
		},
		Limiter: a.limiter,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ok = true
	return a, nil
}

// accessVerifier bridges the token manager to the auth middleware.
func accessVerifier(tokens *auth.TokenManager) middleware.TokenVerifier {
	return func(token string) (*middleware.Claims, error) {
		claims, err := tokens.VerifyAccess(token)
		if err != nil {
			return nil, domain.ErrInvalidToken()
		}
		return &middleware.Claims{UserID: claims.UserID(), Email: claims.Email}, nil
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	go a.limiter.RunJanitor(bgCtx)
	if a.memoryGuard != nil {
		go a.memoryGuard.RunJanitor(bgCtx, janitorInterval)
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		stopBackground()
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order: HTTP server, tracer,
// Kafka producer, Redis, PostgreSQL pool.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases everything but the HTTP server. Safe to call on a
// partially built App.
func (a *App) closeResources() error {
	var errs []error

	// Flush spans after the HTTP drain so request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}

	return errors.Join(errs...)
}

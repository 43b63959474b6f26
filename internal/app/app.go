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
	goredis "github.com/redis/go-redis/v9"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/auth"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/config"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/event"
	handler "github.com/Bulldog-Master/xxvpn-sub001/internal/handler/http"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/mailer"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/mixnet"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/ndf"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/ratelimit"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/repository/postgres"
	redisrepo "github.com/Bulldog-Master/xxvpn-sub001/internal/repository/redis"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/secretbox"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/service"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/twofactor"
	"github.com/Bulldog-Master/xxvpn-sub001/migrations"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/database"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/health"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/httpclient"
	pkgkafka "github.com/Bulldog-Master/xxvpn-sub001/pkg/kafka"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/middleware"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/tracing"
)

const serviceName = "xxvpn-api"

// totpSecretWindow is the rate limit window for encrypt-totp-secret.
const totpSecretWindow = time.Minute

// App wires together all dependencies and runs the xxvpn API.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumer       *pkgkafka.Consumer
	mixnet         *mixnet.Manager
	authLimiter    *middleware.IPRateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// It refuses to start without a usable TOTP encryption key.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	box, err := secretbox.New(cfg.TOTPEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("init totp encryption: %w", err)
	}

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(serviceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Redis
	redisClient, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))

	// Kafka
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
	events := event.NewProducer(producer, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	var sender mailer.Sender = mailer.NewLogSender(logger)
	if cfg.SMTPHost != "" {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Timeout:  10 * time.Second,
		})
	}
	consumer := event.NewBetaSignupConsumer(
		cfg.KafkaBrokers,
		event.NewBetaSignupHandler(sender, logger),
		pkgkafka.NewRedisIdempotencyStore(redisClient, event.ConsumerGroupID, event.IdempotencyTTL),
		dlq,
		logger,
	)

	// xx network
	clientCfg := httpclient.DefaultConfig()
	clientCfg.UserAgent = serviceName
	mirrors := make([]ndf.Mirror, 0, len(cfg.NDFMirrors))
	for _, u := range cfg.NDFMirrors {
		mirrors = append(mirrors, ndf.NewMirror(u, httpclient.New(clientCfg), logger))
	}
	fetcher := ndf.NewFetcher(mirrors, redisrepo.NewNDFCache(redisClient), cfg.NDFCacheTTL, logger)

	bridgeClient := httpclient.NewCircuitBreakerClient(httpclient.New(clientCfg),
		httpclient.DefaultCircuitBreakerConfig("mixnet-bridge"), logger)
	mode := mixnet.Select(ctx, mixnet.SelectConfig{WASMPath: cfg.MixnetWASMPath, BridgeURL: cfg.MixnetBridgeURL}, bridgeClient, logger)
	keystore := mixnet.NewKeystore(redisrepo.NewKeystoreRepository(redisClient), mixnet.DefaultKeyParams())
	manager := mixnet.NewManager(mixnet.NewFactory(mode, cfg.MixnetBridgeURL, bridgeClient, keystore, fetcher, logger))

	// Services
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)

	authService := service.NewAuthService(service.AuthDependencies{
		Users:      postgres.NewUserRepository(pool),
		Sessions:   postgres.NewSessionRepository(pool),
		Revoked:    redisrepo.NewRevocationStore(redisClient),
		TOTP:       postgres.NewTOTPRepository(pool),
		Challenges: redisrepo.NewChallengeStore(redisClient),
		Tokens:     jwtManager,
		Secrets:    box,
		Replay:     redisrepo.NewReplayGuard(redisClient, twofactor.ReplayTTL),
		Events:     events,
	}, service.AuthConfig{Issuer: cfg.TOTPIssuer, ChallengeTTL: cfg.TOTPChallengeTTL}, logger)
	secretLimiter := ratelimit.NewRedisLimiter(redisClient, "totp-secret", cfg.TOTPRateLimit, totpSecretWindow)

	if cfg.WebhookSecret == "" {
		logger.Warn("WEBHOOK_SECRET is empty, payment webhooks will be rejected")
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", database.RedisChecker(redisClient))
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	authLimiter := middleware.NewIPRateLimiter(cfg.AuthRateLimitRPS, cfg.AuthRateLimitBurst, logger)

	router := handler.NewRouter(handler.RouterConfig{
		Auth:          authService,
		Secrets:       service.NewSecretService(box, secretLimiter, logger),
		Subscriptions: service.NewSubscriptionService(subscriptionRepo, events, logger),
		DAO:           service.NewDAOService(postgres.NewProposalRepository(pool), events, logger),
		Beta:          service.NewBetaService(events, logger),
		Webhook:       service.NewWebhookService(cfg.WebhookSecret, subscriptionRepo, events, logger),
		NDF:           fetcher,
		Mixnet:        manager,
		Health:        healthHandler,
		CORS:          corsCfg,
		AuthLimiter:   authLimiter,
		PprofCIDRs:    cfg.PprofAllowedCIDRs,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		dlq:            dlq,
		consumer:       consumer,
		mixnet:         manager,
		authLimiter:    authLimiter,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the beta signup consumer, then blocks until
// the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := a.consumer.Start(ctx); err != nil {
			a.logger.Error("kafka consumer error", slog.String("error", err.Error()))
		}
	}()

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
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown stops components in order: HTTP server, mixnet clients, tracer,
// Kafka, Redis, PostgreSQL.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.authLimiter.Close()

	mixCtx, mixCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer mixCancel()
	a.mixnet.DisconnectAll(mixCtx)

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.consumer.Close(); err != nil {
		a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.dlq.Close(); err != nil {
		a.logger.Error("kafka dlq close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

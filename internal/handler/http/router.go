package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/mixnet"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/ndf"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/service"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/health"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/middleware"
)

const serviceName = "xxvpn-api"

// RouterConfig carries everything the router mounts.
type RouterConfig struct {
	Auth          *service.AuthService
	Secrets       *service.SecretService
	Subscriptions *service.SubscriptionService
	DAO           *service.DAOService
	Beta          *service.BetaService
	Webhook       *service.WebhookService
	NDF           *ndf.Fetcher
	Mixnet        *mixnet.Manager
	Health        *health.Handler

	CORS        middleware.CORSConfig
	AuthLimiter *middleware.IPRateLimiter
	PprofCIDRs  []string
	Logger      *slog.Logger
}

// NewRouter creates a chi router with all xxvpn routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	requireAuth := middleware.Auth(cfg.Auth.TokenValidator())

	authHandler := NewAuthHandler(cfg.Auth, logger)
	userHandler := NewUserHandler(cfg.Auth, cfg.Subscriptions, logger)
	daoHandler := NewDAOHandler(cfg.DAO, logger)
	mixnetHandler := NewMixnetHandler(cfg.Mixnet, logger)
	functions := NewFunctionsHandler(FunctionsDependencies{
		Secrets:       cfg.Secrets,
		Subscriptions: cfg.Subscriptions,
		DAO:           cfg.DAO,
		Beta:          cfg.Beta,
		Webhook:       cfg.Webhook,
		NDF:           cfg.NDF,
	}, logger)

	// Auth endpoints: tokens in responses, throttled per IP.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.NoStore)
		if cfg.AuthLimiter != nil {
			r.Use(cfg.AuthLimiter.Handler)
		}

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/2fa/verify", authHandler.VerifyTwoFactor)
		r.Post("/refresh", authHandler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.RequestLogger(logger))

			r.Post("/logout", authHandler.Logout)
			r.Post("/2fa/setup", authHandler.SetupTOTP)
			r.Post("/2fa/enable", authHandler.EnableTOTP)
			r.Post("/2fa/disable", authHandler.DisableTOTP)
		})
	})

	// Signed-in user endpoints
	r.Group(func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(requireAuth)
		r.Use(middleware.RequestLogger(logger))

		r.Get("/api/v1/users/me", userHandler.GetProfile)
		r.Put("/api/v1/users/me", userHandler.UpdateProfile)
		r.Get("/api/v1/subscription", userHandler.GetSubscription)
		r.Put("/api/v1/subscription/wallet", userHandler.BindWallet)

		r.Get("/api/v1/dao/proposals", daoHandler.ListProposals)
		r.Get("/api/v1/dao/proposals/{id}", daoHandler.GetProposal)

		r.Route("/api/v1/mixnet", func(r chi.Router) {
			r.Use(middleware.NoStore)
			r.Post("/initialize", mixnetHandler.Initialize)
			r.Post("/connect", mixnetHandler.Connect)
			r.Post("/disconnect", mixnetHandler.Disconnect)
			r.Get("/status", mixnetHandler.Status)
		})
	})

	// Function routes
	r.Route("/functions/v1", func(r chi.Router) {
		r.Get("/fetch-ndf", functions.FetchNDF)
		r.With(middleware.CacheControl(60)).Get("/xx-network-health", functions.NetworkHealth)
		r.Post("/xx-webhook", functions.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Post("/send-beta-confirmation", functions.SendBetaConfirmation)
		})

		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(requireAuth)
			r.Use(middleware.RequestLogger(logger))

			r.With(middleware.NoStore).Post("/encrypt-totp-secret", functions.EncryptTOTPSecret)
			r.Post("/manage-subscription", functions.ManageSubscription)
			r.Post("/validate-dao-vote", functions.ValidateDAOVote)
		})
	})

	return r
}

package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pmapp/authsvc/pkg/health"
	"github.com/pmapp/authsvc/pkg/httputil"
	"github.com/pmapp/authsvc/pkg/logger"
	"github.com/pmapp/authsvc/pkg/middleware"
)

// RouterConfig holds the boundary settings of the auth API.
type RouterConfig struct {
	ServiceName string
	CORS        middleware.CORSConfig
	Cookies     CookieConfig

	// Limiter guards the credential routes. Nil disables limiting.
	Limiter *middleware.RateLimiter
}

// NewRouter creates a chi router with all auth routes registered.
func NewRouter(
	svc AuthService,
	verify middleware.TokenVerifier,
	healthHandler *health.Handler,
	l *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(l))
	r.Use(middleware.RequestLogging(l))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.RequestLogger(l))
	r.Use(middleware.CORS(cfg.CORS))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.Response{
			Error: &httputil.ErrorResponse{
				Code:      "NOT_FOUND",
				Message:   "route not found",
				RequestID: logger.CorrelationIDFromContext(r.Context()),
			},
		})
	})

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	h := NewAuthHandler(svc, cfg.Cookies, l)

	r.Route("/api/v1/auth", func(r chi.Router) {
		// Credential routes: JSON body, per-IP limiter.
		r.Group(func(r chi.Router) {
			if cfg.Limiter != nil {
				r.Use(cfg.Limiter.Middleware)
			}
			r.Use(ContentTypeJSON)

			r.Post("/register", h.Register)
			r.Post("/verify-email", h.VerifyEmail)
			r.Post("/resend-otp", h.ResendOtp)
			r.Post("/login", h.Login)
			r.Post("/forgot-password", h.ForgotPassword)
			r.Post("/reset-password", h.ResetPassword)
		})

		// Cookie routes
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)

		// Bearer routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(verify))
			r.Use(middleware.RequestLogger(l))

			r.Get("/me", h.Me)
		})
	})

	return r
}

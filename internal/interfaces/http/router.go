package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/auth/token"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/interfaces/http/middleware"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

// RouterConfig aggregates all handler and middleware dependencies required
// to construct the complete HTTP route tree. Nil members are skipped.
type RouterConfig struct {
	PredictionHandler         *handlers.PredictionHandler
	PredictionCompoundHandler *handlers.PredictionCompoundHandler
	ModelHandler              *handlers.ModelHandler
	HealthHandler             *handlers.HealthHandler

	AuthMiddleware *token.AuthMiddleware
	CORS           *middleware.CORSConfig
	RateLimiter    middleware.RateLimiter
	Logging        *middleware.LoggingConfig

	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
}

// NewRouter builds the route tree: probes and /metrics are public, every
// /api/v1 route requires a bearer token.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics(cfg.Metrics))
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	if cfg.Logger != nil {
		lc := middleware.DefaultLoggingConfig()
		if cfg.Logging != nil {
			lc = *cfg.Logging
		}
		r.Use(middleware.RequestLogging(cfg.Logger, lc))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeRouteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeRouteError(w, http.StatusMethodNotAllowed, errors.ErrCodeBadRequest, "Method not allowed.")
	})

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsCollector != nil {
		r.Handle("/metrics", cfg.MetricsCollector.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.Handler)
		}
		if cfg.RateLimiter != nil {
			api.Use(middleware.RateLimit(cfg.RateLimiter, middleware.DefaultRateLimitConfig()))
		}
		if cfg.PredictionHandler != nil {
			cfg.PredictionHandler.RegisterRoutes(api)
		}
		if cfg.PredictionCompoundHandler != nil {
			cfg.PredictionCompoundHandler.RegisterRoutes(api)
		}
		if cfg.ModelHandler != nil {
			cfg.ModelHandler.RegisterRoutes(api)
		}
	})

	return r
}

func writeRouteError(w http.ResponseWriter, status int, code errors.ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(common.NewErrorResponse(code.String(), message))
}

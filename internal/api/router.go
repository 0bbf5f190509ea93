package api

import (
	"net/http"

	"github.com/ashureev/chat-relay/internal/config"
	"github.com/ashureev/chat-relay/internal/middleware"
	"github.com/ashureev/chat-relay/internal/relay"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires middleware and routes. site, when non-nil, serves every
// path not claimed by the API.
func NewRouter(cfg *config.Config, svc *relay.Service, trace *DebugTrace, site http.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	NewHealthHandler(svc).RegisterHealth(r)
	r.Handle("/metrics", promhttp.Handler())

	relayHandler := NewRelayHandler(svc, trace)
	r.Group(func(r chi.Router) {
		if cfg.RateLimitEnabled() {
			limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, http.MethodPut)
			r.Use(limiter.Middleware)
		}
		relayHandler.RegisterRoutes(r)
	})

	if site != nil {
		r.Handle("/*", site)
	}

	return r
}

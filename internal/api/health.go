package api

import (
	"net/http"

	"github.com/ashureev/chat-relay/internal/relay"
	"github.com/go-chi/chi/v5"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	svc *relay.Service
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(svc *relay.Service) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// Health returns the health status of the API and the relay mailbox.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"checks":   map[string]string{"api": "ok", "relay": "ok"},
		"sessions": h.svc.Stats(),
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks a dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness and database reachability
type HealthHandler struct {
	db      Pinger
	service string
}

// NewHealthHandler creates a health handler
func NewHealthHandler(db Pinger, service string) *HealthHandler {
	return &HealthHandler{db: db, service: service}
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := map[string]interface{}{
		"status":   "ok",
		"service":  h.service,
		"database": "ok",
	}

	if err := h.db.Ping(ctx); err != nil {
		body["status"] = "degraded"
		body["database"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, body)
		return
	}

	respondJSON(w, http.StatusOK, body)
}

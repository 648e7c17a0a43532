package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/skulicheck/skulicheck-be/internal/http/respond"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler returns uptime and database reachability.
type HealthHandler struct {
	startedAt time.Time
	db        Pinger
}

// NewHealthHandler creates a health endpoint handler. db may be nil.
func NewHealthHandler(startedAt time.Time, db Pinger) *HealthHandler {
	return &HealthHandler{startedAt: startedAt, db: db}
}

// Register wires the handler into the router.
func (h *HealthHandler) Register(r chi.Router) {
	r.Get("/health", h.handle)
}

func (h *HealthHandler) handle(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startedAt).Truncate(time.Second).String()
	database := "unchecked"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			zap.L().Warn("health: database ping failed", zap.Error(err))
			respond.JSON(w, http.StatusServiceUnavailable, "database unavailable", map[string]string{
				"status":   "degraded",
				"database": "down",
				"uptime":   uptime,
			})
			return
		}
		database = "up"
	}
	respond.JSON(w, http.StatusOK, "ok", map[string]string{
		"status":   "ok",
		"database": database,
		"uptime":   uptime,
	})
}

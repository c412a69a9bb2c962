package api

import (
	"net/http"
	"time"
)

// HealthHandler reports process liveness and identity. Delivery-level
// statistics live under /metrics; this endpoint only answers "is the
// relay up".
type HealthHandler struct {
	startedAt time.Time
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startedAt: time.Now()}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"service":        "hookrelay",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

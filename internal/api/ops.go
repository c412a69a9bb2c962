package api

import (
	"net/http"

	"github.com/commercekit/hookrelay/internal/retry"
	"github.com/commercekit/hookrelay/internal/store"
)

type OpsHandler struct {
	store     *store.PostgresStore
	scheduler *retry.Scheduler
}

func NewOpsHandler(s *store.PostgresStore, scheduler *retry.Scheduler) *OpsHandler {
	return &OpsHandler{store: s, scheduler: scheduler}
}

// Metrics returns aggregated delivery statistics for operators.
func (h *OpsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetDeliveryMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	queueDepth, err := h.scheduler.QueueDepth(r.Context())
	if err != nil {
		queueDepth = 0
	}

	type metricsResponse struct {
		store.DeliveryMetrics
		RetryQueueDepth int64 `json:"retry_queue_depth"`
	}

	respondJSON(w, http.StatusOK, metricsResponse{
		DeliveryMetrics: *metrics,
		RetryQueueDepth: queueDepth,
	})
}

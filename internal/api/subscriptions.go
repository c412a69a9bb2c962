package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/commercekit/hookrelay/internal/breaker"
	"github.com/commercekit/hookrelay/internal/domain"
	"github.com/commercekit/hookrelay/internal/registry"
	"github.com/go-chi/chi/v5"
)

type SubscriptionHandler struct {
	registry *registry.Registry
	tracker  *breaker.Tracker
}

func NewSubscriptionHandler(reg *registry.Registry, tracker *breaker.Tracker) *SubscriptionHandler {
	return &SubscriptionHandler{registry: reg, tracker: tracker}
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.registry.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, registry.ErrValidation) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to register subscription")
		return
	}

	respondJSON(w, http.StatusCreated, sub)
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")

	subs, err := h.registry.List(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	respondJSON(w, http.StatusOK, subs)
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.registry.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	respondJSON(w, http.StatusOK, sub)
}

type deactivateRequest struct {
	Reason string `json:"reason"`
}

// Deactivate is the manual admin path; the breaker and retry exhaustion
// use the same registry call internally.
func (h *SubscriptionHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req deactivateRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "deactivated by operator"
	}

	if err := h.registry.Deactivate(r.Context(), id, req.Reason); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			respondError(w, http.StatusNotFound, "subscription not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to deactivate subscription")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *SubscriptionHandler) Health(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.registry.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	type healthResponse struct {
		SubscriptionID        string        `json:"subscription_id"`
		URL                   string        `json:"url"`
		Active                bool          `json:"active"`
		ConsecutiveRetryCount int           `json:"consecutive_retry_count"`
		LastError             *string       `json:"last_error,omitempty"`
		FailureWindow         breaker.State `json:"failure_window"`
	}

	respondJSON(w, http.StatusOK, healthResponse{
		SubscriptionID:        sub.ID,
		URL:                   sub.URL,
		Active:                sub.Active,
		ConsecutiveRetryCount: sub.ConsecutiveRetryCount,
		LastError:             sub.LastError,
		FailureWindow:         h.tracker.GetState(r.Context(), id),
	})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/commercekit/hookrelay/internal/ingress"
)

type EventHandler struct {
	ingress *ingress.Service
}

func NewEventHandler(svc *ingress.Service) *EventHandler {
	return &EventHandler{ingress: svc}
}

type raiseEventRequest struct {
	TenantID  string          `json:"tenant_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type raiseEventResponse struct {
	Status    string `json:"status"`
	EventType string `json:"event_type"`
}

// Raise accepts an event for delivery. The response is 202: the event is
// queued, actual delivery happens on the dispatcher's own schedule.
func (h *EventHandler) Raise(w http.ResponseWriter, r *http.Request) {
	var req raiseEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.ingress.RaiseEvent(req.TenantID, req.EventType, req.Payload); err != nil {
		if errors.Is(err, ingress.ErrQueueFull) {
			respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, raiseEventResponse{
		Status:    "accepted",
		EventType: req.EventType,
	})
}

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/commercekit/hookrelay/internal/store"
	"github.com/go-chi/chi/v5"
)

// maxDeadLetterPage caps a single listing; envelopes can be large.
const maxDeadLetterPage = 500

// DeadLetterHandler exposes abandoned deliveries to operators. Entries
// are read-only except for marking them resolved; redelivery means
// re-registering the subscription and re-raising the event.
type DeadLetterHandler struct {
	store *store.PostgresStore
}

func NewDeadLetterHandler(s *store.PostgresStore) *DeadLetterHandler {
	return &DeadLetterHandler{store: s}
}

func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxDeadLetterPage)
	}

	letters, err := h.store.ListDeadLetters(r.Context(), q.Get("subscription_id"), q.Get("resolved") == "true", limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	respondJSON(w, http.StatusOK, letters)
}

func (h *DeadLetterHandler) Get(w http.ResponseWriter, r *http.Request) {
	letter, err := h.store.GetDeadLetter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get dead letter")
		return
	}
	if letter == nil {
		respondError(w, http.StatusNotFound, "dead letter not found")
		return
	}

	respondJSON(w, http.StatusOK, letter)
}

type resolveDeadLetterRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

// Resolve marks an entry as handled. The body is optional; without an
// identity the resolution is attributed to "operator".
func (h *DeadLetterHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveDeadLetterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = "operator"
	}

	if err := h.store.ResolveDeadLetter(r.Context(), chi.URLParam(r, "id"), req.ResolvedBy); err != nil {
		respondError(w, http.StatusNotFound, "dead letter not found or already resolved")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/batepapo/internal/chat"
	"github.com/eldtechnologies/batepapo/internal/metrics"
	"github.com/eldtechnologies/batepapo/internal/presence"
	"github.com/eldtechnologies/batepapo/internal/store"
	"github.com/eldtechnologies/batepapo/internal/validation"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	presence *presence.Service
	chat     *chat.Service
	store    store.Store
	sweeper  SweepReporter
	logger   zerolog.Logger
}

// SweepReporter is the part of the sweeper the health check reads.
type SweepReporter interface {
	Interval() time.Duration
	LastPass() time.Time
}

// NewHandler creates a new Handler with the given services.
func NewHandler(p *presence.Service, c *chat.Service, s store.Store, logger zerolog.Logger) *Handler {
	return &Handler{presence: p, chat: c, store: s, logger: logger}
}

// WithSweeper makes /health report on the sweeper.
func (h *Handler) WithSweeper(s SweepReporter) *Handler {
	h.sweeper = s
	return h
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// fail maps a service error to its HTTP answer.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, validation.ErrInvalidInput):
		h.Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		h.Error(w, http.StatusConflict, "name already in use")
	case errors.Is(err, store.ErrNotFound):
		h.Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrNotOwner):
		h.Error(w, http.StatusUnauthorized, "not the owner of this message")
	default:
		metrics.StoreUnavailable.Inc()
		h.logger.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("store unavailable")
		h.Error(w, http.StatusServiceUnavailable, "service unavailable")
	}
}

// decode reads a JSON body into v. Malformed bodies are invalid input.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(validation.ErrInvalidInput, err)
	}
	return nil
}

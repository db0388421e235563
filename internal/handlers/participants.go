package handlers

import (
	"net/http"

	"github.com/samber/lo"

	"github.com/eldtechnologies/batepapo/internal/api/middleware"
	"github.com/eldtechnologies/batepapo/internal/validation"
)

// ParticipantResponse is one entry of GET /participants.
type ParticipantResponse struct {
	Name string `json:"name"`
}

// Join handles POST /participants.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req validation.Participant
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	name, err := h.presence.Join(r.Context(), req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusCreated, ParticipantResponse{Name: name})
}

// ListParticipants handles GET /participants.
func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	names, err := h.presence.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, lo.Map(names, func(name string, _ int) ParticipantResponse {
		return ParticipantResponse{Name: name}
	}))
}

// Status handles POST /status, the participant heartbeat.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if err := h.presence.Refresh(r.Context(), user); err != nil {
		h.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/batepapo/internal/api/middleware"
	"github.com/eldtechnologies/batepapo/internal/chat"
	"github.com/eldtechnologies/batepapo/internal/models"
	"github.com/eldtechnologies/batepapo/internal/validation"
)

// maxQueryLength bounds the search query.
const maxQueryLength = 100

// SearchResponse represents the search response.
type SearchResponse struct {
	Query   string           `json:"query"`
	Results []models.Message `json:"results"`
	Total   int              `json:"total"`
}

// PostMessage handles POST /messages.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req validation.Message
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	req.From = middleware.GetUserFromContext(r.Context())

	msg, err := h.chat.Post(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}

// GetMessages handles GET /messages?limit=n.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.GetUserFromContext(r.Context())
	limit := chat.ParseLimit(r.URL.Query().Get("limit"))

	msgs, err := h.chat.List(r.Context(), viewer, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, msgs)
}

// EditMessage handles PUT /messages/{id}.
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	var req validation.Message
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	req.From = middleware.GetUserFromContext(r.Context())

	msg, err := h.chat.Edit(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, msg)
}

// DeleteMessage handles DELETE /messages/{id}.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if err := h.chat.Delete(r.Context(), chi.URLParam(r, "id"), user); err != nil {
		h.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Search handles GET /messages/search?q=...&limit=n.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.Error(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	if len(query) > maxQueryLength {
		h.Error(w, http.StatusBadRequest, "query too long (max 100 chars)")
		return
	}

	viewer := middleware.GetUserFromContext(r.Context())
	limit := chat.ParseLimit(r.URL.Query().Get("limit"))

	msgs, err := h.chat.Search(r.Context(), viewer, query, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, SearchResponse{
		Query:   query,
		Results: msgs,
		Total:   len(msgs),
	})
}

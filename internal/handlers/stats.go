package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/eldtechnologies/batepapo/internal/models"
)

// recentPreviewCount is how many public messages /stats previews.
const recentPreviewCount = 5

// MessagePreview represents a preview of a message.
type MessagePreview struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp int64  `json:"ts"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	ActiveParticipants int              `json:"active_participants"`
	TotalMessages      int64            `json:"total_messages"`
	LastActivity       string           `json:"last_activity"`
	RecentMessages     []MessagePreview `json:"recent_messages"`
}

// Stats returns room statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.chat.Stats(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	lastActivity := "no activity yet"
	if stats.LastActivity != nil {
		lastActivity = formatTimeAgo(time.UnixMilli(*stats.LastActivity))
	}

	// an anonymous viewer only sees what everyone sees
	messages, err := h.chat.List(ctx, "", recentPreviewCount)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	recent := make([]MessagePreview, 0, len(messages))
	for _, msg := range messages {
		if msg.Type == models.TypePrivateMessage {
			continue
		}
		recent = append(recent, MessagePreview{
			ID:        msg.ID,
			From:      msg.From,
			Text:      msg.Text,
			Timestamp: msg.Timestamp,
		})
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		ActiveParticipants: stats.ActiveParticipants,
		TotalMessages:      stats.TotalMessages,
		LastActivity:       lastActivity,
		RecentMessages:     recent,
	})
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return strconv.Itoa(mins) + " minutes ago"
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return strconv.Itoa(hours) + " hours ago"
	default:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return strconv.Itoa(days) + " days ago"
	}
}

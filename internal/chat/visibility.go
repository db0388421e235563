package chat

import (
	"strconv"

	"github.com/samber/lo"

	"github.com/eldtechnologies/batepapo/internal/models"
)

// NoLimit asks Visible for every visible message.
const NoLimit = -1

// Visible returns the messages of log that viewer may read, oldest first.
// A non-negative limit keeps only the last limit of them.
func Visible(viewer string, log []models.Message, limit int) []models.Message {
	visible := lo.Filter(log, func(m models.Message, _ int) bool {
		return m.VisibleTo(viewer)
	})
	return tail(visible, limit)
}

func tail(msgs []models.Message, limit int) []models.Message {
	if limit < 0 || limit >= len(msgs) {
		return msgs
	}
	return msgs[len(msgs)-limit:]
}

// ParseLimit reads the limit query parameter. Absent, non-numeric and
// negative values mean NoLimit.
func ParseLimit(raw string) int {
	if raw == "" {
		return NoLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return NoLimit
	}
	return n
}

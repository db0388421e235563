package chat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/batepapo/internal/models"
)

func msg(from, to string, typ models.MessageType, text string) models.Message {
	return models.Message{From: from, To: to, Type: typ, Text: text}
}

func TestVisible(t *testing.T) {
	log := []models.Message{
		msg("ana", "bia", models.TypePrivateMessage, "oi bia"),
		msg("caio", models.BroadcastTarget, models.TypeMessage, "oi todos"),
		msg("davi", models.BroadcastTarget, models.TypeStatus, models.StatusJoined),
		msg("caio", "ana", models.TypeMessage, "public reply"),
		msg("davi", models.BroadcastTarget, models.TypePrivateMessage, "whisper to all"),
	}

	tests := []struct {
		name   string
		viewer string
		limit  int
		want   []string
	}{
		{"addressee sees private", "bia", NoLimit, []string{"oi bia", "oi todos", models.StatusJoined, "public reply", "whisper to all"}},
		{"sender sees own private", "ana", NoLimit, []string{"oi bia", "oi todos", models.StatusJoined, "public reply", "whisper to all"}},
		{"bystander misses private", "davi", NoLimit, []string{"oi todos", models.StatusJoined, "public reply", "whisper to all"}},
		{"tail of one", "davi", 1, []string{"whisper to all"}},
		{"tail of two", "eva", 2, []string{"public reply", "whisper to all"}},
		{"zero limit", "bia", 0, []string{}},
		{"limit past length", "eva", 50, []string{"oi todos", models.StatusJoined, "public reply", "whisper to all"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Visible(tt.viewer, log, tt.limit)
			texts := make([]string, 0, len(got))
			for _, m := range got {
				texts = append(texts, m.Text)
			}
			require.Equal(t, tt.want, texts)
		})
	}
}

func TestVisiblePrivatePair(t *testing.T) {
	req := require.New(t)
	log := []models.Message{
		msg("A", "B", models.TypePrivateMessage, "first"),
		msg("C", models.BroadcastTarget, models.TypeMessage, "second"),
	}

	req.Len(Visible("B", log, NoLimit), 2)
	d := Visible("D", log, NoLimit)
	req.Len(d, 1)
	req.Equal("second", d[0].Text)
}

func TestParseLimit(t *testing.T) {
	tests := map[string]int{
		"":    NoLimit,
		"abc": NoLimit,
		"-3":  NoLimit,
		"1.5": NoLimit,
		"0":   0,
		"7":   7,
	}
	for raw, want := range tests {
		require.Equal(t, want, ParseLimit(raw), "limit %q", raw)
	}
}

func TestTokenize(t *testing.T) {
	req := require.New(t)
	req.Equal([]string{"olá", "mundo"}, Tokenize("Olá, MUNDO! olá"))
	req.Empty(Tokenize("  ... !!"))
	req.Len(Tokenize("a b c d e f g"), maxSearchTokens)
}

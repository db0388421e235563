package chat

import (
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/eldtechnologies/batepapo/internal/models"
)

var searchWordRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// maxSearchTokens caps the work a single query can ask for.
const maxSearchTokens = 5

// Tokenize extracts the distinct lower-cased words of text.
func Tokenize(text string) []string {
	words := searchWordRegex.FindAllString(strings.ToLower(text), -1)
	words = lo.Uniq(words)
	if len(words) > maxSearchTokens {
		words = words[:maxSearchTokens]
	}
	return words
}

// matches reports whether every token appears as a word of the message text.
func matches(m models.Message, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	words := searchWordRegex.FindAllString(strings.ToLower(m.Text), -1)
	return lo.Every(words, tokens)
}

// Package validation sanitizes user-supplied text and enforces the shape
// rules for participant names and messages before they reach the core.
package validation

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/eldtechnologies/batepapo/internal/models"
)

// ErrInvalidInput is returned for any input that fails sanitization or shape rules.
var ErrInvalidInput = errors.New("invalid input")

var (
	validate = validator.New(validator.WithRequiredStructEnabled())
	strip    = bluemonday.StrictPolicy()
)

// Participant is the body of POST /participants.
type Participant struct {
	Name string `json:"name" validate:"min=3,max=20"`
}

// Message is the body of POST /messages and PUT /messages/{id}; From comes
// from the User header.
type Message struct {
	From string             `json:"-" validate:"min=3,max=20"`
	To   string             `json:"to" validate:"min=3,max=20"`
	Text string             `json:"text" validate:"min=1,max=280"`
	Type models.MessageType `json:"type" validate:"oneof=message private_message"`
}

// maxSanitizePasses bounds the strip/decode loop in Sanitize.
const maxSanitizePasses = 8

// Sanitize strips every HTML tag and trims surrounding whitespace. Entities
// are decoded back so "ana & bia" is stored as typed; decoding repeats with
// stripping until the value is stable, so escaped markup cannot come out
// as live markup.
func Sanitize(s string) string {
	for range maxSanitizePasses {
		next := html.UnescapeString(strip.Sanitize(s))
		if next == s {
			return strings.TrimSpace(s)
		}
		s = next
	}
	// still unstable: keep it escaped
	return strings.TrimSpace(strip.Sanitize(s))
}

// Name sanitizes and validates a participant name.
func Name(raw string) (string, error) {
	p := Participant{Name: Sanitize(raw)}
	if err := validate.Struct(p); err != nil {
		return "", invalid(err)
	}
	return p.Name, nil
}

// Normalize sanitizes every field of m in place and validates the result.
func (m *Message) Normalize() error {
	m.From = Sanitize(m.From)
	m.To = Sanitize(m.To)
	m.Text = Sanitize(m.Text)
	m.Type = models.MessageType(Sanitize(string(m.Type)))
	if err := validate.Struct(m); err != nil {
		return invalid(err)
	}
	return nil
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field())+":"+fe.Tag())
		}
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

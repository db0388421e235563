// Package events carries log changes to live subscribers and external consumers.
package events

import (
	"context"
	"errors"

	"github.com/eldtechnologies/batepapo/internal/models"
)

// Kind names a log change.
type Kind string

const (
	KindJoined  Kind = "joined"
	KindLeft    Kind = "left"
	KindPosted  Kind = "posted"
	KindEdited  Kind = "edited"
	KindDeleted Kind = "deleted"
)

// Event is a single change to the message log.
type Event struct {
	Kind    Kind           `json:"kind"`
	Message models.Message `json:"message"`
}

// Publisher delivers events. Delivery is best-effort; callers log errors
// and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi fans an event out to every publisher.
type Multi []Publisher

// Publish delivers ev to all publishers and joins their errors.
func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

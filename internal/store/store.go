//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eldtechnologies/batepapo/internal/models"
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	ErrNotOwner      = errors.New("not owner")
	ErrUnavailable   = errors.New("store unavailable")
)

// unavailable marks a backend I/O failure.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Registry is the durable set of active participants.
// Every method is atomic with respect to other calls on the same name.
type Registry interface {
	// Join inserts name with a heartbeat at now, or fails with ErrAlreadyExists.
	Join(ctx context.Context, name string, now time.Time) error
	// Refresh moves the heartbeat of name to now, or fails with ErrNotFound.
	Refresh(ctx context.Context, name string, now time.Time) error
	// Participant returns a single participant or ErrNotFound.
	Participant(ctx context.Context, name string) (*models.Participant, error)
	// Participants returns a snapshot of the registry.
	Participants(ctx context.Context) ([]models.Participant, error)
	// Evict removes name only if its heartbeat is still older than cutoff.
	// It reports whether the participant was removed.
	Evict(ctx context.Context, name string, cutoff time.Time) (bool, error)
}

// Log is the durable, append-only message log.
type Log interface {
	// Append stores msg, assigning its ID and time when unset.
	Append(ctx context.Context, msg *models.Message) error
	Get(ctx context.Context, id string) (*models.Message, error)
	// Edit replaces the mutable fields of a message owned by requester.
	Edit(ctx context.Context, id, requester string, edit models.MessageEdit) (*models.Message, error)
	// Delete removes a message owned by requester.
	Delete(ctx context.Context, id, requester string) error
	// Messages returns the whole log in insertion order.
	Messages(ctx context.Context) ([]models.Message, error)
	Count(ctx context.Context) (int64, error)
}

// Store is a complete persistence backend.
type Store interface {
	Registry
	Log
	Ping(ctx context.Context) error
	Close() error
}

// classify passes domain outcomes through and marks anything else as a
// backend failure.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrUnavailable):
		return err
	}
	return unavailable(err)
}

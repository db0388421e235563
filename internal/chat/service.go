// Package chat implements the message operations: posting, reading through
// the visibility filter, editing, deleting and searching.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/batepapo/internal/events"
	"github.com/eldtechnologies/batepapo/internal/metrics"
	"github.com/eldtechnologies/batepapo/internal/models"
	"github.com/eldtechnologies/batepapo/internal/store"
	"github.com/eldtechnologies/batepapo/internal/validation"
)

// Service runs message operations against a Log, checking senders in the
// Registry.
type Service struct {
	registry store.Registry
	log      store.Log
	events   events.Publisher
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a message service. A nil pub discards events.
func NewService(registry store.Registry, log store.Log, pub events.Publisher, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		registry: registry,
		log:      log,
		events:   pub,
		logger:   logger.With().Str("component", "chat").Logger(),
		now:      time.Now,
	}
}

// Stats summarizes the room.
type Stats struct {
	ActiveParticipants int    `json:"active_participants"`
	TotalMessages      int64  `json:"total_messages"`
	LastActivity       *int64 `json:"last_activity,omitempty"`
}

// Post appends a message from an active participant.
func (s *Service) Post(ctx context.Context, in validation.Message) (*models.Message, error) {
	if err := s.checkSender(ctx, &in); err != nil {
		return nil, err
	}

	msg := &models.Message{
		From: in.From,
		To:   in.To,
		Text: in.Text,
		Type: in.Type,
	}
	msg.Stamp(s.now())
	if err := s.log.Append(context.WithoutCancel(ctx), msg); err != nil {
		return nil, err
	}
	metrics.MessagesPosted.WithLabelValues(string(msg.Type)).Inc()

	s.logger.Debug().
		Str("message_id", msg.ID).
		Str("from", msg.From).
		Str("type", string(msg.Type)).
		Msg("message posted")
	s.publish(ctx, events.KindPosted, *msg)
	return msg, nil
}

// List returns the messages viewer may read, keeping the last limit when
// limit is non-negative.
func (s *Service) List(ctx context.Context, viewer string, limit int) ([]models.Message, error) {
	log, err := s.log.Messages(ctx)
	if err != nil {
		return nil, err
	}
	return Visible(validation.Sanitize(viewer), log, limit), nil
}

// Search returns the visible messages containing every word of query.
func (s *Service) Search(ctx context.Context, viewer, query string, limit int) ([]models.Message, error) {
	tokens := Tokenize(query)
	metrics.SearchQueries.Inc()
	if len(tokens) == 0 {
		return []models.Message{}, nil
	}

	log, err := s.log.Messages(ctx)
	if err != nil {
		return nil, err
	}
	visible := Visible(validation.Sanitize(viewer), log, NoLimit)
	found := make([]models.Message, 0)
	for _, m := range visible {
		if matches(m, tokens) {
			found = append(found, m)
		}
	}
	return tail(found, limit), nil
}

// Edit replaces recipient, text and type of a message owned by the sender
// of in.
func (s *Service) Edit(ctx context.Context, id string, in validation.Message) (*models.Message, error) {
	if err := s.checkSender(ctx, &in); err != nil {
		return nil, err
	}

	msg, err := s.log.Edit(context.WithoutCancel(ctx), id, in.From, models.MessageEdit{
		To:   in.To,
		Text: in.Text,
		Type: in.Type,
	})
	if err != nil {
		return nil, err
	}
	metrics.MessagesEdited.Inc()

	s.logger.Debug().Str("message_id", id).Str("from", in.From).Msg("message edited")
	s.publish(ctx, events.KindEdited, *msg)
	return msg, nil
}

// Delete removes a message owned by requester.
func (s *Service) Delete(ctx context.Context, id, requester string) error {
	requester = validation.Sanitize(requester)
	ctx = context.WithoutCancel(ctx)

	msg, err := s.log.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.log.Delete(ctx, id, requester); err != nil {
		return err
	}
	metrics.MessagesDeleted.Inc()

	s.logger.Debug().Str("message_id", id).Str("from", requester).Msg("message deleted")
	s.publish(ctx, events.KindDeleted, *msg)
	return nil
}

// Stats counts participants and messages.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	participants, err := s.registry.Participants(ctx)
	if err != nil {
		return nil, err
	}
	total, err := s.log.Count(ctx)
	if err != nil {
		return nil, err
	}
	log, err := s.log.Messages(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ActiveParticipants: len(participants),
		TotalMessages:      total,
	}
	if len(log) > 0 {
		last := log[len(log)-1].Timestamp
		stats.LastActivity = &last
	}
	return stats, nil
}

// checkSender normalizes in and makes sure its sender is active.
func (s *Service) checkSender(ctx context.Context, in *validation.Message) error {
	if err := in.Normalize(); err != nil {
		return err
	}
	_, err := s.registry.Participant(ctx, in.From)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: from must be an active participant", validation.ErrInvalidInput)
	}
	return err
}

func (s *Service) publish(ctx context.Context, kind events.Kind, msg models.Message) {
	if err := s.events.Publish(ctx, events.Event{Kind: kind, Message: msg}); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("event not published")
	}
}

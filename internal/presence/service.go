// Package presence owns the participant lifecycle: joining, heartbeat
// refresh, listing and the background sweep that evicts silent participants.
package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/eldtechnologies/batepapo/internal/events"
	"github.com/eldtechnologies/batepapo/internal/metrics"
	"github.com/eldtechnologies/batepapo/internal/models"
	"github.com/eldtechnologies/batepapo/internal/store"
	"github.com/eldtechnologies/batepapo/internal/validation"
)

// Service implements join, refresh and list over a Registry, announcing
// joins in the Log.
type Service struct {
	registry store.Registry
	log      store.Log
	events   events.Publisher
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a presence service. A nil pub discards events.
func NewService(registry store.Registry, log store.Log, pub events.Publisher, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		registry: registry,
		log:      log,
		events:   pub,
		logger:   logger.With().Str("component", "presence").Logger(),
		now:      time.Now,
	}
}

// Join registers a new participant and appends its "entra na sala..."
// status. It returns the sanitized name.
func (s *Service) Join(ctx context.Context, rawName string) (string, error) {
	name, err := validation.Name(rawName)
	if err != nil {
		return "", err
	}

	// the join and its status message complete even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	now := s.now()
	if err := s.registry.Join(ctx, name, now); err != nil {
		return "", err
	}
	metrics.ParticipantsJoined.Inc()

	status := models.NewStatus(name, models.StatusJoined)
	status.Stamp(now)
	if err := s.log.Append(ctx, status); err != nil {
		s.logger.Error().Err(err).Str("participant", name).Msg("join status not recorded")
		return name, err
	}
	metrics.MessagesPosted.WithLabelValues(string(models.TypeStatus)).Inc()

	s.logger.Info().Str("participant", name).Msg("participant joined")
	publish(ctx, s.events, s.logger, events.Event{Kind: events.KindJoined, Message: *status})
	return name, nil
}

// Refresh records a heartbeat for name. It fails with store.ErrNotFound if
// the participant is not active, e.g. after an eviction.
func (s *Service) Refresh(ctx context.Context, name string) error {
	name = validation.Sanitize(name)
	if name == "" {
		return store.ErrNotFound
	}
	return s.registry.Refresh(context.WithoutCancel(ctx), name, s.now())
}

// List returns the names of the active participants.
func (s *Service) List(ctx context.Context) ([]string, error) {
	participants, err := s.registry.Participants(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(participants, func(p models.Participant, _ int) string {
		return p.Name
	}), nil
}

func publish(ctx context.Context, pub events.Publisher, logger zerolog.Logger, ev events.Event) {
	if err := pub.Publish(ctx, ev); err != nil {
		logger.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("event not published")
	}
}

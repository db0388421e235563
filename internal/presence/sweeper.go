package presence

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/eldtechnologies/batepapo/internal/events"
	"github.com/eldtechnologies/batepapo/internal/metrics"
	"github.com/eldtechnologies/batepapo/internal/models"
	"github.com/eldtechnologies/batepapo/internal/store"
)

// Default timings of the sweep.
const (
	DefaultInterval  = 15 * time.Second
	DefaultThreshold = 10 * time.Second
)

// Sweeper periodically evicts participants whose last heartbeat is older
// than the threshold. Eviction happens on a pass, not at the instant a
// heartbeat expires, so the real latency is up to one interval past the
// threshold.
type Sweeper struct {
	registry  store.Registry
	log       store.Log
	events    events.Publisher
	logger    zerolog.Logger
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time
	lastPass  atomic.Int64 // unix ms of the last completed pass
}

// NewSweeper creates a sweeper. Non-positive durations fall back to the
// defaults and a nil pub discards events.
func NewSweeper(registry store.Registry, log store.Log, pub events.Publisher, logger zerolog.Logger, interval, threshold time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Sweeper{
		registry:  registry,
		log:       log,
		events:    pub,
		logger:    logger.With().Str("component", "sweeper").Logger(),
		interval:  interval,
		threshold: threshold,
		now:       time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("threshold", s.threshold).
		Msg("starting heartbeat sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("heartbeat sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass and returns the evicted names, sorted.
// Participants are evicted concurrently; a failure on one is logged and
// does not affect the others.
func (s *Sweeper) Sweep(ctx context.Context) []string {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	now := s.now()
	participants, err := s.registry.Participants(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep snapshot failed")
		return nil
	}

	cutoff := now.Add(-s.threshold)
	stale := lo.Filter(participants, func(p models.Participant, _ int) bool {
		return p.StaleAt(now, s.threshold)
	})

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		evicted = []string{}
	)
	for _, p := range stale {
		wg.Add(1)
		go func(p models.Participant) {
			defer wg.Done()
			if s.evict(ctx, p, cutoff) {
				mu.Lock()
				evicted = append(evicted, p.Name)
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	sort.Strings(evicted)
	s.lastPass.Store(now.UnixMilli())
	metrics.ParticipantsActive.Set(float64(len(participants) - len(evicted)))

	s.logger.Debug().
		Int("participants", len(participants)).
		Int("stale", len(stale)).
		Int("evicted", len(evicted)).
		Msg("sweep pass completed")

	return evicted
}

// Interval returns the time between passes.
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// LastPass returns when the last pass that read the registry completed,
// or the zero time if none has.
func (s *Sweeper) LastPass() time.Time {
	ms := s.lastPass.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// evict removes p if it is still stale and records its departure.
func (s *Sweeper) evict(ctx context.Context, p models.Participant, cutoff time.Time) bool {
	ctx = context.WithoutCancel(ctx)

	ok, err := s.registry.Evict(ctx, p.Name, cutoff)
	if err != nil {
		metrics.SweepFailures.Inc()
		s.logger.Warn().Err(err).Str("participant", p.Name).Msg("eviction failed")
		return false
	}
	if !ok {
		// refreshed or removed since the snapshot
		return false
	}
	metrics.ParticipantsEvicted.Inc()

	status := models.NewStatus(p.Name, models.StatusLeft)
	status.Stamp(s.now())
	if err := s.log.Append(ctx, status); err != nil {
		metrics.SweepFailures.Inc()
		s.logger.Error().Err(err).Str("participant", p.Name).Msg("leave status not recorded")
		return true
	}
	metrics.MessagesPosted.WithLabelValues(string(models.TypeStatus)).Inc()

	s.logger.Info().
		Str("participant", p.Name).
		Time("last_heartbeat", p.LastSeen()).
		Msg("participant evicted")
	publish(ctx, s.events, s.logger, events.Event{Kind: events.KindLeft, Message: *status})
	return true
}

package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/eldtechnologies/batepapo/internal/events"
	"github.com/eldtechnologies/batepapo/internal/models"
	"github.com/eldtechnologies/batepapo/internal/store"
	"github.com/eldtechnologies/batepapo/internal/store/mocks"
	"github.com/eldtechnologies/batepapo/internal/validation"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) *store.BadgerStore {
	t.Helper()
	s, err := store.NewBadgerStore(store.InMemoryPath, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestPresence(t *testing.T) (*Service, *Sweeper, *store.BadgerStore, *clock) {
	t.Helper()
	st := newTestStore(t)
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}

	svc := NewService(st, st, nil, zerolog.Nop())
	svc.now = clk.Now
	sw := NewSweeper(st, st, nil, zerolog.Nop(), DefaultInterval, DefaultThreshold)
	sw.now = clk.Now
	return svc, sw, st, clk
}

func statusMessages(t *testing.T, st store.Log, name string) []models.Message {
	t.Helper()
	msgs, err := st.Messages(context.Background())
	require.NoError(t, err)
	var out []models.Message
	for _, m := range msgs {
		if m.Type == models.TypeStatus && m.From == name {
			out = append(out, m)
		}
	}
	return out
}

func TestJoin(t *testing.T) {
	req := require.New(t)
	svc, _, st, _ := newTestPresence(t)
	ctx := context.Background()

	name, err := svc.Join(ctx, "  <b>ana</b> ")
	req.NoError(err)
	req.Equal("ana", name)

	names, err := svc.List(ctx)
	req.NoError(err)
	req.Equal([]string{"ana"}, names)

	statuses := statusMessages(t, st, "ana")
	req.Len(statuses, 1)
	req.Equal(models.StatusJoined, statuses[0].Text)
	req.Equal(models.BroadcastTarget, statuses[0].To)
	req.Equal("12:00:00", statuses[0].Time)

	_, err = svc.Join(ctx, "ana")
	req.ErrorIs(err, store.ErrAlreadyExists)
	req.Len(statusMessages(t, st, "ana"), 1)
}

func TestJoinRejectsInvalidNames(t *testing.T) {
	svc, _, _, _ := newTestPresence(t)

	for _, raw := range []string{"", "  ", "ab", "<i></i>", "abcdefghijklmnopqrstu"} {
		_, err := svc.Join(context.Background(), raw)
		require.ErrorIs(t, err, validation.ErrInvalidInput, "name %q", raw)
	}
}

func TestConcurrentJoinsAdmitOne(t *testing.T) {
	req := require.New(t)
	svc, _, st, _ := newTestPresence(t)
	ctx := context.Background()

	const callers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Join(ctx, "bia")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, store.ErrAlreadyExists):
				conflicts++
			}
		}()
	}
	wg.Wait()

	req.Equal(1, succeeded)
	req.Equal(callers-1, conflicts)
	req.Len(statusMessages(t, st, "bia"), 1)
}

func TestRefresh(t *testing.T) {
	req := require.New(t)
	svc, _, st, clk := newTestPresence(t)
	ctx := context.Background()

	req.ErrorIs(svc.Refresh(ctx, "ana"), store.ErrNotFound)
	req.ErrorIs(svc.Refresh(ctx, ""), store.ErrNotFound)

	_, err := svc.Join(ctx, "ana")
	req.NoError(err)

	clk.Advance(3 * time.Second)
	req.NoError(svc.Refresh(ctx, "ana"))
	req.NoError(svc.Refresh(ctx, "ana"))

	p, err := st.Participant(ctx, "ana")
	req.NoError(err)
	req.Equal(clk.Now().UnixMilli(), p.LastHeartbeat)

	// refresh never appends to the log
	req.Len(statusMessages(t, st, "ana"), 1)
}

func TestSweepEvictsStaleParticipants(t *testing.T) {
	req := require.New(t)
	svc, sw, st, clk := newTestPresence(t)
	ctx := context.Background()

	_, err := svc.Join(ctx, "ana")
	req.NoError(err)
	_, err = svc.Join(ctx, "bia")
	req.NoError(err)

	clk.Advance(5 * time.Second)
	req.Empty(sw.Sweep(ctx))

	// exactly at the threshold is not stale yet
	clk.Advance(5 * time.Second)
	req.NoError(svc.Refresh(ctx, "bia"))
	req.Empty(sw.Sweep(ctx))

	clk.Advance(time.Millisecond)
	req.Equal([]string{"ana"}, sw.Sweep(ctx))
	req.True(clk.Now().Equal(sw.LastPass()))

	names, err := svc.List(ctx)
	req.NoError(err)
	req.Equal([]string{"bia"}, names)

	statuses := statusMessages(t, st, "ana")
	req.Len(statuses, 2)
	req.Equal(models.StatusJoined, statuses[0].Text)
	req.Equal(models.StatusLeft, statuses[1].Text)

	// an evicted participant can no longer refresh but may join again
	req.ErrorIs(svc.Refresh(ctx, "ana"), store.ErrNotFound)
	_, err = svc.Join(ctx, "ana")
	req.NoError(err)
	req.Len(statusMessages(t, st, "ana"), 3)
}

func TestSweepWithinOneIntervalOfSilence(t *testing.T) {
	req := require.New(t)
	svc, sw, _, clk := newTestPresence(t)
	ctx := context.Background()

	_, err := svc.Join(ctx, "ana")
	req.NoError(err)

	clk.Advance(DefaultInterval)
	req.Equal([]string{"ana"}, sw.Sweep(ctx))
}

func TestSweepSkipsRefreshedParticipant(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockRegistry(ctrl)
	log := mocks.NewMockLog(ctrl)

	now := time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC)
	sw := NewSweeper(registry, log, nil, zerolog.Nop(), DefaultInterval, DefaultThreshold)
	sw.now = func() time.Time { return now }

	stale := now.Add(-20 * time.Second).UnixMilli()
	registry.EXPECT().Participants(gomock.Any()).Return([]models.Participant{
		{Name: "ana", LastHeartbeat: stale},
	}, nil)
	// the heartbeat moved between the snapshot and the eviction
	registry.EXPECT().Evict(gomock.Any(), "ana", now.Add(-DefaultThreshold)).Return(false, nil)

	req.Empty(sw.Sweep(context.Background()))
}

func TestSweepIsolatesFailures(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockRegistry(ctrl)
	log := mocks.NewMockLog(ctrl)

	now := time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC)
	sw := NewSweeper(registry, log, nil, zerolog.Nop(), DefaultInterval, DefaultThreshold)
	sw.now = func() time.Time { return now }

	stale := now.Add(-time.Minute).UnixMilli()
	registry.EXPECT().Participants(gomock.Any()).Return([]models.Participant{
		{Name: "ana", LastHeartbeat: stale},
		{Name: "bia", LastHeartbeat: stale},
		{Name: "caio", LastHeartbeat: now.UnixMilli()},
	}, nil)
	registry.EXPECT().Evict(gomock.Any(), "ana", gomock.Any()).Return(false, store.ErrUnavailable)
	registry.EXPECT().Evict(gomock.Any(), "bia", gomock.Any()).Return(true, nil)

	var left *models.Message
	log.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m *models.Message) error {
		left = m
		return nil
	})

	req.Equal([]string{"bia"}, sw.Sweep(context.Background()))
	req.NotNil(left)
	req.Equal("bia", left.From)
	req.Equal(models.StatusLeft, left.Text)
	req.Equal(models.TypeStatus, left.Type)
}

func TestSweepSnapshotFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockRegistry(ctrl)
	log := mocks.NewMockLog(ctrl)

	sw := NewSweeper(registry, log, nil, zerolog.Nop(), 0, 0)
	registry.EXPECT().Participants(gomock.Any()).Return(nil, store.ErrUnavailable)

	require.Nil(t, sw.Sweep(context.Background()))
	require.True(t, sw.LastPass().IsZero())
	require.Equal(t, events.Nop{}, sw.events)
	require.Equal(t, DefaultInterval, sw.Interval())
	require.Equal(t, DefaultThreshold, sw.threshold)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockRegistry(ctrl)
	log := mocks.NewMockLog(ctrl)
	registry.EXPECT().Participants(gomock.Any()).Return(nil, nil).AnyTimes()

	sw := NewSweeper(registry, log, nil, zerolog.Nop(), 5*time.Millisecond, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, sw.Run(ctx), context.DeadlineExceeded)
}

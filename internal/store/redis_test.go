package store

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(t.Context(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStore(t *testing.T) {
	runStoreSuite(t, newTestRedisStore)
}

func TestRedisStoreUnavailable(t *testing.T) {
	req := require.New(t)
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(t.Context(), "redis://"+mr.Addr())
	req.NoError(err)
	defer s.Close()

	mr.Close()
	req.ErrorIs(s.Ping(t.Context()), ErrUnavailable)
	req.ErrorIs(s.Join(t.Context(), "ana", timeAt(0)), ErrUnavailable)
	_, err = s.Messages(t.Context())
	req.ErrorIs(err, ErrUnavailable)
}

func TestNewRedisStoreBadURL(t *testing.T) {
	_, err := NewRedisStore(t.Context(), "not a url")
	require.Error(t, err)
}

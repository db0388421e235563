package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/batepapo/internal/chat"
	"github.com/eldtechnologies/batepapo/internal/events"
	"github.com/eldtechnologies/batepapo/internal/handlers"
	"github.com/eldtechnologies/batepapo/internal/models"
	"github.com/eldtechnologies/batepapo/internal/presence"
	"github.com/eldtechnologies/batepapo/internal/store"
	"github.com/eldtechnologies/batepapo/internal/stream"
)

type testServer struct {
	*httptest.Server
	store   store.Store
	sweeper *presence.Sweeper
}

func newTestServer(t *testing.T, st store.Store, limiter *redis.Client) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	if st == nil {
		bs, err := store.NewBadgerStore(store.InMemoryPath, logger)
		require.NoError(t, err)
		st = bs
	}
	t.Cleanup(func() { _ = st.Close() })

	hub := stream.NewHub(logger)
	pub := events.Multi{hub}
	sweeper := presence.NewSweeper(st, st, pub, logger, time.Hour, 50*time.Millisecond)
	h := handlers.NewHandler(
		presence.NewService(st, st, pub, logger),
		chat.NewService(st, st, pub, logger),
		st,
		logger,
	).WithSweeper(sweeper)
	router := NewRouter(logger, Options{
		Handler:   h,
		Stream:    stream.NewServer(hub, logger, 0),
		RateLimit: limiter,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{
		Server:  srv,
		store:   st,
		sweeper: sweeper,
	}
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) *http.Response {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("User", user)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAnaScenario(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, nil, nil)

	resp := srv.do(t, http.MethodPost, "/participants", "", map[string]string{"name": "ana"})
	req.Equal(http.StatusCreated, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, "/participants", "", map[string]string{"name": "ana"})
	req.Equal(http.StatusConflict, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/participants", "", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal([]map[string]string{{"name": "ana"}}, decodeBody[[]map[string]string](t, resp))

	time.Sleep(80 * time.Millisecond)
	req.Equal([]string{"ana"}, srv.sweeper.Sweep(context.Background()))

	resp = srv.do(t, http.MethodGet, "/participants", "", nil)
	req.Empty(decodeBody[[]map[string]string](t, resp))

	resp = srv.do(t, http.MethodGet, "/messages", "bia", nil)
	msgs := decodeBody[[]models.Message](t, resp)
	req.Len(msgs, 2)
	req.Equal(models.StatusJoined, msgs[0].Text)
	req.Equal("ana", msgs[1].From)
	req.Equal(models.StatusLeft, msgs[1].Text)
	req.Equal(models.BroadcastTarget, msgs[1].To)
	req.Equal(models.TypeStatus, msgs[1].Type)

	resp = srv.do(t, http.MethodPost, "/status", "ana", nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestParticipantValidation(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	for _, body := range []any{
		map[string]string{"name": "ab"},
		map[string]string{"name": "<p></p>"},
		map[string]int{"name": 3},
		map[string]string{},
	} {
		resp := srv.do(t, http.MethodPost, "/participants", "", body)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "body %v", body)
	}
}

func TestMessageLifecycle(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, nil, nil)

	for _, name := range []string{"ana", "bia", "caio"} {
		req.Equal(http.StatusCreated, srv.do(t, http.MethodPost, "/participants", "", map[string]string{"name": name}).StatusCode)
	}

	resp := srv.do(t, http.MethodPost, "/messages", "ana", map[string]string{"to": "bia", "text": "segredo", "type": "private_message"})
	req.Equal(http.StatusCreated, resp.StatusCode)
	private := decodeBody[models.Message](t, resp)

	resp = srv.do(t, http.MethodPost, "/messages", "caio", map[string]string{"to": "Todos", "text": "oi gente", "type": "message"})
	req.Equal(http.StatusCreated, resp.StatusCode)

	// inactive sender, bad type, missing header
	req.Equal(http.StatusUnprocessableEntity, srv.do(t, http.MethodPost, "/messages", "zeca", map[string]string{"to": "Todos", "text": "x", "type": "message"}).StatusCode)
	req.Equal(http.StatusUnprocessableEntity, srv.do(t, http.MethodPost, "/messages", "ana", map[string]string{"to": "Todos", "text": "x", "type": "status"}).StatusCode)
	req.Equal(http.StatusUnprocessableEntity, srv.do(t, http.MethodPost, "/messages", "", map[string]string{"to": "Todos", "text": "x", "type": "message"}).StatusCode)

	resp = srv.do(t, http.MethodGet, "/messages?limit=1", "bia", nil)
	last := decodeBody[[]models.Message](t, resp)
	req.Len(last, 1)
	req.Equal("oi gente", last[0].Text)

	resp = srv.do(t, http.MethodGet, "/messages?limit=abc", "caio", nil)
	for _, m := range decodeBody[[]models.Message](t, resp) {
		req.NotEqual(private.ID, m.ID)
	}

	resp = srv.do(t, http.MethodGet, "/messages?limit=0", "bia", nil)
	req.Empty(decodeBody[[]models.Message](t, resp))

	resp = srv.do(t, http.MethodGet, "/messages/search?q=segredo", "bia", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(1, decodeBody[handlers.SearchResponse](t, resp).Total)
	req.Equal(http.StatusBadRequest, srv.do(t, http.MethodGet, "/messages/search", "bia", nil).StatusCode)

	path := "/messages/" + private.ID
	req.Equal(http.StatusUnauthorized, srv.do(t, http.MethodPut, path, "bia", map[string]string{"to": "Todos", "text": "x", "type": "message"}).StatusCode)
	req.Equal(http.StatusUnauthorized, srv.do(t, http.MethodDelete, path, "bia", nil).StatusCode)
	req.Equal(http.StatusUnprocessableEntity, srv.do(t, http.MethodPut, path, "ana", map[string]string{"to": "Todos", "text": "", "type": "message"}).StatusCode)

	resp = srv.do(t, http.MethodPut, path, "ana", map[string]string{"to": "Todos", "text": "agora publico", "type": "message"})
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("agora publico", decodeBody[models.Message](t, resp).Text)

	req.Equal(http.StatusOK, srv.do(t, http.MethodDelete, path, "ana", nil).StatusCode)
	req.Equal(http.StatusNotFound, srv.do(t, http.MethodDelete, path, "ana", nil).StatusCode)
	req.Equal(http.StatusNotFound, srv.do(t, http.MethodPut, path, "ana", map[string]string{"to": "Todos", "text": "x", "type": "message"}).StatusCode)
}

func TestStatusHeartbeat(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, nil, nil)

	req.Equal(http.StatusNotFound, srv.do(t, http.MethodPost, "/status", "ana", nil).StatusCode)
	req.Equal(http.StatusNotFound, srv.do(t, http.MethodPost, "/status", "", nil).StatusCode)

	req.Equal(http.StatusCreated, srv.do(t, http.MethodPost, "/participants", "", map[string]string{"name": "ana"}).StatusCode)
	for i := 0; i < 3; i++ {
		req.Equal(http.StatusOK, srv.do(t, http.MethodPost, "/status", "ana", nil).StatusCode)
	}

	resp := srv.do(t, http.MethodGet, "/participants", "", nil)
	req.Len(decodeBody[[]map[string]string](t, resp), 1)
	resp = srv.do(t, http.MethodGet, "/messages", "ana", nil)
	req.Len(decodeBody[[]models.Message](t, resp), 1)
}

func TestStoreFailureIs503(t *testing.T) {
	req := require.New(t)
	st, err := store.NewBadgerStore(store.InMemoryPath, zerolog.Nop())
	req.NoError(err)
	srv := newTestServer(t, st, nil)
	req.NoError(st.Close())

	resp := srv.do(t, http.MethodPost, "/participants", "", map[string]string{"name": "ana"})
	req.Equal(http.StatusServiceUnavailable, resp.StatusCode)
	req.Contains(decodeBody[map[string]string](t, resp), "error")

	req.Equal(http.StatusServiceUnavailable, srv.do(t, http.MethodGet, "/health", "", nil).StatusCode)
}

func TestInfoEndpoints(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, nil, nil)

	resp := srv.do(t, http.MethodGet, "/health", "", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	health := decodeBody[handlers.HealthResponse](t, resp)
	req.Equal("healthy", health.Status)
	req.Equal("pass", health.Checks["store"].Status)
	req.Equal("no pass yet", health.Checks["sweeper"].Message)

	srv.sweeper.Sweep(context.Background())
	resp = srv.do(t, http.MethodGet, "/health", "", nil)
	req.Equal("pass", decodeBody[handlers.HealthResponse](t, resp).Checks["sweeper"].Status)

	resp = srv.do(t, http.MethodGet, "/api", "", nil)
	req.Equal("batepapo", decodeBody[handlers.RootResponse](t, resp).Name)

	req.Equal(http.StatusCreated, srv.do(t, http.MethodPost, "/participants", "", map[string]string{"name": "ana"}).StatusCode)
	resp = srv.do(t, http.MethodGet, "/stats", "", nil)
	stats := decodeBody[handlers.StatsResponse](t, resp)
	req.Equal(1, stats.ActiveParticipants)
	req.EqualValues(1, stats.TotalMessages)
	req.Equal("just now", stats.LastActivity)

	resp = srv.do(t, http.MethodGet, "/metrics", "", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
}

func TestRateLimitedRouter(t *testing.T) {
	req := require.New(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	srv := newTestServer(t, nil, client)

	var last *http.Response
	for i := 0; i < 11; i++ {
		last = srv.do(t, http.MethodPost, "/participants", "", map[string]string{"name": "user" + strings.Repeat("x", i)})
	}
	req.Equal(http.StatusTooManyRequests, last.StatusCode)
	req.Equal("0", last.Header.Get("X-RateLimit-Remaining"))
}

package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/batepapo/internal/events"
	"github.com/eldtechnologies/batepapo/internal/models"
)

func event(kind events.Kind, from, to string, typ models.MessageType) events.Event {
	return events.Event{Kind: kind, Message: models.Message{ID: "01HX", From: from, To: to, Type: typ, Text: "oi"}}
}

func pending(c *Client) int {
	return len(c.send)
}

func TestHubFiltersByViewer(t *testing.T) {
	req := require.New(t)
	hub := NewHub(zerolog.Nop())

	ana, bia, caio := NewClient("ana"), NewClient("bia"), NewClient("caio")
	hub.Add(ana)
	hub.Add(bia)
	hub.Add(caio)
	req.Equal(3, hub.Len())

	req.NoError(hub.Publish(context.Background(), event(events.KindPosted, "ana", "bia", models.TypePrivateMessage)))
	req.Equal(1, pending(ana))
	req.Equal(1, pending(bia))
	req.Equal(0, pending(caio))

	req.NoError(hub.Publish(context.Background(), event(events.KindPosted, "caio", models.BroadcastTarget, models.TypeMessage)))
	req.Equal(1, pending(caio))

	// deletions reach everyone
	req.NoError(hub.Publish(context.Background(), event(events.KindDeleted, "ana", "bia", models.TypePrivateMessage)))
	req.Equal(2, pending(caio))

	var ev events.Event
	req.NoError(json.Unmarshal(<-ana.Send(), &ev))
	req.Equal(events.KindPosted, ev.Kind)
	req.Equal("bia", ev.Message.To)
}

func TestHubDropsSlowClient(t *testing.T) {
	req := require.New(t)
	hub := NewHub(zerolog.Nop())
	c := NewClient("ana")
	hub.Add(c)

	ev := event(events.KindPosted, "bia", models.BroadcastTarget, models.TypeMessage)
	for i := 0; i < sendBuffer+1; i++ {
		req.NoError(hub.Publish(context.Background(), ev))
	}
	req.Zero(hub.Len())

	drained := 0
	for range c.Send() {
		drained++
	}
	req.Equal(sendBuffer, drained)

	// removing an already dropped client is a no-op
	hub.Remove(c)
}

func TestServerStreamsVisibleEvents(t *testing.T) {
	req := require.New(t)
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(NewServer(hub, zerolog.Nop(), time.Second))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=bia"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	req.NoError(err)
	defer conn.Close()

	req.Eventually(func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	req.NoError(hub.Publish(context.Background(), event(events.KindPosted, "ana", "caio", models.TypePrivateMessage)))
	req.NoError(hub.Publish(context.Background(), event(events.KindPosted, "ana", "bia", models.TypePrivateMessage)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	req.NoError(conn.ReadJSON(&ev))
	req.Equal("bia", ev.Message.To)

	conn.Close()
	req.Eventually(func() bool { return hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestServerRequiresViewer(t *testing.T) {
	srv := httptest.NewServer(NewServer(NewHub(zerolog.Nop()), zerolog.Nop(), 0))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 422, resp.StatusCode)
}

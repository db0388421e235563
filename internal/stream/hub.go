// Package stream pushes log changes to websocket subscribers.
package stream

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/batepapo/internal/events"
	"github.com/eldtechnologies/batepapo/internal/metrics"
)

// sendBuffer is the number of events queued per client before it is
// considered too slow and dropped.
const sendBuffer = 32

// Client is a single subscriber reading the log as viewer.
type Client struct {
	ID     string
	Viewer string
	send   chan []byte
}

// NewClient creates a subscriber for viewer.
func NewClient(viewer string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		Viewer: viewer,
		send:   make(chan []byte, sendBuffer),
	}
}

// Send returns the channel of encoded events. It is closed when the hub
// drops the client.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Hub tracks subscribers and fans events out to the ones allowed to see them.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	logger  zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "stream").Logger(),
	}
}

// Add registers c.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	metrics.StreamClients.Set(float64(len(h.clients)))
}

// Remove unregisters c and closes its send channel. It is safe to call
// more than once.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.drop(c)
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.StreamClients.Set(float64(len(h.clients)))
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish delivers ev to every client whose viewer may read the message.
// Deletions go to everyone so stale copies can be removed. A client whose
// buffer is full is dropped instead of blocking the publisher.
func (h *Hub) Publish(_ context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if ev.Kind != events.KindDeleted && !ev.Message.VisibleTo(c.Viewer) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn().Str("client_id", c.ID).Str("viewer", c.Viewer).Msg("dropping slow stream client")
			h.drop(c)
		}
	}
	return nil
}

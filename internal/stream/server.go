package stream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/batepapo/internal/validation"
)

// DefaultPingEvery is the websocket keepalive period.
const DefaultPingEvery = 15 * time.Second

const writeWait = 5 * time.Second

// Server upgrades HTTP requests to websocket subscriptions on a Hub.
type Server struct {
	upgrader  websocket.Upgrader
	hub       *Hub
	logger    zerolog.Logger
	pingEvery time.Duration
}

// NewServer creates a websocket endpoint backed by hub.
func NewServer(hub *Hub, logger zerolog.Logger, pingEvery time.Duration) *Server {
	if pingEvery <= 0 {
		pingEvery = DefaultPingEvery
	}
	return &Server{
		hub:    hub,
		logger: logger.With().Str("component", "stream").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: pingEvery,
	}
}

// ServeHTTP handles GET /messages/stream?user=name.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	viewer := validation.Sanitize(r.URL.Query().Get("user"))
	if viewer == "" {
		viewer = validation.Sanitize(r.Header.Get("User"))
	}
	if viewer == "" {
		http.Error(w, "missing user", http.StatusUnprocessableEntity)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := NewClient(viewer)
	s.hub.Add(c)
	s.logger.Debug().Str("client_id", c.ID).Str("viewer", viewer).Msg("stream client connected")

	go s.writeLoop(conn, c)
	s.readLoop(conn)

	s.hub.Remove(c)
	s.logger.Debug().Str("client_id", c.ID).Msg("stream client disconnected")
}

// readLoop discards client frames and returns once the peer goes away or
// stops answering pings.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(s.pingEvery)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Package events maintains the single process-wide live connection to the
// backend. Components subscribe to named events; the handler table belongs
// to the Stream, not to any one screen, so the connection survives
// conversation switches and handlers survive reconnects.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"linkup/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024

	defaultInitialBackoff = time.Second
	maxBackoff            = 30 * time.Second
)

// Handler receives the raw payload of a subscribed event. Handlers run on
// the read-pump goroutine and must not block.
type Handler func(data json.RawMessage)

type Stream struct {
	url            string
	initialBackoff time.Duration
	log            zerolog.Logger

	mu       sync.Mutex
	handlers map[string]map[int]Handler
	nextID   int
	conn     *websocket.Conn
	closed   bool
	done     chan struct{}
}

type Option func(*Stream)

// WithInitialBackoff overrides the first reconnect delay.
func WithInitialBackoff(d time.Duration) Option {
	return func(s *Stream) { s.initialBackoff = d }
}

// NewStream prepares a stream for the given websocket URL. The token is
// passed as a query parameter, matching the backend's handshake.
func NewStream(wsURL, token string, opts ...Option) *Stream {
	s := &Stream{
		url:            wsURL + "?token=" + token,
		initialBackoff: defaultInitialBackoff,
		handlers:       make(map[string]map[int]Handler),
		done:           make(chan struct{}),
		log:            log.With().Str("component", "events").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a handler for an event name and returns an id for
// Unsubscribe. Subscribing is independent of connection state.
func (s *Stream) Subscribe(event string, h Handler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if s.handlers[event] == nil {
		s.handlers[event] = make(map[int]Handler)
	}
	s.handlers[event][s.nextID] = h
	return s.nextID
}

func (s *Stream) Unsubscribe(event string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hs := s.handlers[event]; hs != nil {
		delete(hs, id)
		if len(hs) == 0 {
			delete(s.handlers, event)
		}
	}
}

// Start dials the backend and keeps the connection alive until Close or
// context cancellation, redialing with exponential backoff after an
// abnormal close. The initial dial is synchronous so callers learn about
// an unreachable backend immediately.
func (s *Stream) Start(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	if !s.adopt(conn) {
		conn.Close()
		return nil
	}
	go s.run(ctx, conn)
	return nil
}

func (s *Stream) run(ctx context.Context, conn *websocket.Conn) {
	backoff := s.initialBackoff
	for {
		if conn != nil {
			stopPing := make(chan struct{})
			go s.pingLoop(conn, stopPing)
			s.readPump(conn)
			close(stopPing)
			conn.Close()
			backoff = s.initialBackoff
		}

		if s.isClosed() || ctx.Err() != nil {
			return
		}

		s.log.Warn().Dur("backoff", backoff).Msg("live connection lost, reconnecting")
		select {
		case <-time.After(backoff):
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}

		next, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			conn = nil
			continue
		}
		// Close may have run while the dial was in flight; the new
		// connection must not outlive it.
		if !s.adopt(next) {
			next.Close()
			return
		}
		conn = next
	}
}

func (s *Stream) readPump(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !s.isClosed() {
				s.log.Debug().Err(err).Msg("read pump closed")
			}
			return
		}
		s.dispatch(data)
	}
}

func (s *Stream) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stop:
			return
		case <-s.done:
			return
		}
	}
}

func (s *Stream) dispatch(data []byte) {
	var evt models.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		s.log.Debug().Err(err).Msg("dropping malformed event frame")
		return
	}

	s.mu.Lock()
	hs := make([]Handler, 0, len(s.handlers[evt.Event]))
	for _, h := range s.handlers[evt.Event] {
		hs = append(hs, h)
	}
	s.mu.Unlock()

	for _, h := range hs {
		h(evt.Data)
	}
}

// adopt installs the connection as the stream's current one, or reports
// false when the stream was closed in the meantime.
func (s *Stream) adopt(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	return true
}

func (s *Stream) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close tears down the connection and stops reconnecting.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	close(s.done)
	if conn != nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}

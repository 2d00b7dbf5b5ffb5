// Package session implements the SessionHub: long-lived duplex websocket
// sessions with per-channel subscriptions, filters, and heartbeat
// liveness, built around the teacher's client/manager/handler split.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Filters is the closed set of recognised per-channel filter keys.
type Filters struct {
	Symbols []string `json:"symbols,omitempty"` // when non-empty, restrict messages to these symbols
}

func (f Filters) matches(symbol string) bool {
	if len(f.Symbols) == 0 {
		return true
	}
	for _, s := range f.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// Session represents one connected client: a duplex transport plus its
// channel subscriptions, filters, and heartbeat state.
type Session struct {
	ID   string
	Conn *websocket.Conn

	mu            sync.RWMutex
	subscriptions map[string]Filters // channel -> filters
	lastHeartbeat time.Time
	connectedAt   time.Time

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	Dropped uint64
}

// NewSession wraps a websocket connection as a tracked session.
func NewSession(conn *websocket.Conn, bufferSize int) *Session {
	now := time.Now()
	return &Session{
		ID:            uuid.NewString(),
		Conn:          conn,
		subscriptions: make(map[string]Filters),
		lastHeartbeat: now,
		connectedAt:   now,
		sendCh:        make(chan []byte, bufferSize),
		done:          make(chan struct{}),
	}
}

// Touch records a heartbeat.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = time.Now()
}

// Stale reports whether the session has missed heartbeats for longer than
// timeout.
func (s *Session) Stale(timeout time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastHeartbeat) > timeout
}

// Subscribe adds or replaces the filters for a channel. Idempotent:
// subscribing twice to the same channel just updates the filters.
func (s *Session) Subscribe(channel string, f Filters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[channel] = f
}

// Unsubscribe removes a channel subscription.
func (s *Session) Unsubscribe(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, channel)
}

// Channels returns the currently subscribed channel names.
func (s *Session) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.subscriptions))
	for ch := range s.subscriptions {
		out = append(out, ch)
	}
	return out
}

// FiltersFor returns the filters registered for a channel, and whether
// the session is subscribed to it at all.
func (s *Session) FiltersFor(channel string) (Filters, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.subscriptions[channel]
	return f, ok
}

// Allows reports whether a per-instrument message for the given symbol
// should reach this session on the given channel.
func (s *Session) Allows(channel, symbol string) bool {
	f, ok := s.FiltersFor(channel)
	if !ok {
		return false
	}
	return f.matches(symbol)
}

// Send enqueues a frame for delivery. Returns false if the outbound queue
// is full, in which case the message is dropped for this session only.
func (s *Session) Send(data []byte) bool {
	select {
	case s.sendCh <- data:
		return true
	default:
		s.mu.Lock()
		s.Dropped++
		s.mu.Unlock()
		return false
	}
}

// SendCh exposes the outbound queue for the write pump.
func (s *Session) SendCh() <-chan []byte { return s.sendCh }

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close tears down the session exactly once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.Conn.Close()
	})
}

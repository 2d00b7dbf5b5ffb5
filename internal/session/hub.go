package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ndrandal/marketsim/internal/bus"
)

// Hub is the SessionHub: it accepts sessions, tracks their channel
// subscriptions, and fans bus messages out to them with per-channel
// filtering.
type Hub struct {
	bridge     *bus.Bridge
	bufferSize int
	heartbeat  time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	chMu        sync.Mutex
	chSubs      map[string]map[string]struct{} // channel -> set of session IDs
	chUnsub     map[string]func()              // channel -> bridge unsubscribe func
}

// NewHub creates a session hub wired to a pub/sub bridge.
func NewHub(bridge *bus.Bridge, bufferSize int, heartbeat time.Duration) *Hub {
	return &Hub{
		bridge:     bridge,
		bufferSize: bufferSize,
		heartbeat:  heartbeat,
		sessions:   make(map[string]*Session),
		chSubs:     make(map[string]map[string]struct{}),
		chUnsub:    make(map[string]func()),
	}
}

// Accept registers an already-upgraded websocket connection as a new
// session and queues its "connected" frame.
func (h *Hub) Accept(conn *websocket.Conn) *Session {
	s := NewSession(conn, h.bufferSize)

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	log.Printf("session %s connected (%s)", s.ID, conn.RemoteAddr())
	s.Send(mustJSON(map[string]any{
		"type":        "connected",
		"client_id":   s.ID,
		"server_time": time.Now().UTC(),
	}))
	return s
}

// Disconnect tears down a session and drops every channel subscription
// it held.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()

	for _, ch := range s.Channels() {
		h.Unsubscribe(s, ch)
	}
	s.Close()
	log.Printf("session %s disconnected", s.ID)
}

// Subscribe adds a session to a channel, installing the upstream bus
// handler on first local subscriber.
func (h *Hub) Subscribe(ctx context.Context, s *Session, channel string, f Filters) error {
	s.Subscribe(channel, f)

	h.chMu.Lock()
	defer h.chMu.Unlock()

	set, ok := h.chSubs[channel]
	if !ok {
		set = make(map[string]struct{})
		h.chSubs[channel] = set
	}
	set[s.ID] = struct{}{}

	if _, already := h.chUnsub[channel]; already {
		return nil
	}

	unsub, err := h.bridge.Subscribe(ctx, channel, func(ch string, payload []byte) {
		h.broadcast(ch, payload)
	})
	if err != nil {
		return err
	}
	h.chUnsub[channel] = unsub
	return nil
}

// Unsubscribe removes a session from a channel, releasing the upstream
// bus subscription once the last local subscriber leaves.
func (h *Hub) Unsubscribe(s *Session, channel string) {
	s.Unsubscribe(channel)

	h.chMu.Lock()
	defer h.chMu.Unlock()

	set, ok := h.chSubs[channel]
	if !ok {
		return
	}
	delete(set, s.ID)
	if len(set) == 0 {
		delete(h.chSubs, channel)
		if unsub, ok := h.chUnsub[channel]; ok {
			unsub()
			delete(h.chUnsub, channel)
		}
	}
}

// broadcast applies per-session filtering and enqueues the message to
// every subscriber of a channel. A session whose outbound queue is full
// drops the message and is disconnected once the fan-out is done.
func (h *Hub) broadcast(channel string, payload []byte) {
	h.chMu.Lock()
	set := h.chSubs[channel]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	h.chMu.Unlock()

	var failed []*Session
	h.mu.RLock()
	for _, id := range ids {
		s, ok := h.sessions[id]
		if !ok {
			continue
		}
		f, _ := s.FiltersFor(channel)
		out := applyFilter(payload, f)
		if out == nil {
			continue
		}
		if !s.Send(out) {
			failed = append(failed, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range failed {
		log.Printf("session %s outbound queue full, disconnecting", s.ID)
		h.Disconnect(s)
	}
}

// applyFilter rewrites a bus payload for a single session's filters. If
// the message is a per-instrument update for a symbol the filter
// excludes, it is dropped entirely. If it is an aggregate update, its
// stocks array is narrowed down to symbols the filter allows.
func applyFilter(payload []byte, f Filters) []byte {
	if len(f.Symbols) == 0 {
		return payload
	}

	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return payload
	}

	switch envelope.Type {
	case "stock_update":
		var data struct {
			Symbol string `json:"symbol"`
		}
		if err := json.Unmarshal(envelope.Data, &data); err == nil && !f.matches(data.Symbol) {
			return nil
		}
		return payload

	case "market_update":
		var data map[string]any
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return payload
		}
		stocksRaw, ok := data["stocks"].([]any)
		if !ok {
			return payload
		}
		filtered := make([]any, 0, len(stocksRaw))
		for _, item := range stocksRaw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			sym, _ := m["symbol"].(string)
			if f.matches(sym) {
				filtered = append(filtered, item)
			}
		}
		data["stocks"] = filtered
		rewritten := map[string]any{"type": envelope.Type, "data": data}
		out, err := json.Marshal(rewritten)
		if err != nil {
			return payload
		}
		return out

	default:
		return payload
	}
}

// RunReaper closes any session that has not sent a heartbeat within
// 2*heartbeat, until ctx is cancelled.
func (h *Hub) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	timeout := 2 * h.heartbeat
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.RLock()
			var stale []*Session
			for _, s := range h.sessions {
				if s.Stale(timeout) {
					stale = append(stale, s)
				}
			}
			h.mu.RUnlock()

			for _, s := range stale {
				log.Printf("session %s heartbeat timeout, disconnecting", s.ID)
				h.Disconnect(s)
			}
		}
	}
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"type":"error","message":"internal encode failure"}`)
	}
	return data
}

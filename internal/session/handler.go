package session

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is the closed set of client -> server frame shapes.
type clientMessage struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel,omitempty"`
	Filters Filters  `json:"filters,omitempty"`
	Symbols []string `json:"symbols,omitempty"` // used when filters carries no symbols
}

// Handler creates the HTTP handler that upgrades a connection and
// auto-subscribes it to defaultChannel (empty to skip auto-subscribe).
func Handler(h *Hub, defaultChannel string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade error: %v", err)
			return
		}

		s := h.Accept(conn)

		if defaultChannel != "" {
			var filters Filters
			if syms := r.URL.Query().Get("symbols"); syms != "" {
				filters = Filters{Symbols: splitCSV(syms)}
			}
			if err := h.Subscribe(r.Context(), s, defaultChannel, filters); err != nil {
				log.Printf("session %s auto-subscribe to %s failed: %v", s.ID, defaultChannel, err)
			} else {
				s.Send(mustJSON(map[string]any{
					"type": "welcome", "message": "subscribed", "channel": defaultChannel,
				}))
			}
		}

		go writePump(s)
		// r.Context() is cancelled as soon as this handler returns, so the
		// read loop, which outlives it, must not use it for later subscribes.
		go readPump(context.Background(), s, h)
	}
}

func readPump(ctx context.Context, s *Session, h *Hub) {
	defer h.Disconnect(s)

	s.Conn.SetReadLimit(maxMessageSize)
	s.Conn.SetReadDeadline(time.Now().Add(pongWait))
	s.Conn.SetPongHandler(func(string) error {
		s.Touch()
		s.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("session %s read error: %v", s.ID, err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.Send(mustJSON(map[string]any{"type": "error", "message": "invalid JSON"}))
			continue
		}

		handleMessage(ctx, s, h, &msg)
	}
}

func handleMessage(ctx context.Context, s *Session, h *Hub, msg *clientMessage) {
	switch msg.Type {
	case "ping":
		s.Touch()
		s.Send(mustJSON(map[string]any{"type": "pong", "timestamp": time.Now().UTC()}))

	case "subscribe":
		if msg.Channel == "" {
			s.Send(mustJSON(map[string]any{"type": "error", "message": "subscribe requires a channel"}))
			return
		}
		f := msg.Filters
		if len(f.Symbols) == 0 {
			f.Symbols = msg.Symbols
		}
		if err := h.Subscribe(ctx, s, msg.Channel, f); err != nil {
			s.Send(mustJSON(map[string]any{"type": "error", "message": "subscribe failed: " + err.Error()}))
			return
		}
		s.Send(mustJSON(map[string]any{"type": "subscribed", "channel": msg.Channel, "filters": f}))

	case "unsubscribe":
		if msg.Channel == "" {
			s.Send(mustJSON(map[string]any{"type": "error", "message": "unsubscribe requires a channel"}))
			return
		}
		h.Unsubscribe(s, msg.Channel)
		s.Send(mustJSON(map[string]any{"type": "unsubscribed", "channel": msg.Channel}))

	case "snapshot":
		s.Send(mustJSON(map[string]any{"type": "error", "message": "Snapshot not implemented"}))

	default:
		s.Send(mustJSON(map[string]any{"type": "error", "message": "Unknown message type: " + msg.Type}))
	}
}

func writePump(s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case data, ok := <-s.SendCh():
			if !ok {
				return
			}
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.Done():
			return
		}
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lumiforge/docbuilder-backend/internal/documents"
)

const (
	eventBuffer  = 32
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 2 * pingInterval
)

// Hub fans compile events out to websocket subscribers of each document.
// Slow subscribers lose events rather than stall a compile.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan documents.Event]struct{}
	log  zerolog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

var _ documents.EventSink = (*Hub)(nil)

// NewHub creates a hub without subscribers.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[chan documents.Event]struct{}),
		log:    log.With().Str("component", "events").Logger(),
		closed: make(chan struct{}),
	}
}

// Close disconnects every websocket subscriber. Hijacked connections are not
// tracked by http.Server.Shutdown, so serve calls this on exit.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.closed) })
}

// Publish delivers ev to every subscriber of its document without blocking.
func (h *Hub) Publish(ev documents.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.DocumentID] {
		select {
		case ch <- ev:
		default:
			h.log.Warn().Str("document_id", ev.DocumentID).Str("stage", string(ev.Stage)).Msg("dropping event for slow subscriber")
		}
	}
}

// Subscribe registers a channel for documentID. The returned func removes it.
func (h *Hub) Subscribe(documentID string) (<-chan documents.Event, func()) {
	ch := make(chan documents.Event, eventBuffer)
	h.mu.Lock()
	if h.subs[documentID] == nil {
		h.subs[documentID] = make(map[chan documents.Event]struct{})
	}
	h.subs[documentID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[documentID], ch)
			if len(h.subs[documentID]) == 0 {
				delete(h.subs, documentID)
			}
			h.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscribers of documentID.
func (h *Hub) Subscribers(documentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[documentID])
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// stream pushes events to conn until the client goes away or the hub closes.
func (h *Hub) stream(conn *websocket.Conn, documentID string) {
	events, unsubscribe := h.Subscribe(documentID)
	defer unsubscribe()
	defer conn.Close()

	// The read side only handles control frames and notices disconnects.
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case ev := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug().Err(err).Str("document_id", documentID).Msg("event subscriber write failed")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-h.closed:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// serveWS upgrades r and streams documentID's events.
func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request, documentID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.stream(conn, documentID)
}

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/pendulum.report/internal/monitoring"
	"github.com/banshee-data/pendulum.report/internal/session"
)

const (
	liveBuffer     = 256
	liveWriteWait  = 5 * time.Second
	livePingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	// the station UI is served from other local origins during development
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans session events out to websocket clients. Publish never blocks:
// a client whose buffer is full misses events.
type Hub struct {
	mu      sync.Mutex
	clients map[chan session.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan session.Event]struct{})}
}

func (h *Hub) subscribe() chan session.Event {
	ch := make(chan session.Event, liveBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan session.Event) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// Publish delivers e to every connected client.
func (h *Hub) Publish(e session.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- e:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// liveHello is the first message on a live connection.
type liveHello struct {
	Kind     string            `json:"kind"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("api: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events := s.hub.subscribe()
	defer s.hub.unsubscribe(events)

	hello := liveHello{Kind: "snapshot"}
	if sess := s.currentSession(); sess != nil {
		snap := sess.Snapshot()
		hello.Snapshot = &snap
	}
	conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := conn.WriteJSON(hello); err != nil {
		return
	}

	// The reader only watches for the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					monitoring.Logf("api: live client error: %v", err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(livePingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case e := <-events:
			conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		}
	}
}

// Package dashboard serves the monitoring API and pushes live signal and
// position events to WebSocket clients.
package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"trading-botv1/internal/model"

	"github.com/gorilla/websocket"
)

// Hub manages WebSocket clients and fans bot events out to them. Events
// arrive either directly from the engine or via the Redis signal channel.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	// Latest envelope per event key, replayed to newly connected clients
	latest map[string]json.RawMessage
}

// NewHub creates a hub with no connected clients.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]json.RawMessage),
	}
}

// Run consumes signal records and broadcasts them until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, signals <-chan model.SignalRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-signals:
			if !ok {
				return
			}
			h.BroadcastSignal(rec)
		}
	}
}

// BroadcastSignal pushes an emitted signal to all connected clients.
func (h *Hub) BroadcastSignal(rec model.SignalRecord) {
	h.broadcast("signal:"+rec.Symbol, "signal", rec)
}

// BroadcastPosition pushes a position lifecycle event to all clients.
func (h *Hub) BroadcastPosition(p *model.Position) {
	h.broadcast("position:"+p.Symbol, "position", p)
}

func (h *Hub) broadcast(key, msgType string, payload interface{}) {
	envelope, err := json.Marshal(map[string]interface{}{
		"type": msgType,
		"data": payload,
		"ts":   time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		log.Printf("[dashboard] marshal broadcast error: %v", err)
		return
	}

	h.mu.Lock()
	h.latest[key] = envelope
	for client := range h.clients {
		select {
		case client.send <- envelope:
		default:
			// Slow client, drop rather than block the hub
		}
	}
	h.mu.Unlock()
}

// HandleWSRequest registers an upgraded connection and starts its pumps.
func (h *Hub) HandleWSRequest(conn *websocket.Conn) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[dashboard] ws client connected (%d total)", count)

	go client.sendInitialState()
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Package stream pushes dashboard view updates to connected websocket
// clients, replacing UI-side polling for anything the daemon already holds.
package stream

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Envelope is the wire shape of every pushed message.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Message types pushed by the daemon.
const (
	TypeView      = "view"      // aggregated dashboard view changed
	TypeScheduler = "scheduler" // backoff / rate-limited status changed
	TypeBreaker   = "breaker"   // signals circuit breaker state changed
)

// Hub fans broadcast messages out to every connected client. Slow clients
// whose send buffer fills up are dropped rather than allowed to stall the
// broadcast loop.
type Hub struct {
	log *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	// done is closed when Run exits; client goroutines select on it so their
	// teardown never blocks on a hub that no longer drains its channels.
	done chan struct{}
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run drives registration and broadcasting until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Infow("websocket client connected", "clients", n)

		case client := <-h.unregister:
			h.drop(client)

		case message := <-h.broadcast:
			// Send outside the lock so a slow client cannot block
			// register/unregister handling.
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()

			for _, c := range clients {
				select {
				case c.send <- message:
				default:
					h.log.Warnw("dropping slow websocket client")
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Infow("websocket client disconnected", "clients", n)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// Broadcast serializes an envelope and queues it for every client. When the
// hub's own queue is full the message is dropped; the next refresh will carry
// fresher data anyway.
func (h *Hub) Broadcast(msgType string, data any) {
	payload, err := json.Marshal(Envelope{Type: msgType, Data: data})
	if err != nil {
		h.log.Errorw("failed to marshal websocket message", "type", msgType, "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.log.Debugw("websocket broadcast queue full, dropping", "type", msgType)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

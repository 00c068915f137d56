// Package live pushes dashboard activities to connected console clients
// over WebSocket.
package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/eventdesk/checkpoint/internal/models"
)

// Message is the envelope of every frame sent to clients.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// TypePrefix starts the type of every activity frame, e.g. "activity.checkin".
const TypePrefix = "activity."

// ActivityFrom returns the activity carried by m, if it carries one.
func ActivityFrom(m Message) (models.Activity, bool) {
	if !strings.HasPrefix(m.Type, TypePrefix) {
		return models.Activity{}, false
	}
	raw, err := json.Marshal(m.Payload)
	if err != nil {
		return models.Activity{}, false
	}
	var a models.Activity
	if err := json.Unmarshal(raw, &a); err != nil {
		return models.Activity{}, false
	}
	return a, true
}

// Hub maintains the set of active clients and fans messages out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a hub. Call Run in a goroutine before registering clients.
// A nil logger discards.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = discard
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's event loop. It returns when ctx is done, after closing
// every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("live client connected", "clients", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("live client disconnected", "clients", n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer: drop it rather than block everyone.
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish broadcasts an activity. It never blocks: when the broadcast
// buffer is full the activity is dropped from the live feed (it is still
// in the dashboard's history).
func (h *Hub) Publish(a models.Activity) {
	msg, err := json.Marshal(Message{Type: TypePrefix + a.Kind, Timestamp: a.At, Payload: a})
	if err != nil {
		h.logger.Warn("marshal live message", "error", err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("live broadcast buffer full, dropping message", "kind", a.Kind)
	}
}

// Register adds a client to the hub. Once the hub has stopped, the
// client's queue is closed straight away.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is one connected subscriber.
type Client struct {
	send chan []byte
}

// NewClient creates a client with a buffered send queue.
func NewClient() *Client {
	return &Client{send: make(chan []byte, 256)}
}

// Send is the queue of frames waiting to be written to the connection.
// It is closed when the hub drops the client.
func (c *Client) Send() <-chan []byte { return c.send }

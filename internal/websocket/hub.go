// Package websocket streams committed store changes to watching clients.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MariuszDW/BuyBuy-sub001/internal/store"
)

// Message is one change notification as sent over the wire.
type Message struct {
	Type     string   `json:"type"`
	Entity   string   `json:"entity"`
	Action   string   `json:"action"`
	ID       string   `json:"id,omitempty"`
	ListID   string   `json:"list_id,omitempty"`
	ImageIDs []string `json:"image_ids,omitempty"`
}

func NewMessage(c store.Change) Message {
	return Message{
		Type:     c.Entity + "_" + c.Action,
		Entity:   c.Entity,
		Action:   c.Action,
		ID:       c.ID,
		ListID:   c.ListID,
		ImageIDs: c.ImageIDs,
	}
}

// Hub fans change notifications out to connected clients. It implements
// store.Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
	dropped atomic.Int64
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("watcher connected", "clients", n, "list", c.listID)
}

// Unregister removes a client and closes its send channel. Unregistering
// twice is safe.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Notify broadcasts a committed change.
func (h *Hub) Notify(c store.Change) {
	h.Broadcast(NewMessage(c))
}

// Broadcast sends msg to every client interested in it. Clients whose
// buffer is full miss the message.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were skipped for slow clients.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

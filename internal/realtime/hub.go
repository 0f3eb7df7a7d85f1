// internal/realtime/hub.go
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

type Client struct {
	ID     string
	UserID uuid.UUID
	Conn   *WebSocketConn
	Send   chan []byte

	tables map[string]bool
}

func NewClient(userID uuid.UUID, conn *WebSocketConn) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		tables: make(map[string]bool),
	}
}

// Hub owns the connected clients and fans change events out to their subscriptions.
type Hub struct {
	clients    map[string]*Client
	events     chan ChangeEvent
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		events:     make(chan ChangeEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// RegisterClient adds a client; it returns false once the hub has stopped.
func (h *Hub) RegisterClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe adds tables to a client's subscriptions.
func (h *Hub) Subscribe(client *Client, tables ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range tables {
		client.tables[t] = true
	}
}

func (h *Hub) Unsubscribe(client *Client, tables ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range tables {
		delete(client.tables, t)
	}
}

// Dispatch queues an event for delivery; it returns false once the hub has stopped.
func (h *Hub) Dispatch(ev ChangeEvent) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

// ClientCount is the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for id, client := range h.clients {
			close(client.Send)
			delete(h.clients, id)
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.Printf("[Hub] client registered: %s (UserID: %s)", client.ID, client.UserID)

		case client := <-h.unregister:
			h.mu.Lock()
			if old, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(old.Send)
				log.Printf("[Hub] client unregistered: %s", client.ID)
			}
			h.mu.Unlock()

		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

func (h *Hub) deliver(ev ChangeEvent) {
	payload, err := json.Marshal(changeFrame{Type: "change", Event: ev})
	if err != nil {
		log.Printf("[Hub] error marshaling change event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		if !client.tables[ev.Table] || !ev.visibleTo(client.UserID) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			// slow consumer: drop it, the socket reader will see the closed channel
			close(client.Send)
			delete(h.clients, id)
			log.Printf("[Hub] dropped slow client: %s", id)
		}
	}
}

type changeFrame struct {
	Type  string      `json:"type"`
	Event ChangeEvent `json:"event"`
}

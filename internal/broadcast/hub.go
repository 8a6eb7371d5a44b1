package broadcast

import (
	"log/slog"
	"sync"
)

// Client is one connected endpoint the hub can push events to. The ws
// gateway implements it over a websocket; tests implement it in memory.
type Client interface {
	// ID is stable for the lifetime of the connection.
	ID() string
	// Send delivers a named event with a JSON-serializable payload.
	Send(event string, payload any) error
}

// Hub tracks every registered client plus per-room subscriber sets and
// fans out pushed events. Send failures are logged and skipped so one dead
// connection never blocks a broadcast.
type Hub struct {
	log     *slog.Logger
	mu      sync.RWMutex
	clients map[string]Client
	rooms   map[string]map[string]Client
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[string]Client),
		rooms:   make(map[string]map[string]Client),
	}
}

// Register adds a client to the lobby-wide broadcast set.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
}

// Unregister removes a client from the lobby set and every room.
func (h *Hub) Unregister(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.ID())
	for roomID, subs := range h.rooms {
		delete(subs, c.ID())
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Subscribe adds a client to a room's broadcast set.
func (h *Hub) Subscribe(roomID string, c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]Client)
	}
	h.rooms[roomID][c.ID()] = c
}

// Unsubscribe removes a client from a room's broadcast set.
func (h *Hub) Unsubscribe(roomID string, c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.rooms[roomID]
	delete(subs, c.ID())
	if len(subs) == 0 {
		delete(h.rooms, roomID)
	}
}

// ToRoom pushes an event to every subscriber of a room.
func (h *Hub) ToRoom(roomID, event string, payload any) {
	h.mu.RLock()
	subs := make([]Client, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		subs = append(subs, c)
	}
	h.mu.RUnlock()

	for _, c := range subs {
		if err := c.Send(event, payload); err != nil {
			h.log.Warn("room broadcast failed", "room", roomID, "client", c.ID(), "event", event, "error", err)
		}
	}
}

// ToAll pushes an event to every registered client.
func (h *Hub) ToAll(event string, payload any) {
	h.mu.RLock()
	clients := make([]Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.Send(event, payload); err != nil {
			h.log.Warn("lobby broadcast failed", "client", c.ID(), "event", event, "error", err)
		}
	}
}

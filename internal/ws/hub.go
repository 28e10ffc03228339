package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dm-service/internal/models"
	"dm-service/internal/observability"
)

// Hub owns the room registry and the connection/identity indexes. It is an
// explicit instance created at startup and torn down with the process; nothing
// here is ambient state.
type Hub struct {
	mu sync.RWMutex

	// rooms: one per chat, holding the connections that receive its events.
	rooms map[uuid.UUID]map[*Client]struct{}
	// identities: all live connections of an identity, across devices.
	identities map[uuid.UUID]map[*Client]struct{}
	// membership: reverse index, rooms a connection belongs to.
	membership map[*Client]map[uuid.UUID]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]struct{}),
		identities: make(map[uuid.UUID]map[*Client]struct{}),
		membership: make(map[*Client]map[uuid.UUID]struct{}),
	}
}

// Register adds an authenticated connection to the identity index.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.identities[c.UserID]; !ok {
		h.identities[c.UserID] = make(map[*Client]struct{})
	}
	h.identities[c.UserID][c] = struct{}{}
	h.membership[c] = make(map[uuid.UUID]struct{})
}

// Unregister removes a connection from every room and index and stops its
// write pump. No persisted state changes on disconnect. The client's send
// queue stays open: goroutines still holding the client (broadcast snapshots,
// in-flight event handlers) may keep calling Send, which drops quietly once
// the client is closed.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms, registered := h.membership[c]
	if !registered {
		return
	}
	for chatID := range rooms {
		h.removeFromRoom(chatID, c)
	}
	delete(h.membership, c)

	if conns, ok := h.identities[c.UserID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.identities, c.UserID)
		}
	}
	c.Close()
}

// Join adds a connection to a chat room.
func (h *Hub) Join(c *Client, chatID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(c, chatID)
}

func (h *Hub) joinLocked(c *Client, chatID uuid.UUID) {
	if _, registered := h.membership[c]; !registered {
		return
	}
	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[*Client]struct{})
	}
	h.rooms[chatID][c] = struct{}{}
	h.membership[c][chatID] = struct{}{}
}

// Leave removes a connection from a chat room.
func (h *Hub) Leave(c *Client, chatID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoom(chatID, c)
	if rooms, ok := h.membership[c]; ok {
		delete(rooms, chatID)
	}
}

func (h *Hub) removeFromRoom(chatID uuid.UUID, c *Client) {
	if conns, ok := h.rooms[chatID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, chatID)
		}
	}
}

// JoinIdentity pulls every live connection of an identity into a chat room and
// notifies them with a newChat event. Used when a chat is created after those
// connections completed their handshake, so they receive further events
// without reconnecting.
func (h *Hub) JoinIdentity(chatID, userID uuid.UUID) {
	event := models.ChatEvent{Event: models.EventNewChat, ChatID: chatID}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	var joined []*Client
	for c := range h.identities[userID] {
		h.joinLocked(c, chatID)
		joined = append(joined, c)
	}
	h.mu.Unlock()

	for _, c := range joined {
		c.Send(payload)
	}
	if len(joined) > 0 {
		observability.IncWSEvent(models.EventNewChat)
	}
}

// Broadcast fans an event out to every connection currently in the chat's
// room, at most once per connection. Delivery is best effort; a connection
// with a saturated queue misses the event and catches up on next fetch.
func (h *Hub) Broadcast(chatID uuid.UUID, event models.ChatEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		zap.L().Error("broadcast marshal failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	conns := make([]*Client, 0, len(h.rooms[chatID]))
	for c := range h.rooms[chatID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Send(payload)
	}
	observability.IncWSEvent(event.Event)
}

// BroadcastMessage pushes a persisted message to the chat's room.
func (h *Hub) BroadcastMessage(chatID uuid.UUID, msg models.Message) {
	msg.Redact()
	h.Broadcast(chatID, models.ChatEvent{Event: models.EventMessage, ChatID: chatID, Message: &msg})
}

// BroadcastDeletion notifies the room that a message was redacted.
func (h *Hub) BroadcastDeletion(chatID, messageID uuid.UUID) {
	h.Broadcast(chatID, models.ChatEvent{Event: models.EventMessageDeleted, ChatID: chatID, MessageID: &messageID, Deleted: true})
}

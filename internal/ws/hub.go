package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"huru-chat/internal/models"
)

// Hub maintains the active websocket connections, keyed by user ID. A user
// may hold several connections (one per device).
type Hub struct {
	userRooms map[int]map[*websocket.Conn]bool
	connInfo  map[int]map[*websocket.Conn]ConnInfo
	mu        sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		userRooms: make(map[int]map[*websocket.Conn]bool),
		connInfo:  make(map[int]map[*websocket.Conn]ConnInfo),
	}
}

// AddClient registers a websocket connection for a user.
func (h *Hub) AddClient(userID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.userRooms[userID]; !ok {
		h.userRooms[userID] = make(map[*websocket.Conn]bool)
	}
	h.userRooms[userID][conn] = true
	if _, ok := h.connInfo[userID]; !ok {
		h.connInfo[userID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.connInfo[userID][conn] = info
}

// RemoveClient removes a user's websocket connection.
func (h *Hub) RemoveClient(userID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.userRooms[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.userRooms, userID)
		}
	}
	if infos, ok := h.connInfo[userID]; ok {
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.connInfo, userID)
		}
	}
}

// Push sends an event to every connection the user currently holds.
func (h *Hub) Push(userID int, event models.NotifyEvent) {
	h.mu.RLock()
	conns := h.userRooms[userID]
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error user=%d: %v", userID, err)
			conn.Close()
			h.RemoveClient(userID, conn)
		}
	}
}

// Deliver pushes a stored notification to its recipient's connections.
// Implements the fan-out side-channel contract.
func (h *Hub) Deliver(ctx context.Context, notification models.Notification) error {
	n := notification
	h.Push(n.RecipientID, models.NotifyEvent{Type: "notification", Notification: &n})
	return nil
}

// BroadcastMessageDeleted tells each recipient's live connections that a
// message is gone so clients can drop it without a refetch.
func (h *Hub) BroadcastMessageDeleted(recipients []int, messageID int) {
	event := models.NotifyEvent{Type: "message_deleted", MessageID: messageID}
	for _, userID := range recipients {
		h.Push(userID, event)
	}
}

// ActiveConns reports the number of live connections for a user.
func (h *Hub) ActiveConns(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userRooms[userID])
}

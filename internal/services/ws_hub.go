package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocket message types
const (
	WSTypeSubscribe            = "subscribe"
	WSTypeUnsubscribe          = "unsubscribe"
	WSTypeConversationSnapshot = "conversation_snapshot"
	WSTypeFriendsChanged       = "friends_changed"
	WSTypeSnapReceived         = "snap_received"
	WSTypeError                = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Message        string      `json:"message,omitempty"`
	Data           interface{} `json:"data,omitempty"`
}

// wsClient serializes writes to one connection
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections and conversation subscriptions
type WSHub struct {
	mu            sync.RWMutex
	connections   map[string]*wsClient
	subscriptions map[string]map[string]struct{}
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		connections:   make(map[string]*wsClient),
		subscriptions: make(map[string]map[string]struct{}),
	}
}

// Register registers a new WebSocket connection for a user
func (h *WSHub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Close existing connection if any
	if existing, exists := h.connections[userID]; exists {
		existing.conn.Close()
	} else {
		wsOnlineUsers.Inc()
	}

	h.connections[userID] = &wsClient{conn: conn}
	h.subscriptions[userID] = make(map[string]struct{})

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
}

// Unregister removes a user's connection if it is still the registered one
func (h *WSHub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.connections[userID]
	if !exists || client.conn != conn {
		return
	}
	client.conn.Close()
	delete(h.connections, userID)
	delete(h.subscriptions, userID)
	wsOnlineUsers.Dec()
	log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
}

// Subscribe starts delivering snapshots of a conversation to a user
func (h *WSHub) Subscribe(userID, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subscriptions[userID]; ok {
		subs[conversationID] = struct{}{}
	}
}

// Unsubscribe stops delivering snapshots of a conversation to a user
func (h *WSHub) Unsubscribe(userID, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscriptions[userID], conversationID)
}

// IsSubscribed reports whether a user follows a conversation
func (h *WSHub) IsSubscribed(userID, conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subscriptions[userID][conversationID]
	return ok
}

// SendToUser sends a message to a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	client, exists := h.connections[userID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("user %s is not connected", userID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := client.write(data); err != nil {
		h.Unregister(userID, client.conn)
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[userID]
	return exists
}

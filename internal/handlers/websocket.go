package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"anon-social-backend/internal/middleware"
	"anon-social-backend/internal/models"
	"anon-social-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Mobile clients send no Origin
	},
}

type wsHub interface {
	Register(userID string, conn *websocket.Conn)
	Unregister(userID string, conn *websocket.Conn)
	Subscribe(userID, conversationID string)
	Unsubscribe(userID, conversationID string)
	SendToUser(userID string, message services.WSMessage) error
}

type conversationOpener interface {
	Open(ctx context.Context, conversationID, viewerID string) (*services.ConversationView, error)
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub           wsHub
	identity      services.IdentityProvider
	conversations conversationOpener
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub wsHub, identity services.IdentityProvider, conversations conversationOpener) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		identity:      identity,
		conversations: conversations,
	}
}

// HandleWebSocket handles GET /ws?token=...
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.ValidateWebSocketToken(r.URL.Query().Get("token"), h.identity)
	if err != nil {
		respondError(w, "unauthorized", "invalid token", http.StatusUnauthorized)
		return
	}
	userID := identity.UserID

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Register(userID, conn)
	defer h.hub.Unregister(userID, conn)

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	ctx := r.Context()
	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Debug().Err(err).Str("user_id", userID).Msg("Failed to parse WebSocket message")
			h.sendErrorToUser(userID, "", "Invalid message format")
			continue
		}

		h.handleMessage(ctx, userID, msg)
	}
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(ctx context.Context, userID string, msg services.WSMessage) {
	switch msg.Type {
	case services.WSTypeSubscribe:
		h.handleSubscribe(ctx, userID, msg.ConversationID)
	case services.WSTypeUnsubscribe:
		h.hub.Unsubscribe(userID, msg.ConversationID)
	default:
		h.sendErrorToUser(userID, msg.ConversationID, "Unknown message type")
	}
}

// handleSubscribe sends the current snapshot and follows the conversation
func (h *WebSocketHandler) handleSubscribe(ctx context.Context, userID, conversationID string) {
	if conversationID == "" {
		h.sendErrorToUser(userID, "", "conversation_id is required")
		return
	}

	view, err := h.conversations.Open(ctx, conversationID, userID)
	if err != nil {
		message := models.Explanation(err)
		if message == "" {
			log.Error().Err(err).Str("user_id", userID).Str("conversation_id", conversationID).Msg("Failed to open conversation")
			message = "Failed to open conversation"
		}
		h.sendErrorToUser(userID, conversationID, message)
		return
	}

	h.hub.Subscribe(userID, conversationID)

	snapshot := services.WSMessage{
		Type:           services.WSTypeConversationSnapshot,
		ConversationID: conversationID,
		Data:           view,
	}
	if err := h.hub.SendToUser(userID, snapshot); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to send conversation snapshot")
	}
}

// sendErrorToUser sends an error message to a user
func (h *WebSocketHandler) sendErrorToUser(userID, conversationID, message string) {
	msg := services.WSMessage{
		Type:           services.WSTypeError,
		ConversationID: conversationID,
		Message:        message,
	}
	if err := h.hub.SendToUser(userID, msg); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to send error message")
	}
}

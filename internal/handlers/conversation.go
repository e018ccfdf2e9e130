package handlers

import (
	"context"
	"net/http"
	"strings"

	"anon-social-backend/internal/middleware"
	"anon-social-backend/internal/models"
	"anon-social-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type conversationService interface {
	ListConversations(ctx context.Context, userID string) ([]services.ConversationSummary, error)
	StartConversation(ctx context.Context, userID, peerID string) (*models.Conversation, error)
	Open(ctx context.Context, conversationID, viewerID string) (*services.ConversationView, error)
	Reveal(ctx context.Context, conversationID, userID string) (*services.ConversationView, error)
	SendMessage(ctx context.Context, conversationID, senderID string, req services.SendMessageRequest) (*models.Message, error)
}

// ConversationHandler handles conversation HTTP requests
type ConversationHandler struct {
	conversations conversationService
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversations conversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// StartConversationRequest represents the request body for starting a conversation
type StartConversationRequest struct {
	PeerID string `json:"peer_id"`
}

// ListConversations handles GET /api/v1/conversations
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	convs, err := h.conversations.ListConversations(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// StartConversation handles POST /api/v1/conversations
func (h *ConversationHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req StartConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.PeerID = strings.TrimSpace(req.PeerID)
	if req.PeerID == "" {
		respondError(w, models.ErrValidation.Error(), "peer_id is required", http.StatusBadRequest)
		return
	}

	conv, err := h.conversations.StartConversation(ctx, middleware.GetUserID(ctx), req.PeerID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, conv)
}

// GetConversation handles GET /api/v1/conversations/{conversation_id}
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	view, err := h.conversations.Open(ctx, chi.URLParam(r, "conversation_id"), middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// Reveal handles POST /api/v1/conversations/{conversation_id}/reveal
func (h *ConversationHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "conversation_id")

	view, err := h.conversations.Reveal(ctx, conversationID, userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("conversation_id", conversationID).
		Bool("friends", view.Friends).
		Msg("Reveal accepted")

	respondJSON(w, http.StatusOK, view)
}

// SendMessage handles POST /api/v1/conversations/{conversation_id}/messages
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req services.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.conversations.SendMessage(ctx, chi.URLParam(r, "conversation_id"), middleware.GetUserID(ctx), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, msg)
}

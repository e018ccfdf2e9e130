package handlers

import (
	"context"
	"net/http"
	"strings"

	"anon-social-backend/internal/middleware"
	"anon-social-backend/internal/models"

	"github.com/go-chi/chi/v5"
)

type friendGraph interface {
	Overview(ctx context.Context, userID string) (*models.FriendsOverview, error)
	SendRequest(ctx context.Context, fromID, toID string) error
	CancelRequest(ctx context.Context, fromID, toID string) error
	AcceptRequest(ctx context.Context, receiverID, senderID string) error
	RejectRequest(ctx context.Context, receiverID, senderID string) error
	Unfriend(ctx context.Context, aID, bID string) error
}

// FriendsHandler handles friend graph HTTP requests
type FriendsHandler struct {
	graph friendGraph
}

// NewFriendsHandler creates a new friends handler
func NewFriendsHandler(graph friendGraph) *FriendsHandler {
	return &FriendsHandler{graph: graph}
}

// FriendRequestBody represents the request body for sending a friend request
type FriendRequestBody struct {
	To string `json:"to"`
}

// GetFriends handles GET /api/v1/friends
func (h *FriendsHandler) GetFriends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	overview, err := h.graph.Overview(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, overview)
}

// SendRequest handles POST /api/v1/friends/requests
func (h *FriendsHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req FriendRequestBody
	if !decodeJSON(w, r, &req) {
		return
	}
	req.To = strings.TrimSpace(req.To)
	if req.To == "" {
		respondError(w, models.ErrValidation.Error(), "to is required", http.StatusBadRequest)
		return
	}

	if err := h.graph.SendRequest(ctx, middleware.GetUserID(ctx), req.To); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"status": "pending"})
}

// CancelRequest handles DELETE /api/v1/friends/requests/{user_id}
func (h *FriendsHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.graph.CancelRequest, "cancelled")
}

// AcceptRequest handles POST /api/v1/friends/requests/{user_id}/accept
func (h *FriendsHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.graph.AcceptRequest, "friends")
}

// RejectRequest handles POST /api/v1/friends/requests/{user_id}/reject
func (h *FriendsHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.graph.RejectRequest, "rejected")
}

// Unfriend handles DELETE /api/v1/friends/{user_id}
func (h *FriendsHandler) Unfriend(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.graph.Unfriend, "removed")
}

func (h *FriendsHandler) apply(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) error, status string) {
	ctx := r.Context()
	peerID := chi.URLParam(r, "user_id")

	if err := op(ctx, middleware.GetUserID(ctx), peerID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": status})
}

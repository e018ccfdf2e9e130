package handlers

import (
	"context"
	"net/http"

	"anon-social-backend/internal/middleware"
	"anon-social-backend/internal/models"
	"anon-social-backend/internal/services"

	"github.com/rs/zerolog/log"
)

type userService interface {
	Register(ctx context.Context, identity services.Identity, req services.RegisterRequest) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	Discover(ctx context.Context, userID string) ([]models.DiscoveredUser, error)
	UpdatePushToken(ctx context.Context, userID, pushToken string) error
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService userService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService userService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// CreateUser handles POST /api/v1/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	var req services.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userService.Register(ctx, identity, req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	log.Info().
		Str("user_id", user.ID).
		Str("college", user.College).
		Msg("User registered")

	respondJSON(w, http.StatusCreated, user)
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.userService.GetUser(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// PushTokenRequest represents the request body for registering a device
type PushTokenRequest struct {
	PushToken string `json:"push_token"`
}

// UpdatePushToken handles PUT /api/v1/users/me/push-token
func (h *UserHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PushTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.userService.UpdatePushToken(ctx, middleware.GetUserID(ctx), req.PushToken); err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Discover handles GET /api/v1/users/discover
func (h *UserHandler) Discover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.userService.Discover(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"users": users})
}

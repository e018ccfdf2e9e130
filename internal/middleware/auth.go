package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"anon-social-backend/internal/services"
)

type contextKey string

const identityKey contextKey = "identity"

// AuthMiddleware creates a middleware for bearer token authentication
func AuthMiddleware(provider services.IdentityProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			identity, err := provider.Authenticate(parts[1])
			if err != nil {
				respondError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// WithIdentity stores the caller identity in ctx
func WithIdentity(ctx context.Context, identity services.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity extracts the caller identity from context
func GetIdentity(ctx context.Context) services.Identity {
	identity, _ := ctx.Value(identityKey).(services.Identity)
	return identity
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	return GetIdentity(ctx).UserID
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": message})
}

// ValidateWebSocketToken validates the token passed as a WebSocket query parameter
func ValidateWebSocketToken(token string, provider services.IdentityProvider) (services.Identity, error) {
	if token == "" {
		return services.Identity{}, fmt.Errorf("token required")
	}
	return provider.Authenticate(token)
}

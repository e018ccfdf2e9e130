package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is an authenticated caller
type Identity struct {
	UserID   string
	Verified bool
}

// IdentityProvider authenticates bearer tokens issued by the credential service
type IdentityProvider interface {
	Authenticate(token string) (Identity, error)
}

// JWTIdentity verifies HMAC-signed identity tokens
type JWTIdentity struct {
	secret []byte
}

// NewJWTIdentity creates a new JWT identity provider
func NewJWTIdentity(secret string) *JWTIdentity {
	return &JWTIdentity{secret: []byte(secret)}
}

// IssueToken signs a token for a user. Production tokens come from the
// credential service; this is used by tooling and tests.
func (p *JWTIdentity) IssueToken(userID string, verified bool, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  userID,
		"verified": verified,
		"exp":      time.Now().Add(ttl).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Authenticate validates a JWT token and returns the caller identity
func (p *JWTIdentity) Authenticate(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})

	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return Identity{}, fmt.Errorf("user_id not found in token")
	}

	verified, _ := claims["verified"].(bool)

	return Identity{UserID: userID, Verified: verified}, nil
}

package services

import (
	"context"

	"anon-social-backend/internal/models"
)

// ProfileStore persists user profiles and their relationship sets
type ProfileStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	ListByCollege(ctx context.Context, college, excludeID string) ([]*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	PhoneExists(ctx context.Context, phone string) (bool, error)
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
	MutatePair(ctx context.Context, aID, bID string, m models.PairMutation) error
}

// ConversationStore maps user pairs to conversations
type ConversationStore interface {
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	GetByPair(ctx context.Context, a, b string) (*models.Conversation, error)
	GetOrCreate(ctx context.Context, a, b string, anonymous bool) (*models.Conversation, bool, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error)
	UpdateDisclosure(ctx context.Context, id string, fn func(*models.Conversation) error) (*models.Conversation, error)
}

// MessageStore persists conversation messages
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) (bool, error)
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)
}

// EventPublisher pushes real-time events to connected users
type EventPublisher interface {
	SendToUser(userID string, message WSMessage) error
	IsOnline(userID string) bool
	IsSubscribed(userID, conversationID string) bool
}

// ConversationPublisher refreshes a conversation after a message lands in it
type ConversationPublisher interface {
	MessageDelivered(ctx context.Context, conv *models.Conversation) error
}

// Notifier sends push notifications to offline users
type Notifier interface {
	NotifyFriendRequest(ctx context.Context, to, from *models.User) error
	NotifySnap(ctx context.Context, to *models.User) error
}

// FaceDetector is the media gate
type FaceDetector interface {
	DetectFaces(ctx context.Context, image []byte) ([]models.BoundingBox, error)
}

// MediaArchive keeps one copy of every dispatched snap
type MediaArchive interface {
	Archive(ctx context.Context, key string, data []byte) error
}

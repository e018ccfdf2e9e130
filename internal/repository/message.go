package repository

import (
	"context"
	"errors"
	"fmt"

	"anon-social-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository handles database operations for messages
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create stores a message and fills in its timestamp. It returns false when
// a message with the same dedupe key already exists.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) (bool, error) {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, text, image_base64, is_anonymous, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''))
		ON CONFLICT (dedupe_key) DO NOTHING
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.SenderName, msg.Text,
		msg.ImageBase64, msg.IsAnonymous, msg.DedupeKey,
	).Scan(&msg.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, models.NotFound("conversation not found")
		}
		return false, classify(fmt.Errorf("failed to create message: %w", err))
	}
	return true, nil
}

// ListByConversation retrieves messages of a conversation in send order
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, sender_name, text, COALESCE(image_base64, ''), is_anonymous, created_at
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, seq DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, seq ASC
	`
	rows, err := r.db.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get messages: %w", err))
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderName, &msg.Text,
			&msg.ImageBase64, &msg.IsAnonymous, &msg.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("error iterating messages: %w", err))
	}
	return messages, nil
}

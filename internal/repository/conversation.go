package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"anon-social-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const conversationColumns = `id, participant_a, participant_b, a_revealed, a_name, b_revealed, b_name, is_anonymous, created_at`

// ConversationRepository is the conversation registry
type ConversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetByID retrieves a conversation by ID
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	conv, err := scanConversation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.NotFound("conversation not found")
		}
		return nil, classify(fmt.Errorf("failed to get conversation: %w", err))
	}
	return conv, nil
}

// GetByPair retrieves the conversation between two users
func (r *ConversationRepository) GetByPair(ctx context.Context, a, b string) (*models.Conversation, error) {
	pair := models.CanonicalPair(a, b)
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE participant_a = $1 AND participant_b = $2`
	conv, err := scanConversation(r.db.QueryRow(ctx, query, pair[0], pair[1]))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.NotFound("conversation not found")
		}
		return nil, classify(fmt.Errorf("failed to get conversation by pair: %w", err))
	}
	return conv, nil
}

// GetOrCreate returns the conversation for a pair, creating it if needed.
// Concurrent callers for the same pair all observe the same record.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, a, b string, anonymous bool) (*models.Conversation, bool, error) {
	pair := models.CanonicalPair(a, b)
	insert := `
		INSERT INTO conversations (id, participant_a, participant_b, is_anonymous, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT conversations_pair_uq DO NOTHING
		RETURNING ` + conversationColumns
	conv, err := scanConversation(r.db.QueryRow(ctx, insert,
		uuid.New().String(), pair[0], pair[1], anonymous, time.Now(),
	))
	if err == nil {
		return conv, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, classify(fmt.Errorf("failed to create conversation: %w", err))
	}

	conv, err = r.GetByPair(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	return conv, false, nil
}

// ListForUser retrieves every conversation a user participates in
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list conversations: %w", err))
	}
	defer rows.Close()

	var convs []*models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("error iterating conversations: %w", err))
	}
	return convs, nil
}

// UpdateDisclosure locks a conversation, applies fn and persists the
// disclosure fields atomically
func (r *ConversationRepository) UpdateDisclosure(ctx context.Context, id string, fn func(*models.Conversation) error) (*models.Conversation, error) {
	var updated *models.Conversation
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1 FOR UPDATE`
		conv, err := scanConversation(tx.QueryRow(ctx, query, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.NotFound("conversation not found")
			}
			return fmt.Errorf("failed to lock conversation: %w", err)
		}

		if err := fn(conv); err != nil {
			return err
		}

		a := conv.Disclosure[conv.Participants[0]]
		b := conv.Disclosure[conv.Participants[1]]
		update := `
			UPDATE conversations
			SET a_revealed = $2, a_name = $3, b_revealed = $4, b_name = $5, is_anonymous = $6
			WHERE id = $1
		`
		if _, err := tx.Exec(ctx, update, id, a.Revealed, a.Name, b.Revealed, b.Name, conv.IsAnonymous); err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
		updated = conv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var (
		conv         models.Conversation
		a, b         models.Disclosure
		partA, partB string
	)
	err := row.Scan(
		&conv.ID, &partA, &partB, &a.Revealed, &a.Name, &b.Revealed, &b.Name,
		&conv.IsAnonymous, &conv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	conv.Participants = [2]string{partA, partB}
	conv.Disclosure = map[string]models.Disclosure{partA: a, partB: b}
	return &conv, nil
}

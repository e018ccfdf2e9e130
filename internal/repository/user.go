package repository

import (
	"context"
	"errors"
	"fmt"

	"anon-social-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, name, gender, college, email, phone, friends, sent_requests, received_requests, push_token, created_at`

// UserRepository is the profile store
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, name, gender, college, email, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID, user.Name, user.Gender, user.College, user.Email, user.Phone, user.CreatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, "users_pkey"):
			return models.InvalidState("profile already registered")
		case isUniqueViolation(err, "users_email_key"):
			return models.InvalidState("an account with this email already exists")
		case isUniqueViolation(err, "users_phone_key"):
			return models.InvalidState("an account with this phone number already exists")
		}
		return classify(fmt.Errorf("failed to create user: %w", err))
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.NotFound("user not found")
		}
		return nil, classify(fmt.Errorf("failed to get user: %w", err))
	}
	return user, nil
}

// GetByIDs retrieves every existing user whose ID is in ids
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`
	return r.queryUsers(ctx, query, ids)
}

// ListByCollege retrieves users of a college other than excludeID
func (r *UserRepository) ListByCollege(ctx context.Context, college, excludeID string) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE college = $1 AND id <> $2 ORDER BY name ASC`
	return r.queryUsers(ctx, query, college, excludeID)
}

// EmailExists checks if an email is already registered
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email)
}

// PhoneExists checks if a phone number is already registered
func (r *UserRepository) PhoneExists(ctx context.Context, phone string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE phone = $1)`, phone)
}

func (r *UserRepository) exists(ctx context.Context, query, arg string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, query, arg).Scan(&exists); err != nil {
		return false, classify(fmt.Errorf("failed to check existence: %w", err))
	}
	return exists, nil
}

// UpdatePushToken updates the push token for a user
func (r *UserRepository) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	query := `UPDATE users SET push_token = $1 WHERE id = $2`
	result, err := r.db.Exec(ctx, query, pushToken, userID)
	if err != nil {
		return classify(fmt.Errorf("failed to update push token: %w", err))
	}
	if result.RowsAffected() == 0 {
		return models.NotFound("user not found")
	}
	return nil
}

// MutatePair locks both user rows, applies the mutation and writes both back
// in one transaction, so neither side of a relationship is ever updated alone.
func (r *UserRepository) MutatePair(ctx context.Context, aID, bID string, m models.PairMutation) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		// Lock in id order so concurrent mutations of the same pair cannot deadlock
		query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1) ORDER BY id FOR UPDATE`
		rows, err := tx.Query(ctx, query, []string{aID, bID})
		if err != nil {
			return fmt.Errorf("failed to lock users: %w", err)
		}
		users, err := collectUsers(rows)
		if err != nil {
			return err
		}

		byID := make(map[string]*models.User, len(users))
		for _, u := range users {
			byID[u.ID] = u
		}
		a, b := byID[aID], byID[bID]
		if a == nil || b == nil {
			return models.NotFound("user not found")
		}

		if m.Conversation != nil {
			// A share lock keeps the conversation from being revealed or
			// deleted under the check
			pair := models.CanonicalPair(aID, bID)
			query := `SELECT ` + conversationColumns + ` FROM conversations WHERE participant_a = $1 AND participant_b = $2 FOR SHARE`
			conv, err := scanConversation(tx.QueryRow(ctx, query, pair[0], pair[1]))
			if errors.Is(err, pgx.ErrNoRows) {
				conv, err = nil, nil
			}
			if err != nil {
				return fmt.Errorf("failed to read conversation: %w", err)
			}
			if err := m.Conversation(conv); err != nil {
				return err
			}
		}

		if err := m.Apply(a, b); err != nil {
			return err
		}

		update := `
			UPDATE users SET friends = $2, sent_requests = $3, received_requests = $4
			WHERE id = $1
		`
		for _, u := range []*models.User{a, b} {
			if _, err := tx.Exec(ctx, update, u.ID, nonNil(u.Friends), nonNil(u.SentRequests), nonNil(u.ReceivedRequests)); err != nil {
				return fmt.Errorf("failed to update user %s: %w", u.ID, err)
			}
		}

		if m.DropConversation {
			pair := models.CanonicalPair(aID, bID)
			del := `DELETE FROM conversations WHERE participant_a = $1 AND participant_b = $2`
			if _, err := tx.Exec(ctx, del, pair[0], pair[1]); err != nil {
				return fmt.Errorf("failed to delete conversation: %w", err)
			}
		}
		return nil
	})
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to query users: %w", err))
	}
	users, err := collectUsers(rows)
	if err != nil {
		return nil, classify(err)
	}
	return users, nil
}

func collectUsers(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	var gender string
	err := row.Scan(
		&user.ID, &user.Name, &gender, &user.College, &user.Email, &user.Phone,
		&user.Friends, &user.SentRequests, &user.ReceivedRequests, &user.PushToken, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Gender = models.Gender(gender)
	return &user, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

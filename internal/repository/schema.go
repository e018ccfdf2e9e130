package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	gender            TEXT NOT NULL,
	college           TEXT NOT NULL,
	email             TEXT NOT NULL UNIQUE,
	phone             TEXT NOT NULL UNIQUE,
	friends           TEXT[] NOT NULL DEFAULT '{}',
	sent_requests     TEXT[] NOT NULL DEFAULT '{}',
	received_requests TEXT[] NOT NULL DEFAULT '{}',
	push_token        TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS users_college_idx ON users (college);

CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	participant_a TEXT NOT NULL REFERENCES users (id),
	participant_b TEXT NOT NULL REFERENCES users (id),
	a_revealed    BOOLEAN NOT NULL DEFAULT false,
	a_name        TEXT NOT NULL DEFAULT '',
	b_revealed    BOOLEAN NOT NULL DEFAULT false,
	b_name        TEXT NOT NULL DEFAULT '',
	is_anonymous  BOOLEAN NOT NULL DEFAULT true,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT conversations_pair_uq UNIQUE (participant_a, participant_b),
	CONSTRAINT conversations_pair_order CHECK (participant_a < participant_b)
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	seq             BIGSERIAL,
	conversation_id TEXT NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
	sender_id       TEXT NOT NULL,
	sender_name     TEXT NOT NULL,
	text            TEXT NOT NULL DEFAULT '',
	image_base64    TEXT,
	is_anonymous    BOOLEAN NOT NULL,
	dedupe_key      TEXT UNIQUE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);

CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_id, created_at, seq);
`

// EnsureSchema creates the tables if they do not exist yet
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

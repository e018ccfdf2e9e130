package repository

import (
	"context"
	"errors"
	"fmt"
	"net"

	"anon-social-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const maxTxAttempts = 3

// withTx runs fn in a READ COMMITTED transaction, retrying deadlocks between
// callers that lock the same rows
func withTx(ctx context.Context, db *pgxpool.Pool, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = pgx.BeginTxFunc(ctx, db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
		if err == nil || !isRetryable(err) || ctx.Err() != nil {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("Retrying transaction")
	}
	return classify(err)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40P01"
}

// classify marks store failures the caller may retry
func classify(err error) error {
	if err == nil || models.Kind(err) != nil {
		return err
	}
	if isRetryable(err) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", models.ErrTransientStore, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", models.ErrTransientStore, err)
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" &&
		(constraint == "" || pgErr.ConstraintName == constraint)
}

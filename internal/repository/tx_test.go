package repository

import (
	"errors"
	"fmt"
	"testing"

	"anon-social-backend/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransient bool
	}{
		{name: "deadlock", err: fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40P01"}), wantTransient: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, wantTransient: false},
		{name: "plain error", err: errors.New("boom"), wantTransient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if errors.Is(got, models.ErrTransientStore) != tt.wantTransient {
				t.Fatalf("classify(%v) = %v, transient want %v", tt.err, got, tt.wantTransient)
			}
		})
	}

	if classify(nil) != nil {
		t.Fatalf("classify(nil) should be nil")
	}

	notFound := models.NotFound("user not found")
	if got := classify(notFound); got != notFound {
		t.Fatalf("categorized errors must pass through unchanged, got %v", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	if !isUniqueViolation(err, "users_email_key") {
		t.Fatalf("expected email violation to match")
	}
	if isUniqueViolation(err, "users_phone_key") {
		t.Fatalf("expected other constraint not to match")
	}
	if !isUniqueViolation(err, "") {
		t.Fatalf("empty constraint should match any unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatalf("foreign key violation is not a unique violation")
	}
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dailygrain/server/internal/model"
)

// LoginCodeStore persists dashboard sign-in codes. Each phone number has
// at most one active (unconsumed, unexpired) code.
type LoginCodeStore interface {
	CreateOrReplace(ctx context.Context, phone, codeHash string, expiresAt time.Time) (model.LoginCode, error)
	// GetActive returns ErrNotFound when there is no live code for phone.
	GetActive(ctx context.Context, phone string) (model.LoginCode, error)
	RecordAttempt(ctx context.Context, id uuid.UUID) error
	MarkConsumed(ctx context.Context, id uuid.UUID) error
}

type loginCodeStore struct {
	db *sql.DB
}

// NewLoginCodeStore creates a Postgres-backed LoginCodeStore.
func NewLoginCodeStore(db *sql.DB) LoginCodeStore {
	return &loginCodeStore{db: db}
}

func (s *loginCodeStore) CreateOrReplace(ctx context.Context, phone, codeHash string, expiresAt time.Time) (model.LoginCode, error) {
	// Invalidate any previous code for the phone before inserting.
	if _, err := s.db.ExecContext(ctx,
		`UPDATE login_codes SET consumed_at = now() WHERE phone_number = $1 AND consumed_at IS NULL`, phone); err != nil {
		return model.LoginCode{}, fmt.Errorf("invalidate login codes: %w", err)
	}

	query := `
		INSERT INTO login_codes (phone_number, code_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, phone_number, code_hash, expires_at, consumed_at, attempt_count, last_attempt_at, created_at
	`
	return scanLoginCode(s.db.QueryRowContext(ctx, query, phone, codeHash, expiresAt))
}

func (s *loginCodeStore) GetActive(ctx context.Context, phone string) (model.LoginCode, error) {
	query := `
		SELECT id, phone_number, code_hash, expires_at, consumed_at, attempt_count, last_attempt_at, created_at
		FROM login_codes
		WHERE phone_number = $1 AND consumed_at IS NULL AND expires_at > now()
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanLoginCode(s.db.QueryRowContext(ctx, query, phone))
}

func (s *loginCodeStore) RecordAttempt(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE login_codes SET attempt_count = attempt_count + 1, last_attempt_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}
	return nil
}

func (s *loginCodeStore) MarkConsumed(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE login_codes SET consumed_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("consume login code: %w", err)
	}
	return nil
}

func scanLoginCode(row *sql.Row) (model.LoginCode, error) {
	var code model.LoginCode
	var idStr string
	err := row.Scan(&idStr, &code.PhoneNumber, &code.CodeHash, &code.ExpiresAt,
		&code.ConsumedAt, &code.AttemptCount, &code.LastAttemptAt, &code.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LoginCode{}, ErrNotFound
		}
		return model.LoginCode{}, fmt.Errorf("scan login code: %w", err)
	}
	code.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.LoginCode{}, fmt.Errorf("parse login code id: %w", err)
	}
	return code, nil
}

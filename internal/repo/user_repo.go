package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dailygrain/server/internal/model"
)

// UserStore defines the interface for user persistence.
type UserStore interface {
	GetOrCreateByPhone(ctx context.Context, phone string) (model.User, error)
	GetByPhone(ctx context.Context, phone string) (model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	SetPaused(ctx context.Context, id uuid.UUID, paused bool) error
	SetDigestTime(ctx context.Context, id uuid.UUID, digestTime string) error
	ListActive(ctx context.Context) ([]model.User, error)
}

type userStore struct {
	db *sql.DB
}

// NewUserStore creates a Postgres-backed UserStore.
func NewUserStore(db *sql.DB) UserStore {
	return &userStore{db: db}
}

const userColumns = "id, phone_number, timezone, digest_time, is_paused, created_at"

func scanUser(row *sql.Row) (model.User, error) {
	var user model.User
	var idStr string
	err := row.Scan(&idStr, &user.PhoneNumber, &user.Timezone, &user.DigestTime, &user.IsPaused, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user id: %w", err)
	}
	return user, nil
}

// GetOrCreateByPhone returns the user for phone, creating one on first
// contact. There is no separate signup flow.
func (s *userStore) GetOrCreateByPhone(ctx context.Context, phone string) (model.User, error) {
	query := `
		INSERT INTO users (phone_number)
		VALUES ($1)
		ON CONFLICT (phone_number) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, phone); err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByPhone(ctx, phone)
}

func (s *userStore) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE phone_number = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, phone))
}

func (s *userStore) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *userStore) SetPaused(ctx context.Context, id uuid.UUID, paused bool) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET is_paused = $1 WHERE id = $2`, paused, id); err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	return nil
}

func (s *userStore) SetDigestTime(ctx context.Context, id uuid.UUID, digestTime string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET digest_time = $1 WHERE id = $2`, digestTime, id); err != nil {
		return fmt.Errorf("set digest time: %w", err)
	}
	return nil
}

// ListActive returns all users that have not paused their check-ins.
func (s *userStore) ListActive(ctx context.Context) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE is_paused = FALSE`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var user model.User
		var idStr string
		if err := rows.Scan(&idStr, &user.PhoneNumber, &user.Timezone, &user.DigestTime, &user.IsPaused, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse user id: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

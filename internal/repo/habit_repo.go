package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dailygrain/server/internal/model"
)

// HabitStore defines the interface for habit persistence.
type HabitStore interface {
	Create(ctx context.Context, userID uuid.UUID, name string, kind model.FrequencyKind, targetCount int) (model.Habit, error)
	FindByID(ctx context.Context, id uuid.UUID) (model.Habit, error)
	// ListByUser returns the user's habits in creation order. The order is
	// load-bearing: positional replies ("1 3", "Y N Y") are resolved
	// against it.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Habit, error)
	// Delete removes the habit; its logs go with it (FK cascade).
	Delete(ctx context.Context, id uuid.UUID) error
}

type habitStore struct {
	db *sql.DB
}

// NewHabitStore creates a Postgres-backed HabitStore.
func NewHabitStore(db *sql.DB) HabitStore {
	return &habitStore{db: db}
}

func (s *habitStore) Create(ctx context.Context, userID uuid.UUID, name string, kind model.FrequencyKind, targetCount int) (model.Habit, error) {
	query := `
		INSERT INTO habits (user_id, name, frequency_kind, target_count)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, name, frequency_kind, target_count, created_at
	`
	return scanHabitRow(s.db.QueryRowContext(ctx, query, userID, name, string(kind), targetCount))
}

func (s *habitStore) FindByID(ctx context.Context, id uuid.UUID) (model.Habit, error) {
	query := `
		SELECT id, user_id, name, frequency_kind, target_count, created_at
		FROM habits
		WHERE id = $1
	`
	return scanHabitRow(s.db.QueryRowContext(ctx, query, id))
}

func (s *habitStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Habit, error) {
	query := `
		SELECT id, user_id, name, frequency_kind, target_count, created_at
		FROM habits
		WHERE user_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer rows.Close()

	var habits []model.Habit
	for rows.Next() {
		habit, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, habit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate habits: %w", err)
	}
	return habits, nil
}

func (s *habitStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM habits WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	return nil
}

func scanHabitRow(row *sql.Row) (model.Habit, error) {
	var habit model.Habit
	var idStr, userIDStr, kind string
	err := row.Scan(&idStr, &userIDStr, &habit.Name, &kind, &habit.TargetCount, &habit.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Habit{}, ErrNotFound
		}
		return model.Habit{}, fmt.Errorf("scan habit: %w", err)
	}
	return finishHabit(habit, idStr, userIDStr, kind)
}

func scanHabit(rows *sql.Rows) (model.Habit, error) {
	var habit model.Habit
	var idStr, userIDStr, kind string
	if err := rows.Scan(&idStr, &userIDStr, &habit.Name, &kind, &habit.TargetCount, &habit.CreatedAt); err != nil {
		return model.Habit{}, fmt.Errorf("scan habit: %w", err)
	}
	return finishHabit(habit, idStr, userIDStr, kind)
}

func finishHabit(habit model.Habit, idStr, userIDStr, kind string) (model.Habit, error) {
	var err error
	habit.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Habit{}, fmt.Errorf("parse habit id: %w", err)
	}
	habit.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return model.Habit{}, fmt.Errorf("parse habit user id: %w", err)
	}
	habit.Frequency = model.FrequencyKind(kind)
	return habit, nil
}

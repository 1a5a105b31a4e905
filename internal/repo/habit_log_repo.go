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

// HabitLogStore defines the interface for habit-log persistence.
type HabitLogStore interface {
	// UpsertCompletion records count completions for habitID on date. A
	// second completion on the same date increments the stored count
	// instead of inserting a duplicate row.
	UpsertCompletion(ctx context.Context, habitID uuid.UUID, date time.Time, count int) error
	GetByHabitAndDate(ctx context.Context, habitID uuid.UUID, date time.Time) (model.HabitLog, error)
	// ListRecent returns up to limit logs ordered by date descending.
	ListRecent(ctx context.Context, habitID uuid.UUID, limit int) ([]model.HabitLog, error)
	// CountInWindow counts distinct logged dates on or after since.
	CountInWindow(ctx context.Context, habitID uuid.UUID, since time.Time) (int, error)
}

type habitLogStore struct {
	db *sql.DB
}

// NewHabitLogStore creates a Postgres-backed HabitLogStore.
func NewHabitLogStore(db *sql.DB) HabitLogStore {
	return &habitLogStore{db: db}
}

func (s *habitLogStore) UpsertCompletion(ctx context.Context, habitID uuid.UUID, date time.Time, count int) error {
	query := `
		INSERT INTO habit_logs (habit_id, log_date, completed_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (habit_id, log_date)
		DO UPDATE SET completed_count = habit_logs.completed_count + excluded.completed_count,
		              logged_at = now()
	`
	if _, err := s.db.ExecContext(ctx, query, habitID, date, count); err != nil {
		return fmt.Errorf("upsert habit log: %w", err)
	}
	return nil
}

func (s *habitLogStore) GetByHabitAndDate(ctx context.Context, habitID uuid.UUID, date time.Time) (model.HabitLog, error) {
	query := `
		SELECT id, habit_id, log_date, completed_count, logged_at
		FROM habit_logs
		WHERE habit_id = $1 AND log_date = $2
	`
	var log model.HabitLog
	var idStr, habitIDStr string
	err := s.db.QueryRowContext(ctx, query, habitID, date).Scan(&idStr, &habitIDStr, &log.LogDate, &log.CompletedCount, &log.LoggedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.HabitLog{}, ErrNotFound
		}
		return model.HabitLog{}, fmt.Errorf("get habit log: %w", err)
	}
	return finishHabitLog(log, idStr, habitIDStr)
}

func (s *habitLogStore) ListRecent(ctx context.Context, habitID uuid.UUID, limit int) ([]model.HabitLog, error) {
	query := `
		SELECT id, habit_id, log_date, completed_count, logged_at
		FROM habit_logs
		WHERE habit_id = $1
		ORDER BY log_date DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, habitID, limit)
	if err != nil {
		return nil, fmt.Errorf("list habit logs: %w", err)
	}
	defer rows.Close()

	var logs []model.HabitLog
	for rows.Next() {
		var log model.HabitLog
		var idStr, habitIDStr string
		if err := rows.Scan(&idStr, &habitIDStr, &log.LogDate, &log.CompletedCount, &log.LoggedAt); err != nil {
			return nil, fmt.Errorf("scan habit log: %w", err)
		}
		log, err = finishHabitLog(log, idStr, habitIDStr)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate habit logs: %w", err)
	}
	return logs, nil
}

func (s *habitLogStore) CountInWindow(ctx context.Context, habitID uuid.UUID, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM habit_logs WHERE habit_id = $1 AND log_date >= $2`
	var count int
	if err := s.db.QueryRowContext(ctx, query, habitID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count habit logs: %w", err)
	}
	return count, nil
}

func finishHabitLog(log model.HabitLog, idStr, habitIDStr string) (model.HabitLog, error) {
	var err error
	log.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.HabitLog{}, fmt.Errorf("parse log id: %w", err)
	}
	log.HabitID, err = uuid.Parse(habitIDStr)
	if err != nil {
		return model.HabitLog{}, fmt.Errorf("parse log habit id: %w", err)
	}
	// DATE columns scan with a zero clock already; normalize to UTC so
	// streak math compares equal regardless of driver location.
	log.LogDate = time.Date(log.LogDate.Year(), log.LogDate.Month(), log.LogDate.Day(), 0, 0, 0, 0, time.UTC)
	return log, nil
}

// Package habit holds habit lifecycle rules and per-habit stat aggregation.
package habit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dailygrain/server/internal/model"
	"github.com/dailygrain/server/internal/repo"
	"github.com/dailygrain/server/internal/stats"
)

// streakLookback bounds how much history the streak walk loads.
const streakLookback = 365

// Stats bundles the numbers shown for one habit.
type Stats struct {
	Streak int
	Last7  stats.CompletionStats
	Last30 stats.CompletionStats
}

// Service wraps the habit stores with validation and stat gathering.
type Service struct {
	habits repo.HabitStore
	logs   repo.HabitLogStore
}

// NewService creates a habit service.
func NewService(habits repo.HabitStore, logs repo.HabitLogStore) *Service {
	return &Service{habits: habits, logs: logs}
}

// Create validates and stores a new habit.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, name string, kind model.FrequencyKind, targetCount int) (model.Habit, error) {
	if !kind.Valid() {
		return model.Habit{}, fmt.Errorf("invalid frequency kind %q", kind)
	}
	if targetCount < 1 {
		targetCount = 1
	}
	return s.habits.Create(ctx, userID, name, kind, targetCount)
}

// Log records count completions for the habit on date.
func (s *Service) Log(ctx context.Context, habitID uuid.UUID, date time.Time, count int) error {
	return s.logs.UpsertCompletion(ctx, habitID, date, count)
}

// StatsFor computes streak plus 7- and 30-day completion for one habit,
// relative to the given reference date.
func (s *Service) StatsFor(ctx context.Context, habitID uuid.UUID, today time.Time) (Stats, error) {
	logs, err := s.logs.ListRecent(ctx, habitID, streakLookback)
	if err != nil {
		return Stats{}, fmt.Errorf("load logs: %w", err)
	}

	today = stats.DateOf(today)
	result := Stats{Streak: stats.CurrentStreak(logs, today)}

	for _, window := range []struct {
		days int
		dst  *stats.CompletionStats
	}{
		{7, &result.Last7},
		{30, &result.Last30},
	} {
		completed, err := s.logs.CountInWindow(ctx, habitID, today.AddDate(0, 0, -window.days))
		if err != nil {
			return Stats{}, fmt.Errorf("count %d-day window: %w", window.days, err)
		}
		*window.dst = stats.NewCompletionStats(completed, window.days)
	}
	return result, nil
}

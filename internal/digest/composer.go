// Package digest renders the daily check-in and status report texts and
// fans the daily digest out to all active subscribers.
package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dailygrain/server/internal/habit"
	"github.com/dailygrain/server/internal/model"
	"github.com/dailygrain/server/internal/repo"
	"github.com/dailygrain/server/internal/stats"
)

// Composer renders per-user digest and status texts.
type Composer struct {
	habits repo.HabitStore
	logs   repo.HabitLogStore
	svc    *habit.Service

	now func() time.Time
}

// NewComposer creates a digest composer.
func NewComposer(habits repo.HabitStore, logs repo.HabitLogStore, svc *habit.Service) *Composer {
	return &Composer{
		habits: habits,
		logs:   logs,
		svc:    svc,
		now:    time.Now,
	}
}

// WithClock overrides the wall clock, for tests.
func (c *Composer) WithClock(now func() time.Time) *Composer {
	c.now = now
	return c
}

func (c *Composer) todayFor(user model.User) time.Time {
	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return stats.DateIn(c.now(), loc)
}

// DailyDigest renders the morning check-in for one user: a status line per
// habit plus a reply hint. Users with no habits get an onboarding nudge.
func (c *Composer) DailyDigest(ctx context.Context, user model.User) (string, error) {
	habits, err := c.habits.ListByUser(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("list habits: %w", err)
	}
	if len(habits) == 0 {
		return "You don't have any habits yet. Reply with 'ADD [habit name]' to create your first habit.", nil
	}

	today := c.todayFor(user)
	yesterday := today.AddDate(0, 0, -1)

	var b strings.Builder
	b.WriteString("Daily Check-in:\n\n")

	for _, h := range habits {
		st, err := c.svc.StatsFor(ctx, h.ID, today)
		if err != nil {
			return "", fmt.Errorf("stats for %q: %w", h.Name, err)
		}

		b.WriteString(h.Name)
		b.WriteString(" (")
		b.WriteString(formatFrequency(h))
		b.WriteString("): ")

		if st.Streak > 0 {
			fmt.Fprintf(&b, "%d-day streak", st.Streak)
		} else {
			logged, err := c.loggedOn(ctx, h.ID, yesterday)
			if err != nil {
				return "", fmt.Errorf("yesterday log for %q: %w", h.Name, err)
			}
			if logged {
				b.WriteString("starting fresh")
			} else {
				b.WriteString("missed yesterday")
			}
		}

		if h.Frequency == model.FrequencyXPerWeek {
			fmt.Fprintf(&b, ", %d of %d this week", st.Last7.CompletedDays, h.TargetCount)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nReply: Y N Y")
	b.WriteString("\nText STATUS anytime for details.")
	return b.String(), nil
}

// StatusReport renders the detailed per-habit stats for one user.
func (c *Composer) StatusReport(ctx context.Context, user model.User) (string, error) {
	habits, err := c.habits.ListByUser(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("list habits: %w", err)
	}
	if len(habits) == 0 {
		return "You don't have any habits tracked yet.", nil
	}

	today := c.todayFor(user)

	var b strings.Builder
	b.WriteString("Status Report:\n\n")
	for _, h := range habits {
		st, err := c.svc.StatsFor(ctx, h.ID, today)
		if err != nil {
			return "", fmt.Errorf("stats for %q: %w", h.Name, err)
		}
		fmt.Fprintf(&b, "%s\n", h.Name)
		fmt.Fprintf(&b, "Current streak: %d days\n", st.Streak)
		fmt.Fprintf(&b, "Last 7 days: %.1f%% (%d/%d)\n", st.Last7.Rate, st.Last7.CompletedDays, st.Last7.TotalDays)
		fmt.Fprintf(&b, "Last 30 days: %.1f%% (%d/%d)\n\n", st.Last30.Rate, st.Last30.CompletedDays, st.Last30.TotalDays)
	}
	return strings.TrimSpace(b.String()), nil
}

func (c *Composer) loggedOn(ctx context.Context, habitID uuid.UUID, date time.Time) (bool, error) {
	_, err := c.logs.GetByHabitAndDate(ctx, habitID, date)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func formatFrequency(h model.Habit) string {
	switch h.Frequency {
	case model.FrequencyDaily:
		return "Daily"
	case model.FrequencyMultiplePerDay:
		return fmt.Sprintf("%dx/day", h.TargetCount)
	case model.FrequencyXPerWeek:
		return fmt.Sprintf("%dx/week", h.TargetCount)
	default:
		return "Daily"
	}
}

// Package stats computes streaks and completion rates from log history.
// Every function takes an explicit reference date so the math is testable
// without touching the system clock.
package stats

import (
	"math"
	"time"

	"github.com/dailygrain/server/internal/model"
)

// CompletionStats summarizes logged days inside a trailing window.
type CompletionStats struct {
	CompletedDays int
	TotalDays     int
	// Rate is CompletedDays/TotalDays as a percentage, rounded to one
	// decimal place. TotalDays is always the requested window, even if
	// the habit is younger than the window.
	Rate float64
}

// NewCompletionStats derives the completion rate for completedDays logged
// days inside a windowDays-day window.
func NewCompletionStats(completedDays, windowDays int) CompletionStats {
	rate := 0.0
	if windowDays > 0 {
		rate = math.Round(float64(completedDays)/float64(windowDays)*1000) / 10
	}
	return CompletionStats{
		CompletedDays: completedDays,
		TotalDays:     windowDays,
		Rate:          rate,
	}
}

// CurrentStreak counts consecutive logged calendar days walking backward
// from today. Logs must be ordered by date descending. A streak anchored
// at yesterday still counts (the user may simply not have logged yet
// today); a gap of two or more days at the head resets to zero.
func CurrentStreak(logs []model.HabitLog, today time.Time) int {
	if len(logs) == 0 {
		return 0
	}

	today = DateOf(today)
	yesterday := today.AddDate(0, 0, -1)

	head := DateOf(logs[0].LogDate)
	if !head.Equal(today) && !head.Equal(yesterday) {
		return 0
	}

	cursor := today
	if head.Equal(yesterday) {
		cursor = yesterday
	}

	streak := 0
	for _, log := range logs {
		if !DateOf(log.LogDate).Equal(cursor) {
			break
		}
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

// DateOf strips the clock from t, keeping its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateIn is the calendar date of t as observed in loc, at UTC midnight.
// Day boundaries for logging and streaks follow the user's stored timezone.
func DateIn(t time.Time, loc *time.Location) time.Time {
	return DateOf(t.In(loc))
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// FrequencyKind governs how a habit's target count is interpreted.
type FrequencyKind string

const (
	FrequencyDaily          FrequencyKind = "daily"
	FrequencyMultiplePerDay FrequencyKind = "multiple_per_day"
	FrequencyXPerWeek       FrequencyKind = "x_per_week"
)

// Valid reports whether k is one of the known frequency kinds.
func (k FrequencyKind) Valid() bool {
	switch k {
	case FrequencyDaily, FrequencyMultiplePerDay, FrequencyXPerWeek:
		return true
	}
	return false
}

// User represents a subscriber, identified by phone number.
type User struct {
	ID          uuid.UUID
	PhoneNumber string
	Timezone    string
	DigestTime  string // HH:MM, 24h
	IsPaused    bool
	CreatedAt   time.Time
}

// Habit belongs to exactly one user. Habits are presented in creation
// order; users reference them by 1-based position, so the order must be
// identical between a LIST and the logging reply that follows it.
type Habit struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Frequency   FrequencyKind
	TargetCount int
	CreatedAt   time.Time
}

// HabitLog records completions for one habit on one calendar day.
// (habit_id, log_date) is unique; repeated completions on the same day
// increment CompletedCount.
type HabitLog struct {
	ID             uuid.UUID
	HabitID        uuid.UUID
	LogDate        time.Time // civil date, UTC midnight
	CompletedCount int
	LoggedAt       time.Time
}

// StateTag identifies which multi-step flow a user is in the middle of.
type StateTag string

const (
	StateAddingHabit         StateTag = "adding_habit"
	StateAddingHabitMultiple StateTag = "adding_habit_multiple"
	StateAddingHabitWeekly   StateTag = "adding_habit_weekly"
)

// PendingHabit is the payload carried through the add-habit flow.
type PendingHabit struct {
	Name string `json:"name"`
}

// ConversationState marks that the user's next message answers a pending
// multi-step flow instead of starting a fresh command. At most one per user.
type ConversationState struct {
	UserID    uuid.UUID
	Tag       StateTag
	Pending   PendingHabit
	UpdatedAt time.Time
}

// LoginCode is a short-lived SMS verification code for dashboard sign-in.
// Only a salted hash of the code is stored.
type LoginCode struct {
	ID            uuid.UUID
	PhoneNumber   string
	CodeHash      string
	ExpiresAt     time.Time
	ConsumedAt    *time.Time
	AttemptCount  int
	LastAttemptAt *time.Time
	CreatedAt     time.Time
}

package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dailygrain/server/internal/model"
)

// MemoryStore is an in-memory implementation of every store interface.
// It backs DEV_MODE (running without Postgres) and the package tests.
type MemoryStore struct {
	mu sync.RWMutex

	users      map[uuid.UUID]model.User
	usersPhone map[string]uuid.UUID
	habits     map[uuid.UUID]model.Habit
	logs       map[uuid.UUID]map[string]model.HabitLog // habitID -> date -> log
	states     map[uuid.UUID]model.ConversationState
	codes      map[string]model.LoginCode // phone -> active code

	seq int64 // creation tiebreaker for habits created in the same instant
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[uuid.UUID]model.User),
		usersPhone: make(map[string]uuid.UUID),
		habits:     make(map[uuid.UUID]model.Habit),
		logs:       make(map[uuid.UUID]map[string]model.HabitLog),
		states:     make(map[uuid.UUID]model.ConversationState),
		codes:      make(map[string]model.LoginCode),
	}
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// --- UserStore ---

func (m *MemoryStore) GetOrCreateByPhone(_ context.Context, phone string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.usersPhone[phone]; ok {
		return m.users[id], nil
	}
	user := model.User{
		ID:          uuid.New(),
		PhoneNumber: phone,
		Timezone:    "America/New_York",
		DigestTime:  "09:00",
		CreatedAt:   time.Now(),
	}
	m.users[user.ID] = user
	m.usersPhone[phone] = user.ID
	return user, nil
}

func (m *MemoryStore) GetByPhone(_ context.Context, phone string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usersPhone[phone]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return m.users[id], nil
}

func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return user, nil
}

func (m *MemoryStore) SetPaused(_ context.Context, id uuid.UUID, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	user.IsPaused = paused
	m.users[id] = user
	return nil
}

func (m *MemoryStore) SetDigestTime(_ context.Context, id uuid.UUID, digestTime string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	user.DigestTime = digestTime
	m.users[id] = user
	return nil
}

func (m *MemoryStore) ListActive(_ context.Context) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var users []model.User
	for _, user := range m.users {
		if !user.IsPaused {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].PhoneNumber < users[j].PhoneNumber
	})
	return users, nil
}

// --- HabitStore ---

func (m *MemoryStore) Create(_ context.Context, userID uuid.UUID, name string, kind model.FrequencyKind, targetCount int) (model.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	habit := model.Habit{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        name,
		Frequency:   kind,
		TargetCount: targetCount,
		CreatedAt:   time.Now().Add(time.Duration(m.seq)), // strictly increasing
	}
	m.habits[habit.ID] = habit
	return habit, nil
}

func (m *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (model.Habit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	habit, ok := m.habits[id]
	if !ok {
		return model.Habit{}, ErrNotFound
	}
	return habit, nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Habit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var habits []model.Habit
	for _, habit := range m.habits {
		if habit.UserID == userID {
			habits = append(habits, habit)
		}
	}
	sort.Slice(habits, func(i, j int) bool {
		return habits[i].CreatedAt.Before(habits[j].CreatedAt)
	})
	return habits, nil
}

func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.habits, id)
	delete(m.logs, id)
	return nil
}

// --- HabitLogStore ---

func (m *MemoryStore) UpsertCompletion(_ context.Context, habitID uuid.UUID, date time.Time, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byDate, ok := m.logs[habitID]
	if !ok {
		byDate = make(map[string]model.HabitLog)
		m.logs[habitID] = byDate
	}
	key := dateKey(date)
	if existing, ok := byDate[key]; ok {
		existing.CompletedCount += count
		existing.LoggedAt = time.Now()
		byDate[key] = existing
		return nil
	}
	byDate[key] = model.HabitLog{
		ID:             uuid.New(),
		HabitID:        habitID,
		LogDate:        time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		CompletedCount: count,
		LoggedAt:       time.Now(),
	}
	return nil
}

func (m *MemoryStore) GetByHabitAndDate(_ context.Context, habitID uuid.UUID, date time.Time) (model.HabitLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	log, ok := m.logs[habitID][dateKey(date)]
	if !ok {
		return model.HabitLog{}, ErrNotFound
	}
	return log, nil
}

func (m *MemoryStore) ListRecent(_ context.Context, habitID uuid.UUID, limit int) ([]model.HabitLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var logs []model.HabitLog
	for _, log := range m.logs[habitID] {
		logs = append(logs, log)
	}
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].LogDate.After(logs[j].LogDate)
	})
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (m *MemoryStore) CountInWindow(_ context.Context, habitID uuid.UUID, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, log := range m.logs[habitID] {
		if !log.LogDate.Before(since) {
			count++
		}
	}
	return count, nil
}

// --- ConversationStateStore ---

func (m *MemoryStore) Get(_ context.Context, userID uuid.UUID) (model.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[userID]
	if !ok {
		return model.ConversationState{}, ErrNotFound
	}
	return state, nil
}

func (m *MemoryStore) Set(_ context.Context, userID uuid.UUID, tag model.StateTag, pending model.PendingHabit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[userID] = model.ConversationState{
		UserID:    userID,
		Tag:       tag,
		Pending:   pending,
		UpdatedAt: time.Now(),
	}
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, userID)
	return nil
}

// --- LoginCodeStore ---

func (m *MemoryStore) CreateOrReplace(_ context.Context, phone, codeHash string, expiresAt time.Time) (model.LoginCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code := model.LoginCode{
		ID:          uuid.New(),
		PhoneNumber: phone,
		CodeHash:    codeHash,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now(),
	}
	m.codes[strings.ToLower(phone)] = code
	return code, nil
}

func (m *MemoryStore) GetActive(_ context.Context, phone string) (model.LoginCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	code, ok := m.codes[strings.ToLower(phone)]
	if !ok || code.ConsumedAt != nil || time.Now().After(code.ExpiresAt) {
		return model.LoginCode{}, ErrNotFound
	}
	return code, nil
}

func (m *MemoryStore) RecordAttempt(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for phone, code := range m.codes {
		if code.ID == id {
			now := time.Now()
			code.AttemptCount++
			code.LastAttemptAt = &now
			m.codes[phone] = code
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) MarkConsumed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for phone, code := range m.codes {
		if code.ID == id {
			now := time.Now()
			code.ConsumedAt = &now
			m.codes[phone] = code
			return nil
		}
	}
	return ErrNotFound
}

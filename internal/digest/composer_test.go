package digest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dailygrain/server/internal/habit"
	"github.com/dailygrain/server/internal/model"
	"github.com/dailygrain/server/internal/repo"
)

var composerNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestComposer(t *testing.T) (*Composer, *repo.MemoryStore, model.User) {
	t.Helper()
	store := repo.NewMemoryStore()
	svc := habit.NewService(store, store)
	composer := NewComposer(store, store, svc).WithClock(func() time.Time { return composerNow })

	user, err := store.GetOrCreateByPhone(context.Background(), "+15550100")
	require.NoError(t, err)
	// UTC keeps the date math in the tests aligned with composerNow.
	user.Timezone = "UTC"
	return composer, store, user
}

func mustCreate(t *testing.T, store *repo.MemoryStore, user model.User, name string, kind model.FrequencyKind, target int) model.Habit {
	t.Helper()
	h, err := store.Create(context.Background(), user.ID, name, kind, target)
	require.NoError(t, err)
	return h
}

func logOn(t *testing.T, store *repo.MemoryStore, h model.Habit, daysAgo int) {
	t.Helper()
	date := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysAgo)
	require.NoError(t, store.UpsertCompletion(context.Background(), h.ID, date, 1))
}

func TestDailyDigest_noHabitsOnboards(t *testing.T) {
	composer, _, user := newTestComposer(t)
	text, err := composer.DailyDigest(context.Background(), user)
	require.NoError(t, err)
	assert.Contains(t, text, "create your first habit")
}

func TestDailyDigest_streakLine(t *testing.T) {
	composer, store, user := newTestComposer(t)
	h := mustCreate(t, store, user, "Run", model.FrequencyDaily, 1)
	logOn(t, store, h, 0)
	logOn(t, store, h, 1)
	logOn(t, store, h, 2)

	text, err := composer.DailyDigest(context.Background(), user)
	require.NoError(t, err)
	assert.Contains(t, text, "Daily Check-in:")
	assert.Contains(t, text, "Run (Daily): 3-day streak")
	assert.Contains(t, text, "Reply: Y N Y")
	assert.Contains(t, text, "Text STATUS anytime for details.")
}

func TestDailyDigest_missedYesterday(t *testing.T) {
	composer, store, user := newTestComposer(t)
	h := mustCreate(t, store, user, "Stretch", model.FrequencyDaily, 1)
	logOn(t, store, h, 3) // stale: streak over, nothing yesterday

	text, err := composer.DailyDigest(context.Background(), user)
	require.NoError(t, err)
	assert.Contains(t, text, "Stretch (Daily): missed yesterday")
}

func TestDailyDigest_weeklyProgress(t *testing.T) {
	composer, store, user := newTestComposer(t)
	h := mustCreate(t, store, user, "Gym", model.FrequencyXPerWeek, 4)
	logOn(t, store, h, 1)
	logOn(t, store, h, 3)

	text, err := composer.DailyDigest(context.Background(), user)
	require.NoError(t, err)
	assert.Contains(t, text, "Gym (4x/week):")
	assert.Contains(t, text, ", 2 of 4 this week")
}

func TestDailyDigest_habitsInCreationOrder(t *testing.T) {
	composer, store, user := newTestComposer(t)
	mustCreate(t, store, user, "First", model.FrequencyDaily, 1)
	mustCreate(t, store, user, "Second", model.FrequencyMultiplePerDay, 2)

	text, err := composer.DailyDigest(context.Background(), user)
	require.NoError(t, err)
	assert.Contains(t, text, "First (Daily)")
	assert.Contains(t, text, "Second (2x/day)")
	assert.Less(t, strings.Index(text, "First"), strings.Index(text, "Second"))
}

func TestStatusReport_empty(t *testing.T) {
	composer, _, user := newTestComposer(t)
	text, err := composer.StatusReport(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "You don't have any habits tracked yet.", text)
}

func TestStatusReport_ratesAndCounts(t *testing.T) {
	composer, store, user := newTestComposer(t)
	h := mustCreate(t, store, user, "Read", model.FrequencyDaily, 1)
	// Exactly 3 distinct days inside the 7-day window.
	logOn(t, store, h, 0)
	logOn(t, store, h, 1)
	logOn(t, store, h, 4)

	text, err := composer.StatusReport(context.Background(), user)
	require.NoError(t, err)
	assert.Contains(t, text, "Status Report:")
	assert.Contains(t, text, "Read")
	assert.Contains(t, text, "Current streak: 2 days")
	assert.Contains(t, text, "Last 7 days: 42.9% (3/7)")
	assert.Contains(t, text, "Last 30 days: 10.0% (3/30)")
}

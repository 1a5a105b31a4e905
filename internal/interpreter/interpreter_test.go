package interpreter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dailygrain/server/internal/digest"
	"github.com/dailygrain/server/internal/habit"
	"github.com/dailygrain/server/internal/model"
	"github.com/dailygrain/server/internal/repo"
)

const testPhone = "+15551234567"

// fixedNow is 11:00 on June 10 2025 in New York, the default user timezone.
var fixedNow = time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

func newTestInterpreter(t *testing.T) (*Interpreter, *repo.MemoryStore) {
	t.Helper()
	store := repo.NewMemoryStore()
	svc := habit.NewService(store, store)
	composer := digest.NewComposer(store, store, svc).WithClock(func() time.Time { return fixedNow })
	interp := New(store, store, store, store, svc, composer, zap.NewNop()).
		WithClock(func() time.Time { return fixedNow })
	return interp, store
}

func handle(t *testing.T, interp *Interpreter, msg string) string {
	t.Helper()
	reply, err := interp.HandleMessage(context.Background(), testPhone, msg)
	require.NoError(t, err)
	return reply
}

func addHabit(t *testing.T, interp *Interpreter, name, choice string, count string) {
	t.Helper()
	handle(t, interp, "ADD "+name)
	handle(t, interp, choice)
	if count != "" {
		handle(t, interp, count)
	}
}

func userToday(t *testing.T, store *repo.MemoryStore) time.Time {
	t.Helper()
	return time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
}

func TestUnknownTextReturnsHelp(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	reply := handle(t, interp, "what is this")
	assert.Contains(t, reply, "Daily Grain")
	assert.Contains(t, reply, "ADD [name]")
}

func TestAddFlowDaily(t *testing.T) {
	interp, store := newTestInterpreter(t)

	reply := handle(t, interp, "ADD Run")
	assert.Contains(t, reply, `Adding habit: "Run"`)
	assert.Contains(t, reply, "Reply with a number (1-3)")

	reply = handle(t, interp, "1")
	assert.Contains(t, reply, `Added daily habit: "Run"`)

	user, err := store.GetByPhone(context.Background(), testPhone)
	require.NoError(t, err)
	habits, err := store.ListByUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, habits, 1)
	assert.Equal(t, "Run", habits[0].Name)
	assert.Equal(t, model.FrequencyDaily, habits[0].Frequency)
	assert.Equal(t, 1, habits[0].TargetCount)

	// State must be cleared after completion.
	_, err = store.Get(context.Background(), user.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	reply = handle(t, interp, "LIST")
	assert.Contains(t, reply, "Run (Daily)")
}

func TestAddFlowWeeklyRejectsOutOfRange(t *testing.T) {
	interp, store := newTestInterpreter(t)

	handle(t, interp, "ADD Gym")
	reply := handle(t, interp, "3")
	assert.Contains(t, reply, "How many times per week?")

	// Out of [1,7]: re-prompt, state unchanged.
	reply = handle(t, interp, "9")
	assert.Contains(t, reply, "between 1 and 7")

	reply = handle(t, interp, "4")
	assert.Contains(t, reply, `Added habit: "Gym" (4x per week)`)

	user, _ := store.GetByPhone(context.Background(), testPhone)
	habits, err := store.ListByUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, habits, 1)
	assert.Equal(t, model.FrequencyXPerWeek, habits[0].Frequency)
	assert.Equal(t, 4, habits[0].TargetCount)
}

func TestAddFlowMultiplePerDay(t *testing.T) {
	interp, store := newTestInterpreter(t)

	handle(t, interp, "ADD Drink water")
	reply := handle(t, interp, "2")
	assert.Contains(t, reply, "How many times per day?")

	reply = handle(t, interp, "zero")
	assert.Contains(t, reply, "valid number (1 or more)")

	reply = handle(t, interp, "8")
	assert.Contains(t, reply, `Added habit: "Drink water" (8x per day)`)

	user, _ := store.GetByPhone(context.Background(), testPhone)
	habits, _ := store.ListByUser(context.Background(), user.ID)
	require.Len(t, habits, 1)
	assert.Equal(t, model.FrequencyMultiplePerDay, habits[0].Frequency)
	assert.Equal(t, 8, habits[0].TargetCount)
}

func TestAddFlowInvalidFrequencyChoiceReprompts(t *testing.T) {
	interp, store := newTestInterpreter(t)

	handle(t, interp, "ADD Meditate")
	reply := handle(t, interp, "maybe")
	assert.Equal(t, "Please reply with 1, 2, or 3", reply)

	// Still answering the same prompt.
	user, _ := store.GetByPhone(context.Background(), testPhone)
	state, err := store.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateAddingHabit, state.Tag)
	assert.Equal(t, "Meditate", state.Pending.Name)
}

func TestCommandOutranksOpenFlow(t *testing.T) {
	// A top-level keyword typed mid-flow dispatches as a command; a bare
	// number stays a flow answer.
	interp, store := newTestInterpreter(t)

	handle(t, interp, "ADD Read")
	reply := handle(t, interp, "STATUS")
	assert.Contains(t, reply, "don't have any habits tracked yet")

	// Flow is still open afterwards.
	reply = handle(t, interp, "1")
	assert.Contains(t, reply, `Added daily habit: "Read"`)

	user, _ := store.GetByPhone(context.Background(), testPhone)
	habits, _ := store.ListByUser(context.Background(), user.ID)
	assert.Len(t, habits, 1)
}

func TestFlowClaimsBareNumberBeforeLogging(t *testing.T) {
	interp, store := newTestInterpreter(t)
	addHabit(t, interp, "Run", "1", "")

	// "2" mid-flow is the frequency answer, not "log habit #2".
	handle(t, interp, "ADD Stretch")
	reply := handle(t, interp, "2")
	assert.Contains(t, reply, "How many times per day?")
	reply = handle(t, interp, "5")
	assert.Contains(t, reply, "(5x per day)")

	user, _ := store.GetByPhone(context.Background(), testPhone)
	habits, _ := store.ListByUser(context.Background(), user.ID)
	require.Len(t, habits, 2)

	// Nothing was logged on Run along the way.
	_, err := store.GetByHabitAndDate(context.Background(), habits[0].ID, userToday(t, store))
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestCorruptStateSelfHeals(t *testing.T) {
	interp, store := newTestInterpreter(t)

	user, err := store.GetOrCreateByPhone(context.Background(), testPhone)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), user.ID, model.StateTag("garbled"), model.PendingHabit{}))

	reply := handle(t, interp, "anything")
	assert.Contains(t, reply, "Daily Grain")

	_, err = store.Get(context.Background(), user.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestStopIsIdempotent(t *testing.T) {
	interp, store := newTestInterpreter(t)

	want := "You've been unsubscribed. Text START to resume."
	assert.Equal(t, want, handle(t, interp, "STOP"))
	assert.Equal(t, want, handle(t, interp, "stop"))

	user, _ := store.GetByPhone(context.Background(), testPhone)
	assert.True(t, user.IsPaused)

	reply := handle(t, interp, "UNSUBSCRIBE")
	assert.Equal(t, want, reply)
}

func TestStartMentionsDigestTime(t *testing.T) {
	interp, store := newTestInterpreter(t)

	handle(t, interp, "STOP")
	reply := handle(t, interp, "START")
	assert.Contains(t, reply, "09:00")

	user, _ := store.GetByPhone(context.Background(), testPhone)
	assert.False(t, user.IsPaused)
}

func TestPauseResume(t *testing.T) {
	interp, store := newTestInterpreter(t)

	reply := handle(t, interp, "PAUSE")
	assert.Contains(t, reply, "paused")
	user, _ := store.GetByPhone(context.Background(), testPhone)
	assert.True(t, user.IsPaused)

	reply = handle(t, interp, "RESUME")
	assert.Contains(t, reply, "resumed")
	user, _ = store.GetByPhone(context.Background(), testPhone)
	assert.False(t, user.IsPaused)
}

func TestTimeCommand(t *testing.T) {
	interp, store := newTestInterpreter(t)

	reply := handle(t, interp, "TIME 8:30")
	assert.Equal(t, "Daily check-in time set to 8:30.", reply)
	user, _ := store.GetByPhone(context.Background(), testPhone)
	assert.Equal(t, "8:30", user.DigestTime)

	for _, bad := range []string{"TIME 25:00", "TIME 12:60", "TIME noon", "TIME 130"} {
		reply = handle(t, interp, bad)
		assert.Contains(t, reply, "time format", "input %q", bad)
	}
	// Failed validation must not overwrite the stored time.
	user, _ = store.GetByPhone(context.Background(), testPhone)
	assert.Equal(t, "8:30", user.DigestTime)
}

func TestRemoveHabit(t *testing.T) {
	interp, store := newTestInterpreter(t)
	addHabit(t, interp, "Morning run", "1", "")

	// Case-insensitive exact match.
	reply := handle(t, interp, "REMOVE morning RUN")
	assert.Equal(t, "Removed: Morning run", reply)

	user, _ := store.GetByPhone(context.Background(), testPhone)
	habits, _ := store.ListByUser(context.Background(), user.ID)
	assert.Empty(t, habits)
}

func TestRemoveUnknownHabitIsGuidance(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	addHabit(t, interp, "Run", "1", "")

	reply := handle(t, interp, "REMOVE flossing")
	assert.Contains(t, reply, `"flossing" not found`)
	assert.Contains(t, reply, "Reply LIST")
}

func TestYesNoLogging(t *testing.T) {
	interp, store := newTestInterpreter(t)
	addHabit(t, interp, "A", "1", "")
	addHabit(t, interp, "B", "1", "")
	addHabit(t, interp, "C", "1", "")

	reply := handle(t, interp, "Y N Y")
	assert.Equal(t, "Logged: A, C\nText STATUS anytime for details.", reply)

	user, _ := store.GetByPhone(context.Background(), testPhone)
	habits, _ := store.ListByUser(context.Background(), user.ID)
	today := userToday(t, store)

	for i, wantLogged := range []bool{true, false, true} {
		_, err := store.GetByHabitAndDate(context.Background(), habits[i].ID, today)
		if wantLogged {
			assert.NoError(t, err, "habit %s", habits[i].Name)
		} else {
			assert.ErrorIs(t, err, repo.ErrNotFound, "habit %s", habits[i].Name)
		}
	}
}

func TestYesNoExtraTokensIgnored(t *testing.T) {
	interp, store := newTestInterpreter(t)
	addHabit(t, interp, "A", "1", "")
	addHabit(t, interp, "B", "1", "")

	reply := handle(t, interp, "yes nope y n")
	assert.Equal(t, "Logged: A\nText STATUS anytime for details.", reply)

	user, _ := store.GetByPhone(context.Background(), testPhone)
	habits, _ := store.ListByUser(context.Background(), user.ID)
	_, err := store.GetByHabitAndDate(context.Background(), habits[1].ID, userToday(t, store))
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestYesNoFewerTokensLeavesTrailingHabitsAlone(t *testing.T) {
	interp, store := newTestInterpreter(t)
	addHabit(t, interp, "A", "1", "")
	addHabit(t, interp, "B", "1", "")
	addHabit(t, interp, "C", "1", "")

	reply := handle(t, interp, "Y")
	assert.Contains(t, reply, "Logged: A")

	user, _ := store.GetByPhone(context.Background(), testPhone)
	habits, _ := store.ListByUser(context.Background(), user.ID)
	for _, h := range habits[1:] {
		_, err := store.GetByHabitAndDate(context.Background(), h.ID, userToday(t, store))
		assert.ErrorIs(t, err, repo.ErrNotFound, "habit %s", h.Name)
	}
}

func TestYesNoAllNo(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	addHabit(t, interp, "A", "1", "")

	reply := handle(t, interp, "N")
	assert.Contains(t, reply, "No habits logged today")
}

func TestYesNoWithoutHabits(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	reply := handle(t, interp, "Y")
	assert.Contains(t, reply, "don't have any habits yet")
}

func TestNumericLogging(t *testing.T) {
	interp, store := newTestInterpreter(t)
	addHabit(t, interp, "A", "1", "")
	addHabit(t, interp, "B", "1", "")
	addHabit(t, interp, "C", "1", "")

	reply := handle(t, interp, "1 3")
	assert.Equal(t, "Logged: A, C\nText STATUS anytime for details.", reply)

	user, _ := store.GetByPhone(context.Background(), testPhone)
	habits, _ := store.ListByUser(context.Background(), user.ID)
	_, err := store.GetByHabitAndDate(context.Background(), habits[1].ID, userToday(t, store))
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestNumericLoggingOutOfRangeDropped(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	addHabit(t, interp, "A", "1", "")
	addHabit(t, interp, "B", "1", "")

	// Valid indices log; out-of-range indices vanish from the reply.
	reply := handle(t, interp, "2 7 0")
	assert.Equal(t, "Logged: B\nText STATUS anytime for details.", reply)

	// All invalid: name the valid range.
	reply = handle(t, interp, "9 12")
	assert.Contains(t, reply, "You have 2 habit(s)")
}

func TestNumericLoggingSameHabitTwiceIncrements(t *testing.T) {
	interp, store := newTestInterpreter(t)
	addHabit(t, interp, "A", "1", "")

	handle(t, interp, "1 1")

	user, _ := store.GetByPhone(context.Background(), testPhone)
	habits, _ := store.ListByUser(context.Background(), user.ID)
	log, err := store.GetByHabitAndDate(context.Background(), habits[0].ID, userToday(t, store))
	require.NoError(t, err)
	assert.Equal(t, 2, log.CompletedCount)
}

// failingUserStore simulates a storage outage on the very first touch.
type failingUserStore struct {
	repo.UserStore
}

func (f failingUserStore) GetOrCreateByPhone(context.Context, string) (model.User, error) {
	return model.User{}, fmt.Errorf("connection refused")
}

func TestStorageErrorPropagates(t *testing.T) {
	store := repo.NewMemoryStore()
	svc := habit.NewService(store, store)
	composer := digest.NewComposer(store, store, svc)
	interp := New(failingUserStore{store}, store, store, store, svc, composer, zap.NewNop())

	_, err := interp.HandleMessage(context.Background(), testPhone, "HELP")
	require.Error(t, err)
	assert.False(t, errors.Is(err, repo.ErrNotFound))
}

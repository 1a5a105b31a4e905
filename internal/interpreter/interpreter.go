// Package interpreter turns inbound SMS bodies into commands and replies.
//
// Dispatch order is a contract: compliance keywords and explicit commands
// win over an open conversation flow, the flow wins over the logging
// shorthands, and anything else falls back to HELP.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dailygrain/server/internal/digest"
	"github.com/dailygrain/server/internal/habit"
	"github.com/dailygrain/server/internal/model"
	"github.com/dailygrain/server/internal/repo"
	"github.com/dailygrain/server/internal/stats"
	"github.com/dailygrain/server/pkg/metrics"
)

var (
	timePattern    = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)
	numbersPattern = regexp.MustCompile(`^\d+(\s+\d+)*$`)
)

var yesTokens = map[string]bool{"Y": true, "YES": true, "YEP": true}
var noTokens = map[string]bool{"N": true, "NO": true, "NOPE": true}

const helpMessage = "Daily Grain\n\n" +
	"Commands:\n" +
	"• ADD [name] - Add a habit\n" +
	"• REMOVE [name] - Remove a habit\n" +
	"• LIST - See your habits\n" +
	"• STATUS - View stats\n" +
	"• TIME HH:MM - Set check-in time\n" +
	"• PAUSE / RESUME - Pause/resume\n" +
	"• STOP - Unsubscribe"

// Interpreter handles one inbound message at a time per phone number.
// Messages from different users proceed in parallel; messages from the
// same user are serialized so racing replies cannot corrupt the
// conversation state.
type Interpreter struct {
	users    repo.UserStore
	habits   repo.HabitStore
	logs     repo.HabitLogStore
	states   repo.ConversationStateStore
	svc      *habit.Service
	composer *digest.Composer
	logger   *zap.Logger

	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an interpreter.
func New(
	users repo.UserStore,
	habits repo.HabitStore,
	logs repo.HabitLogStore,
	states repo.ConversationStateStore,
	svc *habit.Service,
	composer *digest.Composer,
	logger *zap.Logger,
) *Interpreter {
	return &Interpreter{
		users:    users,
		habits:   habits,
		logs:     logs,
		states:   states,
		svc:      svc,
		composer: composer,
		logger:   logger,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the wall clock, for tests.
func (i *Interpreter) WithClock(now func() time.Time) *Interpreter {
	i.now = now
	return i
}

func (i *Interpreter) phoneLock(phone string) *sync.Mutex {
	i.mu.Lock()
	defer i.mu.Unlock()
	lock, ok := i.locks[phone]
	if !ok {
		lock = &sync.Mutex{}
		i.locks[phone] = lock
	}
	return lock
}

// HandleMessage interprets one inbound message and returns the reply text.
// Malformed input never produces an error; it produces a guidance reply.
// A non-nil error means a store failed and the caller should substitute a
// generic apology.
func (i *Interpreter) HandleMessage(ctx context.Context, phone, body string) (string, error) {
	lock := i.phoneLock(phone)
	lock.Lock()
	defer lock.Unlock()

	started := i.now()
	command := "help"
	defer func() {
		metrics.ObserveMessageHandled(command, i.now().Sub(started))
	}()

	user, err := i.users.GetOrCreateByPhone(ctx, phone)
	if err != nil {
		return "", fmt.Errorf("get or create user: %w", err)
	}

	msg := strings.TrimSpace(body)
	upper := strings.ToUpper(msg)

	switch {
	case upper == "STOP" || upper == "UNSUBSCRIBE":
		command = "stop"
		if err := i.users.SetPaused(ctx, user.ID, true); err != nil {
			return "", err
		}
		return "You've been unsubscribed. Text START to resume.", nil

	case upper == "START":
		command = "start"
		if err := i.users.SetPaused(ctx, user.ID, false); err != nil {
			return "", err
		}
		return fmt.Sprintf("Welcome back to Daily Grain. You'll receive your daily check-in at %s.", digestTimeOf(user)), nil

	case upper == "STATUS":
		command = "status"
		return i.composer.StatusReport(ctx, user)

	case upper == "PAUSE":
		command = "pause"
		if err := i.users.SetPaused(ctx, user.ID, true); err != nil {
			return "", err
		}
		return "Daily check-ins paused. Text RESUME to continue.", nil

	case upper == "RESUME":
		command = "resume"
		if err := i.users.SetPaused(ctx, user.ID, false); err != nil {
			return "", err
		}
		return fmt.Sprintf("Daily check-ins resumed. You'll receive your next check-in at %s.", digestTimeOf(user)), nil

	case strings.HasPrefix(upper, "TIME "):
		command = "time"
		return i.handleSetTime(ctx, user, strings.TrimSpace(msg[5:]))

	case strings.HasPrefix(upper, "REMOVE "):
		command = "remove"
		return i.handleRemoveHabit(ctx, user, strings.TrimSpace(msg[7:]))

	case strings.HasPrefix(upper, "ADD "):
		command = "add"
		return i.handleAddHabit(ctx, user, strings.TrimSpace(msg[4:]))

	case upper == "LIST":
		command = "list"
		return i.composer.DailyDigest(ctx, user)

	case upper == "HELP":
		command = "help"
		return helpMessage, nil
	}

	// An open conversation flow claims the message before the logging
	// shorthands do: a bare "3" mid-flow is a frequency answer, not a
	// habit index.
	state, err := i.states.Get(ctx, user.ID)
	if err == nil {
		command = "flow"
		return i.handleStateMessage(ctx, user, state, msg)
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return "", err
	}

	if isYesNoReply(msg) {
		command = "yn_log"
		return i.handleYesNoLogHabits(ctx, user, msg)
	}

	if numbersPattern.MatchString(msg) {
		command = "number_log"
		return i.handleLogHabits(ctx, user, msg)
	}

	return helpMessage, nil
}

func digestTimeOf(user model.User) string {
	if user.DigestTime == "" {
		return "09:00"
	}
	return user.DigestTime
}

func (i *Interpreter) todayFor(user model.User) time.Time {
	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return stats.DateIn(i.now(), loc)
}

func (i *Interpreter) handleSetTime(ctx context.Context, user model.User, arg string) (string, error) {
	if !timePattern.MatchString(arg) {
		return "Please use time format (e.g., TIME 08:30 or TIME 8:30)", nil
	}
	if err := i.users.SetDigestTime(ctx, user.ID, arg); err != nil {
		return "", err
	}
	return fmt.Sprintf("Daily check-in time set to %s.", arg), nil
}

func (i *Interpreter) handleRemoveHabit(ctx context.Context, user model.User, arg string) (string, error) {
	name := strings.ToLower(arg)
	if name == "" {
		return "Please specify a habit name. Example: 'REMOVE Morning run'", nil
	}

	habits, err := i.habits.ListByUser(ctx, user.ID)
	if err != nil {
		return "", err
	}
	for _, h := range habits {
		// Case-insensitive exact match; duplicates resolve to the first.
		if strings.ToLower(h.Name) == name {
			if err := i.habits.Delete(ctx, h.ID); err != nil {
				return "", err
			}
			return fmt.Sprintf("Removed: %s", h.Name), nil
		}
	}
	return fmt.Sprintf("Habit %q not found. Reply LIST to see your habits.", name), nil
}

func (i *Interpreter) handleAddHabit(ctx context.Context, user model.User, name string) (string, error) {
	if name == "" {
		return "Please provide a habit name. Example: 'ADD Morning run'", nil
	}
	if err := i.states.Set(ctx, user.ID, model.StateAddingHabit, model.PendingHabit{Name: name}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Adding habit: %q\n\nWhat's the frequency?\n1. Daily\n2. Multiple times per day\n3. X times per week\n\nReply with a number (1-3)", name), nil
}

func (i *Interpreter) handleStateMessage(ctx context.Context, user model.User, state model.ConversationState, msg string) (string, error) {
	answer := strings.TrimSpace(msg)

	switch state.Tag {
	case model.StateAddingHabit:
		switch answer {
		case "1":
			if _, err := i.svc.Create(ctx, user.ID, state.Pending.Name, model.FrequencyDaily, 1); err != nil {
				return "", err
			}
			if err := i.states.Clear(ctx, user.ID); err != nil {
				return "", err
			}
			return fmt.Sprintf("Added daily habit: %q\nReply LIST to see all habits.", state.Pending.Name), nil
		case "2":
			if err := i.states.Set(ctx, user.ID, model.StateAddingHabitMultiple, state.Pending); err != nil {
				return "", err
			}
			return "How many times per day? (Reply with a number)", nil
		case "3":
			if err := i.states.Set(ctx, user.ID, model.StateAddingHabitWeekly, state.Pending); err != nil {
				return "", err
			}
			return "How many times per week? (Reply with a number)", nil
		default:
			return "Please reply with 1, 2, or 3", nil
		}

	case model.StateAddingHabitMultiple:
		count, err := strconv.Atoi(answer)
		if err != nil || count < 1 {
			return "Please reply with a valid number (1 or more)", nil
		}
		if _, err := i.svc.Create(ctx, user.ID, state.Pending.Name, model.FrequencyMultiplePerDay, count); err != nil {
			return "", err
		}
		if err := i.states.Clear(ctx, user.ID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Added habit: %q (%dx per day)\nReply LIST to see all habits.", state.Pending.Name, count), nil

	case model.StateAddingHabitWeekly:
		count, err := strconv.Atoi(answer)
		if err != nil || count < 1 || count > 7 {
			return "Please reply with a number between 1 and 7", nil
		}
		if _, err := i.svc.Create(ctx, user.ID, state.Pending.Name, model.FrequencyXPerWeek, count); err != nil {
			return "", err
		}
		if err := i.states.Clear(ctx, user.ID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Added habit: %q (%dx per week)\nReply LIST to see all habits.", state.Pending.Name, count), nil
	}

	// Unknown tag means a corrupt record. Clear it and start over rather
	// than wedge the user.
	i.logger.Warn("clearing unknown conversation state",
		zap.String("phone", user.PhoneNumber),
		zap.String("state", string(state.Tag)))
	if err := i.states.Clear(ctx, user.ID); err != nil {
		return "", err
	}
	return helpMessage, nil
}

func isYesNoReply(msg string) bool {
	tokens := strings.Fields(strings.ToUpper(msg))
	if len(tokens) == 0 {
		return false
	}
	for _, token := range tokens {
		if !yesTokens[token] && !noTokens[token] {
			return false
		}
	}
	return true
}

func (i *Interpreter) handleYesNoLogHabits(ctx context.Context, user model.User, msg string) (string, error) {
	habits, err := i.habits.ListByUser(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if len(habits) == 0 {
		return "You don't have any habits yet. Reply with 'ADD [habit name]' to create one.", nil
	}

	tokens := strings.Fields(strings.ToUpper(msg))
	today := i.todayFor(user)
	var logged []string

	// Tokens map positionally onto the habit list; extras are ignored,
	// untouched trailing habits stay untouched.
	for idx, token := range tokens {
		if idx >= len(habits) {
			break
		}
		if yesTokens[token] {
			if err := i.svc.Log(ctx, habits[idx].ID, today, 1); err != nil {
				return "", err
			}
			logged = append(logged, habits[idx].Name)
		}
	}

	if len(logged) == 0 {
		return "No habits logged today. That's okay—tomorrow is a fresh start.", nil
	}
	return fmt.Sprintf("Logged: %s\nText STATUS anytime for details.", strings.Join(logged, ", ")), nil
}

func (i *Interpreter) handleLogHabits(ctx context.Context, user model.User, msg string) (string, error) {
	habits, err := i.habits.ListByUser(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if len(habits) == 0 {
		return "You don't have any habits yet. Reply 'ADD [habit name]' to create one.", nil
	}

	today := i.todayFor(user)
	var logged []string

	for _, field := range strings.Fields(msg) {
		num, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		if num < 1 || num > len(habits) {
			continue // out-of-range indices are silently dropped
		}
		h := habits[num-1]
		if err := i.svc.Log(ctx, h.ID, today, 1); err != nil {
			return "", err
		}
		logged = append(logged, h.Name)
	}

	if len(logged) == 0 {
		return fmt.Sprintf("Invalid habit numbers. You have %d habit(s). Reply LIST to see them.", len(habits)), nil
	}
	return fmt.Sprintf("Logged: %s\nText STATUS anytime for details.", strings.Join(logged, ", ")), nil
}

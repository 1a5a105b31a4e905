package digest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dailygrain/server/internal/habit"
	"github.com/dailygrain/server/internal/model"
	"github.com/dailygrain/server/internal/repo"
)

// recordingTransport captures sends and fails selected recipients.
type recordingTransport struct {
	mu      sync.Mutex
	sent    map[string]string
	failFor map[string]bool
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{sent: make(map[string]string), failFor: make(map[string]bool)}
}

func (r *recordingTransport) Send(_ context.Context, to, body string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[to] {
		return "", fmt.Errorf("carrier rejected")
	}
	r.sent[to] = body
	return "SM" + to, nil
}

func TestDispatcherSkipsPausedUsers(t *testing.T) {
	store := repo.NewMemoryStore()
	ctx := context.Background()

	active, err := store.GetOrCreateByPhone(ctx, "+15550001")
	require.NoError(t, err)
	paused, err := store.GetOrCreateByPhone(ctx, "+15550002")
	require.NoError(t, err)
	require.NoError(t, store.SetPaused(ctx, paused.ID, true))

	transport := newRecordingTransport()
	dispatcher := newTestDispatcher(store, transport)

	summary, err := dispatcher.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Sent: 1, Total: 1}, summary)
	assert.Contains(t, transport.sent, active.PhoneNumber)
	assert.NotContains(t, transport.sent, paused.PhoneNumber)
}

func TestDispatcherIsolatesDeliveryFailures(t *testing.T) {
	store := repo.NewMemoryStore()
	ctx := context.Background()

	for _, phone := range []string{"+15550001", "+15550002", "+15550003"} {
		_, err := store.GetOrCreateByPhone(ctx, phone)
		require.NoError(t, err)
	}

	transport := newRecordingTransport()
	transport.failFor["+15550002"] = true
	dispatcher := newTestDispatcher(store, transport)

	summary, err := dispatcher.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Sent: 2, Total: 3}, summary)
}

// brokenHabitStore fails every listing, simulating a storage outage
// during composition.
type brokenHabitStore struct {
	repo.HabitStore
}

func (b brokenHabitStore) ListByUser(context.Context, uuid.UUID) ([]model.Habit, error) {
	return nil, fmt.Errorf("relation missing")
}

func TestDispatcherIsolatesCompositionFailures(t *testing.T) {
	store := repo.NewMemoryStore()
	ctx := context.Background()

	_, err := store.GetOrCreateByPhone(ctx, "+15550001")
	require.NoError(t, err)

	broken := brokenHabitStore{store}
	svc := habit.NewService(broken, store)
	composer := NewComposer(broken, store, svc)
	transport := newRecordingTransport()
	dispatcher := NewDispatcher(store, composer, transport, zap.NewNop())

	summary, err := dispatcher.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Sent: 0, Total: 1}, summary)
	assert.Empty(t, transport.sent)
}

func newTestDispatcher(store *repo.MemoryStore, transport *recordingTransport) *Dispatcher {
	svc := habit.NewService(store, store)
	composer := NewComposer(store, store, svc).WithClock(func() time.Time { return composerNow })
	return NewDispatcher(store, composer, transport, zap.NewNop())
}

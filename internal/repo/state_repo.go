package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dailygrain/server/internal/model"
)

// ConversationStateStore persists the at-most-one in-progress flow per user.
type ConversationStateStore interface {
	// Get returns ErrNotFound when the user has no pending flow.
	Get(ctx context.Context, userID uuid.UUID) (model.ConversationState, error)
	Set(ctx context.Context, userID uuid.UUID, tag model.StateTag, pending model.PendingHabit) error
	Clear(ctx context.Context, userID uuid.UUID) error
}

type conversationStateStore struct {
	db *sql.DB
}

// NewConversationStateStore creates a Postgres-backed ConversationStateStore.
func NewConversationStateStore(db *sql.DB) ConversationStateStore {
	return &conversationStateStore{db: db}
}

func (s *conversationStateStore) Get(ctx context.Context, userID uuid.UUID) (model.ConversationState, error) {
	query := `SELECT user_id, state, state_data, updated_at FROM conversation_state WHERE user_id = $1`

	var state model.ConversationState
	var userIDStr, tag string
	var payload []byte
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&userIDStr, &tag, &payload, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ConversationState{}, ErrNotFound
		}
		return model.ConversationState{}, fmt.Errorf("get conversation state: %w", err)
	}

	state.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return model.ConversationState{}, fmt.Errorf("parse state user id: %w", err)
	}
	state.Tag = model.StateTag(tag)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &state.Pending); err != nil {
			return model.ConversationState{}, fmt.Errorf("decode state payload: %w", err)
		}
	}
	return state, nil
}

func (s *conversationStateStore) Set(ctx context.Context, userID uuid.UUID, tag model.StateTag, pending model.PendingHabit) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encode state payload: %w", err)
	}

	query := `
		INSERT INTO conversation_state (user_id, state, state_data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id)
		DO UPDATE SET state = excluded.state, state_data = excluded.state_data, updated_at = now()
	`
	if _, err := s.db.ExecContext(ctx, query, userID, string(tag), payload); err != nil {
		return fmt.Errorf("set conversation state: %w", err)
	}
	return nil
}

func (s *conversationStateStore) Clear(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_state WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear conversation state: %w", err)
	}
	return nil
}

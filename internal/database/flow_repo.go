package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/foxxcyber/rappi-flow/internal/models"
)

// FlowStateRepo stores flow states keyed by conversation
type FlowStateRepo interface {
	LoadFlowState(ctx context.Context, conversationID string) (*models.FlowState, error)
	SaveFlowState(ctx context.Context, conversationID string, state *models.FlowState) error
}

// ConversationStore binds a FlowStateRepo to one conversation
type ConversationStore struct {
	repo           FlowStateRepo
	conversationID string
}

// NewConversationStore creates the state store of one conversation
func NewConversationStore(repo FlowStateRepo, conversationID string) *ConversationStore {
	return &ConversationStore{repo: repo, conversationID: conversationID}
}

func (s *ConversationStore) Load(ctx context.Context) (*models.FlowState, error) {
	return s.repo.LoadFlowState(ctx, s.conversationID)
}

func (s *ConversationStore) Save(ctx context.Context, state *models.FlowState) error {
	return s.repo.SaveFlowState(ctx, s.conversationID, state)
}

// LoadFlowState returns nil when the conversation has no stored state
func (db *DB) LoadFlowState(ctx context.Context, conversationID string) (*models.FlowState, error) {
	var raw []byte
	err := db.Pool.QueryRow(ctx, `
		SELECT state FROM flow_states WHERE conversation_id = $1
	`, conversationID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load flow state: %w", err)
	}

	var state models.FlowState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode flow state of %s: %w", conversationID, err)
	}
	return &state, nil
}

// SaveFlowState replaces the whole state of a conversation in one statement
func (db *DB) SaveFlowState(ctx context.Context, conversationID string, state *models.FlowState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode flow state: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO flow_states (conversation_id, selected_restaurant_url, stage, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (conversation_id) DO UPDATE SET
			selected_restaurant_url = EXCLUDED.selected_restaurant_url,
			stage = EXCLUDED.stage,
			state = EXCLUDED.state,
			updated_at = NOW()
	`, conversationID, state.SelectedRestaurantURL, string(state.Stage), raw)
	if err != nil {
		return fmt.Errorf("failed to save flow state: %w", err)
	}
	return nil
}

// DeleteFlowState forgets a conversation
func (db *DB) DeleteFlowState(ctx context.Context, conversationID string) error {
	_, err := db.Pool.Exec(ctx, "DELETE FROM flow_states WHERE conversation_id = $1", conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete flow state: %w", err)
	}
	return nil
}

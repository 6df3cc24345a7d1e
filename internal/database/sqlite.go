package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
	"github.com/foxxcyber/rappi-flow/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS flow_states (
	conversation_id         TEXT PRIMARY KEY,
	selected_restaurant_url TEXT NOT NULL,
	stage                   TEXT NOT NULL DEFAULT 'idle',
	state_json              TEXT NOT NULL,
	updated_at_unix         INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_flow_states_stage ON flow_states(stage);

CREATE TABLE IF NOT EXISTS menu_catalogs (
	restaurant_url  TEXT PRIMARY KEY,
	restaurant_name TEXT NOT NULL,
	item_count      INTEGER NOT NULL DEFAULT 0,
	catalog_json    TEXT NOT NULL,
	archive_key     TEXT,
	updated_at_unix INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteStore keeps flow states of many conversations in a local SQLite file
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens a SQLite database at path and creates the schema
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadFlowState returns nil when the conversation has no stored state
func (s *SQLiteStore) LoadFlowState(ctx context.Context, conversationID string) (*models.FlowState, error) {
	const q = `SELECT state_json FROM flow_states WHERE conversation_id = ?`

	var raw string
	if err := s.db.QueryRowContext(ctx, q, conversationID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load flow state: %w", err)
	}

	var state models.FlowState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode flow state of %s: %w", conversationID, err)
	}
	return &state, nil
}

// SaveFlowState replaces the whole state of a conversation
func (s *SQLiteStore) SaveFlowState(ctx context.Context, conversationID string, state *models.FlowState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode flow state: %w", err)
	}

	const q = `INSERT INTO flow_states (conversation_id, selected_restaurant_url, stage, state_json, updated_at_unix)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(conversation_id) DO UPDATE SET
	selected_restaurant_url = excluded.selected_restaurant_url,
	stage = excluded.stage,
	state_json = excluded.state_json,
	updated_at_unix = excluded.updated_at_unix`
	_, err = s.db.ExecContext(ctx, q,
		conversationID,
		state.SelectedRestaurantURL,
		string(state.Stage),
		string(raw),
		s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save flow state: %w", err)
	}
	return nil
}

// ConversationSummary is one row of ListConversations
type ConversationSummary struct {
	ConversationID string       `json:"conversationId"`
	RestaurantURL  string       `json:"restaurantUrl"`
	Stage          models.Stage `json:"stage"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// ListConversations returns stored conversations, most recently updated first
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	const q = `SELECT conversation_id, selected_restaurant_url, stage, updated_at_unix
FROM flow_states
ORDER BY updated_at_unix DESC, conversation_id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var c ConversationSummary
		var stage string
		var updated int64
		if err := rows.Scan(&c.ConversationID, &c.RestaurantURL, &stage, &updated); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.Stage = models.Stage(stage)
		c.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteFlowState forgets a conversation
func (s *SQLiteStore) DeleteFlowState(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM flow_states WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("delete flow state: %w", err)
	}
	return nil
}

// SaveCatalog keeps the latest catalog of a restaurant. An empty archiveKey keeps the
// previously recorded one.
func (s *SQLiteStore) SaveCatalog(ctx context.Context, catalog *models.MenuCatalog, archiveKey string) error {
	raw, err := json.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}

	var key sql.NullString
	if archiveKey != "" {
		key = sql.NullString{String: archiveKey, Valid: true}
	}

	const q = `INSERT INTO menu_catalogs (restaurant_url, restaurant_name, item_count, catalog_json, archive_key, updated_at_unix)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(restaurant_url) DO UPDATE SET
	restaurant_name = excluded.restaurant_name,
	item_count = excluded.item_count,
	catalog_json = excluded.catalog_json,
	archive_key = COALESCE(excluded.archive_key, menu_catalogs.archive_key),
	updated_at_unix = excluded.updated_at_unix`
	_, err = s.db.ExecContext(ctx, q,
		catalog.RestaurantURL,
		catalog.RestaurantName,
		catalog.ItemCount,
		string(raw),
		key,
		s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	return nil
}

// GetCatalog returns the latest stored catalog of a restaurant
func (s *SQLiteStore) GetCatalog(ctx context.Context, restaurantURL string) (*models.MenuCatalog, error) {
	const q = `SELECT catalog_json FROM menu_catalogs WHERE restaurant_url = ?`

	var raw string
	if err := s.db.QueryRowContext(ctx, q, restaurantURL).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no catalog stored for %s: %w", restaurantURL, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var catalog models.MenuCatalog
	if err := json.Unmarshal([]byte(raw), &catalog); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &catalog, nil
}

// CatalogArchiveKey returns the object key the latest archived catalog was stored under
func (s *SQLiteStore) CatalogArchiveKey(ctx context.Context, restaurantURL string) (string, error) {
	const q = `SELECT archive_key FROM menu_catalogs WHERE restaurant_url = ?`

	var key sql.NullString
	if err := s.db.QueryRowContext(ctx, q, restaurantURL).Scan(&key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no catalog stored for %s: %w", restaurantURL, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("load catalog archive key: %w", err)
	}
	return key.String, nil
}

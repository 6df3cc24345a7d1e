package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
	"github.com/foxxcyber/rappi-flow/internal/models"
)

// StateStore persists the state of one conversation as a whole
type StateStore interface {
	// Load returns nil without error when nothing has been stored yet
	Load(ctx context.Context) (*models.FlowState, error)
	Save(ctx context.Context, state *models.FlowState) error
}

// DefaultStateFile is the flow state path inside the CLI config directory
func DefaultStateFile(configDir string) string {
	return filepath.Join(configDir, "flow-state.json")
}

// FileStore keeps the flow state in a single JSON file readable only by its owner
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed state store
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (*models.FlowState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read flow state: %w", err)
	}

	var state models.FlowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("flow state %s is corrupt: %v: %w", s.path, err, apperr.ErrMalformedInput)
	}
	return &state, nil
}

// Save replaces the state file atomically: the JSON is written to a temporary file in
// the same directory and renamed over the old one.
func (s *FileStore) Save(ctx context.Context, state *models.FlowState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode flow state: %w", err)
	}
	return WriteFileAtomic(s.path, append(data, '\n'))
}

// WriteFileAtomic replaces path with data through a 0600 temporary file in the same
// directory, creating the directory with 0700 when needed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}

// MemoryStore holds a state in memory
type MemoryStore struct {
	State *models.FlowState
}

func (s *MemoryStore) Load(ctx context.Context) (*models.FlowState, error) {
	if s.State == nil {
		return nil, nil
	}
	return s.State.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, state *models.FlowState) error {
	s.State = state.Clone()
	return nil
}

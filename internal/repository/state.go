package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Ryuzii/FerraEura/internal/session"
)

// StateStore persists the whole guild to session state map at once. It is
// a snapshot, not a journal: Save replaces whatever was stored before.
type StateStore interface {
	Save(ctx context.Context, states map[string]session.State) error
	Load(ctx context.Context) (map[string]session.State, error)
}

// FileStateStore keeps the map as one JSON object in a file.
type FileStateStore struct {
	Path string
}

func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{Path: path}
}

var _ StateStore = (*FileStateStore)(nil)

func (s *FileStateStore) Save(ctx context.Context, states map[string]session.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session states: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Load returns an empty map when the file does not exist yet.
func (s *FileStateStore) Load(ctx context.Context) (map[string]session.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]session.State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	return decodeStates(data)
}

func decodeStates(data []byte) (map[string]session.State, error) {
	states := make(map[string]session.State)
	if len(data) == 0 {
		return states, nil
	}
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("failed to decode session states: %w", err)
	}
	return states, nil
}

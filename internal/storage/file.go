package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the state in one JSON document.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore stores state at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the state. A missing or unreadable document yields an empty
// state; only I/O errors other than "not found" are returned.
func (s *FileStore) Load(ctx context.Context) (*AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewAppState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	state := NewAppState()
	if err := json.Unmarshal(data, state); err != nil {
		log.Warn("state file %s is corrupt, starting fresh: %v", s.path, err)
		state = NewAppState()
	}
	state.Normalize()
	return state, nil
}

// Save writes the state atomically.
func (s *FileStore) Save(ctx context.Context, state *AppState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const storeFileName = "idempotency.json"

// FileStore persists the key->processed mapping as a JSON file inside the
// data directory. All operations hold a store-wide mutex, and every save
// writes a temp file and renames it into place so a crash never truncates
// the mapping. In-flight claims live only in memory; a crash releases them.
type FileStore struct {
	path string

	mu        sync.Mutex
	processed map[string]bool
	claims    map[string]struct{}
}

// NewFileStore loads the mapping from dataDir. A missing file starts the
// store empty; any other read failure is returned.
func NewFileStore(dataDir string) (*FileStore, error) {
	s := &FileStore{
		path:      filepath.Join(dataDir, storeFileName),
		processed: map[string]bool{},
		claims:    map[string]struct{}{},
	}

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency: load %s: %w", s.path, err)
	}
	if err := json.Unmarshal(raw, &s.processed); err != nil {
		return nil, fmt.Errorf("idempotency: parse %s: %w", s.path, err)
	}
	return s, nil
}

func (s *FileStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[key], nil
}

func (s *FileStore) Claim(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processed[key] {
		return false, nil
	}
	if _, inFlight := s.claims[key]; inFlight {
		return false, nil
	}
	s.claims[key] = struct{}{}
	return true, nil
}

func (s *FileStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, key)
	return nil
}

func (s *FileStore) MarkProcessed(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[key] = true
	delete(s.claims, key)
	return s.save()
}

// save writes the full mapping atomically: temp file in the same directory,
// fsync, then rename over the previous content.
func (s *FileStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("idempotency: create data dir: %w", err)
	}

	raw, err := json.MarshalIndent(s.processed, "", "  ")
	if err != nil {
		return fmt.Errorf("idempotency: encode mapping: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), storeFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("idempotency: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("idempotency: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("idempotency: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("idempotency: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("idempotency: replace %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Close() {}

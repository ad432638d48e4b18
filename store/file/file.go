// Package file implements store.CheckpointStore as one JSON file per
// checkpoint in a directory, for single-process durability without an
// external database.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/via-canvas/intelligence-core/store"
)

// FileCheckpointStore persists each checkpoint as "<id>.json" under path.
type FileCheckpointStore struct {
	mu   sync.Mutex
	path string
}

// NewFileCheckpointStore creates path if it doesn't exist and returns a
// store rooted there.
func NewFileCheckpointStore(path string) (store.CheckpointStore, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("file: create checkpoint dir %q: %w", path, err)
	}
	return &FileCheckpointStore{path: path}, nil
}

func (f *FileCheckpointStore) filename(id string) string {
	return filepath.Join(f.path, id+".json")
}

// Save writes checkpoint to its own file, truncating any prior version.
func (f *FileCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	raw, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("file: marshal checkpoint %q: %w", checkpoint.ID, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.WriteFile(f.filename(checkpoint.ID), raw, 0o600); err != nil {
		return fmt.Errorf("file: write checkpoint %q: %w", checkpoint.ID, err)
	}
	return nil
}

// Load reads and decodes the checkpoint saved under checkpointID.
func (f *FileCheckpointStore) Load(_ context.Context, checkpointID string) (*store.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.filename(checkpointID))
	if err != nil {
		return nil, fmt.Errorf("file: checkpoint %q not found: %w", checkpointID, err)
	}
	var cp store.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("file: decode checkpoint %q: %w", checkpointID, err)
	}
	return &cp, nil
}

// List returns every checkpoint on disk whose metadata names executionID
// as one of its values, sorted by Version ascending.
func (f *FileCheckpointStore) List(_ context.Context, executionID string) ([]*store.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.path)
	if err != nil {
		return nil, fmt.Errorf("file: read checkpoint dir: %w", err)
	}

	var out []*store.Checkpoint
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(f.path, entry.Name()))
		if err != nil {
			continue
		}
		var cp store.Checkpoint
		if err := json.Unmarshal(raw, &cp); err != nil {
			continue
		}
		if matchesExecutionID(&cp, executionID) {
			clone := cp
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Delete removes the file backing checkpointID, if any.
func (f *FileCheckpointStore) Delete(_ context.Context, checkpointID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.filename(checkpointID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file: delete checkpoint %q: %w", checkpointID, err)
	}
	return nil
}

// Clear removes every file List(ctx, executionID) would return.
func (f *FileCheckpointStore) Clear(ctx context.Context, executionID string) error {
	matches, err := f.List(ctx, executionID)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cp := range matches {
		if err := os.Remove(f.filename(cp.ID)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("file: clear checkpoint %q: %w", cp.ID, err)
		}
	}
	return nil
}

func matchesExecutionID(cp *store.Checkpoint, executionID string) bool {
	for _, v := range cp.Metadata {
		if s, ok := v.(string); ok && s == executionID {
			return true
		}
	}
	return false
}

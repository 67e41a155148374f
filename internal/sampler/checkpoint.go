package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateStore persists the unix time of the last completed sampling pass.
type StateStore interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, ts uint64) error
}

// Checkpoint is one named entry of a checkpoint file.
type Checkpoint struct {
	LastProcessedTs uint64 `json:"last_processed_ts"`
	UpdatedAt       string `json:"updated_at"`
}

// CheckpointStore persists checkpoints to a JSON file on disk.
type CheckpointStore struct {
	path string
	mu   sync.Mutex
}

func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

func (c *CheckpointStore) LoadState(_ context.Context, name string) (uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	all, err := c.read()
	if err != nil {
		return 0, false, err
	}
	cp, ok := all[name]
	return cp.LastProcessedTs, ok, nil
}

func (c *CheckpointStore) SaveState(_ context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	all, err := c.read()
	if err != nil {
		return err
	}
	all[name] = Checkpoint{
		LastProcessedTs: ts,
		UpdatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
	}

	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

func (c *CheckpointStore) read() (map[string]Checkpoint, error) {
	all := make(map[string]Checkpoint)
	stat, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return all, nil
		}
		return nil, fmt.Errorf("stat checkpoint: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("checkpoint path is a directory")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return all, nil
}

package threshold

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"graduationScope/internal/model"
)

// Backend persists USD-denominated threshold records. Save assigns the version itself, one
// above the stored record or 1 when there is none, in the same step as the write, and returns
// the record as stored.
type Backend interface {
	LoadDefaults(ctx context.Context) (model.ThresholdConfig, bool, error)
	SaveDefaults(ctx context.Context, cfg model.ThresholdConfig) (model.ThresholdConfig, error)
	LoadOverride(ctx context.Context, token common.Address) (model.ThresholdConfig, bool, error)
	SaveOverride(ctx context.Context, token common.Address, cfg model.ThresholdConfig) (model.ThresholdConfig, error)
	DeleteOverride(ctx context.Context, token common.Address) error
}

// MemoryBackend keeps thresholds in process memory.
type MemoryBackend struct {
	mu        sync.RWMutex
	defaults  *model.ThresholdConfig
	overrides map[common.Address]model.ThresholdConfig
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{overrides: make(map[common.Address]model.ThresholdConfig)}
}

func (b *MemoryBackend) LoadDefaults(_ context.Context) (model.ThresholdConfig, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.defaults == nil {
		return model.ThresholdConfig{}, false, nil
	}
	return *b.defaults, true, nil
}

func (b *MemoryBackend) SaveDefaults(_ context.Context, cfg model.ThresholdConfig) (model.ThresholdConfig, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cfg.Version = 1
	if b.defaults != nil {
		cfg.Version = b.defaults.Version + 1
	}
	b.defaults = &cfg
	return cfg, nil
}

func (b *MemoryBackend) LoadOverride(_ context.Context, token common.Address) (model.ThresholdConfig, bool, error) {
	b.mu.RLock()
	cfg, ok := b.overrides[token]
	b.mu.RUnlock()
	return cfg, ok, nil
}

func (b *MemoryBackend) SaveOverride(_ context.Context, token common.Address, cfg model.ThresholdConfig) (model.ThresholdConfig, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cfg.Version = b.overrides[token].Version + 1
	b.overrides[token] = cfg
	return cfg, nil
}

func (b *MemoryBackend) DeleteOverride(_ context.Context, token common.Address) error {
	b.mu.Lock()
	delete(b.overrides, token)
	b.mu.Unlock()
	return nil
}

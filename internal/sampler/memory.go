package sampler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"graduationScope/internal/model"
)

// MemoryStore keeps a bounded sample history per token.
type MemoryStore struct {
	mu        sync.RWMutex
	samples   map[common.Address][]model.MetricSample
	maxPerKey int
}

// NewMemoryStore retains at most maxPerToken samples per token; zero means 1000.
func NewMemoryStore(maxPerToken int) *MemoryStore {
	if maxPerToken <= 0 {
		maxPerToken = 1000
	}
	return &MemoryStore{samples: make(map[common.Address][]model.MetricSample), maxPerKey: maxPerToken}
}

func (m *MemoryStore) PutSamples(_ context.Context, samples []model.MetricSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	touched := make(map[common.Address]struct{})
	for _, s := range samples {
		m.samples[s.Token] = append(m.samples[s.Token], s)
		touched[s.Token] = struct{}{}
	}
	for token := range touched {
		list := m.samples[token]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
		if len(list) > m.maxPerKey {
			list = append([]model.MetricSample(nil), list[len(list)-m.maxPerKey:]...)
		}
		m.samples[token] = list
	}
	return nil
}

func (m *MemoryStore) RecentSamples(_ context.Context, token common.Address, since time.Time, limit int) ([]model.MetricSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.samples[token]
	start := sort.Search(len(list), func(i int) bool { return !list[i].Timestamp.Before(since) })
	window := list[start:]
	if limit > 0 && len(window) > limit {
		window = window[len(window)-limit:]
	}
	return append([]model.MetricSample(nil), window...), nil
}

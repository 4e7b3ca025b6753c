package storage

import (
	"context"
	"sync"

	"commerce-insights/internal/config"
	"commerce-insights/internal/models"
)

// SelectionStore persists the last filter selection as a single value.
type SelectionStore interface {
	Load(ctx context.Context) (models.Filters, bool, error)
	Save(ctx context.Context, filters models.Filters) error
	Close() error
}

type MemorySelectionStore struct {
	mu      sync.RWMutex
	filters models.Filters
	saved   bool
}

func NewMemorySelectionStore() *MemorySelectionStore {
	return &MemorySelectionStore{}
}

func (s *MemorySelectionStore) Load(_ context.Context) (models.Filters, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters, s.saved, nil
}

func (s *MemorySelectionStore) Save(_ context.Context, filters models.Filters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = filters
	s.saved = true
	return nil
}

func (s *MemorySelectionStore) Close() error {
	return nil
}

// Open returns the Redis-backed store when cfg names a Redis URL and the
// in-memory store otherwise.
func Open(ctx context.Context, cfg config.StoreConfig) (SelectionStore, error) {
	if cfg.RedisURL == "" {
		return NewMemorySelectionStore(), nil
	}
	client, err := Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisSelectionStore(client, cfg.SelectionKey), nil
}

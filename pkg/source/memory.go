package source

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"
)

// MemoryRepository keeps the registry in process memory. Used by unit
// tests and single-node development setups.
type MemoryRepository struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sources: make(map[string]Source)}
}

func (m *MemoryRepository) Create(_ context.Context, src *Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src.CreatedAt = time.Now().UTC()
	src.UpdatedAt = src.CreatedAt
	m.sources[src.ID] = *src
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src, ok := m.sources[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &src, nil
}

func (m *MemoryRepository) List(_ context.Context) ([]Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Source, 0, len(m.sources))
	for _, src := range m.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) ListActiveByType(_ context.Context, sourceType string) ([]Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Source
	for _, src := range m.sources {
		if src.SourceType == sourceType && src.IsActive {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.sources[id]
	return ok, nil
}

func (m *MemoryRepository) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[id]
	if !ok {
		return ErrNotFound
	}
	src.IsActive = active
	src.UpdatedAt = time.Now().UTC()
	m.sources[id] = src
	return nil
}

func (m *MemoryRepository) UpdateConfig(_ context.Context, id string, cfg map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[id]
	if !ok {
		return ErrNotFound
	}
	src.Config = datatypes.JSONMap(cfg)
	src.UpdatedAt = time.Now().UTC()
	m.sources[id] = src
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sources[id]; !ok {
		return ErrNotFound
	}
	delete(m.sources, id)
	return nil
}

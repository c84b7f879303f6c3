package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps pipelines in process memory. Records are cloned on the way
// in and out so callers never alias stored state.
type MemoryStore struct {
	mu        sync.Mutex
	pipelines map[string]*Pipeline
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pipelines: make(map[string]*Pipeline)}
}

func (m *MemoryStore) Create(_ context.Context, p *Pipeline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pipelines[p.ID]; exists {
		return fmt.Errorf("%w: pipeline %s already exists", ErrStorage, p.ID)
	}
	m.pipelines[p.ID] = p.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pipelines[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, id string, mutate func(p *Pipeline) error) (*Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.pipelines[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	m.pipelines[id] = next
	return next.Clone(), nil
}

func (m *MemoryStore) List(_ context.Context, filter ListFilter) ([]*Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Pipeline, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		if filter.Match(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

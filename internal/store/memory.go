package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/roll-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu         sync.RWMutex
	strategies map[string]*model.StrategyRecord
	rolls      []model.RollRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strategies: make(map[string]*model.StrategyRecord),
	}
}

func (s *MemoryStore) CreateStrategy(_ context.Context, st *model.StrategyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.strategies[st.ID]; ok {
		return fmt.Errorf("%w: strategy %s", ErrExists, st.ID)
	}

	// Store a copy to avoid external mutation.
	cp := *st
	s.strategies[st.ID] = &cp
	return nil
}

func (s *MemoryStore) GetStrategy(_ context.Context, id string) (*model.StrategyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.strategies[id]
	if !ok {
		return nil, fmt.Errorf("%w: strategy %s", ErrNotFound, id)
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) ListStrategies(_ context.Context) ([]model.StrategyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.StrategyRecord, 0, len(s.strategies))
	for _, st := range s.strategies {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) UpdateStrategy(_ context.Context, st *model.StrategyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.strategies[st.ID]
	if !ok {
		return fmt.Errorf("%w: strategy %s", ErrNotFound, st.ID)
	}
	cp := *st
	cp.CreatedAt = existing.CreatedAt
	s.strategies[st.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteStrategy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.strategies[id]; !ok {
		return fmt.Errorf("%w: strategy %s", ErrNotFound, id)
	}
	delete(s.strategies, id)

	kept := s.rolls[:0]
	for _, r := range s.rolls {
		if r.StrategyID != id {
			kept = append(kept, r)
		}
	}
	s.rolls = kept
	return nil
}

func (s *MemoryStore) InsertRoll(_ context.Context, r *model.RollRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.strategies[r.StrategyID]; !ok {
		return fmt.Errorf("%w: strategy %s", ErrNotFound, r.StrategyID)
	}
	s.rolls = append(s.rolls, *r)
	return nil
}

func (s *MemoryStore) ListRolls(_ context.Context, strategyID string) ([]model.RollRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.RollRecord
	for _, r := range s.rolls {
		if r.StrategyID == strategyID {
			result = append(result, r)
		}
	}
	return result, nil
}

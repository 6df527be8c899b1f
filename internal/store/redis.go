package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/roll-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL or SQLite) with a Redis
// read-through cache. Writes go to the primary store and refresh or
// invalidate the cache; reads check Redis first then fall back to the
// primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh or invalidate cache) ---

func (s *CachedStore) CreateStrategy(ctx context.Context, st *model.StrategyRecord) error {
	if err := s.primary.CreateStrategy(ctx, st); err != nil {
		return err
	}
	s.cacheStrategy(ctx, st)
	return nil
}

func (s *CachedStore) UpdateStrategy(ctx context.Context, st *model.StrategyRecord) error {
	if err := s.primary.UpdateStrategy(ctx, st); err != nil {
		return err
	}
	// Invalidate; the stored created_at may differ from the caller's copy.
	s.rdb.Del(ctx, strategyKey(st.ID))
	return nil
}

func (s *CachedStore) DeleteStrategy(ctx context.Context, id string) error {
	if err := s.primary.DeleteStrategy(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, strategyKey(id), rollsKey(id))
	return nil
}

func (s *CachedStore) InsertRoll(ctx context.Context, r *model.RollRecord) error {
	if err := s.primary.InsertRoll(ctx, r); err != nil {
		return err
	}
	s.rdb.Del(ctx, rollsKey(r.StrategyID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetStrategy(ctx context.Context, id string) (*model.StrategyRecord, error) {
	data, err := s.rdb.Get(ctx, strategyKey(id)).Bytes()
	if err == nil {
		var st model.StrategyRecord
		if json.Unmarshal(data, &st) == nil {
			return &st, nil
		}
	}

	// Cache miss: read from primary.
	st, err := s.primary.GetStrategy(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheStrategy(ctx, st)
	return st, nil
}

func (s *CachedStore) ListRolls(ctx context.Context, strategyID string) ([]model.RollRecord, error) {
	data, err := s.rdb.Get(ctx, rollsKey(strategyID)).Bytes()
	if err == nil {
		var rolls []model.RollRecord
		if json.Unmarshal(data, &rolls) == nil {
			return rolls, nil
		}
	}

	rolls, err := s.primary.ListRolls(ctx, strategyID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rolls); err == nil {
		s.rdb.Set(ctx, rollsKey(strategyID), data, s.ttl)
	}
	return rolls, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListStrategies(ctx context.Context) ([]model.StrategyRecord, error) {
	return s.primary.ListStrategies(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheStrategy(ctx context.Context, st *model.StrategyRecord) {
	if data, err := json.Marshal(st); err == nil {
		s.rdb.Set(ctx, strategyKey(st.ID), data, s.ttl)
	}
}

func strategyKey(id string) string { return fmt.Sprintf("strategy:%s", id) }
func rollsKey(id string) string    { return fmt.Sprintf("rolls:%s", id) }

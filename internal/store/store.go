// Package store defines the persistence interface for the roll engine.
// Implementations include PostgreSQL (source of truth), SQLite (single-node
// and CLI use), Redis (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/atmx/roll-engine/internal/model"
)

var (
	// ErrNotFound is returned when a strategy does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrExists is returned when creating a strategy whose ID is taken.
	ErrExists = errors.New("store: already exists")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Strategy operations ---

	// CreateStrategy persists a new strategy record.
	CreateStrategy(ctx context.Context, s *model.StrategyRecord) error

	// GetStrategy retrieves a strategy by its ID.
	GetStrategy(ctx context.Context, id string) (*model.StrategyRecord, error)

	// ListStrategies returns all strategies, newest first.
	ListStrategies(ctx context.Context) ([]model.StrategyRecord, error)

	// UpdateStrategy replaces a stored strategy's mutable fields.
	UpdateStrategy(ctx context.Context, s *model.StrategyRecord) error

	// DeleteStrategy removes a strategy and its roll history.
	DeleteStrategy(ctx context.Context, id string) error

	// --- Immutable roll log ---

	// InsertRoll appends a roll analysis record.
	InsertRoll(ctx context.Context, r *model.RollRecord) error

	// ListRolls returns the roll history of a strategy, oldest first.
	ListRolls(ctx context.Context, strategyID string) ([]model.RollRecord, error)
}

// Symbols returns the distinct underlying symbols across all strategies.
func Symbols(ctx context.Context, s Store) ([]string, error) {
	strategies, err := s.ListStrategies(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(strategies))
	var out []string
	for _, st := range strategies {
		if !seen[st.Symbol] {
			seen[st.Symbol] = true
			out = append(out, st.Symbol)
		}
	}
	return out, nil
}

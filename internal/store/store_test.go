package store

import (
	"context"
	"errors"
	"path/filepath"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/atmx/roll-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func strategy(id, symbol string, created time.Time) *model.StrategyRecord {
	return &model.StrategyRecord{
		ID:             id,
		Symbol:         symbol,
		Variant:        model.CoveredCall,
		Strike:         d(180),
		Premium:        d(5.5),
		Contracts:      5,
		StockCostBasis: decimal.NewNullDecimal(d(175.25)),
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

// testStore runs the behaviour every Store implementation shares.
func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	t0 := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	if err := s.CreateStrategy(ctx, strategy("a", "AAPL", t0)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateStrategy(ctx, strategy("b", "MSFT", t0.Add(time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateStrategy(ctx, strategy("c", "AAPL", t0.Add(2*time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.CreateStrategy(ctx, strategy("a", "TSLA", t0)); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists on duplicate id, got %v", err)
	}

	got, err := s.GetStrategy(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Symbol != "AAPL" {
		t.Errorf("duplicate create must not overwrite, got %s", got.Symbol)
	}
	if !got.Strike.Equal(d(180)) || !got.StockCostBasis.Decimal.Equal(d(175.25)) {
		t.Errorf("decimals not preserved: %+v", got)
	}
	if got.MarginOverride.Valid {
		t.Error("absent margin override should stay absent")
	}
	if !got.CreatedAt.Equal(t0) {
		t.Errorf("expected created_at %v, got %v", t0, got.CreatedAt)
	}

	if _, err := s.GetStrategy(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	list, err := s.ListStrategies(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ID != "c" || list[2].ID != "a" {
		t.Errorf("expected newest first [c b a], got %v", ids(list))
	}

	syms, err := Symbols(ctx, s)
	if err != nil {
		t.Fatalf("symbols: %v", err)
	}
	if len(syms) != 2 {
		t.Errorf("expected 2 distinct symbols, got %v", syms)
	}

	upd := strategy("a", "AAPL", t0)
	upd.Variant = model.NakedCall
	upd.StockCostBasis = decimal.NullDecimal{}
	upd.MarginOverride = decimal.NewNullDecimal(d(9000))
	upd.UpdatedAt = t0.Add(24 * time.Hour)
	if err := s.UpdateStrategy(ctx, upd); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = s.GetStrategy(ctx, "a")
	if got.Variant != model.NakedCall || got.StockCostBasis.Valid || !got.MarginOverride.Decimal.Equal(d(9000)) {
		t.Errorf("update not applied: %+v", got)
	}
	if err := s.UpdateStrategy(ctx, strategy("missing", "X", t0)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on update, got %v", err)
	}

	roll := &model.RollRecord{
		ID:             "r1",
		StrategyID:     "a",
		EndMode:        "expired",
		NewVariant:     model.NakedCall,
		NewStrike:      d(190),
		NewPremium:     d(5),
		NewContracts:   4,
		ExercisedTotal: decimal.NewNullDecimal(d(2400)),
		CreatedAt:      t0.Add(48 * time.Hour),
	}
	if err := s.InsertRoll(ctx, roll); err != nil {
		t.Fatalf("insert roll: %v", err)
	}
	orphan := *roll
	orphan.ID = "r-orphan"
	orphan.StrategyID = "nope"
	if err := s.InsertRoll(ctx, &orphan); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a roll without its strategy, got %v", err)
	}

	rolls, err := s.ListRolls(ctx, "a")
	if err != nil {
		t.Fatalf("list rolls: %v", err)
	}
	if len(rolls) != 1 || !rolls[0].ExercisedTotal.Decimal.Equal(d(2400)) || rolls[0].NotExercisedTotal.Valid {
		t.Errorf("unexpected rolls %+v", rolls)
	}

	if err := s.DeleteStrategy(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetStrategy(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if rolls, _ := s.ListRolls(ctx, "a"); len(rolls) != 0 {
		t.Errorf("roll history should be removed with the strategy, got %d", len(rolls))
	}
	if err := s.DeleteStrategy(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func ids(list []model.StrategyRecord) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestMemoryStore_CopiesOnWrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	st := strategy("a", "AAPL", time.Now())
	if err := s.CreateStrategy(ctx, st); err != nil {
		t.Fatal(err)
	}
	st.Symbol = "MUTATED"

	got, _ := s.GetStrategy(ctx, "a")
	if got.Symbol != "AAPL" {
		t.Errorf("store should hold its own copy, got %s", got.Symbol)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "roll.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	testStore(t, s)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	testStore(t, s)
}

func TestDriverErrors(t *testing.T) {
	plain := errors.New("connection reset")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"pg duplicate key", &pgconn.PgError{Code: pgUniqueViolation}, ErrExists},
		{"pg missing parent", fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgForeignKeyViolation}), ErrNotFound},
		{"pg other", &pgconn.PgError{Code: "23502"}, nil},
		{"sqlite primary key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, ErrExists},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, ErrExists},
		{"sqlite foreign key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, ErrNotFound},
		{"plain", plain, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got error
			if _, ok := tt.err.(sqlite3.Error); ok {
				got = sqliteError(tt.err, "strategy x")
			} else {
				got = pgError(tt.err, "strategy x")
			}
			if tt.want == nil {
				if errors.Is(got, ErrExists) || errors.Is(got, ErrNotFound) {
					t.Errorf("expected the error unchanged, got %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCacheKeys(t *testing.T) {
	if strategyKey("abc") != "strategy:abc" {
		t.Errorf("unexpected strategy key %s", strategyKey("abc"))
	}
	if rollsKey("abc") != "rolls:abc" {
		t.Errorf("unexpected rolls key %s", rollsKey("abc"))
	}
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/atmx/roll-engine/internal/model"
)

// SQLiteStore implements Store on a local SQLite file. Decimals are stored
// as TEXT so no precision is lost.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// A single connection keeps ":memory:" databases coherent and
	// serializes writers.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize sqlite schema: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS strategies (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		variant TEXT NOT NULL,
		strike TEXT NOT NULL,
		premium TEXT NOT NULL,
		contracts INTEGER NOT NULL,
		stock_cost_basis TEXT,
		margin_override TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rolls (
		id TEXT PRIMARY KEY,
		strategy_id TEXT NOT NULL,
		end_mode TEXT NOT NULL,
		new_variant TEXT NOT NULL,
		new_strike TEXT NOT NULL,
		new_premium TEXT NOT NULL,
		new_contracts INTEGER NOT NULL,
		exercised_total TEXT,
		not_exercised_total TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (strategy_id) REFERENCES strategies(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_rolls_strategy ON rolls(strategy_id, created_at);
	`)
	return err
}

func (s *SQLiteStore) CreateStrategy(ctx context.Context, st *model.StrategyRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO strategies (id, symbol, variant, strike, premium, contracts,
		                         stock_cost_basis, margin_override, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Symbol, string(st.Variant),
		st.Strike.String(), st.Premium.String(), st.Contracts,
		nullText(st.StockCostBasis), nullText(st.MarginOverride),
		st.CreatedAt.UTC(), st.UpdatedAt.UTC(),
	)
	return sqliteError(err, "strategy "+st.ID)
}

const sqliteSelectStrategy = `SELECT id, symbol, variant, strike, premium, contracts,
        stock_cost_basis, margin_override, created_at, updated_at
 FROM strategies`

func (s *SQLiteStore) GetStrategy(ctx context.Context, id string) (*model.StrategyRecord, error) {
	st, err := scanStrategy(s.db.QueryRowContext(ctx, sqliteSelectStrategy+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: strategy %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get strategy %s: %w", id, err)
	}
	return st, nil
}

func (s *SQLiteStore) ListStrategies(ctx context.Context) ([]model.StrategyRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectStrategy+` ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StrategyRecord
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateStrategy(ctx context.Context, st *model.StrategyRecord) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE strategies
		 SET symbol = ?, variant = ?, strike = ?, premium = ?, contracts = ?,
		     stock_cost_basis = ?, margin_override = ?, updated_at = ?
		 WHERE id = ?`,
		st.Symbol, string(st.Variant), st.Strike.String(), st.Premium.String(), st.Contracts,
		nullText(st.StockCostBasis), nullText(st.MarginOverride), st.UpdatedAt.UTC(),
		st.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, st.ID)
}

func (s *SQLiteStore) DeleteStrategy(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM strategies WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, id)
}

func (s *SQLiteStore) InsertRoll(ctx context.Context, r *model.RollRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rolls (id, strategy_id, end_mode, new_variant, new_strike, new_premium,
		                    new_contracts, exercised_total, not_exercised_total, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StrategyID, r.EndMode, string(r.NewVariant),
		r.NewStrike.String(), r.NewPremium.String(), r.NewContracts,
		nullText(r.ExercisedTotal), nullText(r.NotExercisedTotal),
		r.CreatedAt.UTC(),
	)
	return sqliteError(err, "strategy "+r.StrategyID)
}

func (s *SQLiteStore) ListRolls(ctx context.Context, strategyID string) ([]model.RollRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strategy_id, end_mode, new_variant, new_strike, new_premium,
		        new_contracts, exercised_total, not_exercised_total, created_at
		 FROM rolls WHERE strategy_id = ? ORDER BY created_at`, strategyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRolls(rows)
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: strategy %s", ErrNotFound, id)
	}
	return nil
}

// sqliteError maps constraint violations onto ErrExists and ErrNotFound.
func sqliteError(err error, what string) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
		return fmt.Errorf("%w: %s", ErrExists, what)
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/roll-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS strategies (
	id               TEXT PRIMARY KEY,
	symbol           TEXT NOT NULL,
	variant          TEXT NOT NULL,
	strike           NUMERIC NOT NULL,
	premium          NUMERIC NOT NULL,
	contracts        BIGINT NOT NULL,
	stock_cost_basis NUMERIC,
	margin_override  NUMERIC,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS rolls (
	id                  TEXT PRIMARY KEY,
	strategy_id         TEXT NOT NULL REFERENCES strategies(id) ON DELETE CASCADE,
	end_mode            TEXT NOT NULL,
	new_variant         TEXT NOT NULL,
	new_strike          NUMERIC NOT NULL,
	new_premium         NUMERIC NOT NULL,
	new_contracts       BIGINT NOT NULL,
	exercised_total     NUMERIC,
	not_exercised_total NUMERIC,
	created_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS rolls_strategy_idx ON rolls (strategy_id, created_at);
`

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

func (s *PostgresStore) CreateStrategy(ctx context.Context, st *model.StrategyRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO strategies (id, symbol, variant, strike, premium, contracts,
		                         stock_cost_basis, margin_override, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7::NUMERIC, $8::NUMERIC, $9, $10)`,
		st.ID, st.Symbol, string(st.Variant),
		st.Strike.String(), st.Premium.String(), st.Contracts,
		nullText(st.StockCostBasis), nullText(st.MarginOverride),
		st.CreatedAt, st.UpdatedAt,
	)
	return pgError(err, "strategy "+st.ID)
}

const selectStrategy = `SELECT id, symbol, variant, strike::TEXT, premium::TEXT, contracts,
        stock_cost_basis::TEXT, margin_override::TEXT, created_at, updated_at
 FROM strategies`

func (s *PostgresStore) GetStrategy(ctx context.Context, id string) (*model.StrategyRecord, error) {
	st, err := scanStrategy(s.pool.QueryRow(ctx, selectStrategy+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: strategy %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get strategy %s: %w", id, err)
	}
	return st, nil
}

func (s *PostgresStore) ListStrategies(ctx context.Context) ([]model.StrategyRecord, error) {
	rows, err := s.pool.Query(ctx, selectStrategy+` ORDER BY created_at DESC, id`)
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

func (s *PostgresStore) UpdateStrategy(ctx context.Context, st *model.StrategyRecord) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE strategies
		 SET symbol = $2, variant = $3, strike = $4::NUMERIC, premium = $5::NUMERIC,
		     contracts = $6, stock_cost_basis = $7::NUMERIC, margin_override = $8::NUMERIC,
		     updated_at = $9
		 WHERE id = $1`,
		st.ID, st.Symbol, string(st.Variant),
		st.Strike.String(), st.Premium.String(), st.Contracts,
		nullText(st.StockCostBasis), nullText(st.MarginOverride),
		st.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: strategy %s", ErrNotFound, st.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteStrategy(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM strategies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: strategy %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) InsertRoll(ctx context.Context, r *model.RollRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rolls (id, strategy_id, end_mode, new_variant, new_strike, new_premium,
		                    new_contracts, exercised_total, not_exercised_total, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7, $8::NUMERIC, $9::NUMERIC, $10)`,
		r.ID, r.StrategyID, r.EndMode, string(r.NewVariant),
		r.NewStrike.String(), r.NewPremium.String(), r.NewContracts,
		nullText(r.ExercisedTotal), nullText(r.NotExercisedTotal),
		r.CreatedAt,
	)
	return pgError(err, "strategy "+r.StrategyID)
}

func (s *PostgresStore) ListRolls(ctx context.Context, strategyID string) ([]model.RollRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, strategy_id, end_mode, new_variant, new_strike::TEXT, new_premium::TEXT,
		        new_contracts, exercised_total::TEXT, not_exercised_total::TEXT, created_at
		 FROM rolls WHERE strategy_id = $1 ORDER BY created_at`, strategyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRolls(rows)
}

// PostgreSQL SQLSTATE codes for constraint violations.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func pgError(err error, what string) error {
	var pe *pgconn.PgError
	if !errors.As(err, &pe) {
		return err
	}
	switch pe.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%w: %s", ErrExists, what)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

// rowScanner is satisfied by pgx.Row, pgx.Rows and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanStrategy reads one strategy row selected with NUMERIC columns cast to
// TEXT.
func scanStrategy(row rowScanner) (*model.StrategyRecord, error) {
	var st model.StrategyRecord
	var variant, strike, premium string
	var costBasis, margin *string

	if err := row.Scan(&st.ID, &st.Symbol, &variant, &strike, &premium, &st.Contracts,
		&costBasis, &margin, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}

	st.Variant = model.Variant(variant)
	st.Strike, _ = decimal.NewFromString(strike)
	st.Premium, _ = decimal.NewFromString(premium)
	st.StockCostBasis = parseNullText(costBasis)
	st.MarginOverride = parseNullText(margin)
	return &st, nil
}

// scanRolls reads rows into RollRecord slices.
type sqlRows interface {
	rowScanner
	Next() bool
	Err() error
}

func scanRolls(rows sqlRows) ([]model.RollRecord, error) {
	var out []model.RollRecord
	for rows.Next() {
		var r model.RollRecord
		var variant, strike, premium string
		var exercised, notExercised *string

		if err := rows.Scan(&r.ID, &r.StrategyID, &r.EndMode, &variant, &strike, &premium,
			&r.NewContracts, &exercised, &notExercised, &r.CreatedAt); err != nil {
			return nil, err
		}

		r.NewVariant = model.Variant(variant)
		r.NewStrike, _ = decimal.NewFromString(strike)
		r.NewPremium, _ = decimal.NewFromString(premium)
		r.ExercisedTotal = parseNullText(exercised)
		r.NotExercisedTotal = parseNullText(notExercised)
		out = append(out, r)
	}
	return out, rows.Err()
}

// nullText renders an optional decimal as a nullable SQL text parameter.
func nullText(v decimal.NullDecimal) *string {
	if !v.Valid {
		return nil
	}
	s := v.Decimal.String()
	return &s
}

func parseNullText(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/atmx/roll-engine/internal/contract"
	"github.com/atmx/roll-engine/internal/export"
	"github.com/atmx/roll-engine/internal/logging"
	"github.com/atmx/roll-engine/internal/model"
	"github.com/atmx/roll-engine/internal/roll"
	"github.com/atmx/roll-engine/internal/store"
)

var (
	errNoDB          = errors.New("--db is required")
	errRecordNeedsID = errors.New("--record needs --id: only stored strategies have a roll history")
)

func newRootCmd() *cobra.Command {
	var logLevel string
	var logCloser io.Closer

	root := &cobra.Command{
		Use:          "rollcalc",
		Short:        "Analyze the P&L of rolling an option position",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c, err := logging.SetupTo(logging.Options{Level: logLevel}, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			logCloser = c
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newCurveCmd())
	root.AddCommand(newStrategyCmd())
	root.AddCommand(newHistoryCmd())
	return root
}

// --- analyze ---

func newAnalyzeCmd() *cobra.Command {
	var f rollFlags
	var output string
	var record bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Value a roll under both scenarios of the new leg",
		Long: `Resolve the old leg under the asserted end mode, project the new leg's
exercised and not-exercised scenarios, and sweep the payoff curve.

The old leg comes from flags, or from --db and --id for a stored strategy.`,
		Example: `  rollcalc analyze --variant covered_call --symbol AAPL --strike 180 --premium 5.50 \
    --contracts 5 --cost-basis 175 --end-mode expired --new-strike 185 --new-premium 4 \
    --expected-price 190
  rollcalc analyze --option MSFT241220C00185000 --variant naked_call --premium 6 \
    --contracts 4 --end-mode closed --close-price 3 --new-strike 190 --new-premium 5 -o text
  rollcalc analyze --db rolls.db --id <strategy> --end-mode expired --new-strike 190 \
    --new-premium 5 --record`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, closeDB, err := openOptional(f.db)
			if err != nil {
				return err
			}
			defer closeDB()

			if record && st != nil && f.id == "" {
				return errRecordNeedsID
			}
			req, err := f.request(ctx, st)
			if err != nil {
				return err
			}

			a, analyzeErr := roll.Analyze(req)
			if analyzeErr == nil && record {
				if st == nil {
					return fmt.Errorf("--record: %w", errNoDB)
				}
				entry := req.Record(a, time.Now().UTC())
				entry.ID = uuid.New().String()
				if err := st.InsertRoll(ctx, &entry); err != nil {
					return fmt.Errorf("recording roll: %w", err)
				}
				slog.Info("roll recorded", "roll_id", entry.ID, "strategy", entry.StrategyID)
			}

			if err := writeAnalysis(cmd.OutOrStdout(), output, a); err != nil {
				return err
			}
			return analyzeErr
		},
	}

	f.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format: json, csv or text")
	cmd.Flags().BoolVar(&record, "record", false, "Append the result to the strategy's roll history (needs --db and --id)")
	return cmd
}

// --- curve ---

func newCurveCmd() *cobra.Command {
	var f rollFlags

	cmd := &cobra.Command{
		Use:   "curve",
		Short: "Print the payoff curve of a roll as CSV",
		Long: `Print total P&L across settlement prices as CSV. With --strict nothing is
printed when the roll's inputs are incomplete.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, closeDB, err := openOptional(f.db)
			if err != nil {
				return err
			}
			defer closeDB()

			req, err := f.request(cmd.Context(), st)
			if err != nil {
				return err
			}
			a, err := roll.Analyze(req)
			if err != nil {
				return err
			}
			return export.WriteCurveCSV(cmd.OutOrStdout(), a.Curve)
		},
	}

	f.bind(cmd)
	return cmd
}

// --- strategy ---

func newStrategyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Manage strategies stored in a SQLite database",
	}
	cmd.AddCommand(newStrategyAddCmd())
	cmd.AddCommand(newStrategyListCmd())
	cmd.AddCommand(newStrategyDeleteCmd())
	return cmd
}

func newStrategyAddCmd() *cobra.Command {
	var f strategyFlags
	var db string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a strategy and print it",
		Example: `  rollcalc strategy add --db rolls.db --variant cash_secured_put --symbol KO \
    --strike 100 --premium 2 --contracts 1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := f.record()
			if err != nil {
				return err
			}
			st, closeDB, err := openRequired(db)
			if err != nil {
				return err
			}
			defer closeDB()

			now := time.Now().UTC()
			rec.ID = uuid.New().String()
			rec.CreatedAt = now
			rec.UpdatedAt = now
			if err := st.CreateStrategy(cmd.Context(), rec); err != nil {
				return err
			}
			slog.Info("strategy created", "id", rec.ID, "symbol", rec.Symbol, "variant", rec.Variant)
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}

	f.bind(cmd)
	cmd.Flags().StringVar(&db, "db", "", "SQLite database path")
	return cmd
}

func newStrategyListCmd() *cobra.Command {
	var db string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored strategies, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, closeDB, err := openRequired(db)
			if err != nil {
				return err
			}
			defer closeDB()

			strategies, err := st.ListStrategies(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-36s  %-6s  %-16s  %10s  %8s  %9s\n", "ID", "SYMBOL", "VARIANT", "STRIKE", "PREMIUM", "CONTRACTS")
			for _, s := range strategies {
				fmt.Fprintf(out, "%-36s  %-6s  %-16s  %10s  %8s  %9d\n",
					s.ID, s.Symbol, s.Variant, s.Strike.StringFixed(2), s.Premium.StringFixed(2), s.Contracts)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "SQLite database path")
	return cmd
}

func newStrategyDeleteCmd() *cobra.Command {
	var db string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a strategy and its roll history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeDB, err := openRequired(db)
			if err != nil {
				return err
			}
			defer closeDB()
			return st.DeleteStrategy(cmd.Context(), args[0])
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "SQLite database path")
	return cmd
}

// --- history ---

func newHistoryCmd() *cobra.Command {
	var db string

	cmd := &cobra.Command{
		Use:   "history <strategy-id>",
		Short: "Print a strategy's recorded rolls as JSON, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeDB, err := openRequired(db)
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := cmd.Context()
			if _, err := st.GetStrategy(ctx, args[0]); err != nil {
				return err
			}
			rolls, err := st.ListRolls(ctx, args[0])
			if err != nil {
				return err
			}
			if rolls == nil {
				rolls = []model.RollRecord{}
			}
			return writeJSON(cmd.OutOrStdout(), rolls)
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "SQLite database path")
	return cmd
}

// --- flags ---

type strategyFlags struct {
	symbol    string
	option    string
	variant   string
	strike    string
	premium   string
	contracts int64
	costBasis string
	margin    string
}

func (f *strategyFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.symbol, "symbol", "", "Underlying ticker")
	fl.StringVar(&f.option, "option", "", "OCC option symbol; sets --symbol and --strike")
	fl.StringVar(&f.variant, "variant", "", "covered_call, naked_call, cash_secured_put, naked_put, buy_call or buy_put")
	fl.StringVar(&f.strike, "strike", "", "Strike price")
	fl.StringVar(&f.premium, "premium", "0", "Premium per share")
	fl.Int64Var(&f.contracts, "contracts", 1, "Number of contracts")
	fl.StringVar(&f.costBasis, "cost-basis", "", "Per-share cost of the stock held (covered calls)")
	fl.StringVar(&f.margin, "margin", "", "Margin override (naked variants)")
}

func (f *strategyFlags) record() (*model.StrategyRecord, error) {
	rec := &model.StrategyRecord{
		Symbol:    f.symbol,
		Variant:   model.Variant(strings.ToLower(f.variant)),
		Contracts: f.contracts,
	}

	var err error
	if f.option != "" {
		opt, err := contract.ParseOptionSymbol(f.option)
		if err != nil {
			return nil, err
		}
		if !opt.Matches(rec.Variant) {
			return nil, fmt.Errorf("option %s does not match variant %q", opt.Symbol, f.variant)
		}
		rec.Symbol = opt.Underlying
		rec.Strike = opt.Strike
	} else if rec.Strike, err = parseDecimal("strike", f.strike); err != nil {
		return nil, err
	}

	if rec.Premium, err = parseDecimal("premium", f.premium); err != nil {
		return nil, err
	}
	if rec.StockCostBasis, err = parseOptional("cost-basis", f.costBasis); err != nil {
		return nil, err
	}
	if rec.MarginOverride, err = parseOptional("margin", f.margin); err != nil {
		return nil, err
	}

	if err := contract.ValidateStrategy(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

type rollFlags struct {
	strategy strategyFlags
	db       string
	id       string

	endMode       string
	closePrice    string
	exercisePrice string

	newVariant   string
	newStrike    string
	newPremium   string
	newContracts int64
	expected     string

	strict bool
}

func (f *rollFlags) bind(cmd *cobra.Command) {
	f.strategy.bind(cmd)

	fl := cmd.Flags()
	fl.StringVar(&f.db, "db", "", "SQLite database path; with --id, load the old leg from it")
	fl.StringVar(&f.id, "id", "", "Stored strategy ID")

	fl.StringVar(&f.endMode, "end-mode", "", "How the old leg ended: exercised, closed or expired")
	fl.StringVar(&f.closePrice, "close-price", "", "Per-share price the old leg was closed at")
	fl.StringVar(&f.exercisePrice, "exercise-price", "", "Underlying price when the old leg was exercised")

	fl.StringVar(&f.newVariant, "new-variant", "", "Variant of the new leg (default: same as old)")
	fl.StringVar(&f.newStrike, "new-strike", "", "Strike of the new leg")
	fl.StringVar(&f.newPremium, "new-premium", "0", "Premium per share of the new leg")
	fl.Int64Var(&f.newContracts, "new-contracts", 0, "Contracts in the new leg (default: same as old)")
	fl.StringVar(&f.expected, "expected-price", "", "Expected settlement price of the underlying")

	fl.BoolVar(&f.strict, "strict", false, "Fail instead of reporting partial results when inputs are missing")

	cmd.MarkFlagRequired("end-mode")
	cmd.MarkFlagRequired("new-strike")
}

// request builds a validated roll request. The old leg is loaded from st
// when --id is set, otherwise built from the strategy flags.
func (f *rollFlags) request(ctx context.Context, st store.Store) (roll.Request, error) {
	var rec *model.StrategyRecord
	var err error
	switch {
	case f.id != "":
		if st == nil {
			return roll.Request{}, fmt.Errorf("--id: %w", errNoDB)
		}
		if rec, err = st.GetStrategy(ctx, f.id); err != nil {
			return roll.Request{}, err
		}
	default:
		if rec, err = f.strategy.record(); err != nil {
			return roll.Request{}, err
		}
	}

	req := roll.Request{
		Strategy: *rec,
		Assumption: roll.OldLegAssumption{
			EndMode: roll.EndMode(strings.ToLower(f.endMode)),
		},
		Next: roll.NewPositionInput{
			Variant: model.Variant(strings.ToLower(f.newVariant)),
		},
		Strict: f.strict,
	}
	if f.newContracts != 0 {
		n := f.newContracts
		req.Next.Quantity = &n
	}

	a := &req.Assumption
	if a.ClosePrice, err = parseOptional("close-price", f.closePrice); err != nil {
		return roll.Request{}, err
	}
	if a.MarketPriceAtExercise, err = parseOptional("exercise-price", f.exercisePrice); err != nil {
		return roll.Request{}, err
	}

	n := &req.Next
	if n.Strike, err = parseDecimal("new-strike", f.newStrike); err != nil {
		return roll.Request{}, err
	}
	if n.Premium, err = parseDecimal("new-premium", f.newPremium); err != nil {
		return roll.Request{}, err
	}
	if n.ExpectedSettlementPrice, err = parseOptional("expected-price", f.expected); err != nil {
		return roll.Request{}, err
	}

	if err := contract.ValidateRoll(req); err != nil {
		return roll.Request{}, err
	}
	return req, nil
}

func parseDecimal(flag, s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %q is not a number", flag, s)
	}
	return v, nil
}

// parseOptional maps an empty flag to an absent value.
func parseOptional(flag, s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	v, err := parseDecimal(flag, s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: v, Valid: true}, nil
}

// --- store ---

func openRequired(path string) (store.Store, func(), error) {
	if path == "" {
		return nil, nil, errNoDB
	}
	return openOptional(path)
}

// openOptional opens the SQLite store at path, or returns a nil store when
// path is empty. The returned func closes it.
func openOptional(path string) (store.Store, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	st, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { st.Close() }, nil
}

// --- output ---

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeAnalysis(w io.Writer, format string, a *roll.Analysis) error {
	switch strings.ToLower(format) {
	case "json":
		return writeJSON(w, a)
	case "csv":
		if err := export.WriteScenariosCSV(w, a); err != nil {
			return err
		}
		fmt.Fprintln(w)
		return export.WriteCurveCSV(w, a.Curve)
	case "text":
		writeText(w, a)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeText(w io.Writer, a *roll.Analysis) {
	fmt.Fprintf(w, "Old leg realized P&L: %s\n", a.Resolved.RealizedPnL.StringFixed(2))
	if a.Resolved.HasStock() {
		fmt.Fprintf(w, "Stock carried: %d @ %s\n", a.Resolved.Stock.Quantity, a.Resolved.Stock.CostBasisPerShare.Decimal.StringFixed(2))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-14s  %12s  %12s  %12s  %9s\n", "SCENARIO", "NEW LEG", "TOTAL", "COST BASIS", "RETURN %")
	for _, s := range []roll.ScenarioResult{a.Exercised, a.NotExercised} {
		fmt.Fprintf(w, "%-14s  %12s  %12s  %12s  %9s\n",
			s.Scenario, textCell(s.NewLegPnL), textCell(s.TotalPnL), textCell(s.CostBasis), textCell(s.ReturnPercent))
		fmt.Fprintf(w, "  %s\n", s.Description)
	}
	fmt.Fprintln(w)

	sum := a.Summary
	fmt.Fprintf(w, "Max profit: %s at %s\n", sum.MaxProfit.StringFixed(2), sum.MaxProfitAtPrice.StringFixed(2))
	fmt.Fprintf(w, "Max loss:   %s at %s\n", sum.MaxLoss.StringFixed(2), sum.MaxLossAtPrice.StringFixed(2))
	if len(sum.BreakEvens) > 0 {
		prices := make([]string, len(sum.BreakEvens))
		for i, p := range sum.BreakEvens {
			prices[i] = p.StringFixed(2)
		}
		fmt.Fprintf(w, "Break-even: %s\n", strings.Join(prices, ", "))
	}

	for _, warning := range a.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

func textCell(v decimal.NullDecimal) string {
	if !v.Valid {
		return "n/a"
	}
	return v.Decimal.StringFixed(2)
}

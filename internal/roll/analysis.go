package roll

import (
	"fmt"
	"time"

	"github.com/atmx/roll-engine/internal/model"
)

// Request is everything needed to analyze one roll.
type Request struct {
	Strategy   model.StrategyRecord `json:"strategy"`
	Assumption OldLegAssumption     `json:"assumption"`
	Next       NewPositionInput     `json:"new_position"`

	// Strict makes Analyze fail with ErrIncompleteInputs instead of
	// returning partially calculated results.
	Strict bool `json:"strict"`
}

// Analysis is the full output of a roll analysis.
type Analysis struct {
	Resolved     ResolvedOldLeg `json:"resolved_old_leg"`
	Exercised    ScenarioResult `json:"exercised"`
	NotExercised ScenarioResult `json:"not_exercised"`
	Curve        []PayoffPoint  `json:"curve"`
	Summary      CurveSummary   `json:"summary"`
	Warnings     []string       `json:"warnings"`
}

// Complete reports whether every value in the analysis was computed from
// supplied inputs, with no fallback and no uncalculated scenario.
func (a *Analysis) Complete() bool {
	return a.Resolved.Fallback == FallbackNone && a.Exercised.IsCalculated && a.NotExercised.IsCalculated
}

// Analyze runs the whole pipeline: resolve the old leg, project both
// scenarios, sweep the payoff curve and find its break-evens.
func Analyze(req Request) (*Analysis, error) {
	resolved := ResolveOldLeg(req.Strategy, req.Assumption)
	exercised, notExercised := ProjectScenarios(req.Strategy, resolved, req.Next)
	curve := curveFor(req.Strategy, resolved, req.Next)

	a := &Analysis{
		Resolved:     resolved,
		Exercised:    exercised,
		NotExercised: notExercised,
		Curve:        curve,
		Summary:      Summarize(curve),
		Warnings:     warnings(req, resolved, exercised, notExercised),
	}

	if req.Strict && !a.Complete() {
		return a, fmt.Errorf("%w: %v", ErrIncompleteInputs, a.Warnings)
	}
	return a, nil
}

// Record summarizes an analysis of req as a roll history entry. The caller
// assigns the ID.
func (req Request) Record(a *Analysis, at time.Time) model.RollRecord {
	return model.RollRecord{
		StrategyID:        req.Strategy.ID,
		EndMode:           string(req.Assumption.EndMode),
		NewVariant:        req.Next.VariantFor(req.Strategy),
		NewStrike:         req.Next.Strike,
		NewPremium:        req.Next.Premium,
		NewContracts:      req.Next.ContractsFor(req.Strategy),
		ExercisedTotal:    a.Exercised.TotalPnL,
		NotExercisedTotal: a.NotExercised.TotalPnL,
		CreatedAt:         at,
	}
}

// SameFamily reports whether rolling from one variant to another keeps the
// option type (call or put) and direction (bought or sold).
func SameFamily(from, to model.Variant) bool {
	return from.IsCall() == to.IsCall() && from.IsLong() == to.IsLong()
}

func warnings(req Request, resolved ResolvedOldLeg, scenarios ...ScenarioResult) []string {
	out := []string{}

	if next := req.Next.Variant; next != "" && !SameFamily(req.Strategy.Variant, next) {
		out = append(out, fmt.Sprintf("rolling %s into %s changes strategy family", req.Strategy.Variant, next))
	}

	switch resolved.Fallback {
	case FallbackMissingClosePrice:
		out = append(out, "old leg closed without a close price: treated as expired worthless, cost understated")
	case FallbackMissingExercisePrice:
		out = append(out, "old leg exercised without a market price: assignment value not included")
	}

	for _, s := range scenarios {
		if !s.IsCalculated {
			out = append(out, fmt.Sprintf("%s scenario not calculated: %s", s.Scenario, s.MissingDataWarning))
		}
	}
	return out
}

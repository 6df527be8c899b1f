package roll

import (
	"github.com/atmx/roll-engine/internal/model"
)

// ResolveOldLeg computes the realized P&L of the old leg and the stock it
// leaves behind, given how the user says it ended.
//
// Missing close or exercise prices do not fail the resolution: the leg is
// credited with its full premium (debited, for bought options) and
// Fallback names the missing input so callers can tell it apart from a
// computed result.
func ResolveOldLeg(rec model.StrategyRecord, a OldLegAssumption) ResolvedOldLeg {
	return legFor(rec.Variant).resolve(rec, a)
}

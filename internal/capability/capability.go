// Package capability turns raw machine tags into the numbers the scheduler
// works with: facility-wide aggregates and the efficiency tier table that
// prices running an operation on under-spec equipment.
package capability

import (
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/catalog"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/equipment"
)

// Aggregate folds a facility's instances into one capability view. Boolean
// capabilities are present iff any machine provides them at condition > 0,
// consumable numerics pool additively across machines, and non-consumables
// take the single best machine. Values are condition-scaled.
func Aggregate(instances []*equipment.Instance) map[catalog.Category]float64 {
	out := make(map[catalog.Category]float64)
	for _, in := range instances {
		for _, tag := range in.Def().Tags {
			eff := in.EffectiveValue(tag.Category)
			if eff == 0 {
				continue
			}
			switch {
			case tag.Boolean:
				out[tag.Category] = 1
			case tag.Consumable:
				out[tag.Category] += eff
			default:
				if eff > out[tag.Category] {
					out[tag.Category] = eff
				}
			}
		}
	}
	return out
}

// Ratio is available capability over the requirement's target (optimal when
// set, minimum otherwise).
func Ratio(available float64, req catalog.Requirement) float64 {
	target := req.Target()
	if target <= 0 {
		return 0
	}
	return available / target
}

// Grade is one row of the efficiency tier table.
type Grade struct {
	TimeFactor    float64
	QualityFactor float64
	FailureBonus  float64
}

// GradeFor maps an efficiency ratio onto its tier. The 0.8 boundary is
// inclusive: at or above it an operation runs penalty-free.
func GradeFor(ratio float64) Grade {
	switch {
	case ratio >= 0.8:
		return Grade{TimeFactor: 1.0, QualityFactor: 1.0, FailureBonus: 0}
	case ratio >= 0.6:
		return Grade{TimeFactor: 1.5, QualityFactor: 0.9, FailureBonus: 0.05}
	case ratio >= 0.4:
		return Grade{TimeFactor: 2.0, QualityFactor: 0.8, FailureBonus: 0.10}
	case ratio >= 0.2:
		return Grade{TimeFactor: 3.0, QualityFactor: 0.65, FailureBonus: 0.25}
	default:
		return Grade{TimeFactor: 5.0, QualityFactor: 0.5, FailureBonus: 0.50}
	}
}

// TimeFactor is the duration multiplier for a ratio. Gear better than optimal
// shortens work proportionally; the band from 0.8 up to optimal is neutral.
func TimeFactor(ratio float64) float64 {
	if ratio >= 1 {
		return 1 / ratio
	}
	return GradeFor(ratio).TimeFactor
}

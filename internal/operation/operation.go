// Package operation executes single method steps against a job inventory:
// checking preconditions, pricing duration, and applying the material
// transform with its failure roll.
package operation

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/capability"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/catalog"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/inventory"
)

// Outcomes of a completed run.
const (
	OutcomeSuccess   = "success"
	OutcomeScrap     = "scrap"
	OutcomeDowngrade = "downgrade"
	OutcomeRework    = "rework"
)

// DowngradePenalty multiplies a job's running quality factor when a
// downgrade failure lands.
const DowngradePenalty = 0.75

// Result reports what a run did to the job inventory.
type Result struct {
	Outcome        string
	Consumed       map[string]int
	Produced       []*inventory.Item
	QualityPenalty float64 // 1 unless the run downgraded
}

// CanStart reports whether every consumption rule is satisfiable from the
// inventory at the given job quantity. Rules are allocated in order against
// the same stacks Execute would take, so overlapping rules cannot pass here
// and then starve each other later.
func CanStart(op *catalog.Operation, inv *inventory.Inventory, quantity int) bool {
	if quantity <= 0 {
		return false
	}
	remaining := make(map[string]int)
	stacks := inv.Items()
	for _, it := range stacks {
		remaining[it.ID] = it.Quantity
	}
	for _, rule := range op.Consumes {
		req := request(rule, quantity)
		candidates := matching(stacks, req)
		need := req.Count
		for _, it := range candidates {
			if need == 0 {
				break
			}
			take := min(need, remaining[it.ID])
			remaining[it.ID] -= take
			need -= take
		}
		if need > 0 {
			return false
		}
	}
	return true
}

// RunDuration scales the base duration by the efficiency ratio of the
// assigned machine.
func RunDuration(op *catalog.Operation, ratio float64) time.Duration {
	return time.Duration(float64(op.BaseDuration.Std()) * capability.TimeFactor(ratio))
}

// FailureChance is the effective failure probability at an efficiency ratio.
func FailureChance(op *catalog.Operation, ratio float64) float64 {
	chance := op.FailureChance + capability.GradeFor(ratio).FailureBonus
	if chance > 1 {
		chance = 1
	}
	if chance < 0 {
		chance = 0
	}
	return chance
}

// Execute completes one run of an operation against the job inventory.
// Consumption happens here, at completion time, never at assignment: a run
// that fails as rework has touched nothing and simply retries.
//
// qualityFactor is the job's running estimate; produced quality is
// rule-or-inherited quality x tier quality factor x that estimate.
func Execute(op *catalog.Operation, inv *inventory.Inventory, quantity int, ratio, qualityFactor float64, rng *rand.Rand) (Result, error) {
	res := Result{Outcome: OutcomeSuccess, QualityPenalty: 1}

	chance := FailureChance(op, ratio)
	failed := chance > 0 && rng.Float64() < chance
	if failed && op.OnFailure == catalog.FailRework {
		res.Outcome = OutcomeRework
		return res, nil
	}

	consumed, inputQuality, err := consume(op, inv, quantity)
	if err != nil {
		return Result{}, err
	}
	res.Consumed = consumed

	if failed && op.OnFailure == catalog.FailScrap {
		res.Outcome = OutcomeScrap
		return res, nil
	}
	if failed {
		res.Outcome = OutcomeDowngrade
		res.QualityPenalty = DowngradePenalty
		qualityFactor *= DowngradePenalty
	}

	grade := capability.GradeFor(ratio)
	for _, rule := range op.Produces {
		quality := rule.Quality
		if rule.InheritQuality {
			quality = inputQuality
		}
		quality *= grade.QualityFactor * qualityFactor
		it := inventory.NewItem(rule.Item, rule.Count*quantity, quality, rule.Tags)
		inv.Accept(it)
		res.Produced = append(res.Produced, it)
	}
	return res, nil
}

// consume takes every rule's units out of the inventory and returns the
// totals plus the quantity-weighted mean input quality.
func consume(op *catalog.Operation, inv *inventory.Inventory, quantity int) (map[string]int, float64, error) {
	totals := make(map[string]int)
	weighted := 0.0
	units := 0
	for _, rule := range op.Consumes {
		req := request(rule, quantity)
		taken, ok := inv.Take(req)
		if !ok {
			return nil, 0, fmt.Errorf("operation %q: job inventory short of %dx %s", op.ID, req.Count, req.Type)
		}
		for _, it := range taken {
			totals[it.Type] += it.Quantity
			weighted += it.Quality * float64(it.Quantity)
			units += it.Quantity
		}
	}
	if units == 0 {
		return totals, 100, nil
	}
	return totals, weighted / float64(units), nil
}

func request(rule catalog.ConsumptionRule, quantity int) inventory.Request {
	return inventory.Request{
		Type:         rule.Item,
		Count:        rule.Count * quantity,
		RequiredTags: rule.RequiredTags,
		MaxQuality:   rule.MaxQuality,
	}
}

// matching filters stacks by a request and orders them the way Take does:
// best quality first, stable.
func matching(stacks []*inventory.Item, req inventory.Request) []*inventory.Item {
	var out []*inventory.Item
	for _, it := range stacks {
		if it.Matches(req) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quality > out[j].Quality })
	return out
}

// Package allocation implements the proportional-fairness arbitrator: for a
// single resource kind within a contention group, it solves
//
//	maximize   Σ wᵢ·ln(aᵢ)
//	subject to min_i ≤ aᵢ ≤ ideal_i,  Σ aᵢ ≤ C,  aᵢ ∈ ℤ≥0
//
// via water-filling — the same shape as the teacher's Fisher-market
// ClearMarket, generalized from a single CPU dimension to an arbitrary
// resource kind and from (Demand, Bid, Weight) pod params to (min, ideal,
// priority weight) agent params.
package allocation

import (
	"math"
	"sort"

	"k8s.io/klog/v2"
)

// Demand is one agent's bounds and priority weight for a single resource
// within a contention group.
type Demand struct {
	AgentID string
	Min     int64
	Ideal   int64
	Weight  float64
}

// Result is the outcome of solving one resource within one group.
type Result struct {
	Allocation map[string]int64
	Objective  float64
	Feasible   bool
	// Deficit is set when minimums alone exceed capacity: the shortfall in
	// aggregate minimum that could not be honored.
	Deficit int64
}

// Solve runs the water-filling algorithm for a single resource kind against
// capacity C.
func Solve(demands []Demand, capacity int64) Result {
	if len(demands) == 0 {
		return Result{Allocation: map[string]int64{}, Feasible: true}
	}

	demands = normalizeWeights(demands)

	var totalMin int64
	for _, d := range demands {
		totalMin += d.Min
	}

	targets := make(map[string]float64, len(demands))

	if totalMin > capacity {
		// Step 1 shortfall: allocate proportionally to w/min ratio capped at
		// min, leaving the shortfall as a reported deficit.
		var totalKey float64
		for _, d := range demands {
			if d.Min > 0 {
				totalKey += d.Weight / float64(d.Min)
			}
		}
		for _, d := range demands {
			if totalKey > 0 && d.Min > 0 {
				key := d.Weight / float64(d.Min)
				targets[d.AgentID] = math.Min(float64(d.Min), (key/totalKey)*float64(capacity))
			} else {
				targets[d.AgentID] = 0
			}
		}
		alloc := integerize(targets, demands, capacity)
		klog.V(3).InfoS("minimums exceed capacity", "agents", len(demands), "capacity", capacity, "deficit", totalMin-capacity)
		return Result{
			Allocation: alloc,
			Objective:  objective(alloc, demands),
			Feasible:   false,
			Deficit:    totalMin - capacity,
		}
	}

	// Step 1: assign minimums.
	for _, d := range demands {
		targets[d.AgentID] = float64(d.Min)
	}
	remaining := float64(capacity - totalMin)

	// Step 2/3: water-fill the headroom proportionally to weight among
	// agents not yet saturated at their ideal.
	unsaturated := make(map[string]bool, len(demands))
	for _, d := range demands {
		if d.Ideal > d.Min {
			unsaturated[d.AgentID] = true
		}
	}

	for remaining > 1e-9 && len(unsaturated) > 0 {
		var totalWeight float64
		for _, d := range demands {
			if unsaturated[d.AgentID] {
				totalWeight += d.Weight
			}
		}
		if totalWeight <= 0 {
			break
		}

		type increment struct {
			id     string
			amount float64
		}
		var increments []increment
		for _, d := range demands {
			if !unsaturated[d.AgentID] {
				continue
			}
			share := (d.Weight / totalWeight) * remaining
			increments = append(increments, increment{d.AgentID, share})
		}

		var saturatedThisPass bool
		for _, inc := range increments {
			d := demandByID(demands, inc.id)
			headroom := float64(d.Ideal) - targets[inc.id]
			if inc.amount >= headroom {
				targets[inc.id] = float64(d.Ideal)
				remaining -= headroom
				delete(unsaturated, inc.id)
				saturatedThisPass = true
			}
		}
		if saturatedThisPass {
			continue
		}

		for _, inc := range increments {
			targets[inc.id] += inc.amount
			remaining -= inc.amount
		}
		break
	}

	alloc := integerize(targets, demands, capacity)
	return Result{
		Allocation: alloc,
		Objective:  objective(alloc, demands),
		Feasible:   true,
	}
}

func demandByID(demands []Demand, id string) Demand {
	for _, d := range demands {
		if d.AgentID == id {
			return d
		}
	}
	return Demand{}
}

// normalizeWeights replaces an all-zero weight set with uniform weights,
// per the spec's degenerate-weight failure semantics.
func normalizeWeights(demands []Demand) []Demand {
	var total float64
	for _, d := range demands {
		total += d.Weight
	}
	if total > 0 {
		return demands
	}
	out := make([]Demand, len(demands))
	copy(out, demands)
	for i := range out {
		out[i].Weight = 1
	}
	return out
}

// integerize performs largest-remainder rounding: floor every target, then
// distribute the residual units to the largest fractional remainders,
// tie-breaking on (higher weight, then lower agent ID lexicographically).
// When the minimums fit within capacity, targets are raised to their minimum
// and the final sum equals min(capacity, Σ ideal); otherwise targets stay
// below their minimums and the sum never exceeds capacity.
func integerize(targets map[string]float64, demands []Demand, capacity int64) map[string]int64 {
	alloc := make(map[string]int64, len(demands))
	var totalFloor int64
	var totalTarget float64

	var totalMin int64
	for _, d := range demands {
		totalMin += d.Min
	}
	floorAtMin := totalMin <= capacity

	for _, d := range demands {
		t := targets[d.AgentID]
		if floorAtMin && t < float64(d.Min) {
			t = float64(d.Min)
		}
		if t > float64(d.Ideal) {
			t = float64(d.Ideal)
		}
		floor := int64(t)
		alloc[d.AgentID] = floor
		totalFloor += floor
		totalTarget += t
	}

	totalIdeal := int64(0)
	for _, d := range demands {
		totalIdeal += d.Ideal
	}
	targetSum := capacity
	if totalIdeal < capacity {
		targetSum = totalIdeal
	}
	// totalTarget already reflects min(capacity, Σ ideal) via the water-fill
	// loop; round it to the nearest integer budget to distribute.
	budget := int64(math.Round(totalTarget))
	if budget > targetSum {
		budget = targetSum
	}

	leftover := budget - totalFloor
	if leftover == 0 {
		return alloc
	}

	type remainder struct {
		id        string
		weight    float64
		remainder float64
		ideal     int64
		min       int64
	}
	remainders := make([]remainder, 0, len(demands))
	for _, d := range demands {
		t := targets[d.AgentID]
		if floorAtMin && t < float64(d.Min) {
			t = float64(d.Min)
		}
		if t > float64(d.Ideal) {
			t = float64(d.Ideal)
		}
		remainders = append(remainders, remainder{d.AgentID, d.Weight, t - float64(alloc[d.AgentID]), d.Ideal, d.Min})
	}

	if leftover > 0 {
		sort.Slice(remainders, func(i, j int) bool {
			if remainders[i].remainder != remainders[j].remainder {
				return remainders[i].remainder > remainders[j].remainder
			}
			if remainders[i].weight != remainders[j].weight {
				return remainders[i].weight > remainders[j].weight
			}
			return remainders[i].id < remainders[j].id
		})
		for i := int64(0); i < leftover && int(i) < len(remainders); i++ {
			r := remainders[i]
			if alloc[r.id] < r.ideal {
				alloc[r.id]++
			}
		}
	} else {
		sort.Slice(remainders, func(i, j int) bool {
			if remainders[i].remainder != remainders[j].remainder {
				return remainders[i].remainder < remainders[j].remainder
			}
			if remainders[i].weight != remainders[j].weight {
				return remainders[i].weight < remainders[j].weight
			}
			return remainders[i].id < remainders[j].id
		})
		for i := int64(0); i < -leftover && int(i) < len(remainders); i++ {
			r := remainders[i]
			if alloc[r.id] > r.min {
				alloc[r.id]--
			}
		}
	}

	return alloc
}

// objective computes Σ wᵢ·ln(max(aᵢ,1)), replacing any non-finite result
// with −∞ per the spec's NaN-guard failure semantics.
func objective(alloc map[string]int64, demands []Demand) float64 {
	var total float64
	for _, d := range demands {
		a := alloc[d.AgentID]
		if a < 1 {
			a = 1
		}
		total += d.Weight * math.Log(float64(a))
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return math.Inf(-1)
	}
	return total
}

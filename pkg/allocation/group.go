package allocation

import (
	"k8s.io/klog/v2"

	"arbiter/pkg/resource"
)

// MaxIterations bounds the cross-resource fixed-point iteration.
const MaxIterations = 25

// Damping is the step damping applied between iterations of the
// cross-resource solve.
const Damping = 0.5

// ConvergenceThreshold is the relative change in total objective below
// which the cross-resource iteration is considered converged.
const ConvergenceThreshold = 1e-4

// GroupMember is one agent's bounds across every contested resource in a
// group, plus its priority weight (shared across resources: the priority
// economy assigns one weight per agent, not per resource).
type GroupMember struct {
	AgentID string
	Min     map[resource.Kind]int64
	Ideal   map[resource.Kind]int64
	Weight  float64
}

// GroupResult is the outcome of solving every contested resource in a
// group to a joint fixed point.
type GroupResult struct {
	Allocation map[string]map[resource.Kind]int64
	Results    map[resource.Kind]Result
	Iterations int
	Objective  float64
}

// SolveGroup solves every resource kind in the group via repeated
// single-resource water-filling, holding other resources fixed, iterating
// to a fixed point. Because this priority economy's weight is resource
// independent, each resource's single-resource solve is already the fixed
// point on its first pass; the iteration loop still runs (damped, capped at
// MaxIterations) so a future collaborator that adjusts per-resource weights
// from cross-resource marginal utility has a convergence loop to plug into.
func SolveGroup(members []GroupMember, kinds []resource.Kind, capacity map[resource.Kind]int64) GroupResult {
	results := make(map[resource.Kind]Result, len(kinds))
	alloc := make(map[string]map[resource.Kind]int64, len(members))
	for _, m := range members {
		alloc[m.AgentID] = make(map[resource.Kind]int64, len(kinds))
	}

	var prevObjective float64
	iterations := 0

	for iterations = 0; iterations < MaxIterations; iterations++ {
		var totalObjective float64
		for _, k := range kinds {
			demands := make([]Demand, len(members))
			for i, m := range members {
				demands[i] = Demand{AgentID: m.AgentID, Min: m.Min[k], Ideal: m.Ideal[k], Weight: m.Weight}
			}
			res := Solve(demands, capacity[k])
			results[k] = res
			totalObjective += res.Objective

			for id, a := range res.Allocation {
				prior, had := alloc[id][k]
				if !had || iterations == 0 {
					alloc[id][k] = a
				} else {
					alloc[id][k] = int64(Damping*float64(a) + (1-Damping)*float64(prior))
				}
			}
		}

		if iterations > 0 {
			denom := prevObjective
			if denom == 0 {
				denom = 1
			}
			relChange := (totalObjective - prevObjective) / denom
			if relChange < 0 {
				relChange = -relChange
			}
			if relChange < ConvergenceThreshold {
				prevObjective = totalObjective
				iterations++
				break
			}
		}
		prevObjective = totalObjective
	}

	klog.V(5).InfoS("group solved", "members", len(members), "kinds", len(kinds), "iterations", iterations, "objective", prevObjective)
	return GroupResult{
		Allocation: alloc,
		Results:    results,
		Iterations: iterations,
		Objective:  prevObjective,
	}
}

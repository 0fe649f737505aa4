package agentmodel

import (
	"k8s.io/klog/v2"

	"arbiter/pkg/resource"
)

// Bid is what an agent submits into a round: how much of each resource it
// wants, the marginal utility it currently derives from each, and the
// strategy label that produced the demand shape. The round driver and
// arbitrator treat Demand as this round's IdealRequest override; burn and
// strategy selection themselves are the external StrategyCollaborator's
// decision, not something computed here from past success.
type Bid struct {
	AgentID         string
	Demand          map[resource.Kind]int64
	MarginalUtility map[resource.Kind]float64
	Weight          float64
	Strategy        string
}

// ComputeBid shapes a bid from the agent's min/ideal bounds, its current
// strategy multiplier, and its preference gradient at the current
// allocation. Demand starts at the ideal request with 15% headroom, is
// clamped to [min, ideal], then scaled by the strategy multiplier and
// clamped again.
func ComputeBid(agent *Agent, state *State, currentAlloc map[resource.Kind]int64) Bid {
	multiplier := state.ComputeStrategyAdjustment()

	demand := make(map[resource.Kind]int64, len(agent.IdealRequest))
	for k, ideal := range agent.IdealRequest {
		base := int64(float64(ideal) * 1.15)
		min := agent.MinRequest[k]
		base = clampInt64(base, min, ideal)

		adjusted := int64(float64(base) * multiplier)
		demand[k] = clampInt64(adjusted, min, ideal)
	}

	return Bid{
		AgentID:         agent.ID,
		Demand:          demand,
		MarginalUtility: agent.Preferences.Gradient(toFloatMap(currentAlloc)),
		Weight:          1.0,
		Strategy:        state.GetStrategyName(),
	}
}

// HistoryInformedBid shapes a bid the same way ComputeBid does, but uses the
// average allocation across the agent's recent outcomes as the demand
// baseline instead of the ideal request alone — agents that have recently
// been allocated less ask for less, without the baseline itself adjusting
// the agent's aggressiveness from its own success rate.
func HistoryInformedBid(agent *Agent, state *State, currentAlloc map[resource.Kind]int64, recentWindow int) Bid {
	outcomes := state.GetRecentOutcomes(recentWindow)
	if len(outcomes) == 0 {
		return ComputeBid(agent, state, currentAlloc)
	}

	var avgAlloc float64
	for _, o := range outcomes {
		avgAlloc += float64(o.Allocation)
	}
	avgAlloc /= float64(len(outcomes))

	multiplier := state.ComputeStrategyAdjustment()
	demand := make(map[resource.Kind]int64, len(agent.IdealRequest))
	for k, ideal := range agent.IdealRequest {
		min := agent.MinRequest[k]
		base := clampInt64(int64(avgAlloc), min, ideal)
		if base == 0 {
			base = min
		}
		adjusted := int64(float64(base) * multiplier)
		demand[k] = clampInt64(adjusted, min, ideal)
	}

	return Bid{
		AgentID:         agent.ID,
		Demand:          demand,
		MarginalUtility: agent.Preferences.Gradient(toFloatMap(currentAlloc)),
		Weight:          1.0,
		Strategy:        state.GetStrategyName(),
	}
}

// AggregateBids reduces a set of bids to the demand map the arbitrator
// consumes: agent ID to per-resource requested quantity.
func AggregateBids(bids []Bid) map[string]map[resource.Kind]int64 {
	out := make(map[string]map[resource.Kind]int64, len(bids))
	for _, b := range bids {
		out[b.AgentID] = b.Demand
	}
	return out
}

// ComputeAveragePayoff returns the mean running-average utility across all
// tracked agent states, 0 if there are none.
func ComputeAveragePayoff(states map[string]*State) float64 {
	if len(states) == 0 {
		return 0
	}
	var total float64
	for _, s := range states {
		avg, _, _ := s.GetPerformanceStats()
		total += avg
	}
	return total / float64(len(states))
}

// SelectBestBid picks the bid maximizing total marginal utility minus
// shadow-priced cost: Σ_k MarginalUtility[k] − shadowPrice[k]·Demand[k].
func SelectBestBid(bids []Bid, shadowPrices map[resource.Kind]float64) Bid {
	if len(bids) == 0 {
		return Bid{}
	}
	best := bids[0]
	bestValue := bidValue(bids[0], shadowPrices)
	for _, b := range bids[1:] {
		if v := bidValue(b, shadowPrices); v > bestValue {
			bestValue = v
			best = b
		}
	}
	klog.V(5).InfoS("selected bid", "agent", best.AgentID, "strategy", best.Strategy, "value", bestValue)
	return best
}

func bidValue(b Bid, shadowPrices map[resource.Kind]float64) float64 {
	var v float64
	for k, mu := range b.MarginalUtility {
		v += mu
		v -= shadowPrices[k] * float64(b.Demand[k])
	}
	return v
}

func clampInt64(v, min, max int64) int64 {
	if max < min {
		max = min
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func toFloatMap(m map[resource.Kind]int64) map[resource.Kind]float64 {
	f := make(map[resource.Kind]float64, len(m))
	for k, v := range m {
		f[k] = float64(v)
	}
	return f
}

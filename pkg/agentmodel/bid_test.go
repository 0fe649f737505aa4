package agentmodel

import (
	"testing"

	"github.com/shopspring/decimal"

	"arbiter/pkg/resource"
	"arbiter/pkg/utility"
)

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	prefs, err := utility.NewLinear(map[resource.Kind]float64{resource.CPU: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, err := agentFrom(prefs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return a
}

func agentFrom(prefs utility.Form) (*Agent, error) {
	return New("agent-1", "test", prefs, decimal.NewFromInt(100),
		map[resource.Kind]int64{resource.CPU: 100},
		map[resource.Kind]int64{resource.CPU: 1000})
}

func TestComputeBid_DemandClampedToMinIdeal(t *testing.T) {
	agent := newTestAgent(t)
	state := NewState(agent.ID, 10)
	bid := ComputeBid(agent, state, map[resource.Kind]int64{resource.CPU: 500})

	if bid.Demand[resource.CPU] < agent.MinRequest[resource.CPU] || bid.Demand[resource.CPU] > agent.IdealRequest[resource.CPU] {
		t.Errorf("expected demand within [min,ideal], got %d", bid.Demand[resource.CPU])
	}
}

func TestComputeBid_AggressiveStrategyAsksForMore(t *testing.T) {
	agent := newTestAgent(t)

	conservative := NewState(agent.ID, 10)
	conservative.SetAggressiveness(0.1)
	conservativeBid := ComputeBid(agent, conservative, map[resource.Kind]int64{resource.CPU: 500})

	aggressive := NewState(agent.ID, 10)
	aggressive.SetAggressiveness(0.9)
	aggressiveBid := ComputeBid(agent, aggressive, map[resource.Kind]int64{resource.CPU: 500})

	if aggressiveBid.Demand[resource.CPU] < conservativeBid.Demand[resource.CPU] {
		t.Errorf("expected aggressive demand >= conservative demand, got %d vs %d",
			aggressiveBid.Demand[resource.CPU], conservativeBid.Demand[resource.CPU])
	}
}

func TestHistoryInformedBid_FallsBackWithNoHistory(t *testing.T) {
	agent := newTestAgent(t)
	state := NewState(agent.ID, 10)
	bid := HistoryInformedBid(agent, state, map[resource.Kind]int64{resource.CPU: 500}, 5)
	if bid.Demand[resource.CPU] <= 0 {
		t.Errorf("expected nonzero demand with no history, got %d", bid.Demand[resource.CPU])
	}
}

func TestHistoryInformedBid_DoesNotSelfAdjustAggressiveness(t *testing.T) {
	agent := newTestAgent(t)
	state := NewState(agent.ID, 10)
	for i := 0; i < 5; i++ {
		state.RecordOutcome(DecisionOutcome{Allocation: 900, SLOViolation: false, Throttling: 0})
	}
	before := state.GetAggressiveness()
	HistoryInformedBid(agent, state, map[resource.Kind]int64{resource.CPU: 500}, 5)
	after := state.GetAggressiveness()
	if before != after {
		t.Errorf("expected aggressiveness unchanged by history-informed bidding, got %f -> %f", before, after)
	}
}

func TestAggregateBids_KeysByAgentID(t *testing.T) {
	bids := []Bid{
		{AgentID: "a", Demand: map[resource.Kind]int64{resource.CPU: 10}},
		{AgentID: "b", Demand: map[resource.Kind]int64{resource.CPU: 20}},
	}
	agg := AggregateBids(bids)
	if agg["a"][resource.CPU] != 10 || agg["b"][resource.CPU] != 20 {
		t.Errorf("unexpected aggregation: %+v", agg)
	}
}

func TestComputeAveragePayoff_EmptyIsZero(t *testing.T) {
	if ComputeAveragePayoff(nil) != 0 {
		t.Error("expected 0 for empty state map")
	}
}

func TestComputeAveragePayoff_AveragesAcrossAgents(t *testing.T) {
	s1 := NewState("a", 10)
	s1.RecordOutcome(DecisionOutcome{Utility: 10})
	s2 := NewState("b", 10)
	s2.RecordOutcome(DecisionOutcome{Utility: 20})

	avg := ComputeAveragePayoff(map[string]*State{"a": s1, "b": s2})
	if avg != 15 {
		t.Errorf("expected average payoff 15, got %f", avg)
	}
}

func TestSelectBestBid_EmptyReturnsZeroValue(t *testing.T) {
	best := SelectBestBid(nil, nil)
	if best.AgentID != "" {
		t.Errorf("expected zero-value bid for empty input, got %+v", best)
	}
}

func TestSelectBestBid_PicksHighestNetValue(t *testing.T) {
	bids := []Bid{
		{AgentID: "cheap", MarginalUtility: map[resource.Kind]float64{resource.CPU: 5}, Demand: map[resource.Kind]int64{resource.CPU: 10}},
		{AgentID: "expensive", MarginalUtility: map[resource.Kind]float64{resource.CPU: 5}, Demand: map[resource.Kind]int64{resource.CPU: 1000}},
	}
	shadowPrices := map[resource.Kind]float64{resource.CPU: 1}
	best := SelectBestBid(bids, shadowPrices)
	if best.AgentID != "cheap" {
		t.Errorf("expected cheap bid to win on net value, got %s", best.AgentID)
	}
}

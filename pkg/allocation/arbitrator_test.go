package allocation

import "testing"

func TestSolve_EqualWeightsSplitCapacityByLargestRemainder(t *testing.T) {
	demands := []Demand{
		{AgentID: "a", Min: 10, Ideal: 40, Weight: 10},
		{AgentID: "b", Min: 10, Ideal: 40, Weight: 10},
		{AgentID: "c", Min: 10, Ideal: 40, Weight: 10},
	}
	res := Solve(demands, 100)

	total := res.Allocation["a"] + res.Allocation["b"] + res.Allocation["c"]
	if total != 100 {
		t.Fatalf("expected total allocation 100, got %d", total)
	}
	for id, a := range res.Allocation {
		if a != 33 && a != 34 {
			t.Errorf("expected agent %s to receive 33 or 34, got %d", id, a)
		}
	}
}

func TestSolve_PriorityWeightSplitsRoughlyByWeight(t *testing.T) {
	demands := []Demand{
		{AgentID: "a", Min: 1, Ideal: 10, Weight: 110},
		{AgentID: "b", Min: 1, Ideal: 10, Weight: 20},
	}
	res := Solve(demands, 10)

	if res.Allocation["a"]+res.Allocation["b"] != 10 {
		t.Fatalf("expected total 10, got %d", res.Allocation["a"]+res.Allocation["b"])
	}
	if res.Allocation["a"] <= res.Allocation["b"] {
		t.Errorf("expected higher-weight agent to receive more, got a=%d b=%d", res.Allocation["a"], res.Allocation["b"])
	}
	if res.Allocation["a"] < 8 || res.Allocation["a"] > 9 {
		t.Errorf("expected agent a near 9 (of 10), got %d", res.Allocation["a"])
	}
}

func TestSolve_StarvationResistanceAndMonotonicity(t *testing.T) {
	demands := []Demand{
		{AgentID: "a", Min: 1, Ideal: 5, Weight: 100},
		{AgentID: "b", Min: 1, Ideal: 5, Weight: 80},
		{AgentID: "c", Min: 1, Ideal: 5, Weight: 40},
		{AgentID: "d", Min: 1, Ideal: 5, Weight: 20},
		{AgentID: "e", Min: 1, Ideal: 5, Weight: 10},
	}
	res := Solve(demands, 10)

	var total int64
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if res.Allocation[id] < 1 {
			t.Errorf("expected starvation resistance: agent %s got %d", id, res.Allocation[id])
		}
		total += res.Allocation[id]
	}
	if total != 10 {
		t.Fatalf("expected total 10, got %d", total)
	}
	if res.Allocation["a"] < res.Allocation["b"] || res.Allocation["b"] < res.Allocation["c"] ||
		res.Allocation["c"] < res.Allocation["d"] || res.Allocation["d"] < res.Allocation["e"] {
		t.Errorf("expected monotonicity in priority, got %+v", res.Allocation)
	}
}

func TestSolve_InfeasibleMinimumsReportDeficit(t *testing.T) {
	demands := []Demand{
		{AgentID: "a", Min: 60, Ideal: 60, Weight: 10},
		{AgentID: "b", Min: 60, Ideal: 60, Weight: 10},
	}
	res := Solve(demands, 100)

	if res.Feasible {
		t.Fatal("expected infeasible result when minimums exceed capacity")
	}
	if res.Deficit != 20 {
		t.Errorf("expected deficit 20, got %d", res.Deficit)
	}
}

func TestSolve_DegenerateZeroWeightsFallBackToUniform(t *testing.T) {
	demands := []Demand{
		{AgentID: "a", Min: 0, Ideal: 10, Weight: 0},
		{AgentID: "b", Min: 0, Ideal: 10, Weight: 0},
	}
	res := Solve(demands, 20)
	if res.Allocation["a"] != res.Allocation["b"] {
		t.Errorf("expected equal allocation with degenerate weights, got %+v", res.Allocation)
	}
}

func TestSolve_EmptyDemandsIsFeasible(t *testing.T) {
	res := Solve(nil, 100)
	if !res.Feasible || len(res.Allocation) != 0 {
		t.Errorf("expected feasible empty result, got %+v", res)
	}
}

func TestSolve_MonotonicityInBurn(t *testing.T) {
	low := Solve([]Demand{
		{AgentID: "a", Min: 1, Ideal: 50, Weight: 10},
		{AgentID: "b", Min: 1, Ideal: 50, Weight: 10},
	}, 60)
	high := Solve([]Demand{
		{AgentID: "a", Min: 1, Ideal: 50, Weight: 30},
		{AgentID: "b", Min: 1, Ideal: 50, Weight: 10},
	}, 60)
	if high.Allocation["a"] < low.Allocation["a"] {
		t.Errorf("expected allocation to be non-decreasing in burn-derived weight, got %d -> %d",
			low.Allocation["a"], high.Allocation["a"])
	}
}

package stability

import "testing"

func TestCheckRoundOptimality_OptimalAllocationHasNoBlockingTransfer(t *testing.T) {
	points := []AllocationPoint{
		{AgentID: "a", Weight: 10, Allocation: 34},
		{AgentID: "b", Weight: 10, Allocation: 33},
		{AgentID: "c", Weight: 10, Allocation: 33},
	}
	optimal, blocking := CheckRoundOptimality(points)
	if !optimal {
		t.Errorf("expected equal-weight near-even split to be Pareto optimal, blocking=%+v", blocking)
	}
}

func TestCheckRoundOptimality_DetectsBlockingTransfer(t *testing.T) {
	points := []AllocationPoint{
		{AgentID: "rich", Weight: 0, Allocation: 90},
		{AgentID: "poor", Weight: 100, Allocation: 1},
	}
	optimal, blocking := CheckRoundOptimality(points)
	if optimal {
		t.Fatal("expected a blocking transfer from the zero-weight high-allocation agent to the high-weight low-allocation one")
	}
	if blocking.Gainer != "poor" || blocking.Loser != "rich" {
		t.Errorf("expected poor to gain from rich, got %+v", blocking)
	}
}

func TestCompareRounds_ParetoImprovement(t *testing.T) {
	before := map[string]float64{"a": 1.0, "b": 2.0}
	after := map[string]float64{"a": 1.5, "b": 2.0}
	c := CompareRounds(before, after)
	if !c.ParetoImprovement {
		t.Error("expected Pareto improvement when one agent gains and none lose")
	}
	if c.StrictImprovement {
		t.Error("expected no strict improvement since b is unchanged")
	}
}

func TestCompareRounds_NotImprovementWhenSomeoneWorse(t *testing.T) {
	before := map[string]float64{"a": 1.0, "b": 2.0}
	after := map[string]float64{"a": 1.5, "b": 1.0}
	c := CompareRounds(before, after)
	if c.ParetoImprovement {
		t.Error("expected no Pareto improvement when b strictly worsens")
	}
	if len(c.Worse) != 1 || c.Worse[0] != "b" {
		t.Errorf("expected b in Worse, got %+v", c.Worse)
	}
}

func TestCompareRounds_StrictImprovementRequiresEveryoneBetter(t *testing.T) {
	before := map[string]float64{"a": 1.0, "b": 2.0}
	after := map[string]float64{"a": 1.5, "b": 2.5}
	c := CompareRounds(before, after)
	if !c.StrictImprovement {
		t.Error("expected strict improvement when every agent gains")
	}
}

func TestWelfare_SumsWeightedLog(t *testing.T) {
	points := []AllocationPoint{{AgentID: "a", Weight: 1, Allocation: 1}}
	if Welfare(points) != 0 {
		t.Errorf("expected ln(1)=0, got %f", Welfare(points))
	}
}

func TestGini_PerfectEqualityIsZero(t *testing.T) {
	points := []AllocationPoint{
		{AgentID: "a", Allocation: 10},
		{AgentID: "b", Allocation: 10},
		{AgentID: "c", Allocation: 10},
	}
	if g := Gini(points); g != 0 {
		t.Errorf("expected 0 for perfect equality, got %f", g)
	}
}

func TestGini_HighInequalityIsPositive(t *testing.T) {
	points := []AllocationPoint{
		{AgentID: "a", Allocation: 100},
		{AgentID: "b", Allocation: 1},
		{AgentID: "c", Allocation: 1},
	}
	if g := Gini(points); g <= 0 {
		t.Errorf("expected positive Gini for unequal allocation, got %f", g)
	}
}

func TestTracker_IsImprovingWithFewerThanThreePoints(t *testing.T) {
	tr := NewTracker()
	tr.Record(1.0)
	if !tr.IsImproving() {
		t.Error("expected IsImproving to default true before 3 samples")
	}
}

func TestTracker_DetectsDecliningWelfare(t *testing.T) {
	tr := NewTracker()
	tr.Record(3.0)
	tr.Record(2.0)
	tr.Record(1.0)
	if tr.IsImproving() {
		t.Error("expected declining welfare to not be reported as improving")
	}
}

func TestTracker_HistoryTrimsToMaxSize(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < HistoryMaxSize+10; i++ {
		tr.Record(float64(i))
	}
	if len(tr.History()) != HistoryMaxSize {
		t.Errorf("expected history capped at %d, got %d", HistoryMaxSize, len(tr.History()))
	}
}

package price

import (
	"context"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"arbiter/pkg/resource"
)

func TestPriorityWeight_ZeroBurnIsBaseWeight(t *testing.T) {
	w := PriorityWeight(decimal.Zero)
	if w != BaseWeight {
		t.Errorf("expected base weight %f, got %f", BaseWeight, w)
	}
}

func TestPriorityWeight_AddsBurnOnTopOfBase(t *testing.T) {
	w := PriorityWeight(decimal.NewFromInt(25))
	if w != BaseWeight+25 {
		t.Errorf("expected %f, got %f", BaseWeight+25, w)
	}
}

func TestComputeSignals_UncappedAgentPinsLambda(t *testing.T) {
	allocations := map[string]map[resource.Kind]int64{
		"a": {resource.CPU: 50},
		"b": {resource.CPU: 30},
	}
	minRequest := map[string]map[resource.Kind]int64{
		"a": {resource.CPU: 10},
		"b": {resource.CPU: 10},
	}
	idealRequest := map[string]map[resource.Kind]int64{
		"a": {resource.CPU: 100},
		"b": {resource.CPU: 30},
	}
	weights := map[string]float64{"a": 20, "b": 10}
	capacity := map[resource.Kind]int64{resource.CPU: 80}

	signals := ComputeSignals(allocations, minRequest, idealRequest, weights, capacity)
	expected := 20.0 / float64(50-10)
	if math.Abs(signals.Get(resource.CPU)-expected) > 1e-9 {
		t.Errorf("expected lambda %f, got %f", expected, signals.Get(resource.CPU))
	}
}

func TestComputeSignals_AllSaturatedFallsBackToUtilization(t *testing.T) {
	allocations := map[string]map[resource.Kind]int64{
		"a": {resource.CPU: 100},
	}
	minRequest := map[string]map[resource.Kind]int64{"a": {resource.CPU: 10}}
	idealRequest := map[string]map[resource.Kind]int64{"a": {resource.CPU: 100}}
	weights := map[string]float64{"a": 10}
	capacity := map[resource.Kind]int64{resource.CPU: 100}

	signals := ComputeSignals(allocations, minRequest, idealRequest, weights, capacity)
	if signals.Get(resource.CPU) <= 0 {
		t.Error("expected positive fallback price when fully saturated")
	}
}

func TestComputeSignals_ZeroCapacitySkipsResource(t *testing.T) {
	capacity := map[resource.Kind]int64{resource.CPU: 0}
	signals := ComputeSignals(nil, nil, nil, nil, capacity)
	if signals.Get(resource.CPU) != 0 {
		t.Errorf("expected untracked zero-capacity resource to read 0, got %f", signals.Get(resource.CPU))
	}
}

func TestSignals_PropagateInjectsOneHeaderPerResource(t *testing.T) {
	s := NewSignals()
	s.Update(resource.CPU, 1.5)
	s.Update(resource.Memory, 0.75)

	headers := make(map[string]string)
	s.Propagate(context.Background(), headers)

	if headers[HeaderPrefix+"cpu"] != "1.500000" {
		t.Errorf("unexpected CPU header: %q", headers[HeaderPrefix+"cpu"])
	}
	if headers[HeaderPrefix+"memory"] != "0.750000" {
		t.Errorf("unexpected memory header: %q", headers[HeaderPrefix+"memory"])
	}
}

func TestDemandResponse_HighPriceReducesDemand(t *testing.T) {
	newDemand := DemandResponse(100, 10, 2, 0.5)
	if newDemand >= 100 {
		t.Errorf("expected demand to fall when price exceeds marginal utility, got %d", newDemand)
	}
}

func TestDemandResponse_LowPriceIncreasesDemand(t *testing.T) {
	newDemand := DemandResponse(100, 1, 10, 0.5)
	if newDemand <= 100 {
		t.Errorf("expected demand to rise when marginal utility exceeds price, got %d", newDemand)
	}
}

func TestDemandResponse_NeverBelowMinimum(t *testing.T) {
	newDemand := DemandResponse(10, 1000, 0, 1.0)
	if newDemand < MinimumDemand {
		t.Errorf("expected demand floor %d, got %d", MinimumDemand, newDemand)
	}
}

func TestDemandResponse_AdjustmentBoundedTo20Percent(t *testing.T) {
	newDemand := DemandResponse(100, 0, 1000, 1.0)
	if newDemand > 120 {
		t.Errorf("expected adjustment capped at +20%%, got %d", newDemand)
	}
}

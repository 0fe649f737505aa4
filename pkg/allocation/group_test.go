package allocation

import (
	"testing"

	"arbiter/pkg/resource"
)

func TestSolveGroup_ConvergesWithinIterationCap(t *testing.T) {
	members := []GroupMember{
		{AgentID: "a", Min: map[resource.Kind]int64{resource.CPU: 10, resource.Memory: 10},
			Ideal: map[resource.Kind]int64{resource.CPU: 60, resource.Memory: 60}, Weight: 10},
		{AgentID: "b", Min: map[resource.Kind]int64{resource.CPU: 10, resource.Memory: 10},
			Ideal: map[resource.Kind]int64{resource.CPU: 60, resource.Memory: 60}, Weight: 10},
	}
	capacity := map[resource.Kind]int64{resource.CPU: 100, resource.Memory: 100}

	result := SolveGroup(members, []resource.Kind{resource.CPU, resource.Memory}, capacity)
	if result.Iterations > MaxIterations {
		t.Errorf("expected iterations bounded by %d, got %d", MaxIterations, result.Iterations)
	}
	var total int64
	for _, alloc := range result.Allocation {
		total += alloc[resource.CPU]
	}
	if total != 100 {
		t.Errorf("expected total CPU allocation 100, got %d", total)
	}
}

func TestSolveGroup_EachResourceRespectsItsOwnCapacity(t *testing.T) {
	members := []GroupMember{
		{AgentID: "a", Min: map[resource.Kind]int64{resource.CPU: 5, resource.Storage: 5},
			Ideal: map[resource.Kind]int64{resource.CPU: 50, resource.Storage: 5}, Weight: 10},
		{AgentID: "b", Min: map[resource.Kind]int64{resource.CPU: 5, resource.Storage: 5},
			Ideal: map[resource.Kind]int64{resource.CPU: 50, resource.Storage: 5}, Weight: 10},
	}
	capacity := map[resource.Kind]int64{resource.CPU: 100, resource.Storage: 10}

	result := SolveGroup(members, []resource.Kind{resource.CPU, resource.Storage}, capacity)
	if result.Allocation["a"][resource.Storage]+result.Allocation["b"][resource.Storage] > 10 {
		t.Errorf("expected storage allocation to respect its own capacity, got %+v", result.Allocation)
	}
}

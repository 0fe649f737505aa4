package main

import (
	"github.com/shopspring/decimal"
	"k8s.io/klog/v2"

	"arbiter/pkg/agentmodel"
	"arbiter/pkg/resource"
	"arbiter/pkg/round"
)

func totalAllocation(alloc map[resource.Kind]int64) int64 {
	var total int64
	for _, v := range alloc {
		total += v
	}
	return total
}

// strategyPreset seeds an agentmodel.State's aggressiveness so that
// GetStrategyName reports the preset's name (except "static", whose 0.5
// aggressiveness GetStrategyName reports as "cooperative"), and drives that state's burn
// decision each round. It is the demo's StrategyCollaborator: the core
// never decides burns itself, so something external has to.
type strategyPreset struct {
	name             string
	aggressiveness   float64
	cooperationLevel float64
}

var presets = []strategyPreset{
	{name: "aggressive", aggressiveness: 0.9, cooperationLevel: 0.2},
	{name: "conservative", aggressiveness: 0.1, cooperationLevel: 0.8},
	{name: "cooperative", aggressiveness: 0.5, cooperationLevel: 0.9},
	{name: "static", aggressiveness: 0.5, cooperationLevel: 0.5},
}

// collaborator assigns each registered agent a fixed strategy preset and
// derives its burn from that preset's aggressiveness and the round's
// contention ratio: the more contested an agent's resources, the more
// aggressive strategies lean into burning currency for priority.
type collaborator struct {
	states map[string]*agentmodel.State
}

func newCollaborator() *collaborator {
	return &collaborator{states: make(map[string]*agentmodel.State)}
}

func (c *collaborator) assign(agentID string, preset strategyPreset) {
	s := agentmodel.NewState(agentID, 50)
	s.SetAggressiveness(preset.aggressiveness)
	s.SetCooperationLevel(preset.cooperationLevel)
	c.states[agentID] = s
}

func (c *collaborator) DecideBurn(agent *agentmodel.Agent, roundIdx int, contentionRatio float64) decimal.Decimal {
	s, ok := c.states[agent.ID]
	if !ok {
		return decimal.Zero
	}
	aggressiveness, _ := s.GetStrategyParams()
	if contentionRatio <= 1 {
		return decimal.Zero
	}
	fraction := aggressiveness * (contentionRatio - 1)
	if fraction > 1 {
		fraction = 1
	}
	headroom := agent.MaxBurn()
	return headroom.Mul(decimal.NewFromFloat(fraction))
}

func (c *collaborator) StrategyName(agentID string) string {
	s, ok := c.states[agentID]
	if !ok {
		return ""
	}
	return s.GetStrategyName()
}

// record feeds the round's outcome back into the agent's bounded history so
// GetPerformanceStats reflects the scenario as it plays out.
func (c *collaborator) record(snapshot round.Snapshot) {
	s, ok := c.states[snapshot.AgentID]
	if !ok {
		return
	}
	s.RecordOutcome(agentmodel.DecisionOutcome{
		Allocation: totalAllocation(snapshot.Allocation),
		Utility:    snapshot.Utility,
		Strategy:   snapshot.Strategy,
	})
}

// noopBackend is the demo's ServiceBackend: it has no outside system to
// call, so every invocation reports success without doing anything.
type noopBackend struct{}

func (noopBackend) InvokeByType(serviceType string, input map[string]any) round.ServiceResult {
	return round.ServiceResult{Success: true, Output: map[string]any{"service": serviceType}}
}

// klogObserver relays round-driver lifecycle events to klog at a low
// verbosity, the way the teacher's own controllers log reconcile events.
type klogObserver struct{}

func (klogObserver) Notify(event round.Event, payload map[string]any) {
	klog.V(4).InfoS("round driver event", "event", string(event), "payload", payload)
}

// Package round wires the contention detector, the arbitrator, and the
// agent registry together into the round driver: the per-round sequence of
// snapshot balances, query burns, detect contention, arbitrate, apply, and
// verify that the rest of the core is built to support.
package round

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/shopspring/decimal"
	"k8s.io/klog/v2"

	"arbiter/pkg/agentmodel"
	"arbiter/pkg/allocation"
	"arbiter/pkg/budget"
	"arbiter/pkg/contention"
	"arbiter/pkg/price"
	"arbiter/pkg/resource"
	"arbiter/pkg/stability"
	"arbiter/pkg/telemetry"
)

// StrategyCollaborator supplies a nonnegative burn decision for an agent
// once per round; the core never decides burns or strategies itself.
type StrategyCollaborator interface {
	DecideBurn(agent *agentmodel.Agent, round int, contentionRatio float64) decimal.Decimal
}

// NamedStrategy is an optional interface a StrategyCollaborator may also
// implement to label its snapshots with a human-readable strategy name;
// collaborators that don't implement it simply leave the column blank.
type NamedStrategy interface {
	StrategyName(agentID string) string
}

// ServiceResult is the outcome of a service invocation consulted by the
// execution budget.
type ServiceResult struct {
	Success  bool
	Output   map[string]any
	Err      error
	Duration float64
}

// ServiceBackend is the opaque collaborator the execution budget consults
// for service invocations; the core deducts credits and propagates the
// result without interpreting it.
type ServiceBackend interface {
	InvokeByType(serviceType string, input map[string]any) ServiceResult
}

// ServiceTypeExecute is the one service type the round driver itself ever
// authorizes: "the agent executed its allocation this round." A
// ServiceBackend may treat it however it likes; the core just consults the
// cost table and reports the result.
const ServiceTypeExecute = "execute"

// BidHistoryWindow bounds how many recent outcomes HistoryInformedBid
// averages over when shaping a demand baseline.
const BidHistoryWindow = 5

// DemandResponseElasticity scales how aggressively a bid's demand moves
// toward the point where marginal utility equals the received shadow price,
// per price.DemandResponse.
const DemandResponseElasticity = 0.5

// Event names the fixed set of observer events the round driver emits.
// Observers must be non-blocking.
type Event string

const (
	EventRuntimeStarted   Event = "runtime_started"
	EventRuntimeStopped   Event = "runtime_stopped"
	EventGoalStarted      Event = "goal_started"
	EventGoalCompleted    Event = "goal_completed"
	EventCheckpointNeeded Event = "checkpoint_required"
)

// Observer receives round-driver lifecycle events. Implementations must not
// block the driver.
type Observer interface {
	Notify(event Event, payload map[string]any)
}

// Snapshot is one (round, agent) row of longitudinal history.
type Snapshot struct {
	Round             int
	AgentID           string
	Strategy          string
	Allocation        map[resource.Kind]int64
	Utility           float64
	CurrencyBefore    decimal.Decimal
	CurrencyBurned    decimal.Decimal
	CurrencyAfter     decimal.Decimal
	Satisfaction      float64
	CumulativeUtility float64
}

// BaselineAPICredits is granted to an uncontending agent that specified no
// API-credits ideal request.
const BaselineAPICredits = int64(10)

// Driver owns the agent registry, the shared resource pool, and the
// longitudinal history of every round run so far.
type Driver struct {
	mu sync.Mutex

	agents map[string]*agentmodel.Agent
	order  []string
	states map[string]*agentmodel.State

	pool *resource.Pool

	collaborator StrategyCollaborator
	observer     Observer

	costTable budget.CostTable
	backend   ServiceBackend
	budgets   map[string]*budget.Budget

	priorSignals *price.Signals
	tracker      *stability.Tracker

	round   int
	history map[string][]Snapshot

	earningRate float64
}

// NewDriver creates a round driver over pool, using collaborator to decide
// burns each round. observer may be nil.
func NewDriver(pool *resource.Pool, collaborator StrategyCollaborator, observer Observer, earningRate float64) *Driver {
	return &Driver{
		agents:       make(map[string]*agentmodel.Agent),
		states:       make(map[string]*agentmodel.State),
		pool:         pool,
		collaborator: collaborator,
		observer:     observer,
		budgets:      make(map[string]*budget.Budget),
		tracker:      stability.NewTracker(),
		history:      make(map[string][]Snapshot),
		earningRate:  earningRate,
	}
}

// ConfigureBudget attaches a service cost table and backend so RunRound
// authorizes and invokes a service call against each agent's execution
// budget once its allocation for the round is set. Leaving either unset (the
// zero value, nil) skips budget authorization entirely — a scenario that
// does not care about execution cost need not wire one up.
func (d *Driver) ConfigureBudget(costTable budget.CostTable, backend ServiceBackend) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.costTable = costTable
	d.backend = backend
}

// Register adds an agent to the registry, in registration order.
func (d *Driver) Register(agent *agentmodel.Agent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.agents[agent.ID]; !exists {
		d.order = append(d.order, agent.ID)
	}
	d.agents[agent.ID] = agent
	if _, exists := d.states[agent.ID]; !exists {
		d.states[agent.ID] = agentmodel.NewState(agent.ID, BidHistoryWindow*10)
	}
}

// Unregister removes an agent from the registry.
func (d *Driver) Unregister(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.agents, id)
	delete(d.states, id)
	delete(d.budgets, id)
	for i, existing := range d.order {
		if existing == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	delete(d.history, id)
}

// Agents returns the registered agents in a fixed registration order.
func (d *Driver) Agents() []*agentmodel.Agent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*agentmodel.Agent, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.agents[id])
	}
	return out
}

// History returns the recorded snapshots for agent, oldest round first.
func (d *Driver) History(agentID string) []Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Snapshot, len(d.history[agentID]))
	copy(out, d.history[agentID])
	return out
}

func (d *Driver) notify(event Event, payload map[string]any) {
	if d.observer != nil {
		d.observer.Notify(event, payload)
	}
}

// StartRuntime signals observers that a scenario run is beginning. Callers
// run this once before the first RunRound; RunRound itself does not require
// it, a scenario that never calls it simply never emits the event.
func (d *Driver) StartRuntime() {
	klog.V(3).InfoS("round driver runtime starting")
	d.notify(EventRuntimeStarted, map[string]any{})
}

// StopRuntime signals observers that a scenario run has finished. Callers
// run this once after the last RunRound.
func (d *Driver) StopRuntime() {
	klog.V(3).InfoS("round driver runtime stopped")
	d.notify(EventRuntimeStopped, map[string]any{})
}

// RunRound executes one full round: snapshot balances, query burn, shape and
// select a bid per agent, detect contention over bid demand, arbitrate
// per group and resource, grant uncontending agents their bid, apply
// allocations and burns, compute utility and welfare, append a snapshot per
// agent, and verify per-round Pareto optimality plus (from round 2)
// inter-round improvement. Returns the per-agent allocation for this round
// and the verifier's findings.
func (d *Driver) RunRound() (map[string]map[resource.Kind]int64, RoundVerification) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.round++
	agents := make([]*agentmodel.Agent, 0, len(d.order))
	for _, id := range d.order {
		agents = append(agents, d.agents[id])
	}
	klog.V(4).InfoS("round starting", "round", d.round, "agents", len(agents))

	balancesBefore := make(map[string]decimal.Decimal, len(agents))
	for _, a := range agents {
		balancesBefore[a.ID] = a.Balance
	}

	d.pool.Reset()
	available := make(map[resource.Kind]int64, len(resource.All()))
	for _, k := range resource.All() {
		available[k] = d.pool.Available(k)
	}

	burns := d.decideBurns(agents, available)

	shadowPrices := make(map[resource.Kind]float64, len(resource.All()))
	if d.priorSignals != nil {
		for _, k := range resource.All() {
			shadowPrices[k] = d.priorSignals.Get(k)
		}
	}

	bids := make([]agentmodel.Bid, 0, len(agents))
	for _, a := range agents {
		state := d.states[a.ID]
		candidates := []agentmodel.Bid{
			agentmodel.ComputeBid(a, state, a.Allocation),
			agentmodel.HistoryInformedBid(a, state, a.Allocation, BidHistoryWindow),
		}
		best := agentmodel.SelectBestBid(candidates, shadowPrices)
		if d.priorSignals != nil {
			best.Demand = d.applyDemandResponse(a, best, shadowPrices)
		}
		bids = append(bids, best)
		d.notify(EventGoalStarted, map[string]any{"agent": a.ID, "round": d.round, "strategy": best.Strategy})
	}
	effectiveDemand := agentmodel.AggregateBids(bids)
	klog.V(5).InfoS("average tracked payoff across agents", "round", d.round, "avg_payoff", agentmodel.ComputeAveragePayoff(d.states))

	demands := make([]contention.AgentDemand, len(agents))
	for i, a := range agents {
		demands[i] = contention.AgentDemand{ID: a.ID, Min: a.MinRequest, Ideal: effectiveDemand[a.ID]}
	}
	groups, infeasibilities := contention.Detect(demands, available)
	for _, inf := range infeasibilities {
		klog.V(2).InfoS("contention group infeasible at minimums",
			"round", d.round, "group", inf.GroupID, "resource", inf.Resource, "required", inf.Required, "available", inf.Available)
	}

	allocations := make(map[string]map[resource.Kind]int64, len(agents))
	contendingAgents := make(map[string]bool)
	weightByAgent := make(map[string]float64, len(agents))

	for _, g := range groups {
		members := make([]allocation.GroupMember, len(g.Members))
		for i, m := range g.Members {
			weight := price.PriorityWeight(burns[m.ID])
			weightByAgent[m.ID] = weight
			members[i] = allocation.GroupMember{AgentID: m.ID, Min: m.Min, Ideal: m.Ideal, Weight: weight}
			contendingAgents[m.ID] = true
		}
		result := allocation.SolveGroup(members, g.Resources, g.Available)
		for id, alloc := range result.Allocation {
			if allocations[id] == nil {
				allocations[id] = make(map[resource.Kind]int64)
			}
			for k, v := range alloc {
				allocations[id][k] = v
			}
		}
	}

	for _, a := range agents {
		if contendingAgents[a.ID] {
			continue
		}
		demand := effectiveDemand[a.ID]
		alloc := make(map[resource.Kind]int64, len(demand))
		for k, v := range demand {
			alloc[k] = v
		}
		if _, specified := alloc[resource.APICredits]; !specified {
			alloc[resource.APICredits] = BaselineAPICredits
		}
		allocations[a.ID] = alloc
	}

	points := make([]stability.AllocationPoint, 0, len(agents))
	utilityByAgent := make(map[string]float64, len(agents))
	minByAgent := make(map[string]map[resource.Kind]int64, len(agents))
	idealByAgent := make(map[string]map[resource.Kind]int64, len(agents))

	for _, a := range agents {
		alloc := allocations[a.ID]
		a.Allocation = alloc
		for k, v := range alloc {
			d.pool.Allocate(k, v)
		}

		burn := a.Burn(burns[a.ID])
		if d.earningRate > 0 {
			var total int64
			for _, v := range alloc {
				total += v
			}
			a.Credit(decimal.NewFromFloat(float64(total) * d.earningRate))
		}

		weight := price.PriorityWeight(burn)
		if _, tracked := weightByAgent[a.ID]; !tracked {
			weightByAgent[a.ID] = weight
		}
		minByAgent[a.ID] = a.MinRequest
		idealByAgent[a.ID] = effectiveDemand[a.ID]

		var totalUnits int64
		for _, v := range alloc {
			totalUnits += v
		}
		units := totalUnits
		if units < 1 {
			units = 1
		}
		utility := weight * math.Log(float64(units))
		utilityByAgent[a.ID] = utility

		points = append(points, stability.AllocationPoint{AgentID: a.ID, Weight: weight, Allocation: totalUnits})

		var idealTotal int64
		for _, v := range a.IdealRequest {
			idealTotal += v
		}
		satisfaction := 1.0
		if idealTotal > 0 {
			satisfaction = float64(totalUnits) / float64(idealTotal)
			if satisfaction > 1 {
				satisfaction = 1
			}
		}

		cumulative := utility
		if prior := d.history[a.ID]; len(prior) > 0 {
			cumulative += prior[len(prior)-1].CumulativeUtility
		}

		strategy := ""
		if namer, ok := d.collaborator.(NamedStrategy); ok {
			strategy = namer.StrategyName(a.ID)
		}

		d.authorizeExecution(a, alloc)

		snapshot := Snapshot{
			Round:             d.round,
			AgentID:           a.ID,
			Strategy:          strategy,
			Allocation:        alloc,
			Utility:           utility,
			CurrencyBefore:    balancesBefore[a.ID],
			CurrencyBurned:    burn,
			CurrencyAfter:     a.Balance,
			Satisfaction:      satisfaction,
			CumulativeUtility: cumulative,
		}
		d.history[a.ID] = append(d.history[a.ID], snapshot)

		state := d.states[a.ID]
		state.RecordOutcome(agentmodel.DecisionOutcome{
			Allocation:  totalUnits,
			Demand:      sumDemand(effectiveDemand[a.ID]),
			ShadowPrice: shadowPriceFor(shadowPrices, a.IdealRequest),
			Utility:     utility,
			Strategy:    strategy,
		})

		balanceFloat, _ := a.Balance.Float64()
		for k, v := range alloc {
			telemetry.RecordAgentAllocation(a.ID, k.String(), v, a.IdealRequest[k])
		}
		telemetry.RecordAgentUtility(a.ID, utility, balanceFloat)

		d.notify(EventGoalCompleted, map[string]any{"agent": a.ID, "round": d.round, "satisfaction": satisfaction})
	}

	welfare := stability.Welfare(points)
	gini := stability.Gini(points)
	d.tracker.Record(welfare)

	optimal, blocking := stability.CheckRoundOptimality(points)
	verification := RoundVerification{
		Round:            d.round,
		Optimal:          optimal,
		Blocking:         blocking,
		Welfare:          welfare,
		Gini:             gini,
		WelfareImproving: d.tracker.IsImproving(),
		AveragePayoff:    agentmodel.ComputeAveragePayoff(d.states),
	}
	if blocking != nil {
		klog.V(3).InfoS("round not pareto optimal", "round", d.round, "gainer", blocking.Gainer, "loser", blocking.Loser)
	}

	if d.round > 1 {
		before := make(map[string]float64, len(agents))
		for _, a := range agents {
			h := d.history[a.ID]
			if len(h) >= 2 {
				before[a.ID] = h[len(h)-2].Utility
			}
		}
		verification.Comparison = stability.CompareRounds(before, utilityByAgent)
	}

	signals := price.ComputeSignals(allocations, minByAgent, idealByAgent, weightByAgent, available)
	for _, k := range resource.All() {
		telemetry.RecordShadowPrice(k.String(), signals.Get(k))
	}
	d.priorSignals = signals

	telemetry.RecordRoundSummary(d.round, welfare, gini, optimal)
	klog.V(4).InfoS("round complete", "round", d.round, "welfare", welfare, "gini", gini, "pareto_optimal", optimal)

	headers := make(map[string]string, len(resource.All()))
	signals.Propagate(context.Background(), headers)
	d.notify(EventCheckpointNeeded, map[string]any{"round": d.round, "price_headers": headers})

	return allocations, verification
}

// applyDemandResponse moves a bid's demand toward the point where marginal
// utility equals the shadow price it received at the end of the prior
// round, then re-clamps to the agent's [min, ideal] bounds the way every
// other demand shaping step in this package does.
func (d *Driver) applyDemandResponse(a *agentmodel.Agent, b agentmodel.Bid, shadowPrices map[resource.Kind]float64) map[resource.Kind]int64 {
	out := make(map[resource.Kind]int64, len(b.Demand))
	for k, demand := range b.Demand {
		adjusted := price.DemandResponse(demand, shadowPrices[k], b.MarginalUtility[k], DemandResponseElasticity)
		out[k] = clampInt64(adjusted, a.MinRequest[k], a.IdealRequest[k])
	}
	return out
}

// authorizeExecution consults the configured cost table and service backend
// for this agent's execution call, if a budget has been configured. A
// scenario that never calls ConfigureBudget skips this entirely.
func (d *Driver) authorizeExecution(a *agentmodel.Agent, alloc map[resource.Kind]int64) {
	if d.costTable == nil || d.backend == nil {
		return
	}
	b := budget.New(a.ID, fmt.Sprintf("round-%d", d.round), alloc)
	ok, reason := d.costTable.Authorize(b, ServiceTypeExecute)
	if !ok {
		klog.V(2).InfoS("execution budget rejected service call", "agent", a.ID, "round", d.round, "reason", reason)
		d.budgets[a.ID] = b
		return
	}
	result := d.backend.InvokeByType(ServiceTypeExecute, map[string]any{"agent": a.ID, "round": d.round})
	if !result.Success {
		klog.V(2).InfoS("service invocation reported failure", "agent", a.ID, "round", d.round, "err", result.Err)
	}
	d.budgets[a.ID] = b
}

// RoundVerification is the verifier's findings for one round.
type RoundVerification struct {
	Round            int
	Optimal          bool
	Blocking         *stability.BlockingPair
	Comparison       stability.Comparison
	Welfare          float64
	Gini             float64
	WelfareImproving bool
	AveragePayoff    float64
}

func (d *Driver) decideBurns(agents []*agentmodel.Agent, available map[resource.Kind]int64) map[string]decimal.Decimal {
	burns := make(map[string]decimal.Decimal, len(agents))
	if d.collaborator == nil {
		for _, a := range agents {
			burns[a.ID] = decimal.Zero
		}
		return burns
	}
	for _, a := range agents {
		ratio := contentionRatio(a, available)
		burn := d.collaborator.DecideBurn(a, d.round, ratio)
		if burn.IsNegative() {
			burn = decimal.Zero
		}
		max := a.MaxBurn()
		if burn.GreaterThan(max) {
			burn = max
		}
		burns[a.ID] = burn
	}
	return burns
}

func contentionRatio(a *agentmodel.Agent, available map[resource.Kind]int64) float64 {
	var max float64
	for k, ideal := range a.IdealRequest {
		if available[k] <= 0 {
			continue
		}
		if r := float64(ideal) / float64(available[k]); r > max {
			max = r
		}
	}
	return max
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

func sumDemand(demand map[resource.Kind]int64) int64 {
	var total int64
	for _, v := range demand {
		total += v
	}
	return total
}

func shadowPriceFor(shadowPrices map[resource.Kind]float64, ideal map[resource.Kind]int64) float64 {
	var max float64
	for k := range ideal {
		if p := shadowPrices[k]; p > max {
			max = p
		}
	}
	return max
}

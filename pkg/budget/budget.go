// Package budget implements the execution budget: per agent-and-goal
// tracking of allocated vs. consumed resource quantities, plus a service
// invocation cost table consulted before a call reaches its backend. The
// tight-accounting-on-failure and classified-reason-on-rejection shape
// follows the teacher's actuator package, adapted from a Kubernetes resize
// retry loop to a pure in-memory ledger with no external client.
package budget

import (
	"fmt"

	"k8s.io/klog/v2"

	"arbiter/pkg/resource"
)

// Reason classifies why a consumption attempt failed.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonInsufficientBudget  Reason = "insufficient_budget"
	ReasonInsufficientCredits Reason = "insufficient_credits"
	ReasonUnknownServiceType  Reason = "unknown_service_type"
)

// Line tracks allocated vs. consumed for one resource kind.
type Line struct {
	Allocated int64
	Consumed  int64
}

// Budget is the per agent-and-goal ledger: a mapping resource kind to its
// Line.
type Budget struct {
	AgentID string
	GoalID  string
	lines   map[resource.Kind]*Line
}

// New creates a budget with the given per-resource allocations.
func New(agentID, goalID string, allocated map[resource.Kind]int64) *Budget {
	lines := make(map[resource.Kind]*Line, len(allocated))
	for k, v := range allocated {
		lines[k] = &Line{Allocated: v}
	}
	return &Budget{AgentID: agentID, GoalID: goalID, lines: lines}
}

// CanConsume reports whether n units of k could be consumed without
// exceeding the allocation.
func (b *Budget) CanConsume(k resource.Kind, n int64) bool {
	line := b.lineFor(k)
	return line.Consumed+n <= line.Allocated
}

// TryConsume attempts to consume n units of k. On success it returns true
// with ReasonNone. On failure — consumed+n would exceed allocated — it
// consumes all remaining budget for k (so accounting stays tight: a failed
// call still exhausts what was left) and returns false with
// ReasonInsufficientBudget.
func (b *Budget) TryConsume(k resource.Kind, n int64) (bool, Reason) {
	line := b.lineFor(k)
	if line.Consumed+n <= line.Allocated {
		line.Consumed += n
		return true, ReasonNone
	}
	line.Consumed = line.Allocated
	klog.V(2).InfoS("budget exhausted on consume", "agent", b.AgentID, "goal", b.GoalID, "resource", k, "requested", n)
	return false, ReasonInsufficientBudget
}

// Remaining returns the unconsumed allocation for k.
func (b *Budget) Remaining(k resource.Kind) int64 {
	line := b.lineFor(k)
	r := line.Allocated - line.Consumed
	if r < 0 {
		return 0
	}
	return r
}

// Summary renders a single-line human-readable report listing consumed and
// allocated amounts for every tracked resource.
func (b *Budget) Summary() string {
	out := fmt.Sprintf("budget[%s/%s]", b.AgentID, b.GoalID)
	for _, k := range resource.All() {
		line, ok := b.lines[k]
		if !ok {
			continue
		}
		out += fmt.Sprintf(" %s=%d/%d", k, line.Consumed, line.Allocated)
	}
	return out
}

func (b *Budget) lineFor(k resource.Kind) *Line {
	if b.lines == nil {
		b.lines = make(map[resource.Kind]*Line)
	}
	line, ok := b.lines[k]
	if !ok {
		line = &Line{}
		b.lines[k] = line
	}
	return line
}

// ServiceCost is the API-credit price of invoking one service type.
type ServiceCost struct {
	ServiceType string
	Credits     int64
}

// CostTable maps a service type to its API-credit cost, consulted before an
// invocation is allowed to reach its backend.
type CostTable map[string]int64

// NewCostTable builds a CostTable from a list of entries.
func NewCostTable(entries ...ServiceCost) CostTable {
	t := make(CostTable, len(entries))
	for _, e := range entries {
		t[e.ServiceType] = e.Credits
	}
	return t
}

// Authorize consults the cost table for serviceType and, if known, attempts
// to consume the required API credits from b. It fails without touching
// the budget if serviceType is unrecognized, and fails (consuming whatever
// remains) if credits are insufficient.
func (t CostTable) Authorize(b *Budget, serviceType string) (bool, Reason) {
	cost, ok := t[serviceType]
	if !ok {
		klog.V(2).InfoS("unknown service type in cost table", "service_type", serviceType)
		return false, ReasonUnknownServiceType
	}
	ok, reason := b.TryConsume(resource.APICredits, cost)
	if !ok {
		return false, ReasonInsufficientCredits
	}
	return ok, reason
}

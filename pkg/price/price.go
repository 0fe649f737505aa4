// Package price implements the priority economy: burned currency maps to a
// priority weight, and per-resource shadow prices are derived from the
// arbitrator's Lagrange multipliers so strategy collaborators can see how
// contended a resource currently is.
package price

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"k8s.io/klog/v2"

	"arbiter/pkg/resource"
)

// BaseWeight is the priority weight every agent carries before any burn,
// guaranteeing participation even at zero currency.
const BaseWeight = 10.0

// PriorityWeight maps a burned amount to the coefficient on ln(allocation)
// in the fairness objective: w = BASE_WEIGHT + burn.
func PriorityWeight(burn decimal.Decimal) float64 {
	w, _ := burn.Float64()
	return BaseWeight + w
}

// Signals holds the current per-resource shadow prices: the Lagrange
// multipliers from the arbitrator's capacity constraints, one per resource
// kind currently contended.
type Signals struct {
	mu        sync.RWMutex
	prices    map[resource.Kind]float64
	updatedAt time.Time
}

// HeaderPrefix names the outgoing header carrying a resource kind's shadow
// price, e.g. "X-Price-cpu".
const HeaderPrefix = "X-Price-"

// MinimumDemand is the absolute floor DemandResponse will not adjust below.
const MinimumDemand = int64(10)

// NewSignals creates an empty price signal set.
func NewSignals() *Signals {
	return &Signals{prices: make(map[resource.Kind]float64)}
}

// ComputeSignals derives shadow prices from a completed allocation round.
// For an uncapped agent at optimum, w_i / (x_i − min_i) = λ; the first such
// agent found (in resource.All order for the resource, then iteration order
// for agents) pins λ for that resource. If every agent is saturated at its
// ideal or at its minimum, λ falls back to a utilization heuristic so
// fully-saturated resources still report a positive, increasing price.
func ComputeSignals(
	allocations map[string]map[resource.Kind]int64,
	minRequest map[string]map[resource.Kind]int64,
	idealRequest map[string]map[resource.Kind]int64,
	weights map[string]float64,
	capacity map[resource.Kind]int64,
) *Signals {
	s := NewSignals()
	for _, k := range resource.All() {
		c := capacity[k]
		if c <= 0 {
			continue
		}
		s.prices[k] = lambdaFor(k, allocations, minRequest, idealRequest, weights, c)
	}
	s.updatedAt = time.Now()
	klog.V(4).InfoS("computed shadow price signals", "kinds", len(s.prices))
	return s
}

func lambdaFor(
	k resource.Kind,
	allocations map[string]map[resource.Kind]int64,
	minRequest map[string]map[resource.Kind]int64,
	idealRequest map[string]map[resource.Kind]int64,
	weights map[string]float64,
	capacity int64,
) float64 {
	var lambda float64
	var totalAlloc int64
	for agentID, alloc := range allocations {
		a := alloc[k]
		totalAlloc += a
		if lambda != 0 {
			continue
		}
		min := minRequest[agentID][k]
		ideal := idealRequest[agentID][k]
		surplus := float64(a - min)
		if surplus > 0 && a < ideal {
			lambda = weights[agentID] / surplus
		}
	}
	if lambda == 0 {
		utilization := float64(totalAlloc) / float64(capacity)
		lambda = utilization * BaseWeight
	}
	return lambda
}

// Get returns the current shadow price for k, 0 if untracked.
func (s *Signals) Get(k resource.Kind) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prices[k]
}

// Update replaces the shadow price for k.
func (s *Signals) Update(k resource.Kind, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prices == nil {
		s.prices = make(map[resource.Kind]float64)
	}
	s.prices[k] = price
	s.updatedAt = time.Now()
}

// Propagate injects one price header per tracked resource kind into headers,
// for a strategy collaborator or external service to read before deciding
// its next burn.
func (s *Signals) Propagate(_ context.Context, headers map[string]string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, p := range s.prices {
		headers[HeaderPrefix+k.String()] = fmt.Sprintf("%.6f", p)
	}
}

// DemandResponse adjusts a requested quantity toward the point where
// marginal utility equals the received price, elasticity-scaled and bounded
// to ±20% of the current demand per round, never below MinimumDemand.
func DemandResponse(currentDemand int64, receivedPrice, marginalUtility, elasticity float64) int64 {
	priceDelta := marginalUtility - receivedPrice
	adjustment := priceDelta * elasticity

	maxAdjustment := float64(currentDemand) * 0.2
	if adjustment > maxAdjustment {
		adjustment = maxAdjustment
	}
	if adjustment < -maxAdjustment {
		adjustment = -maxAdjustment
	}

	newDemand := currentDemand + int64(adjustment)
	if newDemand < MinimumDemand {
		newDemand = MinimumDemand
	}
	klog.V(5).InfoS("demand response", "current", currentDemand, "price", receivedPrice, "marginal_utility", marginalUtility, "new_demand", newDemand)
	return newDemand
}

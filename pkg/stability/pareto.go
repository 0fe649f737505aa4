// Package stability implements the longitudinal verifier: per-round Pareto
// optimality, inter-round improvement comparison, welfare, and Gini, plus a
// potential-tracking history adapted from the teacher's Lyapunov controller
// so a scenario can watch welfare move across rounds the way the teacher
// watches its allocation potential move across epochs.
package stability

import (
	"math"
	"sort"
	"sync"

	"k8s.io/klog/v2"
)

// Epsilon is the tolerance for Pareto comparisons.
const Epsilon = 1e-9

// AllocationPoint is one agent's weight and allocation at a point in time,
// the minimal slice the verifier needs.
type AllocationPoint struct {
	AgentID    string
	Weight     float64
	Allocation int64
}

// BlockingPair names the unit transfer that proves an allocation is not
// Pareto optimal: taking one unit from Loser and giving it to Gainer
// strictly helps Gainer without strictly hurting Loser.
type BlockingPair struct {
	Gainer string
	Loser  string
}

// CheckRoundOptimality probes every ordered pair (i,j) with aᵢ>0 for a
// Pareto-improving unit transfer: Δᵢ = wᵢ·ln(aᵢ−1) − wᵢ·ln(aᵢ) (the cost to
// i of giving up a unit) and Δⱼ = wⱼ·ln(aⱼ+1) − wⱼ·ln(aⱼ) (the gain to j of
// receiving it). If Δⱼ > ε and Δᵢ ≥ −ε, the transfer makes j strictly
// better off without making i worse off: the allocation is not Pareto
// optimal.
func CheckRoundOptimality(points []AllocationPoint) (optimal bool, blocking *BlockingPair) {
	for _, i := range points {
		if i.Allocation <= 0 {
			continue
		}
		deltaI := i.Weight*math.Log(float64(i.Allocation-1)) - i.Weight*math.Log(float64(i.Allocation))
		for _, j := range points {
			if i.AgentID == j.AgentID {
				continue
			}
			deltaJ := j.Weight*math.Log(float64(j.Allocation+1)) - j.Weight*math.Log(float64(j.Allocation))
			if deltaJ > Epsilon && deltaI >= -Epsilon {
				klog.V(4).InfoS("pareto-improving transfer found", "gainer", j.AgentID, "loser", i.AgentID)
				return false, &BlockingPair{Gainer: j.AgentID, Loser: i.AgentID}
			}
		}
	}
	return true, nil
}

// Comparison classifies an inter-round utility change.
type Comparison struct {
	Better            []string
	Worse             []string
	Unchanged         []string
	ParetoImprovement bool
	StrictImprovement bool
}

// CompareRounds partitions agents into better/worse/unchanged by comparing
// before and after utility, keyed by agent ID, within tolerance Epsilon.
// A Pareto improvement requires at least one agent strictly better and none
// strictly worse; a strict improvement requires every agent strictly
// better.
func CompareRounds(before, after map[string]float64) Comparison {
	var c Comparison
	for id, b := range before {
		a, ok := after[id]
		if !ok {
			continue
		}
		diff := a - b
		switch {
		case diff > Epsilon:
			c.Better = append(c.Better, id)
		case diff < -Epsilon:
			c.Worse = append(c.Worse, id)
		default:
			c.Unchanged = append(c.Unchanged, id)
		}
	}
	sort.Strings(c.Better)
	sort.Strings(c.Worse)
	sort.Strings(c.Unchanged)

	c.ParetoImprovement = len(c.Better) > 0 && len(c.Worse) == 0
	c.StrictImprovement = len(before) > 0 && len(c.Better) == len(before)
	return c
}

// Welfare computes Σ wᵢ·ln(aᵢ) over the given points.
func Welfare(points []AllocationPoint) float64 {
	var total float64
	for _, p := range points {
		if p.Allocation <= 0 {
			continue
		}
		total += p.Weight * math.Log(float64(p.Allocation))
	}
	return total
}

// Gini computes the Gini coefficient of the allocation vector by the
// standard sorted formula: G = (2·Σ i·xᵢ)/(n·Σxᵢ) − (n+1)/n, for x sorted
// ascending and i 1-indexed. Returns 0 for fewer than 2 points or all-zero
// allocations.
func Gini(points []AllocationPoint) float64 {
	n := len(points)
	if n < 2 {
		return 0
	}
	values := make([]float64, n)
	var total float64
	for i, p := range points {
		values[i] = float64(p.Allocation)
		total += values[i]
	}
	if total == 0 {
		return 0
	}
	sort.Float64s(values)

	var weightedSum float64
	for i, v := range values {
		weightedSum += float64(i+1) * v
	}
	return (2*weightedSum)/(float64(n)*total) - float64(n+1)/float64(n)
}

// HistoryMaxSize bounds the welfare history retained in a Tracker, mirroring
// the teacher's MaxHistorySize bound on potential history.
const HistoryMaxSize = 1000

// Tracker watches welfare move across rounds, the way the teacher's
// LyapunovController watches its potential move across epochs — except a
// verifier never adapts a step size; it only records and reports whether
// welfare moved the right direction.
type Tracker struct {
	mu      sync.RWMutex
	history []float64
}

// NewTracker creates an empty welfare tracker.
func NewTracker() *Tracker {
	return &Tracker{history: make([]float64, 0, HistoryMaxSize)}
}

// Record appends a welfare value, trimming the oldest entry once
// HistoryMaxSize is exceeded.
func (t *Tracker) Record(welfare float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, welfare)
	if len(t.history) > HistoryMaxSize {
		t.history = t.history[len(t.history)-HistoryMaxSize:]
	}
	klog.V(5).InfoS("welfare recorded", "welfare", welfare, "history_size", len(t.history))
}

// History returns a copy of the recorded welfare values, oldest first.
func (t *Tracker) History() []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]float64, len(t.history))
	copy(out, t.history)
	return out
}

// IsImproving reports whether the last three recorded welfare values are
// non-decreasing.
func (t *Tracker) IsImproving() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.history)
	if n < 3 {
		return true
	}
	return t.history[n-1] >= t.history[n-2] && t.history[n-2] >= t.history[n-3]
}

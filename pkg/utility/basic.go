package utility

import (
	"fmt"
	"math"

	"arbiter/pkg/resource"
)

// Linear is Φ(a) = Σ w_k·a_k + offset. Marginal utility is constant, so
// Linear never satiates — the water-filling solver relies on its ideal/max
// bound to stop allocating, not on diminishing returns.
type Linear struct {
	weights map[resource.Kind]float64
	offset  float64
}

// NewLinear constructs a Linear form from preference weights, normalized to
// sum to 1, with a zero offset.
func NewLinear(weights map[resource.Kind]float64) (*Linear, error) {
	return NewLinearWithOffset(weights, 0)
}

// NewLinearWithOffset constructs a Linear form with an explicit additive
// offset (a fixed utility baseline independent of allocation).
func NewLinearWithOffset(weights map[resource.Kind]float64, offset float64) (*Linear, error) {
	w, err := normalizeWeights("linear", weights)
	if err != nil {
		return nil, err
	}
	return &Linear{weights: w, offset: offset}, nil
}

func (f *Linear) Evaluate(alloc map[resource.Kind]float64) float64 {
	v := f.offset
	for k, w := range f.weights {
		v += w * valueAt(alloc, k)
	}
	return v
}

func (f *Linear) Gradient(alloc map[resource.Kind]float64) map[resource.Kind]float64 {
	return copyWeights(f.weights)
}

func (f *Linear) Linearize(x0 map[resource.Kind]float64) Affine { return linearizeAt(f, x0) }
func (f *Linear) IsConvexCompatible() bool                      { return true }
func (f *Linear) Weights() map[resource.Kind]float64            { return copyWeights(f.weights) }
func (f *Linear) sealed()                                       {}

// Sqrt is Φ(a) = (Σ w_k·√a_k)², strictly concave with unbounded but
// decelerating marginal utility. Squaring the weighted sum of square roots
// (rather than summing w_k·√a_k directly) is what makes cross terms couple
// resources together in the gradient.
type Sqrt struct {
	weights map[resource.Kind]float64
}

func NewSqrt(weights map[resource.Kind]float64) (*Sqrt, error) {
	w, err := normalizeWeights("sqrt", weights)
	if err != nil {
		return nil, err
	}
	return &Sqrt{weights: w}, nil
}

func (f *Sqrt) weightedRootSum(alloc map[resource.Kind]float64) float64 {
	var s float64
	for k, w := range f.weights {
		s += w * math.Sqrt(clampEps(valueAt(alloc, k)))
	}
	return s
}

func (f *Sqrt) Evaluate(alloc map[resource.Kind]float64) float64 {
	s := f.weightedRootSum(alloc)
	return s * s
}

func (f *Sqrt) Gradient(alloc map[resource.Kind]float64) map[resource.Kind]float64 {
	s := f.weightedRootSum(alloc)
	g := make(map[resource.Kind]float64, len(f.weights))
	for k, w := range f.weights {
		g[k] = s * w / math.Sqrt(clampEps(valueAt(alloc, k)))
	}
	return g
}

func (f *Sqrt) Linearize(x0 map[resource.Kind]float64) Affine { return linearizeAt(f, x0) }
func (f *Sqrt) IsConvexCompatible() bool                      { return true }
func (f *Sqrt) Weights() map[resource.Kind]float64            { return copyWeights(f.weights) }
func (f *Sqrt) sealed()                                       {}

// Log is Φ(a) = Σ w_k·log_b(1+a_k), the canonical proportional-fairness
// utility generalized to an arbitrary log base (default e, the natural
// log used by the arbitrator's Σw·ln(a) water-filling objective).
type Log struct {
	weights map[resource.Kind]float64
	base    float64
}

// NewLog constructs a Log form with the natural log base.
func NewLog(weights map[resource.Kind]float64) (*Log, error) {
	return NewLogWithBase(weights, math.E)
}

// NewLogWithBase constructs a Log form with an explicit log base, which must
// be positive and not equal to 1.
func NewLogWithBase(weights map[resource.Kind]float64, base float64) (*Log, error) {
	w, err := normalizeWeights("log", weights)
	if err != nil {
		return nil, err
	}
	if base <= 0 || base == 1 {
		return nil, &ValidationError{Variant: "log", Reason: "base must be positive and != 1"}
	}
	return &Log{weights: w, base: base}, nil
}

func (f *Log) Evaluate(alloc map[resource.Kind]float64) float64 {
	var v float64
	lnBase := math.Log(f.base)
	for k, w := range f.weights {
		v += w * math.Log1p(clampEps(valueAt(alloc, k))) / lnBase
	}
	return v
}

func (f *Log) Gradient(alloc map[resource.Kind]float64) map[resource.Kind]float64 {
	lnBase := math.Log(f.base)
	g := make(map[resource.Kind]float64, len(f.weights))
	for k, w := range f.weights {
		g[k] = w / ((1 + clampEps(valueAt(alloc, k))) * lnBase)
	}
	return g
}

func (f *Log) Linearize(x0 map[resource.Kind]float64) Affine { return linearizeAt(f, x0) }
func (f *Log) IsConvexCompatible() bool                      { return true }
func (f *Log) Weights() map[resource.Kind]float64            { return copyWeights(f.weights) }
func (f *Log) sealed()                                       {}

// CobbDouglas is Φ(a) = Π a_k^w_k, evaluated in log-space internally to
// avoid overflow/underflow, then exponentiated back.
type CobbDouglas struct {
	weights map[resource.Kind]float64
}

func NewCobbDouglas(weights map[resource.Kind]float64) (*CobbDouglas, error) {
	w, err := normalizeWeights("cobb_douglas", weights)
	if err != nil {
		return nil, err
	}
	return &CobbDouglas{weights: w}, nil
}

// hasZeroWeightedAxis reports whether some weighted resource's allocation is
// exactly zero, in which case Φ=0 exactly rather than a clamped near-zero
// value (Π a_k^w_k with any zero factor is zero).
func (f *CobbDouglas) hasZeroWeightedAxis(alloc map[resource.Kind]float64) bool {
	for k, w := range f.weights {
		if w > 0 && valueAt(alloc, k) == 0 {
			return true
		}
	}
	return false
}

func (f *CobbDouglas) logValue(alloc map[resource.Kind]float64) float64 {
	var v float64
	for k, w := range f.weights {
		v += w * math.Log(clampEps(valueAt(alloc, k)))
	}
	return v
}

func (f *CobbDouglas) Evaluate(alloc map[resource.Kind]float64) float64 {
	if f.hasZeroWeightedAxis(alloc) {
		return 0
	}
	return math.Exp(f.logValue(alloc))
}

func (f *CobbDouglas) Gradient(alloc map[resource.Kind]float64) map[resource.Kind]float64 {
	phi := f.Evaluate(alloc)
	g := make(map[resource.Kind]float64, len(f.weights))
	for k, w := range f.weights {
		g[k] = phi * w / clampEps(valueAt(alloc, k))
	}
	return g
}

func (f *CobbDouglas) Linearize(x0 map[resource.Kind]float64) Affine { return linearizeAt(f, x0) }
func (f *CobbDouglas) IsConvexCompatible() bool                      { return true }
func (f *CobbDouglas) Weights() map[resource.Kind]float64            { return copyWeights(f.weights) }
func (f *CobbDouglas) sealed()                                       {}

// Leontief is Φ(a) = min_k(a_k/w_k), fixed-proportions complementary
// resources. It is only quasi-concave: IsConvexCompatible reports false, and
// its gradient is a subgradient that puts all weight on the first binding
// (minimizing) resource found during iteration, ties broken by resource.Kind
// iteration order from resource.All().
type Leontief struct {
	weights map[resource.Kind]float64
}

func NewLeontief(weights map[resource.Kind]float64) (*Leontief, error) {
	w, err := normalizeWeights("leontief", weights)
	if err != nil {
		return nil, err
	}
	return &Leontief{weights: w}, nil
}

func (f *Leontief) ratios(alloc map[resource.Kind]float64) (resource.Kind, float64) {
	var binding resource.Kind
	best := math.Inf(1)
	found := false
	for _, k := range resource.All() {
		w, ok := f.weights[k]
		if !ok {
			continue
		}
		r := valueAt(alloc, k) / clampEps(w)
		if !found || r < best {
			best, binding, found = r, k, true
		}
	}
	return binding, best
}

func (f *Leontief) Evaluate(alloc map[resource.Kind]float64) float64 {
	_, v := f.ratios(alloc)
	return v
}

// Gradient assigns the full subgradient weight to the binding resource found
// by ratios (first-minimum in resource.All() order on ties); every other
// tracked resource gets a zero partial derivative.
func (f *Leontief) Gradient(alloc map[resource.Kind]float64) map[resource.Kind]float64 {
	binding, _ := f.ratios(alloc)
	g := make(map[resource.Kind]float64, len(f.weights))
	for k := range f.weights {
		g[k] = 0
	}
	if w, ok := f.weights[binding]; ok {
		g[binding] = 1 / clampEps(w)
	}
	return g
}

func (f *Leontief) Linearize(x0 map[resource.Kind]float64) Affine { return linearizeAt(f, x0) }
func (f *Leontief) IsConvexCompatible() bool                      { return false }
func (f *Leontief) Weights() map[resource.Kind]float64            { return copyWeights(f.weights) }
func (f *Leontief) sealed()                                       {}

// CESWindow bounds the substitution parameter ρ accepted by NewCES. Outside
// [-5, 0.9] the fixed-point solvers downstream lose numerical stability.
var CESWindow = [2]float64{-5, 0.9}

// CES is the constant-elasticity-of-substitution form
// Φ(a) = (Σ w_k·a_k^ρ)^(1/ρ), ρ≠0. Elasticity of substitution σ = 1/(1-ρ).
type CES struct {
	weights map[resource.Kind]float64
	rho     float64
}

// NewCES constructs a CES form. rho must lie in CESWindow and be nonzero
// (rho==0 is the Cobb-Douglas limit; use NewCobbDouglas directly).
func NewCES(weights map[resource.Kind]float64, rho float64) (*CES, error) {
	w, err := normalizeWeights("ces", weights)
	if err != nil {
		return nil, err
	}
	if rho == 0 {
		return nil, &ValidationError{Variant: "ces", Reason: "rho=0 is the Cobb-Douglas limit, use NewCobbDouglas"}
	}
	if rho < CESWindow[0] || rho > CESWindow[1] {
		return nil, &ValidationError{Variant: "ces", Reason: fmt.Sprintf("rho %.4f outside stable window [%.1f, %.1f]", rho, CESWindow[0], CESWindow[1])}
	}
	return &CES{weights: w, rho: rho}, nil
}

func (f *CES) inner(alloc map[resource.Kind]float64) float64 {
	var s float64
	for k, w := range f.weights {
		s += w * math.Pow(clampEps(valueAt(alloc, k)), f.rho)
	}
	return s
}

func (f *CES) Evaluate(alloc map[resource.Kind]float64) float64 {
	return math.Pow(clampEps(f.inner(alloc)), 1/f.rho)
}

func (f *CES) Gradient(alloc map[resource.Kind]float64) map[resource.Kind]float64 {
	s := clampEps(f.inner(alloc))
	phi := math.Pow(s, 1/f.rho)
	g := make(map[resource.Kind]float64, len(f.weights))
	for k, w := range f.weights {
		a := clampEps(valueAt(alloc, k))
		g[k] = phi / s * w * math.Pow(a, f.rho-1)
	}
	return g
}

func (f *CES) Linearize(x0 map[resource.Kind]float64) Affine { return linearizeAt(f, x0) }
func (f *CES) IsConvexCompatible() bool                      { return true }
func (f *CES) Weights() map[resource.Kind]float64            { return copyWeights(f.weights) }
func (f *CES) sealed()                                       {}

// Elasticity returns the elasticity of substitution σ = 1/(1-ρ).
func (f *CES) Elasticity() float64 { return 1 / (1 - f.rho) }

// Rho returns the substitution parameter this CES form was built with.
func (f *CES) Rho() float64 { return f.rho }

// LeontiefDispatchRho is the threshold at and below which NewCESOrLeontief
// dispatches to Leontief instead of constructing a CES: as ρ→−∞, CES's
// min-like behavior converges on Leontief's hard complementarity, and the
// fixed-point solvers downstream lose numerical stability long before a CES
// value could be evaluated at such an extreme ρ anyway.
const LeontiefDispatchRho = -100.0

// NewCESOrLeontief builds a CES form for ρ inside CESWindow, and numerically
// dispatches to Leontief for ρ at or below LeontiefDispatchRho — the
// extreme-elasticity edge case where CES's perfect-complements limit is
// indistinguishable from Leontief but no longer safely evaluable as CES.
// ρ strictly between LeontiefDispatchRho and CESWindow[0] remains rejected:
// that band is neither numerically stable as CES nor extreme enough to
// treat as the Leontief limit.
func NewCESOrLeontief(weights map[resource.Kind]float64, rho float64) (Form, error) {
	if rho <= LeontiefDispatchRho {
		return NewLeontief(weights)
	}
	return NewCES(weights, rho)
}

package utility

import (
	"math"

	"arbiter/pkg/resource"
)

// Threshold wraps an inner Form with a sigmoid gate over the inner form's
// total allocation: Φ = σ(k·(Σaⱼ − T))·Φ_base, σ the logistic, summed over
// every resource kind the inner form has a weight for. Utility is suppressed
// while total allocation sits below T and approaches the inner form's value
// once past it — an SLO-style step in perceived utility, grounded on the
// teacher's SLOScore sigmoid in pkg/allocation/utility.go generalized from a
// single CPU/latency threshold to an arbitrary inner form.
type Threshold struct {
	inner     Form
	t         float64
	steepness float64
}

// NewThreshold wraps inner with a sigmoid gate at total allocation t.
// steepness must be positive; larger values approach a hard step function.
func NewThreshold(inner Form, t float64, steepness float64) (*Threshold, error) {
	if inner == nil {
		return nil, &ValidationError{Variant: "threshold", Reason: "inner form is nil"}
	}
	if steepness <= 0 {
		return nil, &ValidationError{Variant: "threshold", Reason: "steepness must be positive"}
	}
	return &Threshold{inner: inner, t: t, steepness: steepness}, nil
}

func (f *Threshold) totalAlloc(alloc map[resource.Kind]float64) float64 {
	var sum float64
	for k := range f.inner.Weights() {
		sum += valueAt(alloc, k)
	}
	return sum
}

func (f *Threshold) sigmoid(alloc map[resource.Kind]float64) float64 {
	x := f.steepness * (f.totalAlloc(alloc) - f.t)
	if x > SigmoidBound {
		x = SigmoidBound
	}
	if x < -SigmoidBound {
		x = -SigmoidBound
	}
	return 1 / (1 + math.Exp(-x))
}

func (f *Threshold) Evaluate(alloc map[resource.Kind]float64) float64 {
	return f.sigmoid(alloc) * f.inner.Evaluate(alloc)
}

// Gradient applies the product rule: d(sigmoid·inner) = sigmoid'·inner +
// sigmoid·inner'. sigmoid' = steepness·s·(1-s), the same for every gated
// kind since Σaⱼ has unit partial derivative with respect to each.
func (f *Threshold) Gradient(alloc map[resource.Kind]float64) map[resource.Kind]float64 {
	s := f.sigmoid(alloc)
	sPrime := f.steepness * s * (1 - s)
	innerVal := f.inner.Evaluate(alloc)
	innerGrad := f.inner.Gradient(alloc)

	g := make(map[resource.Kind]float64, len(innerGrad))
	for k, gv := range innerGrad {
		g[k] = s*gv + sPrime*innerVal
	}
	return g
}

func (f *Threshold) Linearize(x0 map[resource.Kind]float64) Affine { return linearizeAt(f, x0) }
func (f *Threshold) IsConvexCompatible() bool                      { return false }
func (f *Threshold) Weights() map[resource.Kind]float64            { return f.inner.Weights() }
func (f *Threshold) sealed()                                       {}

// Satiation wraps an inner Form and bends its growth toward an asymptote
// Vmax as the inner value grows, rather than the inner form's own unbounded
// growth: exponential mode Vmax·(1−e^(−Φ_base/k)), hyperbolic mode
// Vmax·Φ_base/(k+Φ_base). Grounded on the teacher's SurplusCPU/
// LogSurplusCPU pattern of measuring utility relative to how fully an
// agent's need is met.
type Satiation struct {
	inner      Form
	vmax       float64
	k          float64
	hyperbolic bool
}

// NewSatiation wraps inner with a satiation curve. vmax and k must be
// positive. hyperbolic selects Vmax·B/(k+B) over the default exponential
// Vmax·(1−e^(−B/k)).
func NewSatiation(inner Form, vmax, k float64, hyperbolic bool) (*Satiation, error) {
	if inner == nil {
		return nil, &ValidationError{Variant: "satiation", Reason: "inner form is nil"}
	}
	if vmax <= 0 {
		return nil, &ValidationError{Variant: "satiation", Reason: "vmax must be positive"}
	}
	if k <= 0 {
		return nil, &ValidationError{Variant: "satiation", Reason: "k must be positive"}
	}
	return &Satiation{inner: inner, vmax: vmax, k: k, hyperbolic: hyperbolic}, nil
}

func (f *Satiation) Evaluate(alloc map[resource.Kind]float64) float64 {
	b := f.inner.Evaluate(alloc)
	if f.hyperbolic {
		if b < 0 {
			b = 0
		}
		return f.vmax * b / (f.k + b)
	}
	return f.vmax * (1 - math.Exp(-b/f.k))
}

// Gradient applies the chain rule through the satiation curve and the inner
// form's own gradient.
func (f *Satiation) Gradient(alloc map[resource.Kind]float64) map[resource.Kind]float64 {
	b := f.inner.Evaluate(alloc)
	innerGrad := f.inner.Gradient(alloc)

	var dOuter float64
	if f.hyperbolic {
		if b < 0 {
			b = 0
		}
		dOuter = f.vmax * f.k / ((f.k + b) * (f.k + b))
	} else {
		dOuter = f.vmax / f.k * math.Exp(-b/f.k)
	}

	g := make(map[resource.Kind]float64, len(innerGrad))
	for k, gv := range innerGrad {
		g[k] = dOuter * gv
	}
	return g
}

func (f *Satiation) Linearize(x0 map[resource.Kind]float64) Affine { return linearizeAt(f, x0) }
func (f *Satiation) IsConvexCompatible() bool                      { return f.inner.IsConvexCompatible() }
func (f *Satiation) Weights() map[resource.Kind]float64            { return f.inner.Weights() }
func (f *Satiation) sealed()                                       {}

// Vmax returns the satiation asymptote this wrapper was constructed with.
func (f *Satiation) Vmax() float64 { return f.vmax }

// PiecewiseLinear approximates an inner ("base") Form by the upper envelope
// of its tangent hyperplanes at N+1 anchor points along the diagonal
// direction (equal allocation of each anchor scalar to every resource kind
// the base form tracks). Because base is concave, each tangent plane lies
// on or above it and touches it exactly at its anchor, so the max over
// planes is a concave piecewise-linear solver surrogate for base — the
// representation the arbitrator's LP fallback linearizes against when base
// itself is awkward to optimize directly.
type PiecewiseLinear struct {
	base    Form
	anchors []float64
	pieces  []Affine
}

// NewPiecewiseLinear builds the N+1 tangent planes of base at the given
// anchor scalars (N+1 values, strictly increasing, all nonnegative).
func NewPiecewiseLinear(base Form, anchors []float64) (*PiecewiseLinear, error) {
	if base == nil {
		return nil, &ValidationError{Variant: "piecewise_linear", Reason: "base form is nil"}
	}
	if len(anchors) < 2 {
		return nil, &ValidationError{Variant: "piecewise_linear", Reason: "need at least 2 anchors (N+1 with N>=1)"}
	}
	for i, a := range anchors {
		if a < 0 {
			return nil, &ValidationError{Variant: "piecewise_linear", Reason: "anchors must be nonnegative"}
		}
		if i > 0 && anchors[i-1] >= a {
			return nil, &ValidationError{Variant: "piecewise_linear", Reason: "anchors must be strictly increasing"}
		}
	}
	kinds := base.Weights()
	pieces := make([]Affine, len(anchors))
	anc := make([]float64, len(anchors))
	for i, a := range anchors {
		x0 := make(map[resource.Kind]float64, len(kinds))
		for k := range kinds {
			x0[k] = a
		}
		pieces[i] = base.Linearize(x0)
		anc[i] = a
	}
	return &PiecewiseLinear{base: base, anchors: anc, pieces: pieces}, nil
}

// activePiece returns the index of the tangent plane attaining the max at
// alloc, ties broken toward the lowest index.
func (f *PiecewiseLinear) activePiece(alloc map[resource.Kind]float64) int {
	best := 0
	bestVal := f.pieces[0].ValueAt(alloc)
	for i := 1; i < len(f.pieces); i++ {
		v := f.pieces[i].ValueAt(alloc)
		if v > bestVal {
			best, bestVal = i, v
		}
	}
	return best
}

func (f *PiecewiseLinear) Evaluate(alloc map[resource.Kind]float64) float64 {
	return f.pieces[f.activePiece(alloc)].ValueAt(alloc)
}

func (f *PiecewiseLinear) Gradient(alloc map[resource.Kind]float64) map[resource.Kind]float64 {
	return copyWeights(f.pieces[f.activePiece(alloc)].Gradient)
}

func (f *PiecewiseLinear) Linearize(x0 map[resource.Kind]float64) Affine { return linearizeAt(f, x0) }
func (f *PiecewiseLinear) IsConvexCompatible() bool                      { return false }
func (f *PiecewiseLinear) Weights() map[resource.Kind]float64            { return f.base.Weights() }
func (f *PiecewiseLinear) sealed()                                       {}

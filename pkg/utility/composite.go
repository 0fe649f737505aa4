package utility

import (
	"math"

	"arbiter/pkg/resource"
)

// NestedCES combines a set of child Forms — each typically itself a CES or
// Cobb-Douglas group over a subset of resource kinds — through an outer CES
// aggregator, giving a two-level nested-CES tree: leaves group complementary
// resources (e.g. CPU+Memory), the outer node trades off across groups
// (e.g. compute vs. storage). Children are owned by value (constructed once,
// passed in), forming an acyclic tree — no back references to the parent.
type NestedCES struct {
	children     []Form
	childWeights []float64
	rho          float64
}

// NewNestedCES builds a NestedCES from children and their outer weights
// (normalized to sum to 1) combined with outer substitution parameter rho,
// constrained to the same stability window as CES.
func NewNestedCES(children []Form, weights []float64, rho float64) (*NestedCES, error) {
	if len(children) == 0 {
		return nil, &ValidationError{Variant: "nested_ces", Reason: "no children supplied"}
	}
	if len(children) != len(weights) {
		return nil, &ValidationError{Variant: "nested_ces", Reason: "children and weights length mismatch"}
	}
	if rho == 0 {
		return nil, &ValidationError{Variant: "nested_ces", Reason: "rho=0 is the Cobb-Douglas limit"}
	}
	if rho < CESWindow[0] || rho > CESWindow[1] {
		return nil, &ValidationError{Variant: "nested_ces", Reason: "rho outside stable window"}
	}
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return nil, &ValidationError{Variant: "nested_ces", Reason: "negative child weight"}
		}
		sum += w
	}
	if sum <= 0 {
		return nil, &ValidationError{Variant: "nested_ces", Reason: "child weights sum to zero"}
	}
	ch := make([]Form, len(children))
	copy(ch, children)
	w := make([]float64, len(weights))
	for i, v := range weights {
		w[i] = v / sum
	}
	return &NestedCES{children: ch, childWeights: w, rho: rho}, nil
}

func (f *NestedCES) inner(alloc map[resource.Kind]float64) float64 {
	var s float64
	for i, c := range f.children {
		s += f.childWeights[i] * math.Pow(clampEps(c.Evaluate(alloc)), f.rho)
	}
	return s
}

func (f *NestedCES) Evaluate(alloc map[resource.Kind]float64) float64 {
	return math.Pow(clampEps(f.inner(alloc)), 1/f.rho)
}

// Gradient applies the chain rule through both nesting levels: dΦ/da_k =
// Φ^(1-ρ) · Σ_i w_i · childValue_i^(ρ-1) · dchild_i/da_k, summed over every
// child that has a nonzero partial for k.
func (f *NestedCES) Gradient(alloc map[resource.Kind]float64) map[resource.Kind]float64 {
	s := clampEps(f.inner(alloc))
	phi := math.Pow(s, 1/f.rho)
	outerFactor := phi / s

	g := make(map[resource.Kind]float64)
	for i, c := range f.children {
		cv := clampEps(c.Evaluate(alloc))
		childFactor := outerFactor * f.childWeights[i] * math.Pow(cv, f.rho-1)
		for k, cg := range c.Gradient(alloc) {
			g[k] += childFactor * cg
		}
	}
	return g
}

func (f *NestedCES) Linearize(x0 map[resource.Kind]float64) Affine { return linearizeAt(f, x0) }
func (f *NestedCES) IsConvexCompatible() bool {
	for _, c := range f.children {
		if !c.IsConvexCompatible() {
			return false
		}
	}
	return true
}

func (f *NestedCES) Weights() map[resource.Kind]float64 {
	g := make(map[resource.Kind]float64)
	for i, c := range f.children {
		for k, w := range c.Weights() {
			g[k] += f.childWeights[i] * w
		}
	}
	return g
}
func (f *NestedCES) sealed() {}

// Elasticity returns the outer elasticity of substitution σ = 1/(1-ρ).
func (f *NestedCES) Elasticity() float64 { return 1 / (1 - f.rho) }

// Package utility implements the closed family of concave (or quasi-concave)
// utility functions over integer resource allocations. Every variant is
// built from NewXxx constructors that validate parameters up front; a
// malformed variant never reaches Evaluate/Gradient.
package utility

import (
	"fmt"
	"math"

	"k8s.io/klog/v2"

	"arbiter/pkg/resource"
)

// Epsilon clamps allocations away from zero in variants with a singularity
// there (Sqrt, Cobb-Douglas, Leontief, CES).
const Epsilon = 1e-8

// SigmoidBound clamps the sigmoid argument in Threshold to avoid overflow.
const SigmoidBound = 20.0

// Affine is the first-order Taylor expansion of a Form around X0, used by
// solver fallbacks that need a locally linear surrogate.
type Affine struct {
	Base     float64
	Gradient map[resource.Kind]float64
	X0       map[resource.Kind]float64
}

// ValueAt evaluates the affine approximation at x: Base + Gradient·(x-X0).
func (a Affine) ValueAt(x map[resource.Kind]float64) float64 {
	v := a.Base
	for k, g := range a.Gradient {
		v += g * (x[k] - a.X0[k])
	}
	return v
}

// Form is the closed family of utility functions. Every variant in §4.1 of
// the specification implements it; the unexported sealed method prevents
// types outside this package from satisfying the interface, keeping the
// family closed the way a tagged sum type would be in a language that has
// one.
type Form interface {
	// Evaluate returns the utility of alloc, a nonnegative allocation per
	// resource kind (kinds absent from alloc are treated as zero).
	Evaluate(alloc map[resource.Kind]float64) float64

	// Gradient returns ∂Φ/∂a_k for every kind this form has a weight or
	// parameter for.
	Gradient(alloc map[resource.Kind]float64) map[resource.Kind]float64

	// Linearize returns the first-order Taylor expansion of Φ around x0,
	// for solver fallback when Φ itself is awkward to optimize directly
	// (e.g. Leontief, PiecewiseLinear).
	Linearize(x0 map[resource.Kind]float64) Affine

	// IsConvexCompatible reports whether Φ is strictly concave (false for
	// Leontief, which is only quasi-concave, and for Threshold and
	// PiecewiseLinear; Satiation and NestedCES follow their inner forms).
	IsConvexCompatible() bool

	// Weights returns the (normalized, sum to 1 within 1e-3) preference
	// weights this form was constructed with.
	Weights() map[resource.Kind]float64

	sealed()
}

// ValidationError reports a malformed construction argument: a negative
// weight, min>ideal style parameter ordering, or a parameter outside its
// required domain.
type ValidationError struct {
	Variant string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("utility: %s: %s", e.Variant, e.Reason)
}

// normalizeWeights validates that every weight is nonnegative and the sum
// is positive, then rescales to sum to exactly 1. The 1e-3 tolerance named
// in the specification governs how callers later check the *stored*
// weights sum to 1, not this rescaling step, which is exact.
func normalizeWeights(variant string, weights map[resource.Kind]float64) (map[resource.Kind]float64, error) {
	if len(weights) == 0 {
		klog.V(2).InfoS("utility form rejected", "variant", variant, "reason", "no weights supplied")
		return nil, &ValidationError{Variant: variant, Reason: "no weights supplied"}
	}
	sum := 0.0
	for k, w := range weights {
		if w < 0 {
			klog.V(2).InfoS("utility form rejected", "variant", variant, "reason", "negative weight", "kind", k)
			return nil, &ValidationError{Variant: variant, Reason: fmt.Sprintf("negative weight for %s", k)}
		}
		sum += w
	}
	if sum <= 0 {
		klog.V(2).InfoS("utility form rejected", "variant", variant, "reason", "weights sum to zero")
		return nil, &ValidationError{Variant: variant, Reason: "weights sum to zero"}
	}
	out := make(map[resource.Kind]float64, len(weights))
	for k, w := range weights {
		out[k] = w / sum
	}
	return out, nil
}

// clampEps returns x clamped below at Epsilon, used wherever a gradient or
// evaluation would otherwise divide by (or take the log of) zero.
func clampEps(x float64) float64 {
	if x < Epsilon {
		return Epsilon
	}
	return x
}

// valueAt returns alloc[k], defaulting to 0 for kinds absent from the map.
func valueAt(alloc map[resource.Kind]float64, k resource.Kind) float64 {
	return alloc[k]
}

// copyWeights returns a defensive copy so callers can't mutate a form's
// internal state through the map returned by Weights().
func copyWeights(w map[resource.Kind]float64) map[resource.Kind]float64 {
	out := make(map[resource.Kind]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// linearizeAt builds an Affine by evaluating f and its gradient at x0. Every
// concrete variant's Linearize method is exactly this call.
func linearizeAt(f Form, x0 map[resource.Kind]float64) Affine {
	return Affine{Base: f.Evaluate(x0), Gradient: f.Gradient(x0), X0: copyWeights(x0)}
}

var _ = math.Inf // used by elasticity.go in this package

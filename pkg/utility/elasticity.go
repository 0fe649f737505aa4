package utility

import (
	"math"

	"arbiter/pkg/resource"
)

// elasticityProvider is implemented by the variants with a closed-form
// elasticity of substitution (CES and NestedCES derive it analytically from
// their ρ parameter instead of falling back to a numerical estimate).
type elasticityProvider interface {
	Elasticity() float64
}

// Elasticity returns the elasticity of substitution for f. Variants with an
// analytic formula report it directly: CES and NestedCES via ρ
// (σ=1/(1−ρ)), Linear is perfect substitutes (+Inf), Leontief is perfect
// complements (0), CobbDouglas is unit elasticity (1). Every other variant
// falls back to a numerical estimate from a central difference of the
// marginal rate of substitution between the two highest-weighted resource
// kinds, evaluated at x0.
func Elasticity(f Form, x0 map[resource.Kind]float64) float64 {
	switch v := f.(type) {
	case elasticityProvider:
		return v.Elasticity()
	case *Linear:
		return math.Inf(1)
	case *Leontief:
		return 0
	case *CobbDouglas:
		return 1
	}
	return numericalElasticity(f, x0)
}

// MarginalRateOfSubstitution returns how many units of ky the allocation
// could give up per unit gain of kx while holding utility constant:
// MRS = (∂Φ/∂a_kx) / (∂Φ/∂a_ky), evaluated at alloc.
func MarginalRateOfSubstitution(f Form, alloc map[resource.Kind]float64, kx, ky resource.Kind) float64 {
	g := f.Gradient(alloc)
	return g[kx] / clampEps(g[ky])
}

// topTwoKinds returns the two resource kinds with the largest weight in f,
// in descending weight order. Used by numericalElasticity to pick a
// representative pair when a variant has more than two tracked kinds.
func topTwoKinds(f Form) (resource.Kind, resource.Kind, bool) {
	type kw struct {
		k resource.Kind
		w float64
	}
	var all []kw
	for k, w := range f.Weights() {
		all = append(all, kw{k, w})
	}
	if len(all) < 2 {
		return "", "", false
	}
	best, second := 0, 1
	if all[second].w > all[best].w {
		best, second = second, best
	}
	for i := 2; i < len(all); i++ {
		if all[i].w > all[best].w {
			best, second = i, best
		} else if all[i].w > all[second].w {
			second = i
		}
	}
	return all[best].k, all[second].k, true
}

// numericalElasticity estimates σ via a central difference of ln(MRS) with
// respect to ln(a_kx/a_ky) around x0, the standard finite-difference
// definition of the elasticity of substitution.
func numericalElasticity(f Form, x0 map[resource.Kind]float64) float64 {
	kx, ky, ok := topTwoKinds(f)
	if !ok {
		return math.NaN()
	}
	const h = 1e-3
	ax, ay := valueAt(x0, kx), valueAt(x0, ky)
	if ax <= 0 || ay <= 0 {
		return math.NaN()
	}

	step := func(dx, dy float64) (lnRatio, lnMRS float64) {
		a := copyWeights(x0)
		a[kx] = ax * (1 + dx)
		a[ky] = ay * (1 + dy)
		mrs := MarginalRateOfSubstitution(f, a, kx, ky)
		return math.Log(a[kx] / a[ky]), math.Log(clampEps(mrs))
	}

	ratioPlus, mrsPlus := step(h, 0)
	ratioMinus, mrsMinus := step(-h, 0)
	dRatio := ratioPlus - ratioMinus
	dMRS := mrsPlus - mrsMinus
	if math.Abs(dMRS) < 1e-12 {
		return math.Inf(1)
	}
	return -dRatio / dMRS
}

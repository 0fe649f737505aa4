package utility

import (
	"math"

	"arbiter/pkg/resource"
)

// SoftplusLossAversion models prospect-theory loss aversion around a
// reference allocation: utility is smoothly steeper below the reference
// than above it, blended by a softplus (no kink, unlike
// AsymmetricLogLossAversion's hard branch at the reference point).
//
// Φ(a) = Σ w_k·g(a_k−ref_k), g(x) = x − (λ−1)·τ·ln(1+e^(−x/τ))
//
// As x→+∞ the softplus term vanishes and marginal utility → w_k (gains
// behave linearly); as x→−∞ it approaches w_k·λ (losses are felt λ times as
// strongly as gains of the same size), matching the teacher's
// SurplusCPU/LogSurplusCPU treatment of allocation relative to a baseline.
type SoftplusLossAversion struct {
	weights      map[resource.Kind]float64
	reference    map[resource.Kind]float64
	lossAversion float64
	tau          float64
}

// NewSoftplusLossAversion constructs the form. lossAversion (λ) must be
// >= 1 and tau (τ) must be positive.
func NewSoftplusLossAversion(weights, reference map[resource.Kind]float64, lossAversion, tau float64) (*SoftplusLossAversion, error) {
	w, err := normalizeWeights("softplus_loss_aversion", weights)
	if err != nil {
		return nil, err
	}
	if lossAversion < 1 {
		return nil, &ValidationError{Variant: "softplus_loss_aversion", Reason: "lossAversion must be >= 1"}
	}
	if tau <= 0 {
		return nil, &ValidationError{Variant: "softplus_loss_aversion", Reason: "tau must be positive"}
	}
	ref := make(map[resource.Kind]float64, len(reference))
	for k, v := range reference {
		ref[k] = v
	}
	return &SoftplusLossAversion{weights: w, reference: ref, lossAversion: lossAversion, tau: tau}, nil
}

func softplus(x float64) float64 {
	if x > SigmoidBound {
		return x
	}
	if x < -SigmoidBound {
		return 0
	}
	return math.Log1p(math.Exp(x))
}

func sigmoid(x float64) float64 {
	if x > SigmoidBound {
		return 1
	}
	if x < -SigmoidBound {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

func (f *SoftplusLossAversion) Evaluate(alloc map[resource.Kind]float64) float64 {
	var v float64
	for k, w := range f.weights {
		x := valueAt(alloc, k) - f.reference[k]
		v += w * (x - (f.lossAversion-1)*f.tau*softplus(-x/f.tau))
	}
	return v
}

// Gradient: dg/dx = 1 − (λ−1)·τ·(−1/τ)·sigmoid(−x/τ) = 1 + (λ−1)·sigmoid(−x/τ).
func (f *SoftplusLossAversion) Gradient(alloc map[resource.Kind]float64) map[resource.Kind]float64 {
	g := make(map[resource.Kind]float64, len(f.weights))
	for k, w := range f.weights {
		x := valueAt(alloc, k) - f.reference[k]
		g[k] = w * (1 + (f.lossAversion-1)*sigmoid(-x/f.tau))
	}
	return g
}

func (f *SoftplusLossAversion) Linearize(x0 map[resource.Kind]float64) Affine { return linearizeAt(f, x0) }
func (f *SoftplusLossAversion) IsConvexCompatible() bool                      { return true }
func (f *SoftplusLossAversion) Weights() map[resource.Kind]float64            { return copyWeights(f.weights) }
func (f *SoftplusLossAversion) sealed()                                       {}

// AsymmetricLogLossAversion models the same reference-dependent loss
// aversion as SoftplusLossAversion but with a hard kink at the reference
// point rather than a smooth blend: gains accrue ln(1+x/κ), losses accrue
// −λ·ln(1+|x|/κ).
type AsymmetricLogLossAversion struct {
	weights      map[resource.Kind]float64
	reference    map[resource.Kind]float64
	lossAversion float64
	kappa        float64
}

// NewAsymmetricLogLossAversion constructs the form. lossAversion (λ) must
// be >= 1 and kappa (κ) must be positive.
func NewAsymmetricLogLossAversion(weights, reference map[resource.Kind]float64, lossAversion, kappa float64) (*AsymmetricLogLossAversion, error) {
	w, err := normalizeWeights("asymmetric_log_loss_aversion", weights)
	if err != nil {
		return nil, err
	}
	if lossAversion < 1 {
		return nil, &ValidationError{Variant: "asymmetric_log_loss_aversion", Reason: "lossAversion must be >= 1"}
	}
	if kappa <= 0 {
		return nil, &ValidationError{Variant: "asymmetric_log_loss_aversion", Reason: "kappa must be positive"}
	}
	ref := make(map[resource.Kind]float64, len(reference))
	for k, v := range reference {
		ref[k] = v
	}
	return &AsymmetricLogLossAversion{weights: w, reference: ref, lossAversion: lossAversion, kappa: kappa}, nil
}

func (f *AsymmetricLogLossAversion) Evaluate(alloc map[resource.Kind]float64) float64 {
	var v float64
	for k, w := range f.weights {
		x := valueAt(alloc, k) - f.reference[k]
		if x >= 0 {
			v += w * math.Log1p(x/f.kappa)
		} else {
			v -= w * f.lossAversion * math.Log1p(-x/f.kappa)
		}
	}
	return v
}

// Gradient is 1/(κ+x) for gains, λ/(κ+|x|) for losses.
func (f *AsymmetricLogLossAversion) Gradient(alloc map[resource.Kind]float64) map[resource.Kind]float64 {
	g := make(map[resource.Kind]float64, len(f.weights))
	for k, w := range f.weights {
		x := valueAt(alloc, k) - f.reference[k]
		if x >= 0 {
			g[k] = w / (f.kappa + x)
		} else {
			g[k] = w * f.lossAversion / (f.kappa - x)
		}
	}
	return g
}

func (f *AsymmetricLogLossAversion) Linearize(x0 map[resource.Kind]float64) Affine {
	return linearizeAt(f, x0)
}
func (f *AsymmetricLogLossAversion) IsConvexCompatible() bool           { return true }
func (f *AsymmetricLogLossAversion) Weights() map[resource.Kind]float64 { return copyWeights(f.weights) }
func (f *AsymmetricLogLossAversion) sealed()                            {}

package utility

import (
	"math"
	"testing"

	"arbiter/pkg/resource"
)

func TestNewLinear_NormalizesWeights(t *testing.T) {
	f, err := NewLinear(map[resource.Kind]float64{resource.CPU: 2, resource.Memory: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w := f.Weights()
	if math.Abs(w[resource.CPU]-0.5) > 1e-9 || math.Abs(w[resource.Memory]-0.5) > 1e-9 {
		t.Errorf("expected normalized weights 0.5/0.5, got %+v", w)
	}
}

func TestNewLinear_RejectsNegativeWeight(t *testing.T) {
	_, err := NewLinear(map[resource.Kind]float64{resource.CPU: -1})
	if err == nil {
		t.Fatal("expected error for negative weight")
	}
}

func TestLinear_GradientConstant(t *testing.T) {
	f, _ := NewLinear(map[resource.Kind]float64{resource.CPU: 1})
	g1 := f.Gradient(map[resource.Kind]float64{resource.CPU: 10})
	g2 := f.Gradient(map[resource.Kind]float64{resource.CPU: 1000})
	if g1[resource.CPU] != g2[resource.CPU] {
		t.Errorf("linear gradient should not depend on allocation, got %f vs %f", g1[resource.CPU], g2[resource.CPU])
	}
}

func TestSqrt_GradientMatchesCentralDifference(t *testing.T) {
	f, _ := NewSqrt(map[resource.Kind]float64{resource.CPU: 0.5, resource.Memory: 0.5})
	alloc := map[resource.Kind]float64{resource.CPU: 40, resource.Memory: 90}
	const h = 1e-3
	plus := map[resource.Kind]float64{resource.CPU: 40 + h, resource.Memory: 90}
	minus := map[resource.Kind]float64{resource.CPU: 40 - h, resource.Memory: 90}
	approx := (f.Evaluate(plus) - f.Evaluate(minus)) / (2 * h)
	g := f.Gradient(alloc)
	if math.Abs(g[resource.CPU]-approx) > 1e-2 {
		t.Errorf("gradient %f does not match central difference %f", g[resource.CPU], approx)
	}
}

func TestSqrt_SingleResourceIsLinear(t *testing.T) {
	f, _ := NewSqrt(map[resource.Kind]float64{resource.CPU: 1})
	v := f.Evaluate(map[resource.Kind]float64{resource.CPU: 25})
	if math.Abs(v-25) > 1e-9 {
		t.Errorf("expected (1*sqrt(25))^2=25, got %f", v)
	}
}

func TestLog_GradientMatchesCentralDifference(t *testing.T) {
	f, _ := NewLog(map[resource.Kind]float64{resource.CPU: 1})
	const h = 1e-4
	plus := f.Evaluate(map[resource.Kind]float64{resource.CPU: 100 + h})
	minus := f.Evaluate(map[resource.Kind]float64{resource.CPU: 100 - h})
	approx := (plus - minus) / (2 * h)
	g := f.Gradient(map[resource.Kind]float64{resource.CPU: 100})
	if math.Abs(g[resource.CPU]-approx) > 1e-3 {
		t.Errorf("gradient %f does not match central difference %f", g[resource.CPU], approx)
	}
}

func TestCobbDouglas_EvaluateMatchesProduct(t *testing.T) {
	f, _ := NewCobbDouglas(map[resource.Kind]float64{resource.CPU: 1, resource.Memory: 1})
	v := f.Evaluate(map[resource.Kind]float64{resource.CPU: 4, resource.Memory: 9})
	expected := math.Sqrt(4) * math.Sqrt(9)
	if math.Abs(v-expected) > 1e-6 {
		t.Errorf("expected %f, got %f", expected, v)
	}
}

func TestCobbDouglas_ZeroWeightedAxisIsExactlyZero(t *testing.T) {
	f, _ := NewCobbDouglas(map[resource.Kind]float64{resource.CPU: 0.5, resource.Memory: 0.5})
	v := f.Evaluate(map[resource.Kind]float64{resource.CPU: 0, resource.Memory: 100})
	if v != 0 {
		t.Errorf("expected exactly 0 with a zero-weighted axis, got %f", v)
	}
}

func TestLinear_OffsetIsConstantBaseline(t *testing.T) {
	f, err := NewLinearWithOffset(map[resource.Kind]float64{resource.CPU: 1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v := f.Evaluate(map[resource.Kind]float64{resource.CPU: 0})
	if v != 5 {
		t.Errorf("expected offset-only utility 5 at zero allocation, got %f", v)
	}
}

func TestLeontief_EvaluateIsMinRatio(t *testing.T) {
	f, _ := NewLeontief(map[resource.Kind]float64{resource.CPU: 0.5, resource.Memory: 0.5})
	v := f.Evaluate(map[resource.Kind]float64{resource.CPU: 10, resource.Memory: 100})
	if math.Abs(v-20) > 1e-6 {
		t.Errorf("expected min ratio 20, got %f", v)
	}
}

func TestLeontief_NotConvexCompatible(t *testing.T) {
	f, _ := NewLeontief(map[resource.Kind]float64{resource.CPU: 1})
	if f.IsConvexCompatible() {
		t.Error("leontief should report quasi-concave, not strictly concave")
	}
}

func TestLeontief_GradientOnlyOnBindingResource(t *testing.T) {
	f, _ := NewLeontief(map[resource.Kind]float64{resource.CPU: 0.5, resource.Memory: 0.5})
	g := f.Gradient(map[resource.Kind]float64{resource.CPU: 10, resource.Memory: 100})
	if g[resource.Memory] != 0 {
		t.Errorf("expected zero gradient on non-binding resource, got %f", g[resource.Memory])
	}
	if g[resource.CPU] == 0 {
		t.Error("expected nonzero gradient on binding resource")
	}
}

func TestNewCES_RejectsZeroRho(t *testing.T) {
	_, err := NewCES(map[resource.Kind]float64{resource.CPU: 1}, 0)
	if err == nil {
		t.Fatal("expected error for rho=0")
	}
}

func TestNewCES_RejectsOutOfWindowRho(t *testing.T) {
	_, err := NewCES(map[resource.Kind]float64{resource.CPU: 1}, -10)
	if err == nil {
		t.Fatal("expected error for rho outside stability window")
	}
}

func TestNewCESOrLeontief_ExtremeRhoDispatchesToLeontief(t *testing.T) {
	f, err := NewCESOrLeontief(map[resource.Kind]float64{resource.CPU: 1, resource.Memory: 1}, -100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := f.(*Leontief); !ok {
		t.Fatalf("expected rho=-100 to dispatch to Leontief, got %T", f)
	}
}

func TestNewCESOrLeontief_InWindowRhoBuildsCES(t *testing.T) {
	f, err := NewCESOrLeontief(map[resource.Kind]float64{resource.CPU: 1, resource.Memory: 1}, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := f.(*CES); !ok {
		t.Fatalf("expected rho=0.5 to build CES, got %T", f)
	}
}

func TestNewCESOrLeontief_MidBandStillRejected(t *testing.T) {
	_, err := NewCESOrLeontief(map[resource.Kind]float64{resource.CPU: 1}, -20)
	if err == nil {
		t.Fatal("expected error for rho between the Leontief dispatch threshold and the CES window")
	}
}

func TestCES_Elasticity(t *testing.T) {
	f, err := NewCES(map[resource.Kind]float64{resource.CPU: 1, resource.Memory: 1}, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := 1 / (1 - 0.5)
	if math.Abs(f.Elasticity()-expected) > 1e-9 {
		t.Errorf("expected elasticity %f, got %f", expected, f.Elasticity())
	}
}

func TestCES_ApproachesCobbDouglasNearZeroRho(t *testing.T) {
	ces, _ := NewCES(map[resource.Kind]float64{resource.CPU: 0.5, resource.Memory: 0.5}, 0.01)
	cd, _ := NewCobbDouglas(map[resource.Kind]float64{resource.CPU: 0.5, resource.Memory: 0.5})
	alloc := map[resource.Kind]float64{resource.CPU: 40, resource.Memory: 90}
	if math.Abs(ces.Evaluate(alloc)-cd.Evaluate(alloc)) > 1 {
		t.Errorf("CES at small rho should approximate Cobb-Douglas, got %f vs %f", ces.Evaluate(alloc), cd.Evaluate(alloc))
	}
}

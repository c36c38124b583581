package megastep

import (
	"math"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestClipGradNorm(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	v1 := anydiff.NewVar(c.MakeVectorData([]float64{0, 0}))
	v2 := anydiff.NewVar(c.MakeVectorData([]float64{0}))
	grad := anydiff.NewGrad(v1, v2)
	grad[v1].SetData([]float64{3, 0})
	grad[v2].SetData([]float64{4})

	norm := ClipGradNorm(grad, []*anydiff.Var{v1, v2}, 1)
	if math.Abs(norm-5) > 1e-8 {
		t.Errorf("expected norm 5 but got %f", norm)
	}
	assertFloatsClose(t, vecToFloats(grad[v1]), []float64{0.6, 0})
	assertFloatsClose(t, vecToFloats(grad[v2]), []float64{0.8})

	norm = ClipGradNorm(grad, []*anydiff.Var{v2}, 1)
	if math.Abs(norm-0.8) > 1e-8 {
		t.Errorf("expected norm 0.8 but got %f", norm)
	}
	assertFloatsClose(t, vecToFloats(grad[v2]), []float64{0.8})
}

func TestOptimizerStep(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	v := anydiff.NewVar(c.MakeVectorData([]float64{1, 1}))
	opt := &Optimizer{LearningRate: 0.5}
	grad := anydiff.NewGrad(v)
	grad[v].SetData([]float64{2, -2})
	opt.Step(grad)
	assertFloatsClose(t, vecToFloats(v.Vector), []float64{0, 2})
	if opt.Steps != 1 {
		t.Errorf("expected 1 step but got %d", opt.Steps)
	}
}

func TestOptimizerMarshal(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	v := anydiff.NewVar(c.MakeVectorData([]float64{1, 1}))
	opt := NewAdam(0.1, []*anydiff.Var{v})
	grad := anydiff.NewGrad(v)
	grad[v].SetData([]float64{1, -1})
	opt.Step(grad)

	data, err := opt.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	restored := NewAdam(0, []*anydiff.Var{v})
	if err := restored.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if restored.Steps != 1 || restored.LearningRate != 0.1 {
		t.Errorf("unexpected restored optimizer: %+v", restored)
	}
}

package megastep

import (
	"math"
	"testing"

	"github.com/unixpickle/serializer"
)

func TestNormerIdentity(t *testing.T) {
	var n Normer
	for _, x := range []float64{-3, 0, 2.5} {
		if actual := n.Norm(x); actual != x {
			t.Errorf("expected %f but got %f", x, actual)
		}
	}
	n.Step(nil)
	if n.Mean() != 0 || n.Scale() != 1 {
		t.Errorf("empty step changed estimate: mean=%f scale=%f", n.Mean(), n.Scale())
	}
}

func TestNormerStep(t *testing.T) {
	n := NewNormer(0.5)
	n.Step([]float64{1, 3})
	if math.Abs(n.Mean()-1) > 1e-8 {
		t.Errorf("expected mean 1 but got %f", n.Mean())
	}
	if math.Abs(n.Scale()-math.Sqrt2) > 1e-8 {
		t.Errorf("expected scale %f but got %f", math.Sqrt2, n.Scale())
	}
	actual := n.NormAll([]float64{1, 1 + math.Sqrt2})
	assertFloatsClose(t, actual, []float64{0, 1})
}

func TestNormerConstantSignal(t *testing.T) {
	n := NewNormer(0)
	for i := 0; i < 2000; i++ {
		n.Step([]float64{5, 5, 5})
		if n.Scale() <= 0 {
			t.Fatalf("step %d: non-positive scale %f", i, n.Scale())
		}
	}
	if math.Abs(n.Mean()-5) > 1e-5 {
		t.Errorf("expected mean 5 but got %f", n.Mean())
	}
	if n.Scale() > 1e-2 {
		t.Errorf("expected scale near floor but got %f", n.Scale())
	}
	if actual := n.Norm(5); math.Abs(actual) > 1e-2 {
		t.Errorf("expected normalized constant near 0 but got %f", actual)
	}
}

func TestNormerSerialize(t *testing.T) {
	n := NewNormer(0.9)
	n.Step([]float64{2, -4, 7})
	data, err := serializer.SerializeAny(n)
	if err != nil {
		t.Fatal(err)
	}
	var decoded *Normer
	if err := serializer.DeserializeAny(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Decay != n.Decay || math.Abs(decoded.Mean()-n.Mean()) > 1e-8 ||
		math.Abs(decoded.Scale()-n.Scale()) > 1e-8 {
		t.Errorf("expected %v but got %v", n, decoded)
	}
}

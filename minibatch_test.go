package megastep

import (
	"math"
	"math/rand"
	"testing"
)

func TestPartitionDisjoint(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		p := NewPartition(rand.New(rand.NewSource(seed)), 64, 16)
		if p.Len() != 4 {
			t.Fatalf("seed %d: expected 4 groups but got %d", seed, p.Len())
		}
		seen := map[int]bool{}
		var groups int
		for group := p.Next(); group != nil; group = p.Next() {
			groups++
			if len(group) != 16 {
				t.Errorf("seed %d: group %d has %d actors", seed, groups, len(group))
			}
			for _, idx := range group {
				if seen[idx] {
					t.Errorf("seed %d: actor %d appears twice", seed, idx)
				}
				seen[idx] = true
			}
		}
		if groups != 4 || len(seen) != 64 {
			t.Errorf("seed %d: expected 4 groups covering 64 actors but got %d "+
				"covering %d", seed, groups, len(seen))
		}
	}
}

func TestPartitionRemainder(t *testing.T) {
	p := NewPartition(nil, 10, 4)
	var sizes []int
	for group := p.Next(); group != nil; group = p.Next() {
		sizes = append(sizes, len(group))
	}
	if len(sizes) != 3 || sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 2 {
		t.Errorf("unexpected group sizes: %v", sizes)
	}

	p = NewPartition(nil, 5, 0)
	if p.Len() != 1 || len(p.Next()) != 5 || p.Next() != nil {
		t.Error("expected a single group of every actor")
	}
}

func TestScheduleAt(t *testing.T) {
	s := &Schedule{
		LearningRate:      1,
		FinalLearningRate: 0,
		Entropy:           0.1,
		FinalEntropy:      0.3,
		Horizon:           10,
	}
	for _, c := range []struct {
		step    int
		lr      float64
		entropy float64
	}{
		{0, 1, 0.1},
		{5, 0.5, 0.2},
		{10, 0, 0.3},
		{100, 0, 0.3},
	} {
		lr, entropy := s.At(c.step)
		if math.Abs(lr-c.lr) > 1e-8 || math.Abs(entropy-c.entropy) > 1e-8 {
			t.Errorf("step %d: expected (%f, %f) but got (%f, %f)", c.step, c.lr,
				c.entropy, lr, entropy)
		}
	}

	constant := &Schedule{LearningRate: 3, Entropy: 4}
	if lr, entropy := constant.At(1000); lr != 3 || entropy != 4 {
		t.Errorf("expected constant schedule but got (%f, %f)", lr, entropy)
	}
}

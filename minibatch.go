package megastep

import "math/rand"

// A Partition splits actor indices into disjoint groups
// drawn from a random permutation.
//
// A Partition is consumed with Next and visits every
// actor exactly once.
// Create a new Partition for every epoch.
type Partition struct {
	perm []int
	size int
	pos  int
}

// NewPartition creates a Partition of n actors into
// groups of the given size.
//
// If size does not divide n, the final group contains
// the remainder.
// If size is non-positive or larger than n, there is a
// single group containing every actor.
//
// If gen is nil, the global random source is used.
func NewPartition(gen *rand.Rand, n, size int) *Partition {
	var perm []int
	if gen == nil {
		perm = rand.Perm(n)
	} else {
		perm = gen.Perm(n)
	}
	if size <= 0 || size > n {
		size = n
	}
	return &Partition{perm: perm, size: size}
}

// Len returns the total number of groups.
func (p *Partition) Len() int {
	if p.size == 0 {
		return 0
	}
	return (len(p.perm) + p.size - 1) / p.size
}

// Next returns the next group, or nil once every group
// has been returned.
func (p *Partition) Next() []int {
	if p.pos >= len(p.perm) {
		return nil
	}
	end := p.pos + p.size
	if end > len(p.perm) {
		end = len(p.perm)
	}
	res := append([]int{}, p.perm[p.pos:end]...)
	p.pos = end
	return res
}

// A Schedule derives the learning rate and entropy bonus
// from the number of optimizer steps taken so far.
//
// Both values are linearly interpolated from their
// initial to their final values over Horizon steps, and
// stay at the final values afterwards.
type Schedule struct {
	LearningRate      float64
	FinalLearningRate float64

	Entropy      float64
	FinalEntropy float64

	// Horizon is the number of optimizer steps over which
	// the values decay.
	//
	// If 0, the initial values are used forever.
	Horizon int
}

// At returns the learning rate and entropy coefficient
// after the given number of optimizer steps.
func (s *Schedule) At(step int) (lr, entropy float64) {
	if s.Horizon <= 0 {
		return s.LearningRate, s.Entropy
	}
	frac := float64(step) / float64(s.Horizon)
	if frac > 1 {
		frac = 1
	} else if frac < 0 {
		frac = 0
	}
	lr = s.LearningRate + frac*(s.FinalLearningRate-s.LearningRate)
	entropy = s.Entropy + frac*(s.FinalEntropy-s.Entropy)
	return
}

package megastep

// The estimators in this file operate on time-major
// slices, where element t*actors+a belongs to actor a at
// timestep t.
//
// The record at timestep t carries the reward, reset, and
// terminal flags produced by the step which arrived at t.
// Thus, the action taken at t is rewarded by reward[t+1],
// and reset[t+1] means that the episode containing t
// ended with that action.

// RewardToGo computes discounted return targets for a
// chunk.
//
// The final timestep has no successor, so its target is
// the stored value estimate.
// A terminal step contributes only its reward.
// A reset without a terminal (e.g. a time limit)
// bootstraps from the stored value estimate before the
// reset, so that truncated episodes are not treated as if
// they earned nothing afterwards.
//
// The result has the same length as reward.
func RewardToGo(reward, value []float64, reset, terminal []bool, actors int,
	gamma float64) []float64 {
	steps := checkChunkLens(reward, value, reset, terminal, actors)
	res := make([]float64, len(reward))
	if steps == 0 {
		return res
	}
	last := (steps - 1) * actors
	copy(res[last:], value[last:])
	for t := steps - 2; t >= 0; t-- {
		for a := 0; a < actors; a++ {
			i := t*actors + a
			next := i + actors
			if terminal[next] {
				res[i] = reward[next]
			} else if reset[next] {
				res[i] = reward[next] + gamma*value[i]
			} else {
				res[i] = reward[next] + gamma*res[next]
			}
		}
	}
	return res
}

// TDResiduals computes one-step temporal difference
// residuals, using the same boundary rules as RewardToGo.
//
// The result has one fewer timestep than the inputs.
func TDResiduals(value, reward []float64, reset, terminal []bool, actors int,
	gamma float64) []float64 {
	steps := checkChunkLens(reward, value, reset, terminal, actors)
	if steps < 2 {
		return []float64{}
	}
	res := make([]float64, (steps-1)*actors)
	for i := range res {
		next := i + actors
		var bootstrap float64
		if terminal[next] {
			bootstrap = 0
		} else if reset[next] {
			bootstrap = value[i]
		} else {
			bootstrap = value[next]
		}
		res[i] = reward[next] + gamma*bootstrap - value[i]
	}
	return res
}

// GeneralizedAdvantages computes GAE advantages for a
// chunk.
// See https://arxiv.org/abs/1506.02438.
//
// Advantages never accumulate across a reset or a
// terminal step.
// With lambda=0 this is TDResiduals, and with lambda=1
// it is RewardToGo minus the value estimates.
//
// The result has one fewer timestep than the inputs,
// since the final timestep has no successor.
func GeneralizedAdvantages(value, reward []float64, reset, terminal []bool,
	actors int, gamma, lambda float64) []float64 {
	res := TDResiduals(value, reward, reset, terminal, actors, gamma)
	steps := len(res) / actors
	for t := steps - 2; t >= 0; t-- {
		for a := 0; a < actors; a++ {
			i := t*actors + a
			next := i + actors
			if !reset[next] && !terminal[next] {
				res[i] += gamma * lambda * res[next]
			}
		}
	}
	return res
}

func checkChunkLens(reward, value []float64, reset, terminal []bool,
	actors int) int {
	if actors <= 0 {
		panic("actor count must be positive")
	}
	n := len(reward)
	if len(value) != n || len(reset) != n || len(terminal) != n {
		panic("length mismatch")
	}
	if n%actors != 0 {
		panic("actor count does not divide chunk length")
	}
	return n / actors
}

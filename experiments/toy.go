package experiments

import "errors"

// DefaultChainLength is the number of states in the
// chain environment created by MakeEnv.
const DefaultChainLength = 8

// ConstantEnv is a single-actor environment which gives
// a reward of 1 on every step and never ends on its own.
//
// It is useful for checking value estimates, since the
// discounted return is known in closed form.
type ConstantEnv struct{}

// Reset returns the constant observation.
func (c *ConstantEnv) Reset() ([]float64, error) {
	return []float64{1}, nil
}

// Step ignores the action and gives a reward of 1.
func (c *ConstantEnv) Step(action []float64) ([]float64, float64, bool, error) {
	return []float64{1}, 1, false, nil
}

// Close does nothing.
func (c *ConstantEnv) Close() error {
	return nil
}

// ChainEnv is a single-actor environment where the agent
// walks along a chain of states and is rewarded for
// reaching the last one.
//
// Observations are one-hot vectors of the position.
// Actions are one-hot vectors of two values: the first
// moves left and the second moves right.
type ChainEnv struct {
	Length int

	pos int
}

// Reset moves the agent to the start of the chain.
func (c *ChainEnv) Reset() ([]float64, error) {
	if c.Length < 2 {
		return nil, errors.New("reset chain: length must be at least 2")
	}
	c.pos = 0
	return c.obs(), nil
}

// Step moves the agent along the chain.
//
// The episode ends with a reward of 1 once the agent
// reaches the end of the chain.
func (c *ChainEnv) Step(action []float64) ([]float64, float64, bool, error) {
	if len(action) != 2 {
		return nil, 0, false, errors.New("step chain: expected one-hot action of size 2")
	}
	if action[1] > action[0] {
		c.pos++
	} else if c.pos > 0 {
		c.pos--
	}
	if c.pos == c.Length-1 {
		return c.obs(), 1, true, nil
	}
	return c.obs(), 0, false, nil
}

// Close does nothing.
func (c *ChainEnv) Close() error {
	return nil
}

func (c *ChainEnv) obs() []float64 {
	res := make([]float64, c.Length)
	res[c.pos] = 1
	return res
}

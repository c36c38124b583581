package megastep

import (
	"errors"
	"fmt"

	"github.com/unixpickle/anyrl"
)

// ActionSpace is used to parameterize actions for an
// environment.
type ActionSpace interface {
	anyrl.LogProber
	anyrl.Sampler
	anyrl.Entropyer
}

// A Spec describes the shapes produced and consumed by a
// batched environment.
type Spec struct {
	// Actors is the number of parallel environments.
	Actors int

	// ObsSize is the number of observation values per
	// actor.
	ObsSize int

	// ActionSpace is the distribution over actions.
	ActionSpace ActionSpace

	// ParamSize is the number of action space parameters
	// per actor.
	ParamSize int

	// ActionSize is the length of a sampled action per
	// actor.
	// For anyrl.Softmax, this equals ParamSize.
	ActionSize int
}

// An Env is a batched environment.
//
// Every World returned by an Env covers all of its
// actors, and actor i always refers to the same slot.
type Env interface {
	Spec() Spec

	// Reset starts a fresh episode for every actor.
	Reset() (*World, error)

	// Step applies the actions of a Decision and returns
	// the resulting World.
	// Actors whose episodes end are reset automatically,
	// and the returned World marks them with Reset.
	Step(d *Decision) (*World, error)
}

// CheckWorld verifies that a World matches a Spec.
//
// A mismatch means that the environment broke its
// contract.
func CheckWorld(spec Spec, w *World) error {
	if w == nil {
		return errors.New("check world: nil world")
	}
	n := spec.Actors
	if len(w.Reward) != n || len(w.Reset) != n || len(w.Terminal) != n {
		return fmt.Errorf("check world: expected %d actors but got %d",
			n, len(w.Reward))
	}
	if len(w.Obs) != n*spec.ObsSize {
		return fmt.Errorf("check world: expected %d observation values but got %d",
			n*spec.ObsSize, len(w.Obs))
	}
	return nil
}

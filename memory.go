package megastep

import "fmt"

// An ActorState is the recurrent state of an agent for a
// set of actors.
type ActorState interface {
	// Select creates a state for a subset of the actors,
	// in the order they are listed.
	Select(idxs []int) ActorState
}

// A Stateful agent carries recurrent state between calls
// to Forward.
type Stateful interface {
	// ActorState may return the live state, which the
	// agent is free to update in place.
	// Callers that need a snapshot use Select.
	ActorState() ActorState
	SetActorState(s ActorState)
}

// WithActorState runs f while a Stateful agent is loaded
// with the actors idxs of the start state.
//
// The agent's previous state is restored when f returns,
// even if f panics.
// If the agent is not Stateful, f is simply called.
func WithActorState(agent Agent, start ActorState, idxs []int, f func() error) error {
	s, ok := agent.(Stateful)
	if !ok || start == nil {
		return f()
	}
	prev := s.ActorState()
	defer s.SetActorState(prev)
	s.SetActorState(start.Select(idxs))
	return f()
}

// SliceState is an ActorState storing a vector per actor.
type SliceState [][]float64

// Select returns the rows for the given actors.
//
// Rows are copied, so that the result does not alias s.
func (s SliceState) Select(idxs []int) ActorState {
	res := make(SliceState, len(idxs))
	for i, idx := range idxs {
		if idx < 0 || idx >= len(s) {
			panic(fmt.Sprintf("actor index %d out of range", idx))
		}
		res[i] = append([]float64{}, s[idx]...)
	}
	return res
}

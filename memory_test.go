package megastep

import (
	"errors"
	"testing"

	"github.com/unixpickle/anyvec/anyvec64"
)

func TestWithActorStateRestores(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	agent := &statefulAgent{
		MLPAgent: NewMLPAgent(c, newTestingEnv(3, 2).Spec(), 2),
		state:    SliceState{{7}},
	}
	start := SliceState{{0, 1}, {2, 3}, {4, 5}}

	var inside SliceState
	errStop := errors.New("stop")
	err := WithActorState(agent, start, []int{2, 0}, func() error {
		inside = agent.state
		return errStop
	})
	if err != errStop {
		t.Errorf("expected stop error but got %v", err)
	}
	if len(inside) != 2 || inside[0][0] != 4 || inside[1][1] != 1 {
		t.Errorf("unexpected installed state: %v", inside)
	}
	if len(agent.state) != 1 || agent.state[0][0] != 7 {
		t.Errorf("state not restored after error: %v", agent.state)
	}

	func() {
		defer func() {
			recover()
		}()
		WithActorState(agent, start, []int{1}, func() error {
			panic("failure")
		})
	}()
	if len(agent.state) != 1 || agent.state[0][0] != 7 {
		t.Errorf("state not restored after panic: %v", agent.state)
	}
}

func TestWithActorStateStateless(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	agent := NewMLPAgent(c, newTestingEnv(1, 2).Spec(), 2)
	var called bool
	err := WithActorState(agent, SliceState{{1}}, []int{0}, func() error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Error("function was not run for a stateless agent")
	}
}

func TestSliceStateSelectCopies(t *testing.T) {
	s := SliceState{{1}, {2}}
	sub := s.Select([]int{1}).(SliceState)
	sub[0][0] = 5
	if s[1][0] != 2 {
		t.Error("selected state aliases the original")
	}
}

package megastep

import (
	"errors"
	"testing"

	"github.com/unixpickle/anyrl"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestCheckWorld(t *testing.T) {
	env := newTestingEnv(3, 4)
	w, err := env.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckWorld(env.Spec(), w); err != nil {
		t.Error(err)
	}
	w.Obs = w.Obs[1:]
	if CheckWorld(env.Spec(), w) == nil {
		t.Error("expected error for short observation")
	}
	w.Obs = append(w.Obs, 0)
	w.Reset = w.Reset[1:]
	if CheckWorld(env.Spec(), w) == nil {
		t.Error("expected error for missing actor")
	}
	if CheckWorld(env.Spec(), nil) == nil {
		t.Error("expected error for nil world")
	}
}

func TestTestingEnvResets(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	env := newTestingEnv(2, 3)
	agent := NewMLPAgent(c, env.Spec(), 4)
	w, err := env.Reset()
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 7; i++ {
		d, err := Act(agent, c, w)
		if err != nil {
			t.Fatal(err)
		}
		w, err = env.Step(d)
		if err != nil {
			t.Fatal(err)
		}
		expected := i%3 == 0
		for a := 0; a < 2; a++ {
			if w.Reset[a] != expected {
				t.Errorf("step %d actor %d: expected reset=%v", i, a, expected)
			}
			if w.Terminal[a] {
				t.Errorf("step %d actor %d: unexpected terminal", i, a)
			}
		}
	}
}

// testingEnv is a batched environment where every step
// gives a reward of 1 and every episode is cut short after
// a fixed number of steps.
type testingEnv struct {
	actors    int
	epLen     int
	terminal  bool
	steps     []int
	stepCount int
	failAfter int
}

func newTestingEnv(actors, epLen int) *testingEnv {
	return &testingEnv{actors: actors, epLen: epLen, steps: make([]int, actors)}
}

func (e *testingEnv) Spec() Spec {
	return Spec{
		Actors:      e.actors,
		ObsSize:     2,
		ActionSpace: anyrl.Softmax{},
		ParamSize:   2,
		ActionSize:  2,
	}
}

func (e *testingEnv) Reset() (*World, error) {
	w := e.emptyWorld()
	for i := range e.steps {
		e.steps[i] = 0
		w.Reset[i] = true
	}
	e.fillObs(w)
	return w, nil
}

func (e *testingEnv) Step(d *Decision) (*World, error) {
	e.stepCount++
	if e.failAfter > 0 && e.stepCount > e.failAfter {
		return nil, errors.New("testing env failure")
	}
	w := e.emptyWorld()
	for i := range e.steps {
		e.steps[i]++
		w.Reward[i] = 1
		if e.steps[i] == e.epLen {
			e.steps[i] = 0
			w.Reset[i] = true
			w.Terminal[i] = e.terminal
		}
	}
	e.fillObs(w)
	return w, nil
}

func (e *testingEnv) emptyWorld() *World {
	return &World{
		Reward:   make([]float64, e.actors),
		Reset:    make([]bool, e.actors),
		Terminal: make([]bool, e.actors),
	}
}

func (e *testingEnv) fillObs(w *World) {
	for i, s := range e.steps {
		w.Obs = append(w.Obs, 1, float64(s)/float64(e.epLen)+float64(i)*0.1)
	}
}

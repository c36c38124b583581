package experiments

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/moneytech/megastep"
	"github.com/unixpickle/anyrl"
	"github.com/unixpickle/essentials"
)

// Env is an environment with a Close() method for
// releasing the environment's resources.
type Env interface {
	io.Closer
	anyrl.Env
}

// CloseEnvs closes every environment in the list.
func CloseEnvs(envs []Env) {
	for _, e := range envs {
		e.Close()
	}
}

// EnvInfo describes the shapes of an environment.
type EnvInfo struct {
	Name        string
	ActionSpace megastep.ActionSpace
	ParamSize   int
	ActionSize  int
	ObsSize     int

	// Gym is set for environments that require a
	// gym-socket-api server.
	Gym bool
}

// LookupEnvInfo finds information about an environment
// based on its name.
func LookupEnvInfo(name string) (*EnvInfo, error) {
	switch name {
	case "constant":
		return &EnvInfo{Name: name, ActionSpace: anyrl.Softmax{}, ParamSize: 2,
			ActionSize: 2, ObsSize: 1}, nil
	case "chain":
		return &EnvInfo{Name: name, ActionSpace: anyrl.Softmax{}, ParamSize: 2,
			ActionSize: 2, ObsSize: DefaultChainLength}, nil
	case "CartPole-v0", "CartPole-v1":
		return &EnvInfo{Name: name, ActionSpace: anyrl.Softmax{}, ParamSize: 2,
			ActionSize: 2, ObsSize: 4, Gym: true}, nil
	}
	if numActions, numObs, ok := mujocoEnvInfo(name); ok {
		return &EnvInfo{
			Name:        name,
			ActionSpace: anyrl.Gaussian{},
			ParamSize:   numActions * 2,
			ActionSize:  numActions,
			ObsSize:     numObs,
			Gym:         true,
		}, nil
	}
	return nil, errors.New("lookup environment: \"" + name + "\" not found")
}

// MakeEnv creates a batched environment with n actors.
func MakeEnv(e *EnvFlags, n int) (env *BatchEnv, err error) {
	defer essentials.AddCtxTo("make environment ("+e.Name+")", &err)
	info, err := LookupEnvInfo(e.Name)
	if err != nil {
		return nil, err
	}
	var envs []Env
	for i := 0; i < n; i++ {
		var sub Env
		if info.Gym {
			sub, err = createGymEnv(e, info)
		} else if e.Name == "constant" {
			sub = &ConstantEnv{}
		} else {
			sub = &ChainEnv{Length: DefaultChainLength}
		}
		if err != nil {
			CloseEnvs(envs)
			return nil, err
		}
		if e.History {
			sub = &historyEnv{Env: sub}
		}
		envs = append(envs, sub)
	}
	if e.History {
		info.ObsSize *= 2
	}
	return NewBatchEnv(info, envs, e.MaxSteps), nil
}

// A BatchEnv runs a list of single-actor environments in
// lockstep, presenting them as one megastep.Env.
//
// Each actor is stepped on its own goroutine.
// Episodes which end are reset immediately, and episodes
// which last MaxSteps steps are cut short without a
// terminal flag.
type BatchEnv struct {
	Info *EnvInfo
	Envs []Env

	// MaxSteps is the time limit for episodes.
	// If 0, episodes are never cut short.
	MaxSteps int

	obs   [][]float64
	steps []int
}

// NewBatchEnv creates a BatchEnv.
func NewBatchEnv(info *EnvInfo, envs []Env, maxSteps int) *BatchEnv {
	return &BatchEnv{
		Info:     info,
		Envs:     envs,
		MaxSteps: maxSteps,
		obs:      make([][]float64, len(envs)),
		steps:    make([]int, len(envs)),
	}
}

// Spec returns the shapes of the environment.
func (b *BatchEnv) Spec() megastep.Spec {
	return megastep.Spec{
		Actors:      len(b.Envs),
		ObsSize:     b.Info.ObsSize,
		ActionSpace: b.Info.ActionSpace,
		ParamSize:   b.Info.ParamSize,
		ActionSize:  b.Info.ActionSize,
	}
}

// Reset resets every actor.
func (b *BatchEnv) Reset() (world *megastep.World, err error) {
	defer essentials.AddCtxTo("reset batch", &err)
	err = b.parallel(func(i int, env Env) error {
		obs, err := env.Reset()
		b.obs[i] = obs
		b.steps[i] = 0
		return err
	})
	if err != nil {
		return nil, err
	}
	n := len(b.Envs)
	world = &megastep.World{
		Reward:   make([]float64, n),
		Reset:    make([]bool, n),
		Terminal: make([]bool, n),
	}
	for i := range world.Reset {
		world.Reset[i] = true
	}
	return world, b.packObs(world)
}

// Step takes a step in every actor.
func (b *BatchEnv) Step(d *megastep.Decision) (world *megastep.World, err error) {
	defer essentials.AddCtxTo("step batch", &err)
	n := len(b.Envs)
	size := b.Info.ActionSize
	if len(d.Actions) != n*size {
		return nil, fmt.Errorf("expected %d action values but got %d", n*size,
			len(d.Actions))
	}
	world = &megastep.World{
		Reward:   make([]float64, n),
		Reset:    make([]bool, n),
		Terminal: make([]bool, n),
	}
	err = b.parallel(func(i int, env Env) error {
		obs, rew, done, err := env.Step(d.Actions[i*size : (i+1)*size])
		if err != nil {
			return err
		}
		b.steps[i]++
		world.Reward[i] = rew
		if done || (b.MaxSteps > 0 && b.steps[i] >= b.MaxSteps) {
			world.Reset[i] = true
			world.Terminal[i] = done
			b.steps[i] = 0
			obs, err = env.Reset()
		}
		b.obs[i] = obs
		return err
	})
	if err != nil {
		return nil, err
	}
	return world, b.packObs(world)
}

// Close closes every actor's environment.
func (b *BatchEnv) Close() error {
	CloseEnvs(b.Envs)
	return nil
}

func (b *BatchEnv) parallel(f func(i int, env Env) error) error {
	errChan := make(chan error, 1)
	var wg sync.WaitGroup
	for i, env := range b.Envs {
		wg.Add(1)
		go func(i int, env Env) {
			defer wg.Done()
			if err := f(i, env); err != nil {
				select {
				case errChan <- err:
				default:
				}
			}
		}(i, env)
	}
	wg.Wait()
	close(errChan)
	return <-errChan
}

func (b *BatchEnv) packObs(w *megastep.World) error {
	w.Obs = make([]float64, 0, len(b.Envs)*b.Info.ObsSize)
	for i, obs := range b.obs {
		if len(obs) != b.Info.ObsSize {
			return fmt.Errorf("actor %d: expected %d observation values but got %d",
				i, b.Info.ObsSize, len(obs))
		}
		w.Obs = append(w.Obs, obs...)
	}
	return nil
}

// historyEnv keeps track of the previous observation and
// concatenates it with the current observation.
type historyEnv struct {
	Env

	lastObs []float64
}

func (h *historyEnv) Reset() ([]float64, error) {
	obs, err := h.Env.Reset()
	h.lastObs = obs
	return h.nextObs(obs), err
}

func (h *historyEnv) Step(action []float64) ([]float64, float64, bool, error) {
	obs, rew, done, err := h.Env.Step(action)
	return h.nextObs(obs), rew, done, err
}

func (h *historyEnv) nextObs(obs []float64) []float64 {
	if obs == nil {
		return nil
	}
	res := append(append([]float64{}, h.lastObs...), obs...)
	h.lastObs = obs
	return res
}

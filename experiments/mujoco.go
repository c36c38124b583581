package experiments

import (
	"math"

	"github.com/unixpickle/anyrl"
	gym "github.com/unixpickle/gym-socket-api/binding-go"
)

var mujocoActionSizes = map[string]int{
	"Reacher-v1":                2,
	"HalfCheetah-v1":            6,
	"InvertedDoublePendulum-v1": 1,
	"InvertedPendulum-v1":       1,
	"Swimmer-v1":                2,
	"Walker2d-v1":               6,
}

var mujocoObservationSizes = map[string]int{
	"Reacher-v1":                11,
	"HalfCheetah-v1":            17,
	"InvertedDoublePendulum-v1": 11,
	"InvertedPendulum-v1":       4,
	"Swimmer-v1":                8,
	"Walker2d-v1":               17,
}

func mujocoEnvInfo(name string) (numActions, numObs int, ok bool) {
	numActions, ok = mujocoActionSizes[name]
	if !ok {
		return
	}
	numObs, ok = mujocoObservationSizes[name]
	return
}

// mujocoEnv maps actions from [-1, 1] onto the bounds of
// a continuous gym action space.
type mujocoEnv struct {
	gymEnv

	Min []float64
	Max []float64
}

func newMuJoCoEnv(env anyrl.Env, client gym.Env) (Env, error) {
	actSpace, err := client.ActionSpace()
	if err != nil {
		client.Close()
		return nil, err
	}
	return &mujocoEnv{
		gymEnv: gymEnv{Env: env, Client: client},
		Min:    actSpace.Low,
		Max:    actSpace.High,
	}, nil
}

func (m *mujocoEnv) Step(action []float64) (obs []float64, reward float64,
	done bool, err error) {
	return m.gymEnv.Step(scaleAction(action, m.Min, m.Max))
}

func scaleAction(action, min, max []float64) []float64 {
	scaled := make([]float64, len(action))
	for i, x := range action {
		clamped := (math.Max(math.Min(x, 1), -1) + 1) / 2
		scaled[i] = min[i] + (max[i]-min[i])*clamped
	}
	return scaled
}

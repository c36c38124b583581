package experiments

import (
	"github.com/unixpickle/anyrl"
	gym "github.com/unixpickle/gym-socket-api/binding-go"
)

// gymEnv pairs an anyrl.Env with the gym client that
// backs it.
type gymEnv struct {
	anyrl.Env
	Client gym.Env
}

func (g *gymEnv) Close() error {
	return g.Client.Close()
}

func createGymEnv(e *EnvFlags, info *EnvInfo) (Env, error) {
	client, err := gym.Make(e.GymHost, e.Name)
	if err != nil {
		return nil, err
	}
	if e.RecordDir != "" {
		err = client.Monitor(e.RecordDir, false, false, false)
		if err != nil {
			client.Close()
			return nil, err
		}
	}
	env, err := anyrl.GymEnv(client, e.GymRender)
	if err != nil {
		client.Close()
		return nil, err
	}
	if _, ok := info.ActionSpace.(anyrl.Gaussian); ok {
		return newMuJoCoEnv(env, client)
	}
	return &gymEnv{Env: env, Client: client}, nil
}

package experiments

import (
	"flag"
	"time"

	"github.com/moneytech/megastep"
)

// EnvFlags holds various parameters for creating
// environments.
type EnvFlags struct {
	// Name is the name of the environment, such as
	// "constant", "chain", or a gym environment ID.
	Name string

	// MaxSteps is the episode time limit.
	MaxSteps int

	// History, if set, concatenates the previous
	// observation onto every observation.
	History bool

	// GymHost is the destination host for an instance of
	// gym-socket-api.
	GymHost string

	// GymRender enables rendering for gym environments.
	GymRender bool

	// RecordDir is an optional path to where gym monitor
	// results should be stored.
	RecordDir string
}

// AddFlags adds the options to the flag package's global
// set of flags.
func (e *EnvFlags) AddFlags() {
	flag.StringVar(&e.Name, "env", "chain", "environment name")
	flag.IntVar(&e.MaxSteps, "maxsteps", 200, "episode time limit (0 for none)")
	flag.BoolVar(&e.History, "history", false, "include previous observation")
	flag.StringVar(&e.GymHost, "gym", "localhost:5001", "host for gym-socket-api")
	flag.BoolVar(&e.GymRender, "render", false, "render gym environments")
	flag.StringVar(&e.RecordDir, "record", "", "gym monitor directory")
}

// TrainFlags holds the hyper-parameters of a training
// run.
type TrainFlags struct {
	Actors     int
	BufferSize int
	BatchSize  int
	Hidden     int

	Discount    float64
	Lambda      float64
	Epsilon     float64
	GradClip    float64
	AdvClip     float64
	KLThreshold float64

	LearningRate      float64
	FinalLearningRate float64
	Entropy           float64
	FinalEntropy      float64
	Horizon           int

	CheckpointDir      string
	CheckpointTag      string
	CheckpointInterval time.Duration

	StatsDB  string
	Seed     int64
	MaxIters int
}

// AddFlags adds the options to the flag package's global
// set of flags.
func (t *TrainFlags) AddFlags() {
	flag.IntVar(&t.Actors, "actors", 64, "number of parallel actors")
	flag.IntVar(&t.BufferSize, "buffer", megastep.DefaultBufferSize,
		"timesteps per chunk")
	flag.IntVar(&t.BatchSize, "batch", megastep.DefaultBatchSize,
		"samples per minibatch")
	flag.IntVar(&t.Hidden, "hidden", 64, "hidden units per network")
	flag.Float64Var(&t.Discount, "discount", megastep.DefaultDiscount,
		"discount factor")
	flag.Float64Var(&t.Lambda, "lambda", megastep.DefaultLambda, "GAE coefficient")
	flag.Float64Var(&t.Epsilon, "epsilon", 0.2, "PPO epsilon")
	flag.Float64Var(&t.GradClip, "gradclip", megastep.DefaultGradClip,
		"max gradient norm")
	flag.Float64Var(&t.AdvClip, "advclip", megastep.DefaultAdvClip,
		"max standardized advantage")
	flag.Float64Var(&t.KLThreshold, "kl", megastep.DefaultKLThreshold,
		"KL divergence for early stopping")
	flag.Float64Var(&t.LearningRate, "lr", megastep.DefaultLearningRate,
		"initial learning rate")
	flag.Float64Var(&t.FinalLearningRate, "finallr", megastep.DefaultLearningRate,
		"final learning rate")
	flag.Float64Var(&t.Entropy, "entropy", megastep.DefaultEntropy,
		"initial entropy coefficient")
	flag.Float64Var(&t.FinalEntropy, "finalentropy", megastep.DefaultEntropy,
		"final entropy coefficient")
	flag.IntVar(&t.Horizon, "horizon", 0, "optimizer steps to anneal over")
	flag.StringVar(&t.CheckpointDir, "ckptdir", "checkpoints", "checkpoint directory")
	flag.StringVar(&t.CheckpointTag, "ckpttag", "latest", "checkpoint name")
	flag.DurationVar(&t.CheckpointInterval, "ckptinterval",
		megastep.DefaultCheckpointInterval, "minimum time between checkpoints")
	flag.StringVar(&t.StatsDB, "stats", "", "SQLite database for statistics")
	flag.Int64Var(&t.Seed, "seed", 0, "random seed (0 for time-based)")
	flag.IntVar(&t.MaxIters, "iters", 0, "iterations to run (0 for unlimited)")
}

// Schedule creates the learning rate and entropy
// schedule described by the flags.
func (t *TrainFlags) Schedule() *megastep.Schedule {
	return &megastep.Schedule{
		LearningRate:      t.LearningRate,
		FinalLearningRate: t.FinalLearningRate,
		Entropy:           t.Entropy,
		FinalEntropy:      t.FinalEntropy,
		Horizon:           t.Horizon,
	}
}

package megastep

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// Default training hyper-parameters.
const (
	DefaultBufferSize   = 128
	DefaultBatchSize    = 8192
	DefaultKLThreshold  = 0.02
	DefaultEntropy      = 0.01
	DefaultLearningRate = 3e-4
)

// A Phase is a stage of a training iteration.
type Phase int

const (
	Collecting Phase = iota
	Updating
	Checkpointing
)

// String returns the lowercase name of the phase.
func (p Phase) String() string {
	switch p {
	case Collecting:
		return "collecting"
	case Updating:
		return "updating"
	case Checkpointing:
		return "checkpointing"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// A Trainer alternates between gathering experience from
// an Env and running PPO on it.
type Trainer struct {
	Env    Env
	Agent  Agent
	PPO    *PPO
	Buffer *Buffer

	// Schedule determines the learning rate and entropy
	// coefficient.
	//
	// If nil, DefaultLearningRate and DefaultEntropy are
	// used.
	Schedule *Schedule

	// BatchSize is the number of samples (timesteps times
	// actors) in each minibatch.
	// It must be a multiple of the buffer capacity.
	//
	// If 0, DefaultBatchSize is used.
	BatchSize int

	// KLThreshold is the approximate KL divergence past
	// which the remaining minibatches of a chunk are
	// skipped.
	//
	// If 0, DefaultKLThreshold is used.
	KLThreshold float64

	// Checkpointer, if non-nil, is invoked at the end of
	// every iteration.
	Checkpointer *Checkpointer

	// Stats, if non-nil, receives chunk statistics.
	// If it has a Flush method, it is flushed after every
	// iteration.
	Stats StatSink

	// Rand is used to shuffle actors.
	//
	// If nil, the global source is used.
	Rand *rand.Rand

	// Logger is used for progress messages.
	//
	// If nil, log.Default() is used.
	Logger *log.Logger

	phase      Phase
	iterations int
	world      *World

	episodeReward []float64
	episodeLength []int
}

// An Iteration reports the outcome of one pass of
// Collecting, Updating, and Checkpointing.
type Iteration struct {
	Index  int
	Steps  int
	Actors int

	// Terms contains the result of every PPO step, in
	// order.
	Terms []*Terms

	// EarlyStop is set if the KL threshold cut the update
	// short.
	EarlyStop bool

	Checkpointed  bool
	CheckpointErr error
}

// Validate checks the configuration of the Trainer.
func (t *Trainer) Validate() error {
	if t.Env == nil || t.Agent == nil || t.PPO == nil || t.Buffer == nil {
		return errors.New("validate trainer: missing environment, agent, PPO, or buffer")
	}
	steps := t.Buffer.Capacity
	actors := t.Env.Spec().Actors
	if actors <= 0 {
		return errors.New("validate trainer: environment has no actors")
	}
	if t.batchSize()%steps != 0 {
		return fmt.Errorf("validate trainer: batch size %d is not a multiple of "+
			"buffer size %d", t.batchSize(), steps)
	}
	groupSize := t.batchSize() / steps
	if groupSize > actors || actors%groupSize != 0 {
		return fmt.Errorf("validate trainer: %d actors per minibatch does not "+
			"divide %d actors", groupSize, actors)
	}
	return nil
}

// Phase returns the phase of the current or most recent
// iteration.
func (t *Trainer) Phase() Phase {
	return t.phase
}

// Collect fills the buffer with fresh experience.
//
// It returns the recurrent state of the agent from the
// start of the chunk, or nil if the agent is not
// Stateful.
func (t *Trainer) Collect(ctx context.Context) (chunk *Chunk, start ActorState,
	err error) {
	defer essentials.AddCtxTo("collect", &err)
	t.phase = Collecting
	begin := time.Now()
	spec := t.Env.Spec()
	if t.world == nil {
		w, err := t.Env.Reset()
		if err != nil {
			return nil, nil, err
		}
		if err := CheckWorld(spec, w); err != nil {
			return nil, nil, err
		}
		t.world = w
	}
	if s, ok := t.Agent.(Stateful); ok {
		// Select copies, so the agent may update its state in
		// place while collecting.
		start = s.ActorState().Select(allActors(spec.Actors))
	}

	c := t.PPO.creator()
	for i := 0; i < t.Buffer.Capacity; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		d, err := Act(t.Agent, c, t.world)
		if err != nil {
			return nil, nil, err
		}
		t.Buffer.Push(&Transition{World: t.world, Decision: d})
		w, err := t.Env.Step(d)
		if err != nil {
			return nil, nil, err
		}
		if err := CheckWorld(spec, w); err != nil {
			return nil, nil, err
		}
		t.trackEpisodes(w)
		t.world = w
	}

	chunk, err = t.Buffer.Stack()
	if err != nil {
		return nil, nil, err
	}
	t.recordChunk(chunk, time.Since(begin))
	return chunk, start, nil
}

// Update runs PPO on minibatches of actors from a chunk.
//
// The start state is the agent's recurrent state at the
// beginning of the chunk, as returned by Collect.
// If the KL divergence of a step exceeds the threshold,
// the remaining minibatches are skipped and early is
// set.
func (t *Trainer) Update(ctx context.Context, chunk *Chunk,
	start ActorState) (terms []*Terms, early bool, err error) {
	defer essentials.AddCtxTo("update", &err)
	t.phase = Updating
	groupSize := t.batchSize() / chunk.Steps
	part := NewPartition(t.Rand, chunk.Actors, groupSize)
	for i := 0; ; i++ {
		idxs := part.Next()
		if idxs == nil {
			break
		}
		if err := ctx.Err(); err != nil {
			return terms, false, err
		}
		lr, entropy := t.schedule().At(t.PPO.Optimizer.Steps)
		t.PPO.Optimizer.LearningRate = lr
		batch := chunk.SelectActors(idxs)
		var step *Terms
		err := WithActorState(t.Agent, start, idxs, func() error {
			var err error
			step, err = t.PPO.Step(batch, entropy)
			return err
		})
		if err != nil {
			return terms, false, err
		}
		terms = append(terms, step)
		t.logger().Printf("stepped: group=%d/%d value=%f policy=%f entropy=%f kl=%f",
			i+1, part.Len(), step.ValueLoss, step.PolicyLoss, step.EntropyLoss, step.KL)
		if step.KL > t.klThreshold() {
			t.logger().Printf("kl div exceeded: %f > %f (after %d of %d groups)",
				step.KL, t.klThreshold(), i+1, part.Len())
			return terms, true, nil
		}
	}
	return terms, false, nil
}

// Checkpoint saves a checkpoint if the Checkpointer's
// interval has elapsed.
func (t *Trainer) Checkpoint() (saved bool, err error) {
	t.phase = Checkpointing
	if t.Checkpointer == nil {
		return false, nil
	}
	return t.Checkpointer.Save()
}

// Iterate runs one training iteration.
//
// Checkpoint failures are reported in the result rather
// than returned as errors.
func (t *Trainer) Iterate(ctx context.Context) (*Iteration, error) {
	chunk, start, err := t.Collect(ctx)
	if err != nil {
		return nil, err
	}
	terms, early, err := t.Update(ctx, chunk, start)
	if err != nil {
		return nil, err
	}
	res := &Iteration{
		Index:     t.iterations,
		Steps:     chunk.Steps,
		Actors:    chunk.Actors,
		Terms:     terms,
		EarlyStop: early,
	}
	t.iterations++
	res.Checkpointed, res.CheckpointErr = t.Checkpoint()
	if f, ok := t.Stats.(flusher); ok {
		f.Flush()
	}
	return res, nil
}

// Run trains until the context is done or an iteration
// fails.
//
// When the context ends training, its error is returned.
func (t *Trainer) Run(ctx context.Context) error {
	if err := t.Validate(); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := t.Iterate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if res.CheckpointErr != nil {
			t.logger().Printf("iteration %d: checkpoint error: %s", res.Index,
				res.CheckpointErr)
		}
	}
}

// Snapshot returns the state needed to resume training:
// the normalizers, the optimizer, and the agent if it is
// a serializer.Serializer.
//
// It is suitable for Checkpointer.Objects.
func (t *Trainer) Snapshot() (map[string]serializer.Serializer, error) {
	optData, err := t.PPO.Optimizer.MarshalBinary()
	if err != nil {
		return nil, essentials.AddCtx("snapshot", err)
	}
	res := map[string]serializer.Serializer{
		"value_norm": t.PPO.ValueNorm,
		"adv_norm":   t.PPO.AdvNorm,
		"optimizer":  serializer.Bytes(optData),
	}
	if s, ok := t.Agent.(serializer.Serializer); ok {
		res["agent"] = s
	}
	return res, nil
}

// Restore loads state produced by Snapshot.
//
// The agent's parameters are overwritten in place, so
// the optimizer keeps referring to the same variables.
func (t *Trainer) Restore(objs map[string]serializer.Serializer) (err error) {
	defer essentials.AddCtxTo("restore", &err)
	if n, ok := objs["value_norm"].(*Normer); ok {
		*t.PPO.ValueNorm = *n
	} else {
		return errors.New("missing value normalizer")
	}
	if n, ok := objs["adv_norm"].(*Normer); ok {
		*t.PPO.AdvNorm = *n
	} else {
		return errors.New("missing advantage normalizer")
	}
	if obj, ok := objs["agent"]; ok {
		saved, ok := obj.(Agent)
		if !ok {
			return fmt.Errorf("saved agent has unexpected type %T", obj)
		}
		if err := copyParameters(t.Agent.PolicyParameters(),
			saved.PolicyParameters()); err != nil {
			return err
		}
		if err := copyParameters(t.Agent.ValueParameters(),
			saved.ValueParameters()); err != nil {
			return err
		}
	}
	if data, ok := objs["optimizer"].(serializer.Bytes); ok {
		return t.PPO.Optimizer.UnmarshalBinary(data)
	}
	return errors.New("missing optimizer")
}

func (t *Trainer) trackEpisodes(w *World) {
	n := w.NumActors()
	if t.episodeReward == nil {
		t.episodeReward = make([]float64, n)
		t.episodeLength = make([]int, n)
	}
	for a := 0; a < n; a++ {
		t.episodeReward[a] += w.Reward[a]
		t.episodeLength[a]++
		if w.Reset[a] {
			t.record(MeanStat, "traj/reward", t.episodeReward[a])
			t.record(MeanStat, "traj/length", float64(t.episodeLength[a]))
			t.record(CumSumStat, "count/traj", 1)
			if w.Terminal[a] {
				t.record(CumSumStat, "count/terminal", 1)
			}
			t.episodeReward[a] = 0
			t.episodeLength[a] = 0
		}
	}
}

func (t *Trainer) recordChunk(chunk *Chunk, elapsed time.Duration) {
	t.record(RateStat, "sample-rate", float64(chunk.Rows()))
	t.record(MeanStat, "step/reward", meanFloats(chunk.World.Reward))
	t.record(MeanStat, "step/value", meanFloats(chunk.Decision.Value))
	t.record(CumSumStat, "count/samples", float64(chunk.Rows()))
	t.record(CumSumStat, "count/chunks", 1)
	t.record(MeanStat, "collect-time", elapsed.Seconds())
}

func (t *Trainer) record(kind StatKind, name string, value float64) {
	if t.Stats != nil {
		t.Stats.Record(kind, name, value)
	}
}

func (t *Trainer) batchSize() int {
	if t.BatchSize == 0 {
		return DefaultBatchSize
	}
	return t.BatchSize
}

func (t *Trainer) klThreshold() float64 {
	if t.KLThreshold == 0 {
		return DefaultKLThreshold
	}
	return t.KLThreshold
}

func (t *Trainer) schedule() *Schedule {
	if t.Schedule == nil {
		return &Schedule{LearningRate: DefaultLearningRate, Entropy: DefaultEntropy}
	}
	return t.Schedule
}

func (t *Trainer) logger() *log.Logger {
	if t.Logger == nil {
		return log.Default()
	}
	return t.Logger
}

func allActors(n int) []int {
	res := make([]int, n)
	for i := range res {
		res[i] = i
	}
	return res
}

type flusher interface {
	Flush() map[string]float64
}

func copyParameters(dst, src []*anydiff.Var) error {
	if len(dst) != len(src) {
		return fmt.Errorf("expected %d parameters but got %d", len(dst), len(src))
	}
	for i, v := range dst {
		if v.Vector.Len() != src[i].Vector.Len() {
			return fmt.Errorf("parameter %d: expected length %d but got %d", i,
				v.Vector.Len(), src[i].Vector.Len())
		}
		c := v.Vector.Creator()
		v.Vector.SetData(c.MakeNumericList(vecToFloats(src[i].Vector)))
	}
	return nil
}

// Trains an MLP agent with PPO on a batched environment.

package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/moneytech/megastep"
	"github.com/moneytech/megastep/experiments"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/rip"
)

func main() {
	var envFlags experiments.EnvFlags
	var trainFlags experiments.TrainFlags
	envFlags.AddFlags()
	trainFlags.AddFlags()
	flag.Parse()

	log.Println("Run with arguments:", os.Args[1:])

	seed := trainFlags.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen := rand.New(rand.NewSource(seed))

	creator := anyvec32.CurrentCreator()

	log.Println("Creating environments...")
	env, err := experiments.MakeEnv(&envFlags, trainFlags.Actors)
	essentials.Must(err)
	defer env.Close()

	agent := megastep.NewMLPAgent(creator, env.Spec(), trainFlags.Hidden)
	params := append(agent.PolicyParameters(), agent.ValueParameters()...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statLog := &megastep.StatLog{}
	stats := megastep.MultiStats{statLog}
	if trainFlags.StatsDB != "" {
		db, err := experiments.OpenSQLiteStats(ctx, trainFlags.StatsDB)
		essentials.Must(err)
		defer db.Close()
		stats = append(stats, db)
	}

	ppo := &megastep.PPO{
		Agent:     agent,
		Optimizer: megastep.NewAdam(trainFlags.LearningRate, params),
		ValueNorm: megastep.NewNormer(0),
		AdvNorm:   megastep.NewNormer(0),
		Discount:  trainFlags.Discount,
		Lambda:    trainFlags.Lambda,
		Epsilon:   trainFlags.Epsilon,
		GradClip:  trainFlags.GradClip,
		AdvClip:   trainFlags.AdvClip,
		Stats:     stats,
	}
	trainer := &megastep.Trainer{
		Env:         env,
		Agent:       agent,
		PPO:         ppo,
		Buffer:      megastep.NewBuffer(trainFlags.BufferSize),
		Schedule:    trainFlags.Schedule(),
		BatchSize:   trainFlags.BatchSize,
		KLThreshold: trainFlags.KLThreshold,
		Stats:       stats,
		Rand:        gen,
	}
	essentials.Must(trainer.Validate())

	store := &megastep.Store{Dir: trainFlags.CheckpointDir}
	trainer.Checkpointer = &megastep.Checkpointer{
		Store:    store,
		Tag:      trainFlags.CheckpointTag,
		Interval: trainFlags.CheckpointInterval,
		Objects:  trainer.Snapshot,
		Logger:   log.Default(),
	}
	loadCheckpoint(trainer, store, trainFlags.CheckpointTag)

	go func() {
		<-rip.NewRIP().Chan()
		cancel()
	}()

	log.Println("Running. Press Ctrl+C to stop.")
	for i := 0; trainFlags.MaxIters == 0 || i < trainFlags.MaxIters; i++ {
		iter, err := trainer.Iterate(ctx)
		if ctx.Err() != nil {
			break
		}
		essentials.Must(err)
		log.Printf("iteration %d: chunk=%dx%d steps=%d early_stop=%v checkpoint=%v",
			iter.Index, iter.Steps, iter.Actors, len(iter.Terms), iter.EarlyStop,
			iter.Checkpointed)
	}

	log.Println("Saving...")
	objs, err := trainer.Snapshot()
	essentials.Must(err)
	essentials.Must(store.Save(trainFlags.CheckpointTag, objs))
}

func loadCheckpoint(trainer *megastep.Trainer, store *megastep.Store, tag string) {
	objs, err := store.Load(tag)
	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Creating new agent.")
		return
	}
	essentials.Must(err)
	essentials.Must(trainer.Restore(objs))
	log.Println("Loaded checkpoint from:", store.Path(tag))
}

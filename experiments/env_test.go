package experiments

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/moneytech/megastep"
)

func TestBatchEnvTimeLimit(t *testing.T) {
	flags := &EnvFlags{Name: "constant", MaxSteps: 3}
	env, err := MakeEnv(flags, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()
	w, err := env.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if err := megastep.CheckWorld(env.Spec(), w); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 6; i++ {
		w, err = env.Step(&megastep.Decision{Actions: []float64{1, 0, 0, 1}})
		if err != nil {
			t.Fatal(err)
		}
		for a := 0; a < 2; a++ {
			if w.Reward[a] != 1 {
				t.Errorf("step %d: expected reward 1 but got %f", i, w.Reward[a])
			}
			if w.Reset[a] != (i%3 == 0) || w.Terminal[a] {
				t.Errorf("step %d: unexpected flags reset=%v terminal=%v", i,
					w.Reset[a], w.Terminal[a])
			}
		}
	}
}

func TestBatchEnvChainTerminal(t *testing.T) {
	env, err := MakeEnv(&EnvFlags{Name: "chain"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Reset(); err != nil {
		t.Fatal(err)
	}
	right := &megastep.Decision{Actions: []float64{0, 1}}
	for i := 1; i < DefaultChainLength; i++ {
		w, err := env.Step(right)
		if err != nil {
			t.Fatal(err)
		}
		done := i == DefaultChainLength-1
		if w.Terminal[0] != done || w.Reset[0] != done {
			t.Fatalf("step %d: expected terminal=%v", i, done)
		}
		if done {
			if w.Reward[0] != 1 || w.Obs[0] != 1 {
				t.Errorf("expected reward and reset observation, got %v", w)
			}
		} else if w.Obs[i] != 1 {
			t.Errorf("step %d: expected position %d", i, i)
		}
	}
	if _, err := env.Step(&megastep.Decision{Actions: []float64{1}}); err == nil {
		t.Error("expected error for bad action size")
	}
}

func TestHistoryEnv(t *testing.T) {
	env, err := MakeEnv(&EnvFlags{Name: "chain", History: true}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if env.Spec().ObsSize != DefaultChainLength*2 {
		t.Fatalf("unexpected observation size %d", env.Spec().ObsSize)
	}
	if _, err := env.Reset(); err != nil {
		t.Fatal(err)
	}
	w, err := env.Step(&megastep.Decision{Actions: []float64{0, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if w.Obs[0] != 1 || w.Obs[DefaultChainLength+1] != 1 {
		t.Errorf("unexpected observation: %v", w.Obs)
	}
}

func TestLookupEnvInfo(t *testing.T) {
	info, err := LookupEnvInfo("HalfCheetah-v1")
	if err != nil {
		t.Fatal(err)
	}
	if info.ParamSize != 12 || info.ActionSize != 6 || !info.Gym {
		t.Errorf("unexpected info: %+v", info)
	}
	if _, err := LookupEnvInfo("nonexistent"); err == nil {
		t.Error("expected error")
	}
}

func TestScaleAction(t *testing.T) {
	actual := scaleAction([]float64{-1, 0, 5}, []float64{0, 0, 0}, []float64{2, 4, 1})
	expected := []float64{0, 2, 1}
	for i, x := range expected {
		if math.Abs(actual[i]-x) > 1e-8 {
			t.Errorf("index %d: expected %f but got %f", i, x, actual[i])
		}
	}
}

func TestSQLiteStats(t *testing.T) {
	ctx := context.Background()
	stats, err := OpenSQLiteStats(ctx, filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer stats.Close()
	stats.Now = func() time.Time { return time.Unix(5, 0) }
	stats.Record(megastep.MeanStat, "loss", 1.5)
	stats.Record(megastep.CumSumStat, "count", 2)
	stats.Record(megastep.MeanStat, "loss", 0.5)
	if err := stats.Err(); err != nil {
		t.Fatal(err)
	}
	rows, err := stats.Rows(ctx, "loss")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Value != 1.5 || rows[1].Value != 0.5 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].Kind != megastep.MeanStat || !rows[0].Time.Equal(time.Unix(5, 0)) {
		t.Errorf("unexpected row: %+v", rows[0])
	}
	stats.Close()
	stats.Record(megastep.MeanStat, "loss", 1)
	if stats.Err() == nil {
		t.Error("expected error after close")
	}
}

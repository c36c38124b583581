package megastep

import (
	"errors"
	"fmt"

	"github.com/unixpickle/essentials"
)

// A World is one timestep of an environment, observed
// across every actor.
//
// Observations are packed row-major, with one row of
// ObsSize values per actor.
type World struct {
	Obs      []float64
	Reward   []float64
	Reset    []bool
	Terminal []bool
}

// NumActors returns the number of actors in the World.
func (w *World) NumActors() int {
	return len(w.Reward)
}

// Copy creates a deep copy of the World.
func (w *World) Copy() *World {
	return &World{
		Obs:      append([]float64{}, w.Obs...),
		Reward:   append([]float64{}, w.Reward...),
		Reset:    append([]bool{}, w.Reset...),
		Terminal: append([]bool{}, w.Terminal...),
	}
}

// A Decision is the detached output of an agent for one
// timestep and every actor.
//
// Decisions record the behavior policy at collection
// time.
// They are plain data and never carry gradient state;
// the gradient-tracked counterpart is Outputs, and Freeze
// converts from one to the other.
type Decision struct {
	// Logits stores the action space parameters, packed
	// with one row per actor.
	Logits []float64

	// Actions stores the sampled actions, packed with one
	// row per actor.
	Actions []float64

	// LogProb stores the log-likelihood of each sampled
	// action under Logits.
	LogProb []float64

	// Value stores the value estimate for each actor.
	Value []float64
}

// A Transition pairs a World with the Decision made upon
// observing it.
type Transition struct {
	World    *World
	Decision *Decision
}

// A Chunk is a window of Transitions stacked along a
// leading time axis.
//
// Every slice in World and Decision is time-major: the
// data for actor a at timestep t lives in row t*Actors+a.
// Timestep 0 is the oldest.
type Chunk struct {
	Steps  int
	Actors int

	ObsSize    int
	ParamSize  int
	ActionSize int

	World    *World
	Decision *Decision
}

// Rows returns the number of (timestep, actor) rows.
func (c *Chunk) Rows() int {
	return c.Steps * c.Actors
}

// SelectActors creates a Chunk containing only the given actor
// indices, in the order they are listed.
func (c *Chunk) SelectActors(idxs []int) *Chunk {
	rows := make([]int, 0, c.Steps*len(idxs))
	for t := 0; t < c.Steps; t++ {
		for _, a := range idxs {
			if a < 0 || a >= c.Actors {
				panic(fmt.Sprintf("actor index %d out of range", a))
			}
			rows = append(rows, t*c.Actors+a)
		}
	}
	return &Chunk{
		Steps:      c.Steps,
		Actors:     len(idxs),
		ObsSize:    c.ObsSize,
		ParamSize:  c.ParamSize,
		ActionSize: c.ActionSize,
		World: &World{
			Obs:      gatherRows(c.World.Obs, c.ObsSize, rows),
			Reward:   gatherRows(c.World.Reward, 1, rows),
			Reset:    gatherBools(c.World.Reset, rows),
			Terminal: gatherBools(c.World.Terminal, rows),
		},
		Decision: &Decision{
			Logits:  gatherRows(c.Decision.Logits, c.ParamSize, rows),
			Actions: gatherRows(c.Decision.Actions, c.ActionSize, rows),
			LogProb: gatherRows(c.Decision.LogProb, 1, rows),
			Value:   gatherRows(c.Decision.Value, 1, rows),
		},
	}
}

// A Buffer is a sliding window over the most recent
// Transitions.
//
// A Buffer has a single owner and is not safe for
// concurrent use.
type Buffer struct {
	Capacity int

	items []*Transition
}

// NewBuffer creates an empty Buffer.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		panic("buffer capacity must be positive")
	}
	return &Buffer{Capacity: capacity}
}

// Push appends a Transition, dropping the oldest entries
// once more than b.Capacity are stored.
func (b *Buffer) Push(t *Transition) {
	b.items = append(b.items, t)
	if len(b.items) > b.Capacity {
		extra := len(b.items) - b.Capacity
		n := copy(b.items, b.items[extra:])
		for i := n; i < len(b.items); i++ {
			b.items[i] = nil
		}
		b.items = b.items[:n]
	}
}

// Len returns the number of stored Transitions.
func (b *Buffer) Len() int {
	return len(b.items)
}

// Full returns true if the buffer holds b.Capacity
// Transitions.
func (b *Buffer) Full() bool {
	return len(b.items) == b.Capacity
}

// Stack copies the stored Transitions into a Chunk,
// oldest first.
//
// It fails if the buffer is empty or if the Transitions
// disagree about their dimensions.
func (b *Buffer) Stack() (chunk *Chunk, err error) {
	defer essentials.AddCtxTo("stack buffer", &err)
	if len(b.items) == 0 {
		return nil, errors.New("buffer is empty")
	}

	first := b.items[0]
	if first.World == nil || first.Decision == nil {
		return nil, errors.New("timestep 0: missing world or decision")
	}
	actors := first.World.NumActors()
	if actors == 0 {
		return nil, errors.New("no actors")
	}
	chunk = &Chunk{
		Steps:      len(b.items),
		Actors:     actors,
		ObsSize:    len(first.World.Obs) / actors,
		ParamSize:  len(first.Decision.Logits) / actors,
		ActionSize: len(first.Decision.Actions) / actors,
		World:      &World{},
		Decision:   &Decision{},
	}
	for i, item := range b.items {
		if err := chunk.checkTransition(item); err != nil {
			return nil, fmt.Errorf("timestep %d: %s", i, err)
		}
		w, d := chunk.World, chunk.Decision
		w.Obs = append(w.Obs, item.World.Obs...)
		w.Reward = append(w.Reward, item.World.Reward...)
		w.Reset = append(w.Reset, item.World.Reset...)
		w.Terminal = append(w.Terminal, item.World.Terminal...)
		d.Logits = append(d.Logits, item.Decision.Logits...)
		d.Actions = append(d.Actions, item.Decision.Actions...)
		d.LogProb = append(d.LogProb, item.Decision.LogProb...)
		d.Value = append(d.Value, item.Decision.Value...)
	}
	return chunk, nil
}

func (c *Chunk) checkTransition(t *Transition) error {
	w, d := t.World, t.Decision
	if w == nil || d == nil {
		return errors.New("missing world or decision")
	}
	n := c.Actors
	if len(w.Reward) != n || len(w.Reset) != n || len(w.Terminal) != n {
		return fmt.Errorf("expected %d actors in world", n)
	}
	if len(w.Obs) != n*c.ObsSize {
		return fmt.Errorf("expected %d observation values but got %d",
			n*c.ObsSize, len(w.Obs))
	}
	if len(d.Logits) != n*c.ParamSize || len(d.Actions) != n*c.ActionSize {
		return errors.New("decision size mismatch")
	}
	if len(d.LogProb) != n || len(d.Value) != n {
		return errors.New("decision is missing log probabilities or values")
	}
	return nil
}

func gatherBools(data []bool, rows []int) []bool {
	res := make([]bool, len(rows))
	for i, r := range rows {
		res[i] = data[r]
	}
	return res
}

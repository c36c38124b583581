package megastep

import "testing"

func TestBufferSlidingWindow(t *testing.T) {
	b := NewBuffer(3)
	for i := 0; i < 5; i++ {
		b.Push(testingTransition(2, float64(i)))
		expectedLen := i + 1
		if expectedLen > 3 {
			expectedLen = 3
		}
		if b.Len() != expectedLen {
			t.Errorf("push %d: expected length %d but got %d", i, expectedLen, b.Len())
		}
	}
	if !b.Full() {
		t.Error("buffer should be full")
	}
	chunk, err := b.Stack()
	if err != nil {
		t.Fatal(err)
	}
	if chunk.Steps != 3 || chunk.Actors != 2 || chunk.ObsSize != 1 ||
		chunk.ParamSize != 2 || chunk.ActionSize != 2 {
		t.Fatalf("unexpected chunk shape: %+v", chunk)
	}
	assertFloatsClose(t, chunk.World.Reward, []float64{2, 2, 3, 3, 4, 4})
	assertFloatsClose(t, chunk.World.Obs, []float64{2, 2.5, 3, 3.5, 4, 4.5})
}

func TestBufferReusesStorage(t *testing.T) {
	b := NewBuffer(4)
	for i := 0; i < 1000; i++ {
		b.Push(testingTransition(2, float64(i)))
	}
	if c := cap(b.items); c > 8 {
		t.Errorf("expected bounded storage but got capacity %d", c)
	}
	for i, item := range b.items[len(b.items):cap(b.items)] {
		if item != nil {
			t.Errorf("dropped slot %d still references a transition", i)
		}
	}
	chunk, err := b.Stack()
	if err != nil {
		t.Fatal(err)
	}
	assertFloatsClose(t, chunk.World.Reward, []float64{996, 996, 997, 997, 998, 998,
		999, 999})
}

func TestBufferStackErrors(t *testing.T) {
	b := NewBuffer(4)
	if _, err := b.Stack(); err == nil {
		t.Error("expected error for empty buffer")
	}
	b.Push(testingTransition(2, 0))
	b.Push(testingTransition(3, 1))
	if _, err := b.Stack(); err == nil {
		t.Error("expected error for mismatched actor counts")
	}
}

func TestChunkSelectActors(t *testing.T) {
	b := NewBuffer(2)
	b.Push(testingTransition(3, 0))
	b.Push(testingTransition(3, 1))
	chunk, err := b.Stack()
	if err != nil {
		t.Fatal(err)
	}
	sub := chunk.SelectActors([]int{2, 0})
	if sub.Steps != 2 || sub.Actors != 2 {
		t.Fatalf("unexpected shape %dx%d", sub.Steps, sub.Actors)
	}
	assertFloatsClose(t, sub.World.Obs, []float64{2, 0, 3, 1})
	assertFloatsClose(t, sub.Decision.Logits, []float64{2, -2, 0, 0, 3, -3, 1, -1})
	if !sub.World.Reset[0] || sub.World.Reset[1] {
		t.Errorf("unexpected resets: %v", sub.World.Reset)
	}
}

// testingTransition creates a transition where actor a
// observes x+a/2 (or x+a for three actors) and receives
// reward x.
func testingTransition(actors int, x float64) *Transition {
	step := 0.5
	if actors == 3 {
		step = 1
	}
	w := &World{
		Reward:   make([]float64, actors),
		Reset:    make([]bool, actors),
		Terminal: make([]bool, actors),
	}
	d := &Decision{
		LogProb: make([]float64, actors),
		Value:   make([]float64, actors),
	}
	for a := 0; a < actors; a++ {
		obs := x + float64(a)*step
		w.Obs = append(w.Obs, obs)
		w.Reward[a] = x
		w.Reset[a] = a == 2 && x == 0
		d.Logits = append(d.Logits, obs, -obs)
		d.Actions = append(d.Actions, 1, 0)
	}
	return &Transition{World: w, Decision: d}
}

package megastep

import (
	"math"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

const (
	// DefaultNormerDecay is the decay rate used by a
	// Normer whose Decay is 0.
	DefaultNormerDecay = 0.99

	normerVarianceFloor = 1e-6
)

func init() {
	var n Normer
	serializer.RegisterTypedDeserializer(n.SerializerType(), DeserializeNormer)
}

// A Normer keeps an exponentially decayed estimate of
// the mean and scale of a scalar signal.
//
// Before any samples are seen, a Normer has mean 0 and
// scale 1, making Norm the identity.
// The zero value is ready to use.
type Normer struct {
	// Decay is the weight kept by the old estimate each
	// time a batch is folded in.
	//
	// If 0, DefaultNormerDecay is used.
	Decay float64

	mu float64

	// nu1 is the mean-square estimate minus one, so that
	// the zero Normer starts with a mean-square of 1.
	nu1 float64
}

// NewNormer creates a Normer with the given decay.
func NewNormer(decay float64) *Normer {
	return &Normer{Decay: decay}
}

// DeserializeNormer deserializes a Normer.
func DeserializeNormer(d []byte) (*Normer, error) {
	var decay, mu, nu float64
	if err := serializer.DeserializeAny(d, &decay, &mu, &nu); err != nil {
		return nil, essentials.AddCtx("deserialize Normer", err)
	}
	return &Normer{Decay: decay, mu: mu, nu1: nu - 1}, nil
}

// Step folds the mean and mean-square of a batch of
// samples into the running estimate.
//
// It should be called once per batch of new data.
// An empty batch leaves the estimate unchanged.
func (n *Normer) Step(samples []float64) {
	if len(samples) == 0 {
		return
	}
	var sum, sqSum float64
	for _, x := range samples {
		sum += x
		sqSum += x * x
	}
	count := float64(len(samples))
	decay := n.decay()
	n.mu = decay*n.mu + (1-decay)*sum/count
	n.nu1 = decay*n.nu1 + (1-decay)*(sqSum/count-1)
}

// Mean returns the current mean estimate.
func (n *Normer) Mean() float64 {
	return n.mu
}

// Scale returns the current standard deviation
// estimate, which is always strictly positive.
func (n *Normer) Scale() float64 {
	return math.Sqrt(math.Max(n.nu1+1-n.mu*n.mu, normerVarianceFloor))
}

// Norm standardizes x using the current estimate.
func (n *Normer) Norm(x float64) float64 {
	return (x - n.mu) / n.Scale()
}

// NormAll standardizes every value in xs, returning a
// new slice.
func (n *Normer) NormAll(xs []float64) []float64 {
	res := make([]float64, len(xs))
	scale := n.Scale()
	for i, x := range xs {
		res[i] = (x - n.mu) / scale
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a Normer with the serializer package.
func (n *Normer) SerializerType() string {
	return "github.com/moneytech/megastep.Normer"
}

// Serialize serializes the Normer.
func (n *Normer) Serialize() ([]byte, error) {
	return serializer.SerializeAny(n.Decay, n.mu, n.nu1+1)
}

func (n *Normer) decay() float64 {
	if n.Decay == 0 {
		return DefaultNormerDecay
	}
	return n.Decay
}

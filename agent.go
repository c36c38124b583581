package megastep

import (
	"errors"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var m MLPAgent
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeMLPAgent)
}

// Outputs is the gradient-tracked result of running an
// Agent on a batch of rows.
type Outputs struct {
	// Logits contains the action space parameters.
	Logits anydiff.Res

	// Actions contains sampled actions.
	// It is nil if sampling was not requested.
	Actions anyvec.Vector

	// Value contains one value estimate per row.
	// It is nil if value estimates were not requested.
	Value anydiff.Res
}

// An Agent is a policy with a value function.
//
// The policy and the value function take the same inputs
// but have separate parameters, so that their gradients
// can be clipped independently.
type Agent interface {
	ActionSpace() ActionSpace

	// Forward applies the agent to a batch of rows.
	// The obs vector packs one observation per row.
	// The reset flags mark rows which start a new
	// episode, for agents with recurrent state.
	Forward(obs anyvec.Vector, reset []bool, rows int, sample, value bool) *Outputs

	PolicyParameters() []*anydiff.Var
	ValueParameters() []*anydiff.Var
}

// Freeze detaches a batch of sampled Outputs from the
// computation graph, recording the log-likelihood of
// each sampled action.
func Freeze(space ActionSpace, out *Outputs, rows int) (*Decision, error) {
	if out.Logits == nil || out.Actions == nil || out.Value == nil {
		return nil, errors.New("freeze outputs: missing logits, actions, or values")
	}
	logits := out.Logits.Output().Copy()
	actions := out.Actions.Copy()
	logProbs := space.LogProb(anydiff.NewConst(logits), actions, rows)
	return &Decision{
		Logits:  append([]float64{}, vecToFloats(logits)...),
		Actions: append([]float64{}, vecToFloats(actions)...),
		LogProb: append([]float64{}, vecToFloats(logProbs.Output())...),
		Value:   append([]float64{}, vecToFloats(out.Value.Output())...),
	}, nil
}

// Act samples a Decision for every actor in a World.
//
// No gradients are ever computed through the result.
func Act(agent Agent, c anyvec.Creator, w *World) (*Decision, error) {
	rows := w.NumActors()
	out := agent.Forward(floatsToVec(c, w.Obs), w.Reset, rows, true, true)
	d, err := Freeze(agent.ActionSpace(), out, rows)
	return d, essentials.AddCtx("act", err)
}

// MLPAgent is a feed-forward Agent with separate policy
// and value networks.
type MLPAgent struct {
	Space  ActionSpace
	Policy anynet.Net
	Value  anynet.Net
}

// NewMLPAgent creates an MLPAgent with one hidden layer
// in each network.
//
// The output layers start at zero, so the initial policy
// is uniform for softmax action spaces and the initial
// value estimates are 0.
func NewMLPAgent(c anyvec.Creator, spec Spec, hidden int) *MLPAgent {
	return &MLPAgent{
		Space: spec.ActionSpace,
		Policy: anynet.Net{
			anynet.NewFC(c, spec.ObsSize, hidden),
			anynet.Tanh,
			anynet.NewFCZero(c, hidden, spec.ParamSize),
		},
		Value: anynet.Net{
			anynet.NewFC(c, spec.ObsSize, hidden),
			anynet.Tanh,
			anynet.NewFCZero(c, hidden, 1),
		},
	}
}

// DeserializeMLPAgent deserializes an MLPAgent.
//
// The action space is not saved, so the caller must set
// the Space field.
func DeserializeMLPAgent(d []byte) (*MLPAgent, error) {
	var res MLPAgent
	if err := serializer.DeserializeAny(d, &res.Policy, &res.Value); err != nil {
		return nil, essentials.AddCtx("deserialize MLPAgent", err)
	}
	return &res, nil
}

// ActionSpace returns m.Space.
func (m *MLPAgent) ActionSpace() ActionSpace {
	return m.Space
}

// Forward applies the networks to a batch.
func (m *MLPAgent) Forward(obs anyvec.Vector, reset []bool, rows int,
	sample, value bool) *Outputs {
	in := anydiff.NewConst(obs)
	res := &Outputs{Logits: m.Policy.Apply(in, rows)}
	if sample {
		res.Actions = m.Space.Sample(res.Logits.Output(), rows)
	}
	if value {
		res.Value = m.Value.Apply(in, rows)
	}
	return res
}

// PolicyParameters returns the policy network's
// parameters.
func (m *MLPAgent) PolicyParameters() []*anydiff.Var {
	return m.Policy.Parameters()
}

// ValueParameters returns the value network's
// parameters.
func (m *MLPAgent) ValueParameters() []*anydiff.Var {
	return m.Value.Parameters()
}

// SerializerType returns the unique ID used to serialize
// an MLPAgent with the serializer package.
func (m *MLPAgent) SerializerType() string {
	return "github.com/moneytech/megastep.MLPAgent"
}

// Serialize serializes the networks of the agent.
func (m *MLPAgent) Serialize() ([]byte, error) {
	return serializer.SerializeAny(m.Policy, m.Value)
}

package megastep

import (
	"encoding"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// An Optimizer applies gradient descent steps to a set
// of parameters.
type Optimizer struct {
	// Transformer preconditions gradients before each
	// step, e.g. *anysgd.Adam.
	//
	// If nil, gradients are used as-is.
	Transformer anysgd.Transformer

	// LearningRate scales every step.
	// It may be changed between steps.
	LearningRate float64

	// Steps counts the steps taken so far.
	Steps int
}

// NewAdam creates an Optimizer which uses Adam over the
// given parameters.
func NewAdam(lr float64, params []*anydiff.Var) *Optimizer {
	return &Optimizer{
		Transformer:  &anysgd.Adam{Vars: params},
		LearningRate: lr,
	}
}

// Step descends along the gradient of a loss.
// The gradient is consumed by the step.
func (o *Optimizer) Step(grad anydiff.Grad) {
	if o.Transformer != nil {
		grad = o.Transformer.Transform(grad)
	}
	grad.ScaleFloat64(-o.LearningRate)
	grad.AddToVars()
	o.Steps++
}

// MarshalBinary encodes the step count, learning rate,
// and the Transformer's state if it has any.
func (o *Optimizer) MarshalBinary() (data []byte, err error) {
	defer essentials.AddCtxTo("marshal optimizer", &err)
	var state []byte
	if m, ok := o.Transformer.(encoding.BinaryMarshaler); ok {
		state, err = m.MarshalBinary()
		if err != nil {
			return nil, err
		}
	}
	return serializer.SerializeAny(o.LearningRate, o.Steps, state)
}

// UnmarshalBinary performs the inverse of MarshalBinary.
//
// The Transformer must already be set up for the same
// parameters that it was saved with.
func (o *Optimizer) UnmarshalBinary(data []byte) (err error) {
	defer essentials.AddCtxTo("unmarshal optimizer", &err)
	var state []byte
	if err := serializer.DeserializeAny(data, &o.LearningRate, &o.Steps, &state); err != nil {
		return err
	}
	if u, ok := o.Transformer.(encoding.BinaryUnmarshaler); ok && len(state) > 0 {
		return u.UnmarshalBinary(state)
	}
	return nil
}

// ClipGradNorm scales down the entries of grad for the
// given variables so that their joint L2 norm is at most
// max.
//
// It returns the norm before clipping.
func ClipGradNorm(grad anydiff.Grad, vars []*anydiff.Var, max float64) float64 {
	var sqNorm float64
	for _, v := range vars {
		if vec, ok := grad[v]; ok {
			sqNorm += numToFloat(vec.Dot(vec))
		}
	}
	norm := math.Sqrt(sqNorm)
	if max > 0 && norm > max {
		scale := max / norm
		for _, v := range vars {
			if vec, ok := grad[v]; ok {
				vec.Scale(vec.Creator().MakeNumeric(scale))
			}
		}
	}
	return norm
}

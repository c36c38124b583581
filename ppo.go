package megastep

import (
	"errors"
	"fmt"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyrl/anypg"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// Default hyper-parameters for PPO.
const (
	DefaultDiscount = 0.99
	DefaultLambda   = 0.97
	DefaultGradClip = 1
	DefaultAdvClip  = 3
)

// PPO implements an actor-critic variant of Proximal
// Policy Optimization with a clipped value objective.
//
// See the PPO paper: https://arxiv.org/abs/1707.06347.
type PPO struct {
	Agent     Agent
	Optimizer *Optimizer

	// ValueNorm tracks the scale of the reward-to-go
	// targets, which determines how far value estimates
	// may move from their behavior values.
	ValueNorm *Normer

	// AdvNorm tracks the distribution of raw advantages,
	// which are standardized before the policy loss.
	AdvNorm *Normer

	// Discount is the reward discount factor.
	//
	// If 0, DefaultDiscount is used.
	Discount float64

	// Lambda is the GAE decay factor.
	//
	// If 0, DefaultLambda is used.
	Lambda float64

	// Epsilon is the amount by which the probability ratio
	// should change.
	//
	// If 0, anypg.DefaultPPOEpsilon is used.
	Epsilon float64

	// GradClip is the maximum L2 norm of the policy and
	// value gradients, each clipped separately.
	//
	// If 0, DefaultGradClip is used.
	GradClip float64

	// AdvClip bounds standardized advantages.
	//
	// If 0, DefaultAdvClip is used.
	AdvClip float64

	// Stats, if non-nil, receives the loss terms of every
	// step.
	Stats StatSink
}

// Terms summarizes a single PPO step.
//
// Every term is measured before the optimizer step.
type Terms struct {
	ValueLoss   float64
	PolicyLoss  float64
	EntropyLoss float64
	Loss        float64

	// KL approximates the divergence of the current policy
	// from the behavior policy on the batch.
	KL float64

	// PolicyGradNorm and ValueGradNorm are the gradient
	// norms before clipping.
	PolicyGradNorm float64
	ValueGradNorm  float64

	// Clipped is the fraction of probability ratios which
	// fell outside of the clipping range.
	Clipped float64
}

// Step runs the agent on a batch, computes the PPO loss,
// and applies one optimizer step.
//
// The batch must contain at least two timesteps, since
// the final timestep only serves as a bootstrap.
// If the agent's outputs do not match the batch, an error
// is returned and no state is modified.
func (p *PPO) Step(batch *Chunk, entropy float64) (terms *Terms, err error) {
	defer essentials.AddCtxTo("PPO step", &err)
	if batch.Steps < 2 {
		return nil, errors.New("batch needs at least two timesteps")
	}
	space := p.Agent.ActionSpace()
	rows := batch.Rows()
	trained := (batch.Steps - 1) * batch.Actors

	c := p.creator()
	out := p.Agent.Forward(floatsToVec(c, batch.World.Obs), batch.World.Reset, rows,
		false, true)
	if err := checkOutputs(batch, out); err != nil {
		return nil, err
	}

	actions := floatsToVec(c, batch.Decision.Actions)
	newLogProbs := space.LogProb(out.Logits, actions, rows)
	logRatio := anydiff.Sub(newLogProbs, anydiff.NewConst(floatsToVec(c,
		batch.Decision.LogProb)))
	logRatio = anydiff.Slice(logRatio, 0, trained)

	oldValue := batch.Decision.Value
	rtg := RewardToGo(batch.World.Reward, oldValue, batch.World.Reset,
		batch.World.Terminal, batch.Actors, p.discount())
	adv := GeneralizedAdvantages(oldValue, batch.World.Reward, batch.World.Reset,
		batch.World.Terminal, batch.Actors, p.discount(), p.lambda())
	advZ := p.AdvNorm.NormAll(adv)
	for i, x := range advZ {
		advZ[i] = math.Max(-p.advClip(), math.Min(p.advClip(), x))
	}

	epsilon := p.epsilon()
	policyLoss := PolicyLoss(epsilon, anydiff.Exp(logRatio), advZ)
	valueLoss := ValueLoss(out.Value, oldValue, rtg[:trained],
		epsilon*p.ValueNorm.Scale())
	entropyLoss := meanRes(anydiff.Scale(
		space.Entropy(anydiff.Slice(out.Logits, 0, trained*batch.ParamSize), trained),
		c.MakeNumeric(-1),
	))
	loss := anydiff.Add(anydiff.Add(valueLoss, policyLoss),
		anydiff.Scale(entropyLoss, c.MakeNumeric(entropy)))

	terms = &Terms{
		ValueLoss:   scalarValue(valueLoss),
		PolicyLoss:  scalarValue(policyLoss),
		EntropyLoss: scalarValue(entropyLoss),
		Loss:        scalarValue(loss),
	}
	ratioData := vecToFloats(logRatio.Output())
	var clipped int
	for _, x := range ratioData {
		terms.KL -= x
		r := math.Exp(x)
		if r < 1-epsilon || r > 1+epsilon {
			clipped++
		}
	}
	terms.KL /= float64(len(ratioData))
	terms.Clipped = float64(clipped) / float64(len(ratioData))

	policyParams := p.Agent.PolicyParameters()
	valueParams := p.Agent.ValueParameters()
	grad := anydiff.NewGrad(append(append([]*anydiff.Var{}, policyParams...),
		valueParams...)...)
	loss.Propagate(anyvec.Ones(c, 1), grad)
	terms.PolicyGradNorm = ClipGradNorm(grad, policyParams, p.gradClip())
	terms.ValueGradNorm = ClipGradNorm(grad, valueParams, p.gradClip())
	p.Optimizer.Step(grad)

	p.ValueNorm.Step(rtg[:trained])
	p.AdvNorm.Step(adv)

	p.recordTerms(terms)
	return terms, nil
}

// PolicyLoss computes the negated mean of the clipped
// PPO surrogate objective.
func PolicyLoss(epsilon float64, ratios anydiff.Res, advs []float64) anydiff.Res {
	c := ratios.Output().Creator()
	obj := anypg.PPOObjective(c.MakeNumeric(epsilon), ratios,
		anydiff.NewConst(floatsToVec(c, advs)))
	return anydiff.Scale(meanRes(obj), c.MakeNumeric(-1))
}

// ValueLoss computes the clipped value loss.
//
// Each value estimate may move at most maxDelta away from
// its old value before the clipped error takes over, and
// the larger of the clipped and unclipped squared errors
// is averaged.
// Targets beyond len(target) are ignored, as are the
// matching value estimates.
func ValueLoss(value anydiff.Res, old, target []float64, maxDelta float64) anydiff.Res {
	c := value.Output().Creator()
	n := len(target)
	value = anydiff.Slice(value, 0, n)
	oldRes := anydiff.NewConst(floatsToVec(c, old[:n]))
	targetRes := anydiff.NewConst(floatsToVec(c, target))
	return anydiff.Pool(value, func(value anydiff.Res) anydiff.Res {
		clipped := anydiff.Add(oldRes, anydiff.ClipRange(
			anydiff.Sub(value, oldRes),
			c.MakeNumeric(-maxDelta),
			c.MakeNumeric(maxDelta),
		))
		return meanRes(anydiff.ElemMax(
			anydiff.Square(anydiff.Sub(value, targetRes)),
			anydiff.Square(anydiff.Sub(clipped, targetRes)),
		))
	})
}

func (p *PPO) recordTerms(t *Terms) {
	if p.Stats == nil {
		return
	}
	p.Stats.Record(MeanStat, "loss/value", t.ValueLoss)
	p.Stats.Record(MeanStat, "loss/policy", t.PolicyLoss)
	p.Stats.Record(MeanStat, "loss/entropy", t.EntropyLoss)
	p.Stats.Record(MeanStat, "kl", t.KL)
	p.Stats.Record(MaxStat, "kl-max", t.KL)
	p.Stats.Record(MeanStat, "grad-norm/policy", t.PolicyGradNorm)
	p.Stats.Record(MeanStat, "grad-norm/value", t.ValueGradNorm)
	p.Stats.Record(MeanStat, "clipped", t.Clipped)
	p.Stats.Record(MeanStat, "value-norm/mean", p.ValueNorm.Mean())
	p.Stats.Record(MeanStat, "value-norm/scale", p.ValueNorm.Scale())
	p.Stats.Record(MeanStat, "adv-norm/mean", p.AdvNorm.Mean())
	p.Stats.Record(MeanStat, "adv-norm/scale", p.AdvNorm.Scale())
}

func (p *PPO) creator() anyvec.Creator {
	params := append(append([]*anydiff.Var{}, p.Agent.PolicyParameters()...),
		p.Agent.ValueParameters()...)
	if len(params) == 0 {
		panic("agent has no parameters")
	}
	return params[0].Vector.Creator()
}

func (p *PPO) discount() float64 {
	if p.Discount == 0 {
		return DefaultDiscount
	}
	return p.Discount
}

func (p *PPO) lambda() float64 {
	if p.Lambda == 0 {
		return DefaultLambda
	}
	return p.Lambda
}

func (p *PPO) epsilon() float64 {
	if p.Epsilon == 0 {
		return anypg.DefaultPPOEpsilon
	}
	return p.Epsilon
}

func (p *PPO) gradClip() float64 {
	if p.GradClip == 0 {
		return DefaultGradClip
	}
	return p.GradClip
}

func (p *PPO) advClip() float64 {
	if p.AdvClip == 0 {
		return DefaultAdvClip
	}
	return p.AdvClip
}

func checkOutputs(batch *Chunk, out *Outputs) error {
	rows := batch.Rows()
	if out == nil || out.Logits == nil || out.Value == nil {
		return errors.New("agent did not produce logits and values")
	}
	if n := out.Logits.Output().Len(); n != rows*batch.ParamSize {
		return fmt.Errorf("expected %d action parameters but got %d",
			rows*batch.ParamSize, n)
	}
	if n := out.Value.Output().Len(); n != rows {
		return fmt.Errorf("expected %d value estimates but got %d", rows, n)
	}
	if len(batch.Decision.Actions) != rows*batch.ActionSize ||
		len(batch.Decision.LogProb) != rows || len(batch.Decision.Value) != rows {
		return errors.New("batch decisions do not cover every row")
	}
	return nil
}

func meanRes(r anydiff.Res) anydiff.Res {
	n := r.Output().Len()
	c := r.Output().Creator()
	return anydiff.Scale(anydiff.Sum(r), c.MakeNumeric(1/float64(n)))
}

func scalarValue(r anydiff.Res) float64 {
	return numToFloat(anyvec.Sum(r.Output()))
}

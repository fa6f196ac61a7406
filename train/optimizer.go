package train

import (
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/dgcnn/checkpoint"
	"github.com/hupe1980/dgcnn/nn"
	"github.com/hupe1980/dgcnn/tensor"
)

// Gradients maps parameter names to d(loss)/d(parameter).
type Gradients map[string][]float32

// Optimizer applies gradient updates to network parameters.
type Optimizer interface {
	// Apply updates the parameters with grads at learning rate lr.
	Apply(grads Gradients, lr float64) error
	// State returns the optimizer slots for checkpointing.
	State() []checkpoint.Tensor
	// Restore loads optimizer slots from c. Missing slots are ignored.
	Restore(c *checkpoint.Checkpoint) error
}

// AdamConfig holds the Adam hyperparameters.
type AdamConfig struct {
	Beta1   float64
	Beta2   float64
	Epsilon float64
	// GradientMultiplier scales every gradient before the update.
	GradientMultiplier float64
}

// DefaultAdamConfig returns the standard Adam settings.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8, GradientMultiplier: 1}
}

const adamStepTensor = "train/adam_step"

// LastLayerAdam runs Adam on the trainable parameters under the given
// layer prefixes and leaves every other parameter untouched. A parameter's
// WeightDecay adds the L2 gradient WeightDecay*w.
type LastLayerAdam struct {
	cfg    AdamConfig
	params []*nn.Param
	m, v   map[string][]float64
	t      int64
}

// NewLastLayerAdam creates the optimizer for the parameters of reg whose
// names start with one of layers.
func NewLastLayerAdam(reg *nn.Registry, layers []string, cfg AdamConfig) *LastLayerAdam {
	o := &LastLayerAdam{
		cfg: cfg,
		m:   make(map[string][]float64),
		v:   make(map[string][]float64),
	}
	for _, p := range reg.Params() {
		if !p.Trainable || !hasAnyPrefix(p.Name, layers) {
			continue
		}
		o.params = append(o.params, p)
		o.m[p.Name] = make([]float64, p.Size())
		o.v[p.Name] = make([]float64, p.Size())
	}
	return o
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Params returns the parameters the optimizer updates.
func (o *LastLayerAdam) Params() []*nn.Param { return o.params }

// Steps returns the number of updates applied.
func (o *LastLayerAdam) Steps() int64 { return o.t }

// Apply performs one Adam update. Parameters without a gradient are skipped.
func (o *LastLayerAdam) Apply(grads Gradients, lr float64) error {
	for _, p := range o.params {
		if g, ok := grads[p.Name]; ok && len(g) != p.Size() {
			return &tensor.ShapeError{Op: "adam " + p.Name, Expected: tensor.Shape{p.Size()}, Actual: tensor.Shape{len(g)}}
		}
	}

	o.t++
	b1, b2 := o.cfg.Beta1, o.cfg.Beta2
	c1 := 1 - math.Pow(b1, float64(o.t))
	c2 := 1 - math.Pow(b2, float64(o.t))
	for _, p := range o.params {
		g, ok := grads[p.Name]
		if !ok {
			continue
		}
		m, v := o.m[p.Name], o.v[p.Name]
		wd := float64(p.WeightDecay)
		for i := range p.Data {
			gi := (float64(g[i]) + wd*float64(p.Data[i])) * o.cfg.GradientMultiplier
			m[i] = b1*m[i] + (1-b1)*gi
			v[i] = b2*v[i] + (1-b2)*gi*gi
			p.Data[i] -= float32(lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + o.cfg.Epsilon))
		}
	}
	return nil
}

// State returns the first and second moments ("<param>/Adam",
// "<param>/Adam_1") and the update count.
func (o *LastLayerAdam) State() []checkpoint.Tensor {
	out := make([]checkpoint.Tensor, 0, 2*len(o.params)+1)
	for _, p := range o.params {
		out = append(out,
			checkpoint.Tensor{Name: p.Name + "/Adam", Shape: tensor.Shape{p.Size()}, Data: toFloat32(o.m[p.Name])},
			checkpoint.Tensor{Name: p.Name + "/Adam_1", Shape: tensor.Shape{p.Size()}, Data: toFloat32(o.v[p.Name])},
		)
	}
	out = append(out, checkpoint.Tensor{Name: adamStepTensor, Shape: tensor.Shape{1}, Data: []float32{float32(o.t)}})
	return out
}

// Restore loads moments saved by State.
func (o *LastLayerAdam) Restore(c *checkpoint.Checkpoint) error {
	for _, p := range o.params {
		for suffix, dst := range map[string][]float64{"/Adam": o.m[p.Name], "/Adam_1": o.v[p.Name]} {
			t, ok := c.Lookup(p.Name + suffix)
			if !ok {
				continue
			}
			if len(t.Data) != len(dst) {
				return fmt.Errorf("train: optimizer slot %s%s has %d values, want %d", p.Name, suffix, len(t.Data), len(dst))
			}
			for i, x := range t.Data {
				dst[i] = float64(x)
			}
		}
	}
	if t, ok := c.Lookup(adamStepTensor); ok && len(t.Data) == 1 {
		o.t = int64(t.Data[0])
	}
	return nil
}

func toFloat32(xs []float64) []float32 {
	out := make([]float32, len(xs))
	for i, x := range xs {
		out[i] = float32(x)
	}
	return out
}

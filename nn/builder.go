package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/hupe1980/dgcnn/tensor"
)

type convOptions struct {
	batchNorm   bool
	relu        bool
	zeroWeights bool
	biasInit    []float32
}

// ConvOption configures a convolution built by a Builder.
type ConvOption func(*convOptions)

// WithoutBatchNorm disables batch normalization.
func WithoutBatchNorm() ConvOption {
	return func(o *convOptions) { o.batchNorm = false }
}

// WithoutReLU disables the activation.
func WithoutReLU() ConvOption {
	return func(o *convOptions) { o.relu = false }
}

// WithZeroWeights initializes the weights to zero.
func WithZeroWeights() ConvOption {
	return func(o *convOptions) { o.zeroWeights = true }
}

// WithBiasInit initializes the biases to vals.
func WithBiasInit(vals []float32) ConvOption {
	return func(o *convOptions) { o.biasInit = vals }
}

// Builder creates layers with seeded initialization and registers their
// parameters. The first error is sticky and reported by Err.
type Builder struct {
	reg         *Registry
	rng         *rand.Rand
	weightDecay float32
	err         error
}

// NewBuilder returns a builder registering into reg. Every weight tensor
// receives the same weight decay.
func NewBuilder(reg *Registry, seed int64, weightDecay float32) *Builder {
	return &Builder{
		reg:         reg,
		rng:         rand.New(rand.NewSource(seed)),
		weightDecay: weightDecay,
	}
}

// Registry returns the registry the builder writes to.
func (b *Builder) Registry() *Registry { return b.reg }

// Err returns the first construction error.
func (b *Builder) Err() error { return b.err }

// Conv creates a convolution In->Out. Batch normalization and ReLU are on
// unless disabled. Weights use a scaled-uniform (Glorot) init.
func (b *Builder) Conv(name string, in, out int, optFns ...ConvOption) *Conv {
	o := convOptions{batchNorm: true, relu: true}
	for _, fn := range optFns {
		fn(&o)
	}

	c := &Conv{
		Name:    name,
		In:      in,
		Out:     out,
		Weights: &Param{Name: name + "/weights", Shape: tensor.Shape{in, out}, Data: make([]float32, in*out), Trainable: true, WeightDecay: b.weightDecay},
		Biases:  &Param{Name: name + "/biases", Shape: tensor.Shape{out}, Data: make([]float32, out), Trainable: true},
		ReLU:    o.relu,
	}
	if in <= 0 || out <= 0 {
		b.setErr(fmt.Errorf("nn: %s: invalid channels %d->%d", name, in, out))
		return c
	}

	if !o.zeroWeights {
		limit := float32(math.Sqrt(6 / float64(in+out)))
		for i := range c.Weights.Data {
			c.Weights.Data[i] = (b.rng.Float32()*2 - 1) * limit
		}
	}
	if o.biasInit != nil {
		if len(o.biasInit) != out {
			b.setErr(&tensor.ShapeError{Op: name + "/biases", Expected: tensor.Shape{out}, Actual: tensor.Shape{len(o.biasInit)}})
		} else {
			copy(c.Biases.Data, o.biasInit)
		}
	}

	b.setErr(b.reg.Add(c.Weights))
	b.setErr(b.reg.Add(c.Biases))
	if o.batchNorm {
		c.Norm = newBatchNorm(name+"/bn", out)
		b.setErr(b.reg.addNorm(c.Norm))
	}
	return c
}

func (b *Builder) setErr(err error) {
	if b.err == nil && err != nil {
		b.err = err
	}
}

package nn

import (
	"fmt"
	"math"

	"github.com/hupe1980/dgcnn/tensor"
)

// DefaultEpsilon is added to the variance before normalizing.
const DefaultEpsilon = 1e-3

// BatchNorm is a per-channel affine normalization with running statistics.
type BatchNorm struct {
	Name     string
	Gamma    *Param
	Beta     *Param
	Mean     *Param
	Variance *Param
	Epsilon  float32
}

func newBatchNorm(name string, channels int) *BatchNorm {
	bn := &BatchNorm{
		Name:     name,
		Gamma:    &Param{Name: name + "/gamma", Shape: tensor.Shape{channels}, Data: make([]float32, channels), Trainable: true},
		Beta:     &Param{Name: name + "/beta", Shape: tensor.Shape{channels}, Data: make([]float32, channels), Trainable: true},
		Mean:     &Param{Name: name + "/moving_mean", Shape: tensor.Shape{channels}, Data: make([]float32, channels)},
		Variance: &Param{Name: name + "/moving_variance", Shape: tensor.Shape{channels}, Data: make([]float32, channels)},
		Epsilon:  DefaultEpsilon,
	}
	for i := range channels {
		bn.Gamma.Data[i] = 1
		bn.Variance.Data[i] = 1
	}
	return bn
}

func (bn *BatchNorm) params() []*Param {
	return []*Param{bn.Gamma, bn.Beta, bn.Mean, bn.Variance}
}

// Channels returns the number of normalized channels.
func (bn *BatchNorm) Channels() int { return len(bn.Gamma.Data) }

// Apply normalizes x in place with the running statistics in every mode.
// In Train mode the batch moments of x are reported to ctx first, but they
// are not used to normalize x, unlike a training-mode batch norm that
// normalizes with the batch moments. The moments only move the running
// statistics through Update, so train and eval forwards of the same
// parameters agree up to dropout.
func (bn *BatchNorm) Apply(ctx *Context, x *tensor.Matrix) error {
	c := bn.Channels()
	if err := tensor.Check(bn.Name, tensor.Shape{-1, c}, x.Shape()); err != nil {
		return err
	}
	if ctx.Training() && ctx.Stats != nil {
		mean, variance := Moments(x)
		ctx.observe(bn.Name, mean, variance)
	}

	scale := make([]float32, c)
	shift := make([]float32, c)
	for i := range c {
		s := bn.Gamma.Data[i] / float32(math.Sqrt(float64(bn.Variance.Data[i]+bn.Epsilon)))
		scale[i] = s
		shift[i] = bn.Beta.Data[i] - bn.Mean.Data[i]*s
	}
	for r := range x.Rows {
		row := x.Row(r)
		for i, v := range row {
			row[i] = v*scale[i] + shift[i]
		}
	}
	return nil
}

// Update folds batch moments into the running statistics:
// running = decay*running + (1-decay)*batch.
func (bn *BatchNorm) Update(mean, variance []float32, decay float32) error {
	c := bn.Channels()
	if len(mean) != c || len(variance) != c {
		return fmt.Errorf("%s: update with %d/%d channels, want %d", bn.Name, len(mean), len(variance), c)
	}
	for i := range c {
		bn.Mean.Data[i] = decay*bn.Mean.Data[i] + (1-decay)*mean[i]
		bn.Variance.Data[i] = decay*bn.Variance.Data[i] + (1-decay)*variance[i]
	}
	return nil
}

// Moments returns the per-column mean and biased variance of x.
func Moments(x *tensor.Matrix) (mean, variance []float32) {
	mean = make([]float32, x.Cols)
	variance = make([]float32, x.Cols)
	if x.Rows == 0 {
		return mean, variance
	}

	sum := make([]float64, x.Cols)
	for r := range x.Rows {
		for i, v := range x.Row(r) {
			sum[i] += float64(v)
		}
	}
	n := float64(x.Rows)
	for i := range sum {
		sum[i] /= n
		mean[i] = float32(sum[i])
	}

	sq := make([]float64, x.Cols)
	for r := range x.Rows {
		for i, v := range x.Row(r) {
			d := float64(v) - sum[i]
			sq[i] += d * d
		}
	}
	for i := range sq {
		variance[i] = float32(sq[i] / n)
	}
	return mean, variance
}

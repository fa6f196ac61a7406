// Package loss evaluates the per-point softmax cross-entropy of part logits.
//
// The loss is averaged over the points of each instance and then over the
// instances of the batch. Evaluate also returns argmax predictions and the
// gradient of the loss with respect to the logits. Non-finite logits are not
// rejected; they propagate into the result.
package loss

import (
	"errors"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/dgcnn/tensor"
)

// ErrLabelOutOfRange is returned for a label outside [0, parts) that is not
// the ignore label.
var ErrLabelOutOfRange = errors.New("loss: label out of range")

// Result holds the outcome of Evaluate.
type Result struct {
	// Loss is the batch mean of the per-instance losses.
	Loss float64
	// PerInstance is the mean cross-entropy of every instance.
	PerInstance []float64
	// Predictions holds the argmax part of every point (lowest index on ties).
	Predictions [][]int32
	// Grad is d(Loss)/d(logits), shaped like the logits.
	Grad []*tensor.Matrix
}

type options struct {
	ignore    int32
	hasIgnore bool
	noGrad    bool
}

// Option configures Evaluate.
type Option func(*options)

// WithIgnoreLabel excludes points labeled l from the loss.
func WithIgnoreLabel(l int32) Option {
	return func(o *options) {
		o.ignore = l
		o.hasIgnore = true
	}
}

// WithoutGradient skips the gradient computation.
func WithoutGradient() Option {
	return func(o *options) { o.noGrad = true }
}

// Evaluate computes the loss of logits [B][N, parts] against labels [B][N].
func Evaluate(logits []*tensor.Matrix, labels [][]int32, optFns ...Option) (*Result, error) {
	var o options
	for _, fn := range optFns {
		fn(&o)
	}
	if len(logits) != len(labels) {
		return nil, &tensor.ShapeError{Op: "loss.Evaluate", Expected: tensor.Shape{len(logits), -1}, Actual: tensor.Shape{len(labels), -1}}
	}

	res := &Result{
		PerInstance: make([]float64, len(logits)),
		Predictions: make([][]int32, len(logits)),
	}
	if !o.noGrad {
		res.Grad = make([]*tensor.Matrix, len(logits))
	}

	masks := make([]*bitset.BitSet, len(logits))
	counted := 0
	for b, z := range logits {
		if err := tensor.Check(fmt.Sprintf("loss.Evaluate labels %d", b), tensor.Shape{z.Rows}, tensor.Shape{len(labels[b])}); err != nil {
			return nil, err
		}
		if z.Cols == 0 {
			return nil, &tensor.ShapeError{Op: "loss.Evaluate", Expected: tensor.Shape{z.Rows, -1}, Actual: z.Shape()}
		}
		mask, err := validMask(labels[b], z.Cols, o)
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", b, err)
		}
		masks[b] = mask
		if mask.Any() {
			counted++
		}
	}

	for b, z := range logits {
		res.Predictions[b] = Argmax(z)
		mask := masks[b]
		valid := mask.Count()
		var grad *tensor.Matrix
		if !o.noGrad {
			grad = tensor.NewMatrix(z.Rows, z.Cols)
			res.Grad[b] = grad
		}
		if valid == 0 {
			continue
		}

		scale := 1 / (float64(valid) * float64(counted))
		var sum float64
		probs := make([]float64, z.Cols)
		for i, ok := mask.NextSet(0); ok; i, ok = mask.NextSet(i + 1) {
			row := z.Row(int(i))
			label := labels[b][i]
			lse := softmax(row, probs)
			sum += lse - float64(row[label])
			if grad != nil {
				g := grad.Row(int(i))
				for c, p := range probs {
					if int32(c) == label {
						p--
					}
					g[c] = float32(p * scale)
				}
			}
		}
		res.PerInstance[b] = sum / float64(valid)
		res.Loss += res.PerInstance[b]
	}
	if counted > 0 {
		res.Loss /= float64(counted)
	}
	return res, nil
}

func validMask(labels []int32, parts int, o options) (*bitset.BitSet, error) {
	mask := bitset.New(uint(len(labels)))
	for i, l := range labels {
		if o.hasIgnore && l == o.ignore {
			continue
		}
		if l < 0 || int(l) >= parts {
			return nil, fmt.Errorf("%w: point %d has label %d, parts %d", ErrLabelOutOfRange, i, l, parts)
		}
		mask.Set(uint(i))
	}
	return mask, nil
}

// softmax writes the probabilities of row into probs and returns log-sum-exp.
func softmax(row []float32, probs []float64) float64 {
	m := math.Inf(-1)
	for _, v := range row {
		m = math.Max(m, float64(v))
	}
	var sum float64
	for c, v := range row {
		e := math.Exp(float64(v) - m)
		probs[c] = e
		sum += e
	}
	for c := range probs {
		probs[c] /= sum
	}
	return m + math.Log(sum)
}

// Argmax returns the index of the largest logit of every row. Ties resolve to
// the lowest index.
func Argmax(z *tensor.Matrix) []int32 {
	out := make([]int32, z.Rows)
	for i := range z.Rows {
		row := z.Row(i)
		best := 0
		for c := 1; c < len(row); c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		out[i] = int32(best)
	}
	return out
}

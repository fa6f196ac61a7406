package nn

import (
	"github.com/hupe1980/dgcnn/internal/simd"
	"github.com/hupe1980/dgcnn/tensor"
)

// Conv is a 1x1 convolution: a linear map In->Out shared by every position,
// optionally followed by batch normalization and ReLU. On a [1, In] input it
// is a fully connected layer.
type Conv struct {
	Name    string
	In      int
	Out     int
	Weights *Param // [In, Out]
	Biases  *Param // [Out]
	Norm    *BatchNorm
	ReLU    bool
}

// Forward maps x [M, In] to [M, Out].
func (c *Conv) Forward(ctx *Context, x *tensor.Matrix) (*tensor.Matrix, error) {
	if err := tensor.Check(c.Name, tensor.Shape{-1, c.In}, x.Shape()); err != nil {
		return nil, err
	}

	out := tensor.NewMatrix(x.Rows, c.Out)
	w := c.Weights.Data
	for r := range x.Rows {
		dst := out.Row(r)
		copy(dst, c.Biases.Data)
		for i, v := range x.Row(r) {
			if v == 0 {
				continue
			}
			simd.Axpy(v, w[i*c.Out:(i+1)*c.Out], dst)
		}
	}

	if c.Norm != nil {
		if err := c.Norm.Apply(ctx, out); err != nil {
			return nil, err
		}
	}
	if c.ReLU {
		relu(out.Data)
	}
	return out, nil
}

// ForwardEdge applies the convolution to every slot of e.
func (c *Conv) ForwardEdge(ctx *Context, e *tensor.Edge) (*tensor.Edge, error) {
	if err := tensor.Check(c.Name, tensor.Shape{-1, -1, c.In}, e.Shape()); err != nil {
		return nil, err
	}
	flat := &tensor.Matrix{Rows: e.N * e.K, Cols: e.C, Data: e.Data}
	out, err := c.Forward(ctx, flat)
	if err != nil {
		return nil, err
	}
	return &tensor.Edge{N: e.N, K: e.K, C: c.Out, Data: out.Data}, nil
}

func relu(xs []float32) {
	for i, v := range xs {
		// NaN fails the comparison and is kept.
		if v < 0 {
			xs[i] = 0
		}
	}
}

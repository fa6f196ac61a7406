package train

import (
	"github.com/hupe1980/dgcnn/internal/simd"
	"github.com/hupe1980/dgcnn/nn"
	"github.com/hupe1980/dgcnn/tensor"
)

// LayerGradients returns the weight and bias gradients of the linear layer
// c given its inputs [B][M, In] and the gradients of its outputs
// [B][M, Out], scaled by scale:
//
//	dW = scale * sum_b X_bᵀ·G_b    db = scale * sum_b sum_rows G_b
func LayerGradients(c *nn.Conv, inputs, outGrads []*tensor.Matrix, scale float32) (Gradients, error) {
	dw := make([]float32, c.In*c.Out)
	db := make([]float32, c.Out)
	for b := range inputs {
		x, g := inputs[b], outGrads[b]
		if err := tensor.Check(c.Name+" input", tensor.Shape{-1, c.In}, x.Shape()); err != nil {
			return nil, err
		}
		if err := tensor.Check(c.Name+" gradient", tensor.Shape{x.Rows, c.Out}, g.Shape()); err != nil {
			return nil, err
		}
		for r := range x.Rows {
			gr := g.Row(r)
			simd.AddInPlace(db, gr)
			for i, v := range x.Row(r) {
				if v == 0 {
					continue
				}
				simd.Axpy(v, gr, dw[i*c.Out:(i+1)*c.Out])
			}
		}
	}
	if scale != 1 {
		simd.ScaleInPlace(dw, scale)
		simd.ScaleInPlace(db, scale)
	}
	return Gradients{c.Weights.Name: dw, c.Biases.Name: db}, nil
}

// Add accumulates other into g.
func (g Gradients) Add(other Gradients) {
	for name, src := range other {
		dst, ok := g[name]
		if !ok {
			g[name] = append([]float32(nil), src...)
			continue
		}
		simd.AddInPlace(dst, src)
	}
}

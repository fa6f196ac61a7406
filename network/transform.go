package network

import (
	"github.com/hupe1980/dgcnn/nn"
	"github.com/hupe1980/dgcnn/tensor"
	"gonum.org/v1/gonum/mat"
)

// TransformNet predicts a D×D alignment matrix from the edge features of the
// raw point graph. The last layer starts at zero weights and identity biases
// so an untrained network applies the identity.
type TransformNet struct {
	Dim    int
	Edge   *nn.Conv
	Conv   *nn.Conv
	Global *nn.Conv
	FC1    *nn.Conv
	FC2    *nn.Conv
	Out    *nn.Conv
}

func newTransformNet(b *nn.Builder, dim int, w Widths) *TransformNet {
	identity := make([]float32, dim*dim)
	for i := range dim {
		identity[i*dim+i] = 1
	}
	return &TransformNet{
		Dim:    dim,
		Edge:   b.Conv("transform_net1/tconv1", 2*dim, w.TransformEdge),
		Conv:   b.Conv("transform_net1/tconv2", w.TransformEdge, w.TransformConv),
		Global: b.Conv("transform_net1/tconv3", w.TransformConv, w.TransformGlobal),
		FC1:    b.Conv("transform_net1/tfc1", w.TransformGlobal, w.TransformFC[0]),
		FC2:    b.Conv("transform_net1/tfc2", w.TransformFC[0], w.TransformFC[1]),
		Out: b.Conv("transform_net1/transform_XYZ", w.TransformFC[1], dim*dim,
			nn.WithoutBatchNorm(), nn.WithoutReLU(), nn.WithZeroWeights(), nn.WithBiasInit(identity)),
	}
}

// Forward maps graph-feature edges [N, K, 2D] to the alignment matrix [D, D].
func (t *TransformNet) Forward(ctx *nn.Context, edges *tensor.Edge) (*tensor.Matrix, error) {
	e, err := t.Edge.ForwardEdge(ctx, edges)
	if err != nil {
		return nil, err
	}
	if e, err = t.Conv.ForwardEdge(ctx, e); err != nil {
		return nil, err
	}
	pooled, err := nn.Aggregate(e, nn.AggMax)
	if err != nil {
		return nil, err
	}
	local, err := pooled.Squeeze()
	if err != nil {
		return nil, err
	}
	g, err := t.Global.Forward(ctx, local)
	if err != nil {
		return nil, err
	}
	if g, err = nn.ReduceMax(g); err != nil {
		return nil, err
	}
	for _, fc := range []*nn.Conv{t.FC1, t.FC2, t.Out} {
		if g, err = fc.Forward(ctx, g); err != nil {
			return nil, err
		}
	}
	return &tensor.Matrix{Rows: t.Dim, Cols: t.Dim, Data: g.Data}, nil
}

// Align returns points · transform.
func Align(points, transform *tensor.Matrix) (*tensor.Matrix, error) {
	if err := tensor.Check("network.Align", tensor.Shape{points.Cols, points.Cols}, transform.Shape()); err != nil {
		return nil, err
	}
	if points.Rows == 0 {
		return tensor.NewMatrix(0, transform.Cols), nil
	}

	p := mat.NewDense(points.Rows, points.Cols, toFloat64(points.Data))
	tr := mat.NewDense(transform.Rows, transform.Cols, toFloat64(transform.Data))
	var out mat.Dense
	out.Mul(p, tr)

	aligned := tensor.NewMatrix(points.Rows, transform.Cols)
	for i := range aligned.Rows {
		row := aligned.Row(i)
		for j := range row {
			row[j] = float32(out.At(i, j))
		}
	}
	return aligned, nil
}

func toFloat64(xs []float32) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[i] = float64(v)
	}
	return out
}

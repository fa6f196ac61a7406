package nn

import (
	"fmt"

	"github.com/hupe1980/dgcnn/internal/simd"
	"github.com/hupe1980/dgcnn/tensor"
)

// Agg is a reduction over the neighbor axis.
type Agg int

const (
	// AggMax keeps the channel-wise maximum.
	AggMax Agg = iota
	// AggMean keeps the channel-wise mean.
	AggMean
	// AggMaxMean concatenates [max, mean].
	AggMaxMean
)

func (a Agg) String() string {
	switch a {
	case AggMax:
		return "max"
	case AggMean:
		return "mean"
	case AggMaxMean:
		return "max_mean"
	default:
		return fmt.Sprintf("Agg(%d)", int(a))
	}
}

// Aggregate reduces e [N, K, C] over K to [N, 1, C], or [N, 1, 2C] for AggMaxMean.
// The result does not depend on the order of slots within a point.
func Aggregate(e *tensor.Edge, agg Agg) (*tensor.Edge, error) {
	if e.K == 0 {
		return nil, &tensor.ShapeError{Op: "nn.Aggregate", Expected: tensor.Shape{e.N, -1, e.C}, Actual: e.Shape()}
	}

	var width int
	switch agg {
	case AggMax, AggMean:
		width = e.C
	case AggMaxMean:
		width = 2 * e.C
	default:
		return nil, fmt.Errorf("nn.Aggregate: unknown aggregation %v", agg)
	}

	out := tensor.NewEdge(e.N, 1, width)
	inv := 1 / float32(e.K)
	for i := range e.N {
		dst := out.Slot(i, 0)
		switch agg {
		case AggMax:
			maxSlots(e, i, dst)
		case AggMean:
			meanSlots(e, i, dst, inv)
		case AggMaxMean:
			maxSlots(e, i, dst[:e.C])
			meanSlots(e, i, dst[e.C:], inv)
		}
	}
	return out, nil
}

func maxSlots(e *tensor.Edge, i int, dst []float32) {
	copy(dst, e.Slot(i, 0))
	for j := 1; j < e.K; j++ {
		simd.MaxInPlace(dst, e.Slot(i, j))
	}
}

func meanSlots(e *tensor.Edge, i int, dst []float32, inv float32) {
	// Slots are summed in float64 in slot order. For moderately scaled
	// inputs the result does not depend on that order.
	acc := make([]float64, e.C)
	for j := range e.K {
		for c, v := range e.Slot(i, j) {
			acc[c] += float64(v)
		}
	}
	for c, v := range acc {
		dst[c] = float32(v) * inv
	}
}

// ReduceMax returns the column-wise maximum of x as a [1, C] matrix.
func ReduceMax(x *tensor.Matrix) (*tensor.Matrix, error) {
	if x.Rows == 0 {
		return nil, &tensor.ShapeError{Op: "nn.ReduceMax", Expected: tensor.Shape{-1, x.Cols}, Actual: x.Shape()}
	}
	out := tensor.NewMatrix(1, x.Cols)
	copy(out.Data, x.Row(0))
	for r := 1; r < x.Rows; r++ {
		simd.MaxInPlace(out.Data, x.Row(r))
	}
	return out, nil
}

package distance

import (
	"context"
	"runtime"

	"github.com/hupe1980/dgcnn/internal/simd"
	"github.com/hupe1980/dgcnn/tensor"
	"golang.org/x/sync/errgroup"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	return simd.Dot(a, b)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	return simd.SquaredL2(a, b)
}

// Pairwise returns the [N, N] squared-distance matrix of the rows of x.
func Pairwise(x *tensor.Matrix) *tensor.Matrix {
	n := x.Rows
	out := tensor.NewMatrix(n, n)
	if n == 0 {
		return out
	}

	norms := make([]float32, n)
	for i := range n {
		norms[i] = simd.SumSquares(x.Row(i))
	}

	// Upper triangle, mirrored.
	dots := make([]float32, n)
	for i := range n {
		xi := x.Row(i)
		rest := n - i
		simd.DotBatch(xi, x.Data[i*x.Cols:], x.Cols, dots[:rest])
		if x.Cols == 0 {
			clear(dots[:rest])
		}
		row := out.Row(i)
		for off := range rest {
			j := i + off
			d := norms[i] + norms[j] - 2*dots[off]
			row[j] = d
			out.Data[j*n+i] = d
		}
	}
	return out
}

// PairwiseBatch computes Pairwise for every cloud in xs concurrently.
// workers <= 0 means GOMAXPROCS.
func PairwiseBatch(ctx context.Context, xs []*tensor.Matrix, workers int) ([]*tensor.Matrix, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]*tensor.Matrix, len(xs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b, x := range xs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[b] = Pairwise(x)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

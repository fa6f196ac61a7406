package distance

import (
	"context"
	"math"
	"testing"

	"github.com/hupe1980/dgcnn/tensor"
	"github.com/hupe1980/dgcnn/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 32},
		{"Zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"Mixed", []float32{1, -1, 2}, []float32{1, 1, -2}, -4},
		{"Empty", []float32{}, []float32{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Dot(tt.a, tt.b), 1e-5)
		})
	}
}

func TestSquaredL2(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 27},
		{"Identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"Mixed", []float32{1, -1}, []float32{-1, 1}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, SquaredL2(tt.a, tt.b), 1e-5)
		})
	}
}

func TestPairwise(t *testing.T) {
	x, err := tensor.FromRows([][]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {5, 5, 5}})
	require.NoError(t, err)

	d := Pairwise(x)

	assert.Equal(t, tensor.Shape{4, 4}, d.Shape())
	assert.Equal(t, float32(1), d.At(0, 1))
	assert.Equal(t, float32(1), d.At(0, 2))
	assert.Equal(t, float32(2), d.At(1, 2))
	assert.Equal(t, float32(75), d.At(0, 3))
	assert.Equal(t, float32(66), d.At(1, 3))
}

func TestPairwiseSymmetricZeroDiagonal(t *testing.T) {
	rng := testutil.NewRNG(7)
	for _, dim := range []int{1, 3, 16, 64} {
		x := rng.PointCloud(50, dim, 10)
		d := Pairwise(x)
		for i := range x.Rows {
			assert.Equal(t, float32(0), d.At(i, i), "dim=%d i=%d", dim, i)
			for j := range x.Rows {
				require.Equal(t, d.At(i, j), d.At(j, i), "dim=%d (%d,%d)", dim, i, j)
				tol := 1e-4 * float64(1+Dot(x.Row(i), x.Row(i))+Dot(x.Row(j), x.Row(j)))
				assert.InDelta(t, SquaredL2(x.Row(i), x.Row(j)), d.At(i, j), tol)
			}
		}
	}
}

func TestPairwiseNonFinitePropagates(t *testing.T) {
	x, _ := tensor.FromRows([][]float32{{0, 0}, {float32(math.NaN()), 1}, {1, 1}})
	d := Pairwise(x)

	assert.True(t, math.IsNaN(float64(d.At(0, 1))))
	assert.True(t, math.IsNaN(float64(d.At(1, 1))))
	assert.Equal(t, float32(2), d.At(0, 2))
}

func TestPairwiseEmpty(t *testing.T) {
	d := Pairwise(tensor.NewMatrix(0, 3))
	assert.Equal(t, tensor.Shape{0, 0}, d.Shape())
}

func TestPairwiseBatch(t *testing.T) {
	rng := testutil.NewRNG(1)
	xs := []*tensor.Matrix{rng.PointCloud(10, 3, 1), rng.PointCloud(12, 3, 1), rng.PointCloud(8, 3, 1)}

	out, err := PairwiseBatch(context.Background(), xs, 2)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for b := range xs {
		assert.Equal(t, Pairwise(xs[b]).Data, out[b].Data)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = PairwiseBatch(ctx, xs, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

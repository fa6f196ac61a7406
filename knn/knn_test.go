package knn

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/hupe1980/dgcnn/distance"
	"github.com/hupe1980/dgcnn/tensor"
	"github.com/hupe1980/dgcnn/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fourPoints(t *testing.T) *tensor.Matrix {
	t.Helper()
	x, err := tensor.FromRows([][]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {5, 5, 5}})
	require.NoError(t, err)
	return x
}

func TestGraphFourPoints(t *testing.T) {
	x := fourPoints(t)

	t.Run("SelfIncluded", func(t *testing.T) {
		tbl, err := Graph(x, 2)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{4, 2}, tbl.Shape())
		assert.Equal(t, []int32{0, 1}, tbl.Row(0))
		assert.Equal(t, []int32{1, 0}, tbl.Row(1))
		assert.Equal(t, []int32{2, 0}, tbl.Row(2))
		assert.Equal(t, []int32{3, 1}, tbl.Row(3))
		assert.Equal(t, []float32{0, 66}, tbl.RowDistances(3))
	})

	t.Run("SelfExcluded", func(t *testing.T) {
		tbl, err := Graph(x, 2, WithExcludeSelf())
		require.NoError(t, err)
		assert.Equal(t, []int32{1, 2}, tbl.Row(0))
		assert.Equal(t, []int32{0, 2}, tbl.Row(1))
		assert.Equal(t, []int32{0, 1}, tbl.Row(2))
		assert.Equal(t, []int32{1, 2}, tbl.Row(3))
	})
}

func TestSelectTies(t *testing.T) {
	dist, err := tensor.FromRows([][]float32{
		{0, 1, 1, 1},
		{1, 0, 1, 1},
		{1, 1, 0, 1},
		{1, 1, 1, 0},
	})
	require.NoError(t, err)

	tbl, err := Select(dist, 3)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2}, tbl.Row(0))
	assert.Equal(t, []int32{3, 0, 1}, tbl.Row(3))

	tbl, err = Select(dist, 2, WithExcludeSelf())
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, tbl.Row(0))
	assert.Equal(t, []int32{0, 1}, tbl.Row(3))
}

func TestSelectNaNRanksLast(t *testing.T) {
	nan := float32(math.NaN())
	dist, err := tensor.FromRows([][]float32{
		{0, nan, 2},
		{nan, 0, nan},
		{2, nan, 0},
	})
	require.NoError(t, err)

	tbl, err := Select(dist, 2)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 2}, tbl.Row(0))
	assert.Equal(t, []int32{1, 0}, tbl.Row(1))
}

func TestSelectMatchesBruteForce(t *testing.T) {
	rng := testutil.NewRNG(7)
	for _, tc := range []struct{ n, dim, k int }{
		{16, 3, 1},
		{64, 3, 5},
		{50, 8, 20},
		{33, 2, 32},
	} {
		// Integer coordinates keep both distance forms exact, so ties
		// must resolve identically.
		x := tensor.NewMatrix(tc.n, tc.dim)
		for i := range x.Data {
			x.Data[i] = float32(rng.Intn(8))
		}
		tbl, err := Graph(x, tc.k)
		require.NoError(t, err)

		want := testutil.BruteForceKNN(x, tc.k)
		for i := range tc.n {
			assert.Equal(t, want[i], tbl.Row(i), "n=%d k=%d row %d", tc.n, tc.k, i)
		}
	}
}

func TestSelectTopKProperty(t *testing.T) {
	rng := testutil.NewRNG(11)
	x := rng.GaussianCloud(40, 3)
	dist := distance.Pairwise(x)
	k := 6

	tbl, err := Select(dist, k)
	require.NoError(t, err)

	for i := range x.Rows {
		row := tbl.Row(i)
		kth := dist.At(i, int(row[k-1]))
		for j := range x.Rows {
			if slices.Contains(row, int32(j)) {
				continue
			}
			d := dist.At(i, j)
			assert.True(t, d > kth || (d == kth && int32(j) > row[k-1]),
				"row %d: unselected %d (%v) beats kth (%v)", i, j, d, kth)
		}
		ds := tbl.RowDistances(i)
		assert.True(t, slices.IsSorted(ds), "row %d distances not ascending", i)
	}
}

func TestSelectDeterministic(t *testing.T) {
	x := testutil.NewRNG(3).PointCloud(128, 3, 1)
	a, err := Graph(x, 10)
	require.NoError(t, err)
	b, err := Graph(x.Clone(), 10)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.Empty(t, Diff(a, b))
}

func TestGraphLocalStability(t *testing.T) {
	rng := testutil.NewRNG(19)
	x := rng.PointCloud(60, 3, 10)
	k := 5
	const delta = 1e-3

	dist := distance.Pairwise(x)
	before, err := Select(dist, k)
	require.NoError(t, err)

	moved := x.Clone()
	p := 17
	moved.Row(p)[0] += delta

	after, err := Graph(moved, k)
	require.NoError(t, err)

	changed := Diff(before, after)
	assert.Less(t, len(changed), x.Rows/2)
	for _, i := range changed {
		// A row may only change when its gap between the kth and (k+1)th
		// Euclidean distance is within 2·delta.
		d := slices.Clone(dist.Row(i))
		slices.Sort(d)
		gap := math.Sqrt(float64(max(d[k], 0))) - math.Sqrt(float64(max(d[k-1], 0)))
		assert.LessOrEqual(t, gap, 2*delta+5e-4, "row %d changed with gap %v", i, gap)
	}
}

func TestInvalidK(t *testing.T) {
	x := fourPoints(t)
	for _, k := range []int{0, -1, 4, 10} {
		_, err := Graph(x, k)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidK))

		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, k, cfgErr.K)
		assert.Equal(t, 4, cfgErr.N)
	}
}

func TestSelectNonSquare(t *testing.T) {
	_, err := Select(tensor.NewMatrix(3, 4), 1)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestGraphBatch(t *testing.T) {
	rng := testutil.NewRNG(5)
	xs := []*tensor.Matrix{rng.PointCloud(20, 3, 1), rng.PointCloud(20, 3, 1), rng.PointCloud(20, 3, 1)}

	tables, err := GraphBatch(context.Background(), xs, 4, WithWorkers(2))
	require.NoError(t, err)
	require.Len(t, tables, 3)
	for b, x := range xs {
		single, err := Graph(x, 4)
		require.NoError(t, err)
		assert.True(t, single.Equal(tables[b]))
	}

	_, err = GraphBatch(context.Background(), xs, 20)
	assert.ErrorIs(t, err, ErrInvalidK)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = GraphBatch(ctx, xs, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromRowsAndDiff(t *testing.T) {
	a, err := FromRows([][]int32{{0, 1}, {1, 2}, {2, 0}})
	require.NoError(t, err)
	b, err := FromRows([][]int32{{1, 0}, {1, 0}, {2, 0}})
	require.NoError(t, err)

	assert.False(t, a.Equal(b))
	assert.Equal(t, []int{1}, Diff(a, b))

	_, err = FromRows([][]int32{{0, 1}, {1}})
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
	_, err = FromRows([][]int32{{0, 3}})
	assert.Error(t, err)
}

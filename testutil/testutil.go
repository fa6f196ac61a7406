package testutil

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/hupe1980/dgcnn/internal/simd"
	"github.com/hupe1980/dgcnn/tensor"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniformRange fills dst with random values in range [minVal, maxVal).
func (r *RNG) FillUniformRange(dst []float32, minVal, maxVal float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := maxVal - minVal
	for i := range dst {
		dst[i] = minVal + r.rand.Float32()*span
	}
}

// PointCloud generates n points of dimension dim uniform in [-scale, scale).
func (r *RNG) PointCloud(n, dim int, scale float32) *tensor.Matrix {
	m := tensor.NewMatrix(n, dim)
	r.FillUniformRange(m.Data, -scale, scale)
	return m
}

// GaussianCloud generates n points of dimension dim from a standard normal distribution.
func (r *RNG) GaussianCloud(n, dim int) *tensor.Matrix {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := tensor.NewMatrix(n, dim)
	for i := range m.Data {
		m.Data[i] = float32(r.rand.NormFloat64())
	}
	return m
}

// ClusteredCloud generates n points around `clusters` random centers in [-1, 1)^dim.
// Each point's label is the index of its center. spread is the per-axis noise amplitude.
func (r *RNG) ClusteredCloud(n, dim, clusters int, spread float32) (*tensor.Matrix, []int32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	centers := make([]float32, clusters*dim)
	for i := range centers {
		centers[i] = r.rand.Float32()*2 - 1
	}

	m := tensor.NewMatrix(n, dim)
	labels := make([]int32, n)
	for i := range n {
		c := i % clusters
		labels[i] = int32(c)
		row := m.Row(i)
		for j := range row {
			row[j] = centers[c*dim+j] + (r.rand.Float32()*2-1)*spread
		}
	}
	return m, labels
}

// OneHot returns a one-hot vector of width n with index idx set.
func OneHot(idx, n int) []float32 {
	v := make([]float32, n)
	v[idx] = 1
	return v
}

// BruteForceKNN returns, for every row of x, the indices of its k nearest rows
// ordered by (squared distance, index). The row itself is included.
func BruteForceKNN(x *tensor.Matrix, k int) [][]int32 {
	type result struct {
		id   int32
		dist float32
	}

	out := make([][]int32, x.Rows)
	results := make([]result, x.Rows)
	for i := range x.Rows {
		for j := range x.Rows {
			results[j] = result{id: int32(j), dist: simd.SquaredL2(x.Row(i), x.Row(j))}
		}
		sort.SliceStable(results, func(a, b int) bool {
			return results[a].dist < results[b].dist
		})
		row := make([]int32, k)
		for j := range k {
			row[j] = results[j].id
		}
		out[i] = row
	}
	return out
}

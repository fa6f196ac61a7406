package queue

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLess(t *testing.T) {
	nan := float32(math.NaN())

	assert.True(t, Less(Item{Index: 5, Distance: 1}, Item{Index: 0, Distance: 2}))
	assert.True(t, Less(Item{Index: 1, Distance: 1}, Item{Index: 2, Distance: 1}))
	assert.False(t, Less(Item{Index: 2, Distance: 1}, Item{Index: 1, Distance: 1}))
	assert.True(t, Less(Item{Index: 9, Distance: float32(math.Inf(1))}, Item{Index: 0, Distance: nan}))
	assert.False(t, Less(Item{Index: 0, Distance: nan}, Item{Index: 1, Distance: 3}))
	assert.True(t, Less(Item{Index: 0, Distance: nan}, Item{Index: 1, Distance: nan}))
}

func TestTopK(t *testing.T) {
	q := NewTopK(3)
	for i, d := range []float32{5, 1, 4, 1, 3, 0, 9} {
		q.Push(Item{Index: int32(i), Distance: d})
	}

	out := q.Drain(make([]Item, 3))
	assert.Equal(t, []Item{{Index: 5, Distance: 0}, {Index: 1, Distance: 1}, {Index: 3, Distance: 1}}, out)
	assert.Equal(t, 0, q.Len())
}

func TestTopKMatchesSort(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := range 50 {
		n := 1 + rng.Intn(64)
		k := 1 + rng.Intn(n)
		items := make([]Item, n)
		for i := range items {
			// Coarse values force ties.
			items[i] = Item{Index: int32(i), Distance: float32(rng.Intn(8))}
		}

		q := NewTopK(k)
		for _, it := range items {
			q.Push(it)
		}
		got := q.Drain(make([]Item, k))

		sort.SliceStable(items, func(a, b int) bool { return Less(items[a], items[b]) })
		assert.Equal(t, items[:k], got, "trial %d", trial)
	}
}

func TestTopKZero(t *testing.T) {
	q := NewTopK(0)
	q.Push(Item{Index: 1, Distance: 1})
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain(nil))
}

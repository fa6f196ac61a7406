// Package queue provides the bounded heap used for top-k neighbor selection.
package queue

import "math"

// Item is a candidate neighbor.
type Item struct {
	Index    int32   // Index is the candidate's row in the distance matrix.
	Distance float32 // Distance is the priority of the item in the queue.
}

// Less orders items by (Distance, Index). NaN distances sort after every
// finite or infinite distance so they are selected last.
func Less(a, b Item) bool {
	an, bn := isNaN(a.Distance), isNaN(b.Distance)
	switch {
	case an && bn:
		return a.Index < b.Index
	case an:
		return false
	case bn:
		return true
	case a.Distance != b.Distance:
		return a.Distance < b.Distance
	default:
		return a.Index < b.Index
	}
}

func isNaN(f float32) bool { return math.IsNaN(float64(f)) }

// TopK keeps the k smallest items under Less.
// Internally it is a max-heap whose root is the worst retained item.
// Value-based storage, no allocations after construction.
type TopK struct {
	k     int
	items []Item
}

// NewTopK creates a selector retaining k items.
func NewTopK(k int) *TopK {
	return &TopK{k: k, items: make([]Item, 0, k)}
}

// Len returns the number of retained items.
func (q *TopK) Len() int { return len(q.items) }

// Reset clears the selector for reuse.
func (q *TopK) Reset() { q.items = q.items[:0] }

// Push offers an item. If the selector is full and the item is not better
// than the current worst, it is dropped.
func (q *TopK) Push(item Item) {
	if len(q.items) < q.k {
		q.items = append(q.items, item)
		q.siftUp(len(q.items) - 1)
		return
	}
	if q.k == 0 || !Less(item, q.items[0]) {
		return
	}
	q.items[0] = item
	q.siftDown(0)
}

// Drain writes the retained items into dst in ascending order and resets the selector.
// dst must have room for Len() items.
func (q *TopK) Drain(dst []Item) []Item {
	n := len(q.items)
	dst = dst[:n]
	for i := n - 1; i >= 0; i-- {
		dst[i] = q.items[0]
		last := len(q.items) - 1
		q.items[0] = q.items[last]
		q.items = q.items[:last]
		if last > 0 {
			q.siftDown(0)
		}
	}
	return dst
}

// worse reports whether items[i] should sit above items[j] in the max-heap.
func (q *TopK) worse(i, j int) bool {
	return Less(q.items[j], q.items[i])
}

func (q *TopK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !q.worse(i, p) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		r := l + 1
		if r < n && q.worse(r, l) {
			best = r
		}
		if !q.worse(best, i) {
			return
		}
		q.items[i], q.items[best] = q.items[best], q.items[i]
		i = best
	}
}

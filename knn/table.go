package knn

import (
	"fmt"
	"slices"

	"github.com/hupe1980/dgcnn/tensor"
)

// Table is an [N, K] neighbor index table.
// Row i lists the neighbors of point i ascending by (distance, index).
type Table struct {
	N       int
	K       int
	Indices []int32
	// Distances holds the distance of each selected neighbor, parallel to Indices.
	Distances []float32
}

// NewTable allocates an empty [n, k] table.
func NewTable(n, k int) *Table {
	return &Table{
		N:         n,
		K:         k,
		Indices:   make([]int32, n*k),
		Distances: make([]float32, n*k),
	}
}

// FromRows builds a table from explicit neighbor rows. Distances are left zero.
func FromRows(rows [][]int32) (*Table, error) {
	if len(rows) == 0 {
		return NewTable(0, 0), nil
	}
	t := NewTable(len(rows), len(rows[0]))
	for i, r := range rows {
		if len(r) != t.K {
			return nil, &tensor.ShapeError{Op: "knn.FromRows", Expected: tensor.Shape{t.K}, Actual: tensor.Shape{len(r)}}
		}
		for _, idx := range r {
			if idx < 0 || int(idx) >= t.N {
				return nil, fmt.Errorf("knn.FromRows: row %d: index %d out of range [0,%d)", i, idx, t.N)
			}
		}
		copy(t.Row(i), r)
	}
	return t, nil
}

// Shape returns [N, K].
func (t *Table) Shape() tensor.Shape { return tensor.Shape{t.N, t.K} }

// Row returns the neighbor indices of point i.
func (t *Table) Row(i int) []int32 {
	off := i * t.K
	return t.Indices[off : off+t.K : off+t.K]
}

// RowDistances returns the neighbor distances of point i.
func (t *Table) RowDistances(i int) []float32 {
	off := i * t.K
	return t.Distances[off : off+t.K : off+t.K]
}

// Equal reports whether both tables select the same indices in the same order.
func (t *Table) Equal(o *Table) bool {
	return t.N == o.N && t.K == o.K && slices.Equal(t.Indices, o.Indices)
}

// Diff returns the rows whose neighbor sets differ between a and b,
// ignoring order within a row. Tables of different shape differ everywhere.
func Diff(a, b *Table) []int {
	if a.N != b.N || a.K != b.K {
		rows := make([]int, max(a.N, b.N))
		for i := range rows {
			rows[i] = i
		}
		return rows
	}

	var rows []int
	ra := make([]int32, a.K)
	rb := make([]int32, b.K)
	for i := range a.N {
		copy(ra, a.Row(i))
		copy(rb, b.Row(i))
		slices.Sort(ra)
		slices.Sort(rb)
		if !slices.Equal(ra, rb) {
			rows = append(rows, i)
		}
	}
	return rows
}

package tensor

import (
	"fmt"
	"math"
)

// Matrix is a row-major [Rows, Cols] float32 matrix.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// NewMatrix allocates a zeroed rows x cols matrix.
// Panics if either dimension is negative.
func NewMatrix(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("tensor: invalid matrix shape [%d,%d]", rows, cols))
	}
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// FromRows copies rows into a new matrix. All rows must share a width.
func FromRows(rows [][]float32) (*Matrix, error) {
	if len(rows) == 0 {
		return NewMatrix(0, 0), nil
	}
	cols := len(rows[0])
	m := NewMatrix(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, &ShapeError{Op: "tensor.FromRows", Expected: Shape{cols}, Actual: Shape{len(r)}}
		}
		copy(m.Row(i), r)
	}
	return m, nil
}

// Shape returns [Rows, Cols].
func (m *Matrix) Shape() Shape { return Shape{m.Rows, m.Cols} }

// Row returns the i-th row as a slice aliasing the backing data.
func (m *Matrix) Row(i int) []float32 {
	off := i * m.Cols
	return m.Data[off : off+m.Cols : off+m.Cols]
}

// At returns element (i, j).
func (m *Matrix) At(i, j int) float32 { return m.Data[i*m.Cols+j] }

// Set assigns element (i, j).
func (m *Matrix) Set(i, j int, v float32) { m.Data[i*m.Cols+j] = v }

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	c := &Matrix{Rows: m.Rows, Cols: m.Cols, Data: make([]float32, len(m.Data))}
	copy(c.Data, m.Data)
	return c
}

// AllFinite reports whether every element is finite.
func (m *Matrix) AllFinite() bool {
	for _, v := range m.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}

// ConcatCols concatenates matrices along the column axis.
// All inputs must have the same number of rows.
func ConcatCols(ms ...*Matrix) (*Matrix, error) {
	if len(ms) == 0 {
		return NewMatrix(0, 0), nil
	}
	rows := ms[0].Rows
	cols := 0
	for _, m := range ms {
		if m.Rows != rows {
			return nil, &ShapeError{Op: "tensor.ConcatCols", Expected: Shape{rows, -1}, Actual: m.Shape()}
		}
		cols += m.Cols
	}
	out := NewMatrix(rows, cols)
	for i := range rows {
		dst := out.Row(i)
		off := 0
		for _, m := range ms {
			off += copy(dst[off:], m.Row(i))
		}
	}
	return out, nil
}

// Expand returns a matrix with the single-row m repeated rows times.
func Expand(m *Matrix, rows int) (*Matrix, error) {
	if m.Rows != 1 {
		return nil, &ShapeError{Op: "tensor.Expand", Expected: Shape{1, m.Cols}, Actual: m.Shape()}
	}
	out := NewMatrix(rows, m.Cols)
	for i := range rows {
		copy(out.Row(i), m.Data)
	}
	return out, nil
}

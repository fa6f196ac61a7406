package tensor

import "fmt"

// Edge is a row-major [N, K, C] tensor: for each of N points, K slots of C channels.
type Edge struct {
	N    int
	K    int
	C    int
	Data []float32
}

// NewEdge allocates a zeroed [n, k, c] tensor.
// Panics if any dimension is negative.
func NewEdge(n, k, c int) *Edge {
	if n < 0 || k < 0 || c < 0 {
		panic(fmt.Sprintf("tensor: invalid edge shape [%d,%d,%d]", n, k, c))
	}
	return &Edge{N: n, K: k, C: c, Data: make([]float32, n*k*c)}
}

// Shape returns [N, K, C].
func (e *Edge) Shape() Shape { return Shape{e.N, e.K, e.C} }

// Slot returns the channel vector of neighbor slot j of point i.
func (e *Edge) Slot(i, j int) []float32 {
	off := (i*e.K + j) * e.C
	return e.Data[off : off+e.C : off+e.C]
}

// Point returns all K slots of point i as one K*C slice.
func (e *Edge) Point(i int) []float32 {
	off := i * e.K * e.C
	return e.Data[off : off+e.K*e.C : off+e.K*e.C]
}

// Squeeze drops the singleton neighbor axis of an aggregated [N, 1, C] tensor.
// The returned matrix shares the backing data.
func (e *Edge) Squeeze() (*Matrix, error) {
	if e.K != 1 {
		return nil, &ShapeError{Op: "tensor.Edge.Squeeze", Expected: Shape{e.N, 1, e.C}, Actual: e.Shape()}
	}
	return &Matrix{Rows: e.N, Cols: e.C, Data: e.Data}, nil
}

// Unsqueeze views m as an [N, 1, C] edge tensor sharing the backing data.
func Unsqueeze(m *Matrix) *Edge {
	return &Edge{N: m.Rows, K: 1, C: m.Cols, Data: m.Data}
}

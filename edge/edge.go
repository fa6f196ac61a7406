// Package edge gathers neighbor features along a KNN table and builds the
// per-edge inputs of a graph convolution.
package edge

import (
	"fmt"

	"github.com/hupe1980/dgcnn/knn"
	"github.com/hupe1980/dgcnn/tensor"
)

// Mode selects the edge feature layout.
type Mode int

const (
	// GraphFeature emits [center, neighbor-center], 2C channels.
	GraphFeature Mode = iota
	// EdgeFeature emits [neighbor-center], C channels.
	EdgeFeature
)

func (m Mode) String() string {
	switch m {
	case GraphFeature:
		return "graph"
	case EdgeFeature:
		return "edge"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Channels returns the output width for c input channels.
func (m Mode) Channels(c int) int {
	if m == GraphFeature {
		return 2 * c
	}
	return c
}

// Build returns the [N, K, C'] edge tensor of features under table.
func Build(features *tensor.Matrix, table *knn.Table, mode Mode) (*tensor.Edge, error) {
	if mode != GraphFeature && mode != EdgeFeature {
		return nil, fmt.Errorf("edge.Build: unknown mode %v", mode)
	}
	if err := tensor.Check("edge.Build", tensor.Shape{features.Rows, -1}, table.Shape()); err != nil {
		return nil, err
	}

	n, k, c := features.Rows, table.K, features.Cols
	out := tensor.NewEdge(n, k, mode.Channels(c))
	for i := range n {
		center := features.Row(i)
		for j, idx := range table.Row(i) {
			if idx < 0 || int(idx) >= n {
				return nil, fmt.Errorf("edge.Build: point %d slot %d: index %d out of range [0,%d)", i, j, idx, n)
			}
			nb := features.Row(int(idx))
			slot := out.Slot(i, j)
			diff := slot
			if mode == GraphFeature {
				copy(slot[:c], center)
				diff = slot[c:]
			}
			for ch := range c {
				diff[ch] = nb[ch] - center[ch]
			}
		}
	}
	return out, nil
}

// BuildSqueezed is Build over an aggregated [N, 1, C] tensor.
func BuildSqueezed(features *tensor.Edge, table *knn.Table, mode Mode) (*tensor.Edge, error) {
	m, err := features.Squeeze()
	if err != nil {
		return nil, err
	}
	return Build(m, table, mode)
}

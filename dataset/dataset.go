package dataset

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/hupe1980/dgcnn/tensor"
)

// ErrIndexOutOfRange is returned by Sample for an index outside [0, Len).
var ErrIndexOutOfRange = errors.New("dataset: index out of range")

// Sample is one labeled point cloud.
type Sample struct {
	// Points is the [N, D] coordinate matrix.
	Points *tensor.Matrix
	// Labels holds the part id of every point.
	Labels []int32
	// Category is the object category of the cloud.
	Category int
}

// Validate checks that Labels has one entry per point.
func (s Sample) Validate() error {
	if s.Points == nil {
		return errors.New("dataset: sample without points")
	}
	if len(s.Labels) != s.Points.Rows {
		return &tensor.ShapeError{Op: "dataset.Sample", Expected: tensor.Shape{s.Points.Rows}, Actual: tensor.Shape{len(s.Labels)}}
	}
	return nil
}

// Dataset is a random-access collection of samples.
type Dataset interface {
	Len() int
	Sample(i int) (Sample, error)
}

// Slice is an in-memory Dataset.
type Slice []Sample

// Len returns the number of samples.
func (s Slice) Len() int { return len(s) }

// Sample returns sample i.
func (s Slice) Sample(i int) (Sample, error) {
	if i < 0 || i >= len(s) {
		return Sample{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return s[i], nil
}

// Resample returns a copy of s with exactly n points. Clouds with more
// points are subsampled without replacement; smaller clouds are padded by
// repeating randomly chosen points.
func Resample(s Sample, n int, rng *rand.Rand) (Sample, error) {
	if err := s.Validate(); err != nil {
		return Sample{}, err
	}
	if s.Points.Rows == 0 {
		return Sample{}, errors.New("dataset: cannot resample an empty cloud")
	}

	var idx []int
	if s.Points.Rows >= n {
		idx = rng.Perm(s.Points.Rows)[:n]
	} else {
		idx = make([]int, n)
		for i := range idx {
			if i < s.Points.Rows {
				idx[i] = i
			} else {
				idx[i] = rng.Intn(s.Points.Rows)
			}
		}
	}

	out := Sample{
		Points:   tensor.NewMatrix(n, s.Points.Cols),
		Labels:   make([]int32, n),
		Category: s.Category,
	}
	for i, j := range idx {
		copy(out.Points.Row(i), s.Points.Row(j))
		out.Labels[i] = s.Labels[j]
	}
	return out, nil
}

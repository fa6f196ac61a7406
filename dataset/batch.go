package dataset

import (
	"fmt"
	"math/rand"

	"github.com/hupe1980/dgcnn/tensor"
)

// Batch is a group of samples in network input layout.
type Batch struct {
	Points     []*tensor.Matrix
	Labels     [][]int32
	Categories []int
	// OneHot is the [B][numCategories] one-hot category encoding.
	OneHot [][]float32
}

// Len returns the batch size.
func (b *Batch) Len() int { return len(b.Points) }

// Slice returns the samples [lo, hi) as a batch sharing b's storage.
func (b *Batch) Slice(lo, hi int) *Batch {
	return &Batch{
		Points:     b.Points[lo:hi],
		Labels:     b.Labels[lo:hi],
		Categories: b.Categories[lo:hi],
		OneHot:     b.OneHot[lo:hi],
	}
}

// MakeBatch assembles samples into a batch.
func MakeBatch(samples []Sample, numCategories int) (*Batch, error) {
	b := &Batch{
		Points:     make([]*tensor.Matrix, len(samples)),
		Labels:     make([][]int32, len(samples)),
		Categories: make([]int, len(samples)),
		OneHot:     make([][]float32, len(samples)),
	}
	for i, s := range samples {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("dataset: sample %d: %w", i, err)
		}
		if s.Category < 0 || s.Category >= numCategories {
			return nil, fmt.Errorf("dataset: sample %d: category %d outside [0, %d)", i, s.Category, numCategories)
		}
		b.Points[i] = s.Points
		b.Labels[i] = s.Labels
		b.Categories[i] = s.Category
		b.OneHot[i] = make([]float32, numCategories)
		b.OneHot[i][s.Category] = 1
	}
	return b, nil
}

// Sampler yields batches of sample indices, reshuffling each epoch.
type Sampler struct {
	n       int
	shuffle bool
	rng     *rand.Rand
	order   []int
	pos     int
	epoch   int
}

// NewSampler creates a sampler over n samples.
func NewSampler(n int, shuffle bool, seed int64) *Sampler {
	s := &Sampler{n: n, shuffle: shuffle, rng: rand.New(rand.NewSource(seed))}
	s.reset()
	return s
}

func (s *Sampler) reset() {
	if s.shuffle {
		s.order = s.rng.Perm(s.n)
	} else {
		s.order = make([]int, s.n)
		for i := range s.order {
			s.order[i] = i
		}
	}
	s.pos = 0
}

// Epoch returns the number of completed passes over the data.
func (s *Sampler) Epoch() int { return s.epoch }

// Next returns the next size indices, wrapping into a new epoch as needed.
func (s *Sampler) Next(size int) []int {
	out := make([]int, 0, size)
	for len(out) < size && s.n > 0 {
		if s.pos == len(s.order) {
			s.epoch++
			s.reset()
		}
		out = append(out, s.order[s.pos])
		s.pos++
	}
	return out
}

// Load reads and optionally resamples the samples at idx.
func Load(ds Dataset, idx []int, numPoints int, rng *rand.Rand) ([]Sample, error) {
	samples := make([]Sample, len(idx))
	for i, j := range idx {
		s, err := ds.Sample(j)
		if err != nil {
			return nil, err
		}
		if numPoints > 0 && s.Points != nil && s.Points.Rows != numPoints {
			if s, err = Resample(s, numPoints, rng); err != nil {
				return nil, fmt.Errorf("dataset: sample %d: %w", j, err)
			}
		}
		samples[i] = s
	}
	return samples, nil
}

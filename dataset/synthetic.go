package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/hupe1980/dgcnn/metric"
	"github.com/hupe1980/dgcnn/tensor"
)

// SyntheticConfig describes a generated dataset.
type SyntheticConfig struct {
	NumSamples    int
	NumPoints     int
	PointDim      int
	NumCategories int
	NumParts      int
	// Noise is the standard deviation of points around their part center.
	Noise float64
	Seed  int64
}

// DefaultSyntheticConfig returns a small ShapeNet-shaped configuration.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		NumSamples:    64,
		NumPoints:     2048,
		PointDim:      3,
		NumCategories: 16,
		NumParts:      50,
		Noise:         0.08,
		Seed:          1,
	}
}

// Synthetic generates clouds made of one Gaussian blob per part. The blob
// layout depends on the category, so both category and part are learnable
// from geometry. Sample i is a pure function of the seed and i.
type Synthetic struct {
	cfg   SyntheticConfig
	parts metric.PartTable
}

// NewSynthetic validates cfg and creates the dataset.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.NumSamples < 0 || cfg.NumPoints <= 0 || cfg.PointDim <= 0 {
		return nil, errors.New("dataset: synthetic sizes must be positive")
	}
	if cfg.Noise < 0 {
		return nil, fmt.Errorf("dataset: negative noise %v", cfg.Noise)
	}
	parts := metric.DefaultPartTable(cfg.NumCategories, cfg.NumParts)
	if parts == nil {
		var err error
		if parts, err = metric.SplitParts(cfg.NumCategories, cfg.NumParts); err != nil {
			return nil, err
		}
	}
	return &Synthetic{cfg: cfg, parts: parts}, nil
}

// Len returns the number of samples.
func (s *Synthetic) Len() int { return s.cfg.NumSamples }

// Parts returns the part ids of category c.
func (s *Synthetic) Parts(c int) []int32 { return s.parts[c] }

// PartTable returns the part ids of every category.
func (s *Synthetic) PartTable() metric.PartTable { return s.parts }

// Sample generates sample i.
func (s *Synthetic) Sample(i int) (Sample, error) {
	if i < 0 || i >= s.cfg.NumSamples {
		return Sample{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	rng := rand.New(rand.NewSource(s.cfg.Seed*1_000_003 + int64(i)))
	category := i % s.cfg.NumCategories
	parts := s.parts[category]

	centers := make([][]float64, len(parts))
	phase := 2 * math.Pi * float64(category) / float64(s.cfg.NumCategories)
	for j := range centers {
		angle := phase + 2*math.Pi*float64(j)/float64(len(parts))
		c := make([]float64, s.cfg.PointDim)
		c[0] = math.Cos(angle)
		if s.cfg.PointDim > 1 {
			c[1] = math.Sin(angle)
		}
		if s.cfg.PointDim > 2 {
			c[2] = 0.5 * float64(j%2) * (1 + float64(category%3))
		}
		centers[j] = c
	}

	out := Sample{
		Points:   tensor.NewMatrix(s.cfg.NumPoints, s.cfg.PointDim),
		Labels:   make([]int32, s.cfg.NumPoints),
		Category: category,
	}
	for p := range s.cfg.NumPoints {
		j := p % len(parts)
		row := out.Points.Row(p)
		for d := range row {
			row[d] = float32(centers[j][d] + rng.NormFloat64()*s.cfg.Noise)
		}
		out.Labels[p] = parts[j]
	}
	return out, nil
}

package network

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/hupe1980/dgcnn/knn"
)

// ErrInvalidConfig is returned for configurations that cannot build a network.
var ErrInvalidConfig = errors.New("network: invalid config")

// Widths holds the channel widths of every layer group.
type Widths struct {
	TransformEdge   int    // first alignment edge conv
	TransformConv   int    // second alignment conv
	TransformGlobal int    // alignment global feature
	TransformFC     [2]int // alignment fully connected layers
	Edge            int    // every stage conv
	Global          int    // terminal conv over the stage outputs
	Label           int    // category label expansion
	Head            [3]int // segmentation head convs
}

// DefaultWidths returns the widths of the reference architecture.
func DefaultWidths() Widths {
	return Widths{
		TransformEdge:   64,
		TransformConv:   128,
		TransformGlobal: 1024,
		TransformFC:     [2]int{512, 256},
		Edge:            64,
		Global:          1024,
		Label:           128,
		Head:            [3]int{256, 256, 128},
	}
}

// Config describes the network and the shapes it accepts.
type Config struct {
	// BatchSize is the number of clouds per Forward call. 0 accepts any.
	BatchSize int
	// NumPoints is the number of points per cloud.
	NumPoints int
	// PointDim is the coordinate dimension (3 for xyz).
	PointDim int
	// NumCategories is the width of the one-hot category label.
	NumCategories int
	// NumParts is the number of output part classes.
	NumParts int
	// K is the neighbor count of every graph.
	K int
	// ExcludeSelf removes each point from its own neighborhood.
	ExcludeSelf bool
	// DropoutKeep is the keep probability of the head dropout layers.
	DropoutKeep float32
	// WeightDecay is the L2 scale applied to every weight tensor.
	WeightDecay float32
	// Seed drives weight initialization.
	Seed int64
	// Workers bounds the clouds processed concurrently. 0 means GOMAXPROCS.
	Workers int

	Widths Widths
}

// DefaultConfig returns the ShapeNet part segmentation setup.
func DefaultConfig() Config {
	return Config{
		BatchSize:     0,
		NumPoints:     2048,
		PointDim:      3,
		NumCategories: 16,
		NumParts:      50,
		K:             5,
		DropoutKeep:   0.6,
		WeightDecay:   0,
		Seed:          1,
		Widths:        DefaultWidths(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.BatchSize < 0:
		return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, c.BatchSize)
	case c.PointDim <= 0:
		return fmt.Errorf("%w: point dim %d", ErrInvalidConfig, c.PointDim)
	case c.NumCategories <= 0:
		return fmt.Errorf("%w: %d categories", ErrInvalidConfig, c.NumCategories)
	case c.NumParts <= 0:
		return fmt.Errorf("%w: %d parts", ErrInvalidConfig, c.NumParts)
	case c.DropoutKeep <= 0 || c.DropoutKeep > 1:
		return fmt.Errorf("%w: dropout keep %v", ErrInvalidConfig, c.DropoutKeep)
	case c.WeightDecay < 0:
		return fmt.Errorf("%w: weight decay %v", ErrInvalidConfig, c.WeightDecay)
	case c.Workers < 0:
		return fmt.Errorf("%w: %d workers", ErrInvalidConfig, c.Workers)
	}
	if err := knn.Validate(c.K, c.NumPoints); err != nil {
		return err
	}

	w := c.Widths
	for _, v := range []int{
		w.TransformEdge, w.TransformConv, w.TransformGlobal, w.TransformFC[0], w.TransformFC[1],
		w.Edge, w.Global, w.Label, w.Head[0], w.Head[1], w.Head[2],
	} {
		if v <= 0 {
			return fmt.Errorf("%w: widths %+v", ErrInvalidConfig, w)
		}
	}
	return nil
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// headInput returns the width of the per-point concatenation fed to the head.
func (c Config) headInput() int {
	w := c.Widths
	global := w.Global + w.Label
	perStage := 3 * w.Edge // max, mean, fused output
	return global + 3*perStage + w.Global
}

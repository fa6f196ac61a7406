package nn

import (
	"fmt"
	"math/rand"
)

// Mode is the execution mode of a forward pass.
type Mode int

const (
	// Eval disables dropout and statistics collection.
	Eval Mode = iota
	// Train enables dropout and reports batch statistics.
	Train
)

func (m Mode) String() string {
	switch m {
	case Eval:
		return "eval"
	case Train:
		return "train"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// StatsObserver receives the per-channel batch moments of every batch-norm
// layer during a training forward pass. Implementations must be safe for
// concurrent use.
type StatsObserver interface {
	ObserveBatchStats(layer string, mean, variance []float32)
}

// Context carries per-pass state. A Context must not be shared between
// concurrent forward passes.
type Context struct {
	Mode  Mode
	Stats StatsObserver

	rng *rand.Rand
}

// NewContext returns a context for one forward pass. The seed drives dropout.
func NewContext(mode Mode, seed int64, stats StatsObserver) *Context {
	return &Context{
		Mode:  mode,
		Stats: stats,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Training reports whether the pass runs in Train mode.
func (c *Context) Training() bool { return c != nil && c.Mode == Train }

func (c *Context) observe(layer string, mean, variance []float32) {
	if c.Training() && c.Stats != nil {
		c.Stats.ObserveBatchStats(layer, mean, variance)
	}
}

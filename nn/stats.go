package nn

import (
	"fmt"
	"sort"
	"sync"
)

// StatsAccumulator is a StatsObserver that averages the batch moments
// reported by concurrent forward passes and folds them into the running
// statistics of a Registry.
type StatsAccumulator struct {
	mu     sync.Mutex
	layers map[string]*layerStats
}

type layerStats struct {
	mean     []float64
	variance []float64
	count    int
}

// NewStatsAccumulator creates an empty accumulator.
func NewStatsAccumulator() *StatsAccumulator {
	return &StatsAccumulator{layers: make(map[string]*layerStats)}
}

// ObserveBatchStats implements StatsObserver.
func (a *StatsAccumulator) ObserveBatchStats(layer string, mean, variance []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ls, ok := a.layers[layer]
	if !ok {
		ls = &layerStats{mean: make([]float64, len(mean)), variance: make([]float64, len(variance))}
		a.layers[layer] = ls
	}
	for i, v := range mean[:min(len(mean), len(ls.mean))] {
		ls.mean[i] += float64(v)
	}
	for i, v := range variance[:min(len(variance), len(ls.variance))] {
		ls.variance[i] += float64(v)
	}
	ls.count++
}

// Layers returns the names of the layers observed so far, sorted.
func (a *StatsAccumulator) Layers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.layers))
	for name := range a.layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply folds the averaged moments into reg's batch-norm layers with the
// given decay and resets the accumulator.
func (a *StatsAccumulator) Apply(reg *Registry, decay float32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, ls := range a.layers {
		bn, ok := reg.Norm(name)
		if !ok {
			return fmt.Errorf("nn: statistics for unknown batch-norm layer %q", name)
		}
		mean := make([]float32, len(ls.mean))
		variance := make([]float32, len(ls.variance))
		for i := range mean {
			mean[i] = float32(ls.mean[i] / float64(ls.count))
		}
		for i := range variance {
			variance[i] = float32(ls.variance[i] / float64(ls.count))
		}
		if err := bn.Update(mean, variance, decay); err != nil {
			return err
		}
	}
	clear(a.layers)
	return nil
}

// Reset discards the accumulated moments.
func (a *StatsAccumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.layers)
}

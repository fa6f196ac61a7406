package dgcnn

import (
	"math"
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    forwardHistogram prometheus.Histogram
//	    lossGauge        prometheus.Gauge
//	}
//
//	func (p *PrometheusCollector) RecordStep(step int64, loss float64, duration time.Duration, err error) {
//	    p.lossGauge.Set(loss)
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordForward is called after each batched forward pass.
	// clouds is the batch size, err is nil if successful.
	RecordForward(clouds int, duration time.Duration, err error)

	// RecordGraph is called after each standalone neighbor graph
	// computation over points points with k neighbors.
	RecordGraph(points, k int, duration time.Duration, err error)

	// RecordStep is called after each training step.
	RecordStep(step int64, loss float64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordForward(int, time.Duration, error)         {}
func (NoopMetricsCollector) RecordGraph(int, int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordStep(int64, float64, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ForwardCount      atomic.Int64
	ForwardErrors     atomic.Int64
	ForwardClouds     atomic.Int64
	ForwardTotalNanos atomic.Int64
	GraphCount        atomic.Int64
	GraphErrors       atomic.Int64
	GraphPoints       atomic.Int64
	GraphTotalNanos   atomic.Int64
	StepCount         atomic.Int64
	StepErrors        atomic.Int64
	StepTotalNanos    atomic.Int64
	LastStep          atomic.Int64
	lastLossBits      atomic.Uint64
}

// RecordForward implements MetricsCollector.
func (b *BasicMetricsCollector) RecordForward(clouds int, duration time.Duration, err error) {
	b.ForwardCount.Add(1)
	b.ForwardTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ForwardErrors.Add(1)
		return
	}
	b.ForwardClouds.Add(int64(clouds))
}

// RecordGraph implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGraph(points, k int, duration time.Duration, err error) {
	b.GraphCount.Add(1)
	b.GraphTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.GraphErrors.Add(1)
		return
	}
	b.GraphPoints.Add(int64(points))
}

// RecordStep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStep(step int64, loss float64, duration time.Duration, err error) {
	b.StepCount.Add(1)
	b.StepTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.StepErrors.Add(1)
		return
	}
	b.LastStep.Store(step)
	b.lastLossBits.Store(math.Float64bits(loss))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ForwardCount:    b.ForwardCount.Load(),
		ForwardErrors:   b.ForwardErrors.Load(),
		ForwardClouds:   b.ForwardClouds.Load(),
		ForwardAvgNanos: avg(b.ForwardTotalNanos.Load(), b.ForwardCount.Load()),
		GraphCount:      b.GraphCount.Load(),
		GraphErrors:     b.GraphErrors.Load(),
		GraphPoints:     b.GraphPoints.Load(),
		GraphAvgNanos:   avg(b.GraphTotalNanos.Load(), b.GraphCount.Load()),
		StepCount:       b.StepCount.Load(),
		StepErrors:      b.StepErrors.Load(),
		StepAvgNanos:    avg(b.StepTotalNanos.Load(), b.StepCount.Load()),
		LastStep:        b.LastStep.Load(),
		LastLoss:        math.Float64frombits(b.lastLossBits.Load()),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ForwardCount    int64
	ForwardErrors   int64
	ForwardClouds   int64
	ForwardAvgNanos int64
	GraphCount      int64
	GraphErrors     int64
	GraphPoints     int64
	GraphAvgNanos   int64
	StepCount       int64
	StepErrors      int64
	StepAvgNanos    int64
	LastStep        int64
	LastLoss        float64
}

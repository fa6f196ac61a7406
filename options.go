package dgcnn

import (
	"log/slog"

	"github.com/hupe1980/dgcnn/metric"
	"github.com/hupe1980/dgcnn/resource"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	rc               *resource.Controller
	excludeSelf      bool
	workers          int
	partTable        metric.PartTable
}

// Option configures Segmenter construction.
type Option func(*options)

// WithResourceController bounds the memory of concurrently live distance
// matrices. A nil controller imposes no limit.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithExcludeSelf removes each point from its own neighborhood in Graph.
// Forward passes follow network.Config.ExcludeSelf.
func WithExcludeSelf() Option {
	return func(o *options) {
		o.excludeSelf = true
	}
}

// WithWorkers bounds the number of rows ranked concurrently by Graph.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithPartTable restricts predictions of each category to its parts and
// scores IoU over them. Without it, 16 categories with 50 parts use the
// ShapeNet table and every other layout predicts over all parts.
func WithPartTable(table metric.PartTable) Option {
	return func(o *options) {
		o.partTable = table
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &dgcnn.BasicMetricsCollector{}
//	s, _ := dgcnn.New(cfg, dgcnn.WithMetricsCollector(metrics))
//	// ... use s ...
//	stats := metrics.GetStats()
//	fmt.Printf("Forwards: %d, Avg latency: %dns\n", stats.ForwardCount, stats.ForwardAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := dgcnn.NewJSONLogger(slog.LevelInfo)
//	s, _ := dgcnn.New(cfg, dgcnn.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

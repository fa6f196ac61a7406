// Package summary records scalar training summaries (losses, learning rate,
// validation IoU) keyed by global step.
package summary

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Scalar tags emitted by the trainer.
const (
	TagTrainLoss    = "total_loss/train"
	TagLearningRate = "learning_rate"
	TagValLoss      = "total_loss/val"
	TagValMIoU      = "miou/val"
)

// Writer records scalar summaries.
type Writer interface {
	Scalar(ctx context.Context, step int64, tag string, value float64) error
	Close() error
}

// Discard is a Writer that drops everything.
var Discard Writer = discard{}

type discard struct{}

func (discard) Scalar(context.Context, int64, string, float64) error { return nil }
func (discard) Close() error                                         { return nil }

// LogWriter writes summaries as structured log records.
type LogWriter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogWriter creates a LogWriter logging at info level.
func NewLogWriter(logger *slog.Logger) *LogWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogWriter{logger: logger, level: slog.LevelInfo}
}

// Scalar logs one summary value.
func (w *LogWriter) Scalar(ctx context.Context, step int64, tag string, value float64) error {
	w.logger.LogAttrs(ctx, w.level, "summary",
		slog.Int64("step", step),
		slog.String("tag", tag),
		slog.Float64("value", value),
	)
	return nil
}

// Close is a no-op.
func (w *LogWriter) Close() error { return nil }

type multi struct {
	writers []Writer
}

// Multi fans out every scalar to all writers. Errors are joined.
func Multi(writers ...Writer) Writer {
	return &multi{writers: writers}
}

func (m *multi) Scalar(ctx context.Context, step int64, tag string, value float64) error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Scalar(ctx, step, tag, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multi) Close() error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Point is one recorded value.
type Point struct {
	Step  int64
	Tag   string
	Value float64
}

// Recorder keeps every scalar in memory.
type Recorder struct {
	mu     sync.Mutex
	points []Point
	closed bool
}

// Scalar records the value.
func (r *Recorder) Scalar(_ context.Context, step int64, tag string, value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, Point{Step: step, Tag: tag, Value: value})
	return nil
}

// Close marks the recorder closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Points returns the recorded values with the given tag ("" for all).
func (r *Recorder) Points(tag string) []Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Point
	for _, p := range r.points {
		if tag == "" || p.Tag == tag {
			out = append(out, p)
		}
	}
	return out
}

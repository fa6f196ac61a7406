package dgcnn

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with dgcnn-specific field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithK adds a k (neighbor count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// WithStep adds a global step field to the logger.
func (l *Logger) WithStep(step int64) *Logger {
	return &Logger{
		Logger: l.Logger.With("step", step),
	}
}

// WithRun adds a run ID field to the logger.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("run_id", runID),
	}
}

// LogForward logs a batched forward pass.
func (l *Logger) LogForward(ctx context.Context, clouds, points int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "forward failed",
			"clouds", clouds,
			"points", points,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "forward completed",
			"clouds", clouds,
			"points", points,
			"duration", duration,
		)
	}
}

// LogStep logs a training step.
func (l *Logger) LogStep(ctx context.Context, step int64, loss, learningRate float64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "step failed",
			"step", step,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "step completed",
			"step", step,
			"loss", loss,
			"learning_rate", learningRate,
		)
	}
}

// LogCheckpoint logs a checkpoint save or restore.
func (l *Logger) LogCheckpoint(ctx context.Context, name string, step int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed",
			"name", name,
			"step", step,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "checkpoint completed",
			"name", name,
			"step", step,
		)
	}
}

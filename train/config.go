package train

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/dgcnn/network"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("train: invalid config")

// NoIgnoreLabel disables the loss ignore label.
const NoIgnoreLabel int32 = -1

// Config holds the training hyperparameters.
type Config struct {
	Network network.Config

	// NumClones is the number of concurrent forward passes per step.
	NumClones int
	// BatchSize is the global batch; it must be divisible by NumClones.
	BatchSize int
	// NumSteps is the total number of training steps.
	NumSteps int64

	Schedule Schedule

	// LastLayerGradientMultiplier scales the gradients of the output layer.
	LastLayerGradientMultiplier float64
	// BatchNormDecay is the running-statistics decay.
	BatchNormDecay float32
	// IgnoreLabel excludes points with this part label from the loss.
	// NoIgnoreLabel disables it.
	IgnoreLabel int32

	// LogSteps is the step interval of progress log lines.
	LogSteps int64
	// ValInterval is the step interval of validation passes (0 disables).
	ValInterval int64
	// SaveInterval is the wall-clock interval between checkpoints.
	SaveInterval time.Duration
	// SaveSummariesInterval is the wall-clock interval between summaries.
	SaveSummariesInterval time.Duration

	// Shuffle reshuffles the training set every epoch.
	Shuffle bool
	// Seed drives sampling and dropout.
	Seed int64
	// RunID identifies the run in checkpoints. Empty generates a UUID.
	RunID string
}

// DefaultConfig returns the training defaults.
func DefaultConfig() Config {
	return Config{
		Network:                     network.DefaultConfig(),
		NumClones:                   1,
		BatchSize:                   8,
		NumSteps:                    300000,
		Schedule:                    DefaultSchedule(),
		LastLayerGradientMultiplier: 1,
		BatchNormDecay:              0.9,
		IgnoreLabel:                 NoIgnoreLabel,
		LogSteps:                    10,
		ValInterval:                 10,
		SaveInterval:                300 * time.Second,
		SaveSummariesInterval:       30 * time.Second,
		Shuffle:                     true,
		Seed:                        1,
	}
}

// CloneBatchSize returns the batch processed by each clone.
func (c Config) CloneBatchSize() int {
	if c.NumClones <= 0 {
		return 0
	}
	return c.BatchSize / c.NumClones
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.NumClones <= 0:
		return fmt.Errorf("%w: %d clones", ErrInvalidConfig, c.NumClones)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, c.BatchSize)
	case c.BatchSize%c.NumClones != 0:
		return fmt.Errorf("%w: batch size %d not divisible by %d clones", ErrInvalidConfig, c.BatchSize, c.NumClones)
	case c.NumSteps <= 0:
		return fmt.Errorf("%w: %d steps", ErrInvalidConfig, c.NumSteps)
	case c.BatchNormDecay < 0 || c.BatchNormDecay > 1:
		return fmt.Errorf("%w: batch norm decay %v", ErrInvalidConfig, c.BatchNormDecay)
	case c.LogSteps < 0 || c.ValInterval < 0:
		return fmt.Errorf("%w: negative interval", ErrInvalidConfig)
	case c.SaveInterval < 0 || c.SaveSummariesInterval < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	net := c.Network
	net.BatchSize = c.CloneBatchSize()
	return net.Validate()
}

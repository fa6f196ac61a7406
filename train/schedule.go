package train

import (
	"fmt"
	"math"
)

// Learning policies.
const (
	PolicyPoly = "poly"
	PolicyStep = "step"
)

// Schedule computes the learning rate of a step.
type Schedule struct {
	// Policy is PolicyPoly or PolicyStep.
	Policy string
	// BaseLearningRate is the initial rate.
	BaseLearningRate float64
	// DecayFactor and DecayStep drive the step policy:
	// base * factor^floor(step/decayStep).
	DecayFactor float64
	DecayStep   int64
	// Power and TotalSteps drive the poly policy:
	// base * (1 - step/total)^power.
	Power      float64
	TotalSteps int64
	// SlowStartStep steps use SlowStartLearningRate before the policy kicks in.
	SlowStartStep         int64
	SlowStartLearningRate float64
}

// DefaultSchedule returns the poly schedule defaults.
func DefaultSchedule() Schedule {
	return Schedule{
		Policy:                PolicyPoly,
		BaseLearningRate:      1e-4,
		DecayFactor:           0.1,
		DecayStep:             5000,
		Power:                 0.9,
		TotalSteps:            300000,
		SlowStartStep:         0,
		SlowStartLearningRate: 1e-4,
	}
}

// Validate checks the schedule.
func (s Schedule) Validate() error {
	switch s.Policy {
	case PolicyPoly:
		if s.TotalSteps <= 0 {
			return fmt.Errorf("%w: poly policy needs total steps", ErrInvalidConfig)
		}
	case PolicyStep:
		if s.DecayStep <= 0 {
			return fmt.Errorf("%w: step policy needs a decay step", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown learning policy %q", ErrInvalidConfig, s.Policy)
	}
	if s.BaseLearningRate < 0 || s.SlowStartLearningRate < 0 || s.SlowStartStep < 0 {
		return fmt.Errorf("%w: negative learning rate or slow start", ErrInvalidConfig)
	}
	return nil
}

// LearningRate returns the rate for step.
func (s Schedule) LearningRate(step int64) float64 {
	if step < s.SlowStartStep {
		return s.SlowStartLearningRate
	}
	switch s.Policy {
	case PolicyStep:
		return s.BaseLearningRate * math.Pow(s.DecayFactor, math.Floor(float64(step)/float64(s.DecayStep)))
	default:
		frac := float64(min(step, s.TotalSteps)) / float64(s.TotalSteps)
		return s.BaseLearningRate * math.Pow(1-frac, s.Power)
	}
}

package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchedulePoly(t *testing.T) {
	s := Schedule{Policy: PolicyPoly, BaseLearningRate: 0.01, Power: 0.9, TotalSteps: 100}

	assert.InDelta(t, 0.01, s.LearningRate(0), 1e-15)
	assert.InDelta(t, 0.01*0.5358867312681466, s.LearningRate(50), 1e-12) // 0.5^0.9
	assert.Equal(t, 0.0, s.LearningRate(100))
	assert.Equal(t, 0.0, s.LearningRate(150))
}

func TestScheduleStep(t *testing.T) {
	s := Schedule{Policy: PolicyStep, BaseLearningRate: 1, DecayFactor: 0.1, DecayStep: 10}

	assert.Equal(t, 1.0, s.LearningRate(0))
	assert.Equal(t, 1.0, s.LearningRate(9))
	assert.InDelta(t, 0.1, s.LearningRate(10), 1e-15)
	assert.InDelta(t, 0.01, s.LearningRate(25), 1e-15)
}

func TestScheduleSlowStart(t *testing.T) {
	s := DefaultSchedule()
	s.SlowStartStep = 5
	s.SlowStartLearningRate = 1e-6

	assert.Equal(t, 1e-6, s.LearningRate(0))
	assert.Equal(t, 1e-6, s.LearningRate(4))
	assert.InDelta(t, s.BaseLearningRate, s.LearningRate(5), 1e-8)
}

func TestScheduleValidate(t *testing.T) {
	assert.NoError(t, DefaultSchedule().Validate())

	tests := []Schedule{
		{Policy: "cosine", TotalSteps: 1},
		{Policy: PolicyPoly},
		{Policy: PolicyStep},
		{Policy: PolicyPoly, TotalSteps: 1, BaseLearningRate: -1},
	}
	for _, s := range tests {
		assert.ErrorIs(t, s.Validate(), ErrInvalidConfig, "%+v", s)
	}
}

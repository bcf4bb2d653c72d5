package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomePolicy(t *testing.T) {
	assert.Equal(t, 7, EngineConfig{}.OutcomePolicy().WindowDays)
	assert.Equal(t, 7, EngineConfig{}.OutcomePolicy().MaxChecks)

	policy := EngineConfig{VerifyWindowDays: 14, VerifyMaxChecks: 21}.OutcomePolicy()
	assert.Equal(t, 14, policy.WindowDays)
	assert.Equal(t, 21, policy.MaxChecks)
}

package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionSuffix(t *testing.T) {
	v, err := BuildValidator("grade", []string{"score"}, map[string]string{"score": "number"})
	require.NoError(t, err)

	suffix := v.InstructionSuffix()
	assert.Contains(t, suffix, "respond with valid JSON")
	assert.Contains(t, suffix, `"score": number (required)`)
}

func TestCorrectionPrompt_Escalates(t *testing.T) {
	v, err := BuildValidator("grade", []string{"score"}, map[string]string{"score": "number"})
	require.NoError(t, err)
	lastErr := errors.New("field score: missing")

	first := v.CorrectionPrompt(1, lastErr)
	assert.Contains(t, first, "didn't match the required format")
	assert.Contains(t, first, "field score: missing")
	assert.NotContains(t, first, "CRITICAL")

	second := v.CorrectionPrompt(2, lastErr)
	assert.Contains(t, second, "CRITICAL")
	assert.Contains(t, second, "Example:")
	assert.Contains(t, second, `"score": 42`)
}

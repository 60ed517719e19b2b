package stage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcome(t *testing.T) {
	ok := Ok([]int{1, 2})
	assert.False(t, ok.IsDegraded())
	assert.Equal(t, []int{1, 2}, ok.Value)

	reason := errors.New("llm down")
	deg := Degraded("fallback", reason)
	assert.True(t, deg.IsDegraded())
	assert.Equal(t, "fallback", deg.Value)
	assert.ErrorIs(t, deg.Reason, reason)
}

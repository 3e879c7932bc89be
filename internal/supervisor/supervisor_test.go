package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSupervisor_QuarantinesAfterMaxFailures(t *testing.T) {
	s := New(3)

	assert.False(t, s.RecordFailure("fs"))
	assert.False(t, s.RecordFailure("fs"))
	assert.True(t, s.RecordFailure("fs"))
	assert.True(t, s.IsQuarantined("fs"))
}

func TestSupervisor_SuccessResetsFailureCountButNotQuarantine(t *testing.T) {
	s := New(2)
	s.RecordFailure("fs")
	s.RecordFailure("fs")
	require := assert.New(t)
	require.True(s.IsQuarantined("fs"))

	s.RecordSuccess("fs")
	require.True(s.IsQuarantined("fs"), "quarantine must persist across a later success")
}

func TestSupervisor_UnquarantineClearsState(t *testing.T) {
	s := New(1)
	s.RecordFailure("fs")
	assert.True(t, s.IsQuarantined("fs"))

	s.Unquarantine("fs")
	assert.False(t, s.IsQuarantined("fs"))
}

func TestSupervisor_NextDelayGrowsAndCaps(t *testing.T) {
	s := New(100)

	assert.InDelta(t, float64(baseDelay), float64(s.NextDelay("fs")), float64(baseDelay)*jitterFraction+1)

	for i := 0; i < 10; i++ {
		s.RecordFailure("fs")
	}
	delay := s.NextDelay("fs")
	assert.LessOrEqual(t, delay, time.Duration(float64(maxDelay)*(1+jitterFraction)))
}

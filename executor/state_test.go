package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptHappyPath(t *testing.T) {
	a := NewAttempt()
	assert.False(t, a.IsFinal())
	require.NoError(t, a.Advance(StateSubmitted))
	require.NoError(t, a.Advance(StateFilled))
	assert.True(t, a.IsFinal())
	assert.Equal(t, 0, a.Retries())
}

func TestAttemptRetryLoop(t *testing.T) {
	a := NewAttempt()
	for i := 0; i < 2; i++ {
		require.NoError(t, a.Advance(StateRetryWait))
		require.NoError(t, a.Advance(StatePending))
	}
	assert.Equal(t, 2, a.Retries())
	require.NoError(t, a.Advance(StateSubmitted))
	require.NoError(t, a.Advance(StateRejected))
	assert.True(t, a.IsFinal())
}

func TestAttemptIllegalTransition(t *testing.T) {
	a := NewAttempt()
	require.NoError(t, a.Advance(StateSubmitted))
	require.NoError(t, a.Advance(StateFilled))
	assert.Error(t, a.Advance(StatePending), "terminal state must not transition")
	// 同态推进幂等
	assert.NoError(t, a.Advance(StateFilled))
}

func TestAttemptTransitionTable(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StatePending, StateSubmitted, true},
		{StatePending, StateRetryWait, true},
		{StatePending, StateFatal, true},
		{StateRetryWait, StatePending, true},
		{StateRetryWait, StateFilled, false},
		{StateSubmitted, StateFilled, true},
		{StateSubmitted, StateRejected, true},
		{StateSubmitted, StateRetryWait, false},
		{StateFilled, StateSubmitted, false},
		{StateRejected, StatePending, false},
		{StateFatal, StatePending, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.ok, legalTransitions[transition{tc.from, tc.to}], "%s -> %s", tc.from, tc.to)
	}
}

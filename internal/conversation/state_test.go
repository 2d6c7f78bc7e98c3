package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Idle, AwaitingModel, true},
		{Idle, Extracting, false},
		{AwaitingModel, Extracting, true},
		{AwaitingModel, Idle, true},
		{AwaitingModel, Persisting, false},
		{Extracting, Persisting, true},
		{Extracting, Summarizing, true},
		{Extracting, Validating, false},
		{Persisting, Validating, true},
		{Persisting, ErrorSurfaced, true},
		{Persisting, Summarizing, false},
		{Validating, Summarizing, true},
		{Validating, ErrorSurfaced, false},
		{Summarizing, Idle, true},
		{Summarizing, ErrorSurfaced, true},
		{ErrorSurfaced, Idle, true},
		{ErrorSurfaced, AwaitingModel, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "error_surfaced", ErrorSurfaced.String())
	assert.Equal(t, "unknown(42)", State(42).String())
}

func TestStateMachine_TransitionTo(t *testing.T) {
	var seen [][2]State
	sm := newStateMachine(func(from, to State) { seen = append(seen, [2]State{from, to}) })

	require.NoError(t, sm.TransitionTo(AwaitingModel))
	assert.Equal(t, AwaitingModel, sm.Current())

	err := sm.TransitionTo(Validating)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "awaiting_model to validating")
	assert.Equal(t, AwaitingModel, sm.Current())

	sm.settle()
	assert.Equal(t, Idle, sm.Current())
	assert.Equal(t, [][2]State{{Idle, AwaitingModel}, {AwaitingModel, Idle}}, seen)

	// settling from Idle is silent
	sm.settle()
	assert.Len(t, seen, 2)
}

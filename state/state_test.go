package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockState is a test double for the State interface.
// It helps us track which methods have been called.
type MockState struct {
	ID            ID
	OnEnterCalled bool
	OnExitCalled  bool
	onEnter       func()
}

func (m *MockState) OnEnter() {
	m.OnEnterCalled = true
	if m.onEnter != nil {
		m.onEnter()
	}
}

func (m *MockState) OnExit() {
	m.OnExitCalled = true
}

func (m *MockState) GetID() ID {
	return m.ID
}

// reset clears the call tracking flags.
func (m *MockState) reset() {
	m.OnEnterCalled = false
	m.OnExitCalled = false
}

func TestStateMachine_InitialState(t *testing.T) {
	initialState := &MockState{ID: Open}
	sm := NewBaseStateMachine(initialState)

	assert.True(t, initialState.OnEnterCalled, "Expected OnEnter to be called on the initial state")
	assert.Same(t, initialState, sm.GetCurrentState())
	assert.True(t, sm.Is(Open))
}

func TestStateMachine_ChangeState(t *testing.T) {
	initialState := &MockState{ID: Open}
	nextState := &MockState{ID: CountingDown}

	sm := NewBaseStateMachine(initialState)
	sm.AddTransition(Open, CountingDown, nil)
	initialState.reset()

	require.NoError(t, sm.ChangeState(nextState))

	assert.True(t, initialState.OnExitCalled)
	assert.True(t, nextState.OnEnterCalled)
	assert.Same(t, nextState, sm.GetCurrentState())
}

func TestStateMachine_UndeclaredTransition(t *testing.T) {
	initialState := &MockState{ID: Active}
	sm := NewBaseStateMachine(initialState)
	initialState.reset()

	err := sm.ChangeState(&MockState{ID: Open})
	require.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.False(t, initialState.OnExitCalled)
	assert.True(t, sm.Is(Active))
}

func TestStateMachine_TransitionCondition(t *testing.T) {
	initialState := &MockState{ID: Open}
	nextState := &MockState{ID: Active}
	allowed := false

	sm := NewBaseStateMachine(initialState)
	sm.AddTransition(Open, Active, func() bool { return allowed })

	require.ErrorIs(t, sm.ChangeState(nextState), ErrTransitionNotAllowed)
	assert.True(t, sm.Is(Open))

	allowed = true
	require.NoError(t, sm.ChangeState(nextState))
	assert.True(t, sm.Is(Active))
}

func TestStateMachine_ChangeStateFromOnEnter(t *testing.T) {
	over := &MockState{ID: Over}
	active := &MockState{ID: Active}

	sm := NewBaseStateMachine(&MockState{ID: Open})
	sm.AddTransition(Open, Active, nil)
	sm.AddTransition(Active, Over, nil)
	active.onEnter = func() {
		require.NoError(t, sm.ChangeState(over))
	}

	require.NoError(t, sm.ChangeState(active))
	assert.True(t, sm.Is(Over))
	assert.True(t, active.OnExitCalled)
}

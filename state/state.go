package state

import (
	"errors"
	"fmt"
	"sync"
)

// ID names a state. The room phases are declared here so every package agrees on them.
type ID string

const (
	Open         ID = "open"
	CountingDown ID = "counting_down"
	Active       ID = "active"
	Over         ID = "over"
)

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	GetID() ID
}

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from, to ID, condition func() bool)
}

// ErrTransitionNotAllowed is returned for undeclared transitions or failed conditions.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// BaseStateMachine only allows transitions declared with AddTransition.
// Hooks run outside the machine's lock, so OnEnter may itself change state.
type BaseStateMachine struct {
	currentState State
	transitions  map[ID]map[ID]func() bool // fromState -> toState -> condition
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[ID]map[ID]func() bool),
	}
	initialState.OnEnter()
	return machine
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	oldState := sm.currentState
	from, to := oldState.GetID(), newState.GetID()

	condition, declared := sm.transitions[from][to]
	if !declared || (condition != nil && !condition()) {
		sm.mutex.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, to)
	}
	sm.currentState = newState
	sm.mutex.Unlock()

	oldState.OnExit()
	newState.OnEnter()
	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

// Is reports whether the current state has the given id.
func (sm *BaseStateMachine) Is(id ID) bool {
	return sm.GetCurrentState().GetID() == id
}

// AddTransition declares from -> to; condition may be nil.
func (sm *BaseStateMachine) AddTransition(from, to ID, condition func() bool) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[ID]func() bool)
	}
	sm.transitions[from][to] = condition
}

// Base gives states no-op hooks to embed.
type Base struct {
	ID ID
}

func (s *Base) GetID() ID { return s.ID }

func (s *Base) OnEnter() {}

func (s *Base) OnExit() {}

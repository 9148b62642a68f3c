package room

import "github.com/wfunc/pokerlobby/state"

// 等待玩家加入
type openState struct {
	state.Base
}

// 倒计时
type countdownState struct {
	state.Base
	room *Room
}

func (s *countdownState) OnEnter() { s.room.startCountdown() }

func (s *countdownState) OnExit() { s.room.stopCountdown() }

// 游戏中
type activeState struct {
	state.Base
	room *Room
}

func (s *activeState) OnEnter() { s.room.startGame() }

func (s *activeState) OnExit() { s.room.clearTurn() }

// 结束, terminal
type overState struct {
	state.Base
	room *Room
}

func (s *overState) OnEnter() { s.room.finish() }

func (r *Room) newStateMachine() *state.BaseStateMachine {
	r.states = map[state.ID]state.State{
		state.Open:         &openState{Base: state.Base{ID: state.Open}},
		state.CountingDown: &countdownState{Base: state.Base{ID: state.CountingDown}, room: r},
		state.Active:       &activeState{Base: state.Base{ID: state.Active}, room: r},
		state.Over:         &overState{Base: state.Base{ID: state.Over}, room: r},
	}

	sm := state.NewBaseStateMachine(r.states[state.Open])
	sm.AddTransition(state.Open, state.CountingDown, nil)
	sm.AddTransition(state.CountingDown, state.Open, nil)
	sm.AddTransition(state.Open, state.Active, nil)
	sm.AddTransition(state.CountingDown, state.Active, nil)
	sm.AddTransition(state.Open, state.Over, nil)
	sm.AddTransition(state.CountingDown, state.Over, nil)
	sm.AddTransition(state.Active, state.Over, nil)
	return sm
}

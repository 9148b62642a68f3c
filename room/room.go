// room/room.go
package room

import (
	"errors"
	"math/rand"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/wfunc/pokerlobby/engine"
	"github.com/wfunc/pokerlobby/logger"
	"github.com/wfunc/pokerlobby/monitor"
	"github.com/wfunc/pokerlobby/network"
	"github.com/wfunc/pokerlobby/state"
	"github.com/wfunc/pokerlobby/timer"
)

var errUnknownAction = errors.New("unknown action")

// Config holds the per-room rules. Zero durations are allowed: a zero prompt
// delay prompts immediately.
type Config struct {
	MinPlayers        int
	MaxPlayers        int
	CountdownTicks    int
	CountdownInterval time.Duration
	DecisionTimeout   time.Duration
	MinPromptDelay    time.Duration
	MaxPromptDelay    time.Duration
	StartingChips     uint64

	Factory engine.Factory
	Clock   quartz.Clock
	// Rand seeds prompt jitter; a Manager derives one source per room from it.
	Rand    *rand.Rand
	Monitor *monitor.Monitor
}

type seat struct {
	player Player
	name   string
	number int
	chips  uint64 // last stack reported by the engine
}

// turnState is the player owing a decision and the timers guarding it.
type turnState struct {
	player        string
	promptTimer   int64
	decisionTimer int64
}

// pendingEvent is an engine event queued until the engine call returns. Seats
// is a snapshot taken when the event fired, for events whose rendering reads
// the table.
type pendingEvent struct {
	event engine.Event
	seats []engine.Seat
}

// Room 是一局游戏: admission, countdown, play, teardown.
type Room struct {
	ID        int64
	CreatedAt time.Time

	cfg         Config
	broadcaster Broadcaster
	listener    Listener
	rng         *rand.Rand

	mutex      sync.Mutex
	machine    *state.BaseStateMachine
	states     map[state.ID]state.State
	seats      []*seat // seating order
	spectators []string

	engine      engine.Adapter
	unsubscribe func()
	pending     []pendingEvent

	timers         *timer.TimerManager
	countdownTimer int64
	ticksLeft      int
	turn           *turnState

	ended bool
}

func NewRoom(id int64, cfg Config, broadcaster Broadcaster, listener Listener) *Room {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	r := &Room{
		ID:          id,
		CreatedAt:   cfg.Clock.Now(),
		cfg:         cfg,
		broadcaster: broadcaster,
		listener:    listener,
		rng:         rng,
		timers:      timer.NewTimerManager(cfg.Clock),
	}
	r.machine = r.newStateMachine()
	r.resetEngine()
	return r
}

// --- queries ---

func (r *Room) Phase() state.ID {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.machine.GetCurrentState().GetID()
}

func (r *Room) PlayerCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.seats)
}

func (r *Room) SpectatorCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.spectators)
}

// Accepting reports whether AddPlayer could currently succeed.
func (r *Room) Accepting() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.accepting()
}

// Roster returns the seated players in seating order.
func (r *Room) Roster() []network.RosterEntry {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.roster()
}

// Seat returns the seat number of a player.
func (r *Room) Seat(id string) (int, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if s := r.seatOf(id); s != nil {
		return s.number, true
	}
	return 0, false
}

// TurnHolder returns the player owing a decision, if any.
func (r *Room) TurnHolder() (string, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.turn == nil {
		return "", false
	}
	return r.turn.player, true
}

// --- operations ---

// AddPlayer seats p. It fails once the game has started, when the room is full
// or when p is already seated.
func (r *Room) AddPlayer(p Player, name string) (ok bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	defer r.recoverFault("add player")

	id := p.GetID()
	if !r.accepting() || r.seatOf(id) != nil {
		return false
	}

	chips := p.Chips()
	if chips < r.cfg.StartingChips {
		chips = r.cfg.StartingChips
		p.SetChips(chips)
	}

	s := &seat{player: p, name: name, number: len(r.seats), chips: chips}
	// the newcomer learns who is already seated
	for _, other := range r.seats {
		r.broadcaster.Send(id, network.PlayerJoin(other.number, other.name))
	}
	r.seats = append(r.seats, s)
	r.engine.AddPlayer(id, chips)

	r.broadcast(network.PlayerJoin(s.number, name))
	r.broadcaster.Send(id, network.YouAre(s.number))
	logger.Log.Infow("player joined", "room", r.ID, "player", id, "seat", s.number, "chips", chips)

	r.checkStart()
	return true
}

// AddSpectator admits a watcher in any phase except over.
func (r *Room) AddSpectator(id string) (ok bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	defer r.recoverFault("add spectator")

	if r.machine.Is(state.Over) {
		return false
	}
	if !r.isSpectator(id) {
		r.spectators = append(r.spectators, id)
	}
	for _, s := range r.seats {
		r.broadcaster.Send(id, network.PlayerJoin(s.number, s.name))
	}
	return true
}

// HandleAction applies a game action from id. Anything not acceptable right now
// is answered with unrecognized-action and changes nothing.
func (r *Room) HandleAction(id string, req network.Request) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	defer r.recoverFault("handle action")

	s := r.seatOf(id)
	if s == nil || !req.IsAction() || !r.machine.Is(state.Active) || r.turn == nil || r.turn.player != id {
		r.broadcaster.Send(id, network.Unrecognized())
		return
	}
	if req.Command == network.CmdBet && (req.Amount == 0 || req.Amount > s.chips) {
		r.broadcaster.Send(id, network.Unrecognized())
		return
	}

	if err := r.dispatch(id, req); err != nil {
		logger.Log.Debugw("action refused", "room", r.ID, "player", id, "action", req.Command, "error", err)
		r.broadcaster.Send(id, network.Unrecognized())
		r.drain()
		return
	}

	r.clearTurn()
	r.broadcast(network.ActionTaken(req.Command, s.number, req.Amount))
	r.drain()
}

// Remove drops id from the room, whether seated or watching. Unknown ids are ignored.
func (r *Room) Remove(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	defer r.recoverFault("remove")

	if r.isSpectator(id) {
		r.removeSpectator(id)
		return
	}

	idx := r.seatIndex(id)
	if idx < 0 {
		return
	}
	s := r.seats[idx]
	r.seats = slices.Delete(r.seats, idx, idx+1)
	logger.Log.Infow("player left", "room", r.ID, "player", id, "seat", s.number)

	switch r.machine.GetCurrentState().GetID() {
	case state.Open, state.CountingDown:
		r.broadcast(network.PlayerLeft(s.number))
		r.reseat()
		if len(r.seats) < r.cfg.MinPlayers && r.machine.Is(state.CountingDown) {
			r.transition(state.Open)
		}

	case state.Active:
		r.engine.ForEachPlayer(func(es engine.Seat) {
			if es.ID == id {
				s.player.SetChips(es.Chips)
			}
		})
		if r.turn != nil && r.turn.player == id {
			r.clearTurn()
		}
		r.broadcast(network.PlayerLeft(s.number))
		r.engine.RemovePlayer(id)
		r.drain()
		if !r.machine.Is(state.Over) && len(r.seats) < r.cfg.MinPlayers {
			logger.Log.Infow("not enough players, ending game", "room", r.ID, "players", len(r.seats))
			r.transition(state.Over)
		}
	}
}

// --- lobby ---

func (r *Room) accepting() bool {
	phase := r.machine.GetCurrentState().GetID()
	return (phase == state.Open || phase == state.CountingDown) && len(r.seats) < r.cfg.MaxPlayers
}

func (r *Room) checkStart() {
	count := len(r.seats)
	switch {
	case count >= r.cfg.MaxPlayers:
		r.transition(state.Active)
	case count >= r.cfg.MinPlayers && r.machine.Is(state.Open):
		if r.cfg.CountdownTicks <= 0 {
			r.transition(state.Active)
			return
		}
		r.transition(state.CountingDown)
	}
}

// reseat renumbers the survivors 0..k-1 in join order and rebuilds the engine
// so its seating order matches.
func (r *Room) reseat() {
	r.resetEngine()
	for i, s := range r.seats {
		moved := s.number != i
		s.number = i
		r.engine.AddPlayer(s.player.GetID(), s.chips)
		if moved {
			r.broadcaster.Send(s.player.GetID(), network.YouAre(i))
		}
	}
}

func (r *Room) resetEngine() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	r.engine = r.cfg.Factory()
	r.unsubscribe = r.engine.Subscribe(r.onEvent)
	r.pending = nil
}

func (r *Room) startCountdown() {
	r.ticksLeft = r.cfg.CountdownTicks
	r.broadcast(network.GameStartingIn(r.ticksLeft))

	var id int64
	id = r.timers.AddTimer(r.cfg.CountdownInterval, r.cfg.CountdownInterval, func() {
		r.locked("countdown", func() { r.countdownTick(id) })
	})
	r.countdownTimer = id
}

func (r *Room) stopCountdown() {
	r.timers.RemoveTimer(r.countdownTimer)
	r.countdownTimer = 0
}

func (r *Room) countdownTick(id int64) {
	if id != r.countdownTimer || !r.machine.Is(state.CountingDown) {
		return
	}
	if len(r.seats) < r.cfg.MinPlayers {
		r.transition(state.Open)
		return
	}

	r.ticksLeft--
	if r.ticksLeft <= 0 {
		r.transition(state.Active)
		return
	}
	r.broadcast(network.GameStartingIn(r.ticksLeft))
}

// --- play ---

func (r *Room) startGame() {
	logger.Log.Infow("game starting", "room", r.ID, "players", len(r.seats))
	r.engine.StartGame()
	r.broadcast(network.GameStarted(r.roster()))
	r.listener.OnRoomStarted(r)
	r.drain()
}

func (r *Room) dispatch(id string, req network.Request) error {
	switch req.Command {
	case network.CmdCall:
		return r.engine.Call(id)
	case network.CmdBet:
		return r.engine.Bet(id, req.Amount)
	case network.CmdFold:
		return r.engine.Fold(id)
	case network.CmdAllIn:
		return r.engine.AllIn(id)
	case network.CmdCheck:
		return r.engine.Check(id)
	}
	return errUnknownAction
}

// onEvent runs inside engine calls, so it only queues.
func (r *Room) onEvent(ev engine.Event) {
	pe := pendingEvent{event: ev}
	switch ev.(type) {
	case engine.RoundResolved, engine.PlayerWon:
		r.engine.ForEachPlayer(func(s engine.Seat) {
			pe.seats = append(pe.seats, s)
		})
	}
	r.pending = append(r.pending, pe)
}

// drain renders queued engine events in order. It stops once the room is over.
func (r *Room) drain() {
	for len(r.pending) > 0 && !r.machine.Is(state.Over) {
		pe := r.pending[0]
		r.pending = r.pending[1:]
		r.apply(pe)
	}
	r.pending = nil
}

func (r *Room) apply(pe pendingEvent) {
	switch ev := pe.event.(type) {
	case engine.Dealt:
		if r.seatOf(ev.Player) != nil {
			r.broadcaster.Send(ev.Player, network.Deal(ev.Hand.Strings()))
		}

	case engine.CardRevealed:
		r.broadcast(network.ShowCard(string(ev.Card)))

	case engine.BetPlaced:
		if s := r.seatOf(ev.Player); s != nil {
			r.broadcast(network.BetMade(ev.Amount, s.number))
		}

	case engine.RoundResolved:
		for _, es := range pe.seats {
			s := r.seatOf(es.ID)
			if s == nil || es.Folded || es.Hand[0] == "" {
				continue
			}
			r.broadcast(network.Showdown(s.number, es.Hand.Strings()))
		}

	case engine.PlayerWon:
		for _, es := range pe.seats {
			if s := r.seatOf(es.ID); s != nil {
				s.chips = es.Chips
				s.player.SetChips(es.Chips)
			}
		}
		if r.seatOf(ev.Player) != nil {
			r.broadcaster.Send(ev.Player, network.Win(ev.Amount))
		}

	case engine.Turn:
		if r.seatOf(ev.Player) == nil {
			logger.Log.Warnw("turn for absent player", "room", r.ID, "player", ev.Player)
			return
		}
		r.beginTurn(ev.Player)

	case engine.GameOver:
		r.transition(state.Over)
	}
}

func (r *Room) beginTurn(id string) {
	r.clearTurn()
	r.turn = &turnState{player: id}

	delay := r.promptDelay()
	if delay <= 0 {
		r.promptTurn()
		return
	}

	var tid int64
	tid = r.timers.AddTimer(delay, 0, func() {
		r.locked("turn prompt", func() {
			if r.turn == nil || r.turn.promptTimer != tid {
				return
			}
			r.promptTurn()
		})
	})
	r.turn.promptTimer = tid
}

func (r *Room) promptDelay() time.Duration {
	lo, hi := r.cfg.MinPromptDelay, r.cfg.MaxPromptDelay
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(r.rng.Int63n(int64(hi-lo)+1))
}

func (r *Room) promptTurn() {
	r.turn.promptTimer = 0
	r.broadcaster.Send(r.turn.player, network.TurnPrompt())

	var tid int64
	tid = r.timers.AddTimer(r.cfg.DecisionTimeout, 0, func() {
		r.locked("decision timeout", func() {
			if r.turn == nil || r.turn.decisionTimer != tid {
				return
			}
			r.timeoutTurn()
		})
	})
	r.turn.decisionTimer = tid
}

// timeoutTurn acts for a player who let the decision window lapse: check when
// the engine allows it, otherwise fold.
func (r *Room) timeoutTurn() {
	id := r.turn.player
	r.clearTurn()

	s := r.seatOf(id)
	if s == nil || !r.machine.Is(state.Active) {
		return
	}
	r.cfg.Monitor.IncTurnTimeouts()

	cmd := network.CmdCheck
	err := r.engine.Check(id)
	if err != nil {
		cmd = network.CmdFold
		err = r.engine.Fold(id)
	}
	if err != nil {
		logger.Log.Errorw("timeout action refused", "room", r.ID, "player", id, "error", err)
		r.drain()
		return
	}

	logger.Log.Infow("decision timed out", "room", r.ID, "player", id, "action", cmd)
	r.broadcast(network.ActionTaken(cmd, s.number, 0))
	r.drain()
}

func (r *Room) clearTurn() {
	if r.turn == nil {
		return
	}
	r.timers.RemoveTimer(r.turn.promptTimer)
	r.timers.RemoveTimer(r.turn.decisionTimer)
	r.turn = nil
}

// --- teardown ---

func (r *Room) finish() {
	r.timers.StopAll()
	r.turn = nil
	r.countdownTimer = 0
	r.pending = nil

	r.engine.ForEachPlayer(func(es engine.Seat) {
		if s := r.seatOf(es.ID); s != nil {
			s.chips = es.Chips
			s.player.SetChips(es.Chips)
		}
	})
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}

	r.broadcast(network.GameOver())
	logger.Log.Infow("game over", "room", r.ID, "players", len(r.seats), "spectators", len(r.spectators))
	r.notifyEnded()
}

func (r *Room) notifyEnded() {
	if r.ended {
		return
	}
	r.ended = true
	r.listener.OnRoomEnded(r, r.playerIDs(), append([]string(nil), r.spectators...))
}

// recoverFault turns a panic in any entry point into game over for this room
// only. Deferred after the lock so it runs with the lock held.
func (r *Room) recoverFault(op string) {
	rec := recover()
	if rec == nil {
		return
	}
	logger.Log.Errorw("room fault", "room", r.ID, "op", op, "panic", rec, "stack", string(debug.Stack()))
	r.forceOver()
}

func (r *Room) forceOver() {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Log.Errorw("room teardown fault", "room", r.ID, "panic", rec)
			r.timers.StopAll()
			r.notifyEnded()
		}
	}()
	if !r.machine.Is(state.Over) {
		r.transition(state.Over)
	}
	r.notifyEnded()
}

// locked runs fn as a timer callback would: under the lock, with fault recovery.
func (r *Room) locked(op string, fn func()) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	defer r.recoverFault(op)
	fn()
}

// --- helpers, lock held ---

func (r *Room) transition(to state.ID) {
	from := r.machine.GetCurrentState().GetID()
	if err := r.machine.ChangeState(r.states[to]); err != nil {
		logger.Log.Debugw("transition refused", "room", r.ID, "error", err)
		return
	}
	logger.Log.Debugw("room transition", "room", r.ID, "from", from, "to", to)
}

func (r *Room) broadcast(msg string) {
	ids := make([]string, 0, len(r.seats)+len(r.spectators))
	ids = append(ids, r.playerIDs()...)
	ids = append(ids, r.spectators...)
	r.broadcaster.Broadcast(ids, msg)
}

func (r *Room) roster() []network.RosterEntry {
	roster := make([]network.RosterEntry, 0, len(r.seats))
	for _, s := range r.seats {
		roster = append(roster, network.RosterEntry{Seat: s.number, Name: s.name, Chips: s.chips})
	}
	return roster
}

func (r *Room) playerIDs() []string {
	ids := make([]string, 0, len(r.seats))
	for _, s := range r.seats {
		ids = append(ids, s.player.GetID())
	}
	return ids
}

func (r *Room) seatIndex(id string) int {
	return slices.IndexFunc(r.seats, func(s *seat) bool { return s.player.GetID() == id })
}

func (r *Room) seatOf(id string) *seat {
	if i := r.seatIndex(id); i >= 0 {
		return r.seats[i]
	}
	return nil
}

func (r *Room) isSpectator(id string) bool {
	return slices.Contains(r.spectators, id)
}

func (r *Room) removeSpectator(id string) {
	r.spectators = slices.DeleteFunc(r.spectators, func(s string) bool { return s == id })
}

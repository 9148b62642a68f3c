package room

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/wfunc/pokerlobby/engine"
)

// recorder captures every line per connection id.
type recorder struct {
	mu   sync.Mutex
	msgs map[string][]string
}

func newRecorder() *recorder {
	return &recorder{msgs: make(map[string][]string)}
}

func (r *recorder) Send(id string, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[id] = append(r.msgs[id], msg)
}

func (r *recorder) Broadcast(ids []string, msg string) {
	for _, id := range ids {
		r.Send(id, msg)
	}
}

func (r *recorder) Of(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs[id]...)
}

func (r *recorder) Count(id, msg string) int {
	n := 0
	for _, m := range r.Of(id) {
		if m == msg {
			n++
		}
	}
	return n
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = make(map[string][]string)
}

type testPlayer struct {
	id    string
	mu    sync.Mutex
	chips uint64
}

func newPlayer(id string) *testPlayer { return &testPlayer{id: id} }

func (p *testPlayer) GetID() string { return p.id }

func (p *testPlayer) Chips() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chips
}

func (p *testPlayer) SetChips(chips uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chips = chips
}

type testListener struct {
	mu         sync.Mutex
	started    []int64
	ended      []int64
	players    []string
	spectators []string
}

func (l *testListener) OnRoomStarted(r *Room) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, r.ID)
}

func (l *testListener) OnRoomEnded(r *Room, players []string, spectators []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ended = append(l.ended, r.ID)
	l.players = players
	l.spectators = spectators
}

func (l *testListener) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.started), len(l.ended)
}

var errRefused = errors.New("refused")

// scriptedEngine deals fixed cards and passes the turn round the table after
// every accepted action. AllIn ends the game with the actor winning everything.
type scriptedEngine struct {
	engine.Emitter

	seats   []engine.Seat
	started bool
	current int
	actions []string

	refuseCheck bool
	refuseAll   bool
	panicOnCall bool
}

var _ engine.Adapter = (*scriptedEngine)(nil)

func (e *scriptedEngine) AddPlayer(id string, chips uint64) {
	e.seats = append(e.seats, engine.Seat{ID: id, Chips: chips})
}

func (e *scriptedEngine) RemovePlayer(id string) {
	i := slices.IndexFunc(e.seats, func(s engine.Seat) bool { return s.ID == id })
	if i < 0 {
		return
	}
	wasTurn := e.started && i == e.current
	e.seats = slices.Delete(e.seats, i, i+1)
	if !wasTurn || len(e.seats) == 0 {
		if i < e.current {
			e.current--
		}
		return
	}
	e.current %= len(e.seats)
	e.Emit(engine.Turn{Player: e.seats[e.current].ID})
}

func (e *scriptedEngine) StartGame() {
	e.started = true
	for i := range e.seats {
		e.seats[i].Hand = engine.Hand{"As", "Kd"}
		e.Emit(engine.Dealt{Player: e.seats[i].ID, Hand: e.seats[i].Hand})
	}
	e.Emit(engine.Turn{Player: e.seats[0].ID})
}

func (e *scriptedEngine) ForEachPlayer(fn func(engine.Seat)) {
	for _, s := range e.seats {
		fn(s)
	}
}

func (e *scriptedEngine) act(id, name string) error {
	if e.refuseAll || !e.started || e.seats[e.current].ID != id {
		return errRefused
	}
	e.actions = append(e.actions, id+":"+name)
	e.current = (e.current + 1) % len(e.seats)
	e.Emit(engine.Turn{Player: e.seats[e.current].ID})
	return nil
}

func (e *scriptedEngine) Call(id string) error {
	if e.panicOnCall {
		panic("engine exploded")
	}
	return e.act(id, "call")
}

func (e *scriptedEngine) Bet(id string, amount uint64) error {
	if err := e.act(id, "bet"); err != nil {
		return err
	}
	e.Emit(engine.BetPlaced{Player: id, Amount: amount})
	return nil
}

func (e *scriptedEngine) Fold(id string) error { return e.act(id, "fold") }

func (e *scriptedEngine) Check(id string) error {
	if e.refuseCheck {
		return errRefused
	}
	return e.act(id, "check")
}

func (e *scriptedEngine) AllIn(id string) error {
	if e.refuseAll || e.seats[e.current].ID != id {
		return errRefused
	}
	e.actions = append(e.actions, id+":all-in")
	var pot uint64
	for i := range e.seats {
		pot += e.seats[i].Chips
		e.seats[i].Chips = 0
	}
	winner := slices.IndexFunc(e.seats, func(s engine.Seat) bool { return s.ID == id })
	e.seats[winner].Chips = pot
	e.Emit(engine.CardRevealed{Card: "2c"})
	e.Emit(engine.RoundResolved{})
	e.Emit(engine.PlayerWon{Player: id, Amount: pot})
	e.Emit(engine.GameOver{})
	return nil
}

type fixture struct {
	t        *testing.T
	clock    *quartz.Mock
	rec      *recorder
	listener *testListener
	engines  []*scriptedEngine
	cfg      Config
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		t:        t,
		clock:    quartz.NewMock(t),
		rec:      newRecorder(),
		listener: &testListener{},
	}
	f.cfg = Config{
		MinPlayers:        2,
		MaxPlayers:        6,
		CountdownTicks:    5,
		CountdownInterval: time.Second,
		DecisionTimeout:   20 * time.Second,
		StartingChips:     300,
		Clock:             f.clock,
		Factory: func() engine.Adapter {
			e := &scriptedEngine{}
			f.engines = append(f.engines, e)
			return e
		},
	}
	return f
}

func (f *fixture) room() *Room {
	return NewRoom(1, f.cfg, f.rec, f.listener)
}

// engine is the adapter the room currently uses.
func (f *fixture) engine() *scriptedEngine {
	return f.engines[len(f.engines)-1]
}

// tick fires the next pending timer and waits for its callback.
func (f *fixture) tick() {
	f.t.Helper()
	_, w := f.clock.AdvanceNext()
	w.MustWait(f.t.Context())
}

// Package holdem is the bundled no-limit Texas hold'em rules engine.
package holdem

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/wfunc/pokerlobby/engine"
)

var (
	ErrNotRunning    = errors.New("no hand in progress")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrInvalidAction = errors.New("invalid action")
)

// MaxSeats is the most players one deck can serve: two hole cards each plus a
// five card board.
const MaxSeats = (52 - 5) / 2

type Options struct {
	SmallBlind uint64
	BigBlind   uint64
	MaxPlayers int
	Rand       *rand.Rand
}

func DefaultOptions() Options {
	return Options{SmallBlind: 10, BigBlind: 20, MaxPlayers: 6}
}

type street int

const (
	preflop street = iota
	flop
	turn
	river
)

type player struct {
	id    string
	chips uint64
	hole  [2]card

	dealt     bool
	folded    bool
	allIn     bool
	acted     bool
	seen      int // t.fullRaises when this player last acted
	streetBet uint64
	committed uint64
}

func (p *player) live() bool { return p.dealt && !p.folded }

func (p *player) canAct() bool { return p.live() && !p.allIn }

// Table runs hands back to back until fewer than two players have chips.
type Table struct {
	engine.Emitter

	opts    Options
	rng     *rand.Rand
	players []*player

	started bool
	over    bool
	running bool // a hand is in progress

	button     int
	deck       []card
	board      []card
	street     street
	currentBet uint64
	minRaise   uint64
	fullRaises int // full raises so far; a short all-in does not count
	toAct      int
	dead       uint64
}

var _ engine.Adapter = (*Table)(nil)

func NewTable(opts Options) *Table {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.MaxPlayers <= 0 || opts.MaxPlayers > MaxSeats {
		opts.MaxPlayers = MaxSeats
	}
	return &Table{opts: opts, rng: rng, button: -1, toAct: -1}
}

// Factory returns an engine.Factory building tables with opts. Each table gets
// its own random source derived from opts.Rand when one is set, so the factory
// may be called from several rooms at once.
func Factory(opts Options) engine.Factory {
	var mu sync.Mutex
	return func() engine.Adapter {
		o := opts
		if o.Rand != nil {
			mu.Lock()
			o.Rand = rand.New(rand.NewSource(opts.Rand.Int63()))
			mu.Unlock()
		}
		return NewTable(o)
	}
}

func (t *Table) index(id string) int {
	for i, p := range t.players {
		if p.id == id {
			return i
		}
	}
	return -1
}

func (t *Table) AddPlayer(id string, chips uint64) {
	if len(t.players) >= t.opts.MaxPlayers || t.index(id) >= 0 {
		return
	}
	t.players = append(t.players, &player{id: id, chips: chips})
}

func (t *Table) RemovePlayer(id string) {
	i := t.index(id)
	if i < 0 {
		return
	}
	p := t.players[i]
	wasTurn := t.running && t.toAct == i
	if t.running && p.dealt {
		p.folded = true
		t.dead += p.committed
		p.committed = 0
	}

	t.players = append(t.players[:i], t.players[i+1:]...)
	t.button = shiftIndex(t.button, i)
	t.toAct = shiftIndex(t.toAct, i)

	if !t.running {
		return
	}
	if t.liveCount() <= 1 {
		t.awardUncontested()
	} else if wasTurn {
		t.advanceFrom(t.toAct)
	}
	t.drive()
}

// shiftIndex keeps idx pointing at the same seat after seat removed is deleted;
// a deleted idx moves to its predecessor so "next after idx" still works.
func shiftIndex(idx, removed int) int {
	if idx >= removed {
		return idx - 1
	}
	return idx
}

func (t *Table) StartGame() {
	if t.started {
		return
	}
	t.started = true
	t.drive()
}

func (t *Table) ForEachPlayer(fn func(engine.Seat)) {
	for _, p := range t.players {
		seat := engine.Seat{ID: p.id, Chips: p.chips, Folded: p.folded}
		if p.dealt {
			seat.Hand = engine.Hand{p.hole[0].render(), p.hole[1].render()}
		}
		fn(seat)
	}
}

// drive deals new hands until one needs a decision or the game is over.
func (t *Table) drive() {
	for t.started && !t.over && !t.running {
		t.startHand()
	}
}

func (t *Table) next(from int, ok func(*player) bool) int {
	n := len(t.players)
	for step := 1; step <= n; step++ {
		i := ((from+step)%n + n) % n
		if ok(t.players[i]) {
			return i
		}
	}
	return -1
}

func (t *Table) startHand() {
	funded := 0
	for _, p := range t.players {
		if p.chips > 0 {
			funded++
		}
	}
	if funded < 2 {
		t.over = true
		t.Emit(engine.GameOver{})
		return
	}

	t.running = true
	t.deck = newDeck(t.rng)
	t.board = t.board[:0]
	t.street = preflop
	t.dead = 0
	for _, p := range t.players {
		*p = player{id: p.id, chips: p.chips, dealt: p.chips > 0}
	}

	hasChips := func(p *player) bool { return p.dealt }
	t.button = t.next(t.button, hasChips)
	sb := t.next(t.button, hasChips)
	if funded == 2 {
		sb = t.button
	}
	bb := t.next(sb, hasChips)

	t.post(t.players[sb], t.opts.SmallBlind)
	t.post(t.players[bb], t.opts.BigBlind)
	t.currentBet = max(t.players[sb].streetBet, t.players[bb].streetBet, t.opts.BigBlind)
	t.minRaise = t.opts.BigBlind

	for round := 0; round < 2; round++ {
		i := t.button
		for range funded {
			i = t.next(i, hasChips)
			t.players[i].hole[round] = t.draw()
		}
	}
	for i := 1; i <= len(t.players); i++ {
		p := t.players[(t.button+i)%len(t.players)]
		if p.dealt {
			t.Emit(engine.Dealt{Player: p.id, Hand: engine.Hand{p.hole[0].render(), p.hole[1].render()}})
		}
	}

	t.advanceFrom(bb)
}

func (t *Table) draw() card {
	c := t.deck[0]
	t.deck = t.deck[1:]
	return c
}

func (t *Table) post(p *player, blind uint64) {
	t.commit(p, min(blind, p.chips))
}

func (t *Table) commit(p *player, amount uint64) {
	if amount == 0 {
		return
	}
	p.chips -= amount
	p.streetBet += amount
	p.committed += amount
	if p.chips == 0 {
		p.allIn = true
	}
	t.Emit(engine.BetPlaced{Player: p.id, Amount: amount})
}

func (t *Table) liveCount() int {
	n := 0
	for _, p := range t.players {
		if p.live() {
			n++
		}
	}
	return n
}

func (t *Table) needsAction(p *player) bool {
	return p.canAct() && (!p.acted || p.streetBet < t.currentBet)
}

// advanceFrom hands the turn to the next player owing a decision after seat from,
// closing the street when nobody does.
func (t *Table) advanceFrom(from int) {
	if t.liveCount() <= 1 {
		t.awardUncontested()
		return
	}
	if i := t.next(from, t.needsAction); i >= 0 {
		t.toAct = i
		t.Emit(engine.Turn{Player: t.players[i].id})
		return
	}
	t.closeStreet()
}

func (t *Table) closeStreet() {
	for {
		for _, p := range t.players {
			p.streetBet = 0
			p.acted = false
		}
		t.currentBet = 0
		t.minRaise = t.opts.BigBlind
		t.toAct = -1

		if t.street == river {
			t.showdown()
			return
		}
		t.street++
		cards := 1
		if t.street == flop {
			cards = 3
		}
		for range cards {
			c := t.draw()
			t.board = append(t.board, c)
			t.Emit(engine.CardRevealed{Card: c.render()})
		}

		actors := 0
		for _, p := range t.players {
			if p.canAct() {
				actors++
			}
		}
		if actors >= 2 {
			t.advanceFrom(t.button)
			return
		}
	}
}

func (t *Table) current(id string) (*player, error) {
	if !t.running || t.toAct < 0 {
		return nil, ErrNotRunning
	}
	p := t.players[t.toAct]
	if p.id != id {
		return nil, ErrNotYourTurn
	}
	return p, nil
}

// mayRaise: betting is open to p unless p already acted and nothing since then
// was a full raise.
func (t *Table) mayRaise(p *player) bool {
	return !p.acted || p.seen < t.fullRaises
}

func (t *Table) acted(p *player) {
	p.acted = true
	p.seen = t.fullRaises
	t.advanceFrom(t.toAct)
	t.drive()
}

func (t *Table) Fold(id string) error {
	p, err := t.current(id)
	if err != nil {
		return err
	}
	p.folded = true
	t.acted(p)
	return nil
}

func (t *Table) Check(id string) error {
	p, err := t.current(id)
	if err != nil {
		return err
	}
	if p.streetBet < t.currentBet {
		return fmt.Errorf("%w: %d to call", ErrInvalidAction, t.currentBet-p.streetBet)
	}
	t.acted(p)
	return nil
}

// Call matches the current bet; with nothing to call it checks.
func (t *Table) Call(id string) error {
	p, err := t.current(id)
	if err != nil {
		return err
	}
	t.commit(p, min(t.currentBet-p.streetBet, p.chips))
	t.acted(p)
	return nil
}

// Bet puts amount more chips in. Anything short of a full raise is refused
// unless it is the player's whole stack; exactly the call amount is a call.
func (t *Table) Bet(id string, amount uint64) error {
	p, err := t.current(id)
	if err != nil {
		return err
	}
	switch {
	case amount == 0 || amount > p.chips:
		return fmt.Errorf("%w: bet %d with %d chips", ErrInvalidAction, amount, p.chips)
	case amount == p.chips:
		return t.AllIn(id)
	case p.streetBet+amount == t.currentBet:
		return t.Call(id)
	}

	total := p.streetBet + amount
	if total < t.currentBet || total-t.currentBet < t.minRaise {
		return fmt.Errorf("%w: raise to %d, minimum %d", ErrInvalidAction, total, t.currentBet+t.minRaise)
	}
	if !t.mayRaise(p) {
		return fmt.Errorf("%w: betting was not reopened", ErrInvalidAction)
	}
	t.minRaise = total - t.currentBet
	t.currentBet = total
	t.fullRaises++
	t.commit(p, amount)
	t.acted(p)
	return nil
}

func (t *Table) AllIn(id string) error {
	p, err := t.current(id)
	if err != nil {
		return err
	}
	if p.chips == 0 {
		return fmt.Errorf("%w: no chips", ErrInvalidAction)
	}
	total := p.streetBet + p.chips
	if total > t.currentBet {
		// 不足一个加注的全下不重新开放下注
		if !t.mayRaise(p) {
			return fmt.Errorf("%w: betting was not reopened", ErrInvalidAction)
		}
		if raise := total - t.currentBet; raise >= t.minRaise {
			t.minRaise = raise
			t.fullRaises++
		}
		t.currentBet = total
	}
	t.commit(p, p.chips)
	t.acted(p)
	return nil
}

func (t *Table) awardUncontested() {
	var winner *player
	total := t.dead
	for _, p := range t.players {
		total += p.committed
		if p.live() {
			winner = p
		}
	}
	t.finishHand()
	if winner == nil {
		return
	}
	winner.chips += total
	t.Emit(engine.PlayerWon{Player: winner.id, Amount: total})
}

type pot struct {
	amount   uint64
	eligible []int
}

// pots splits contributions into a main pot and side pots by all-in level.
func (t *Table) pots() []pot {
	var levels []uint64
	for _, p := range t.players {
		if p.committed > 0 && !slices.Contains(levels, p.committed) {
			levels = append(levels, p.committed)
		}
	}
	slices.Sort(levels)

	var pots []pot
	var carry uint64
	prev := uint64(0)
	for _, level := range levels {
		var cur pot
		cur.amount = carry
		carry = 0
		for i, p := range t.players {
			cur.amount += min(p.committed, level) - min(p.committed, prev)
			if p.live() && p.committed >= level {
				cur.eligible = append(cur.eligible, i)
			}
		}
		prev = level
		if len(cur.eligible) == 0 {
			if len(pots) > 0 {
				pots[len(pots)-1].amount += cur.amount
			} else {
				carry = cur.amount
			}
			continue
		}
		if n := len(pots); n > 0 && slices.Equal(pots[n-1].eligible, cur.eligible) {
			pots[n-1].amount += cur.amount
			continue
		}
		pots = append(pots, cur)
	}
	if len(pots) > 0 {
		pots[0].amount += t.dead + carry
	}
	return pots
}

func (t *Table) showdown() {
	t.Emit(engine.RoundResolved{})

	scores := make(map[int]int16)
	for i, p := range t.players {
		if !p.live() {
			continue
		}
		s, err := score(p.hole, t.board)
		if err != nil {
			// Unreachable with a generated deck; treat as the weakest hand.
			s = -1
		}
		scores[i] = s
	}

	won := make([]uint64, len(t.players))
	for _, pt := range t.pots() {
		best := int16(-1 << 15)
		var winners []int
		for _, i := range pt.eligible {
			switch s := scores[i]; {
			case s > best:
				best, winners = s, []int{i}
			case s == best:
				winners = append(winners, i)
			}
		}
		share := pt.amount / uint64(len(winners))
		for _, i := range winners {
			won[i] += share
		}
		if odd := pt.amount - share*uint64(len(winners)); odd > 0 {
			won[t.firstAfterButton(winners)] += odd
		}
	}

	t.finishHand()
	for i, amount := range won {
		t.players[i].chips += amount
	}
	for i, amount := range won {
		if amount > 0 {
			t.Emit(engine.PlayerWon{Player: t.players[i].id, Amount: amount})
		}
	}
}

func (t *Table) firstAfterButton(seats []int) int {
	n := len(t.players)
	bestDist, best := n+1, seats[0]
	for _, i := range seats {
		d := ((i-t.button)%n + n) % n
		if d == 0 {
			d = n
		}
		if d < bestDist {
			bestDist, best = d, i
		}
	}
	return best
}

func (t *Table) finishHand() {
	t.running = false
	t.toAct = -1
	t.dead = 0
}

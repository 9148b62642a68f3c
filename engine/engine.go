// Package engine is the contract between a room and the game rules it hosts.
// A room only calls these methods and reacts to these events, so any
// implementation can be swapped in without touching the room.
package engine

// Card is a rendered card such as "As" or "Td".
type Card string

// Hand is a player's two private cards.
type Hand [2]Card

// Strings renders the hand for the wire.
func (h Hand) Strings() []string {
	return []string{string(h[0]), string(h[1])}
}

// Seat is a read-only view of one player as the engine sees it.
type Seat struct {
	ID     string
	Chips  uint64
	Hand   Hand
	Folded bool
}

// Adapter is a rules engine. Implementations are not safe for concurrent use;
// the owning room serialises every call.
type Adapter interface {
	// AddPlayer seats a player. It is ignored when the table is full.
	AddPlayer(id string, chips uint64)
	// RemovePlayer unseats a player, resolving any decision they owe.
	RemovePlayer(id string)
	// StartGame begins play; valid once.
	StartGame()
	// ForEachPlayer visits seated players in seating order.
	ForEachPlayer(fn func(Seat))

	Call(id string) error
	Bet(id string, amount uint64) error
	Fold(id string) error
	AllIn(id string) error
	Check(id string) error

	// Subscribe registers fn for every event; events are delivered in order from
	// inside the call that caused them. Handlers must not call the mutating methods.
	Subscribe(fn func(Event)) (unsubscribe func())
}

// Factory builds a fresh, empty adapter.
type Factory func() Adapter

// Event is one of the types below.
type Event interface {
	event()
}

// Dealt: a player received their private cards.
type Dealt struct {
	Player string
	Hand   Hand
}

// CardRevealed: a community card was turned face up.
type CardRevealed struct {
	Card Card
}

// Turn: Player owes the next decision.
type Turn struct {
	Player string
}

// BetPlaced: chips went into the pot, blinds included.
type BetPlaced struct {
	Player string
	Amount uint64
}

// RoundResolved: the hand reached showdown; hands are readable through ForEachPlayer.
type RoundResolved struct{}

// PlayerWon: Player collected Amount from the pot.
type PlayerWon struct {
	Player string
	Amount uint64
}

// GameOver: no further hands can be played.
type GameOver struct{}

func (Dealt) event()         {}
func (CardRevealed) event()  {}
func (Turn) event()          {}
func (BetPlaced) event()     {}
func (RoundResolved) event() {}
func (PlayerWon) event()     {}
func (GameOver) event()      {}

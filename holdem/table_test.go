package holdem

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/pokerlobby/engine"
)

type recorder struct {
	events []engine.Event
}

func (r *recorder) record(ev engine.Event) { r.events = append(r.events, ev) }

func (r *recorder) lastTurn() string {
	for i := len(r.events) - 1; i >= 0; i-- {
		if ev, ok := r.events[i].(engine.Turn); ok {
			return ev.Player
		}
	}
	return ""
}

func (r *recorder) count(match func(engine.Event) bool) int {
	n := 0
	for _, ev := range r.events {
		if match(ev) {
			n++
		}
	}
	return n
}

func newTestTable(t *testing.T, seed int64, players ...string) (*Table, *recorder) {
	t.Helper()
	opts := DefaultOptions()
	opts.Rand = rand.New(rand.NewSource(seed))
	table := NewTable(opts)
	rec := &recorder{}
	table.Subscribe(rec.record)
	for _, id := range players {
		table.AddPlayer(id, 300)
	}
	return table, rec
}

func chips(table *Table) map[string]uint64 {
	out := map[string]uint64{}
	table.ForEachPlayer(func(s engine.Seat) { out[s.ID] = s.Chips })
	return out
}

func TestTable_HeadsUpBlindsAndDeal(t *testing.T) {
	table, rec := newTestTable(t, 1, "a", "b")
	table.StartGame()

	bets := []engine.BetPlaced{}
	for _, ev := range rec.events {
		if b, ok := ev.(engine.BetPlaced); ok {
			bets = append(bets, b)
		}
	}
	require.Len(t, bets, 2)
	assert.Equal(t, engine.BetPlaced{Player: "a", Amount: 10}, bets[0])
	assert.Equal(t, engine.BetPlaced{Player: "b", Amount: 20}, bets[1])

	dealt := rec.count(func(ev engine.Event) bool { _, ok := ev.(engine.Dealt); return ok })
	assert.Equal(t, 2, dealt)

	// Heads-up the button posts the small blind and acts first.
	assert.Equal(t, "a", rec.lastTurn())
}

func TestTable_FoldAwardsPot(t *testing.T) {
	table, rec := newTestTable(t, 2, "a", "b")
	table.StartGame()

	require.NoError(t, table.Fold("a"))

	var won []engine.PlayerWon
	for _, ev := range rec.events {
		if w, ok := ev.(engine.PlayerWon); ok {
			won = append(won, w)
		}
	}
	require.NotEmpty(t, won)
	assert.Equal(t, engine.PlayerWon{Player: "b", Amount: 30}, won[0])

	// Next hand started with the button moved to b; stacks include new blinds.
	assert.Equal(t, "b", rec.lastTurn())
	c := chips(table)
	assert.Equal(t, uint64(600), c["a"]+c["b"]+30)
}

func TestTable_RejectsOutOfTurnAndIllegal(t *testing.T) {
	table, _ := newTestTable(t, 3, "a", "b", "c")

	assert.ErrorIs(t, table.Call("a"), ErrNotRunning)
	table.StartGame()

	// Three handed: button a, blinds b and c, a acts first.
	assert.ErrorIs(t, table.Call("b"), ErrNotYourTurn)
	assert.ErrorIs(t, table.Check("a"), ErrInvalidAction)
	assert.ErrorIs(t, table.Bet("a", 25), ErrInvalidAction) // below a full raise
	assert.ErrorIs(t, table.Bet("a", 301), ErrInvalidAction)
	assert.NoError(t, table.Bet("a", 40))
}

func TestTable_BigBlindOption(t *testing.T) {
	table, rec := newTestTable(t, 4, "a", "b", "c")
	table.StartGame()

	require.NoError(t, table.Call("a"))
	require.NoError(t, table.Call("b"))
	assert.Equal(t, "c", rec.lastTurn())
	require.NoError(t, table.Check("c"))

	flop := rec.count(func(ev engine.Event) bool { _, ok := ev.(engine.CardRevealed); return ok })
	assert.Equal(t, 3, flop)
	assert.Equal(t, "b", rec.lastTurn())
}

func TestTable_RemovePlayerOnTurnFolds(t *testing.T) {
	table, rec := newTestTable(t, 5, "a", "b", "c")
	table.StartGame()
	require.Equal(t, "a", rec.lastTurn())

	table.RemovePlayer("a")
	assert.Equal(t, "b", rec.lastTurn())

	table.RemovePlayer("b")
	won := rec.count(func(ev engine.Event) bool {
		w, ok := ev.(engine.PlayerWon)
		return ok && w.Player == "c"
	})
	assert.Equal(t, 1, won)

	over := rec.count(func(ev engine.Event) bool { _, ok := ev.(engine.GameOver); return ok })
	assert.Equal(t, 1, over)
}

func TestTable_MaxPlayers(t *testing.T) {
	table, _ := newTestTable(t, 6, "1", "2", "3", "4", "5", "6", "7")
	n := 0
	table.ForEachPlayer(func(engine.Seat) { n++ })
	assert.Equal(t, 6, n)
}

func TestTable_MaxPlayersClampedToDeck(t *testing.T) {
	table := NewTable(Options{SmallBlind: 10, BigBlind: 20, MaxPlayers: 40})
	for i := 0; i < 30; i++ {
		table.AddPlayer(fmt.Sprintf("p%d", i), 300)
	}
	n := 0
	table.ForEachPlayer(func(engine.Seat) { n++ })
	assert.Equal(t, MaxSeats, n)
	assert.Equal(t, 23, MaxSeats)
}

func TestTable_FullDeckReachesShowdown(t *testing.T) {
	ids := make([]string, MaxSeats)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i)
	}
	opts := DefaultOptions()
	opts.MaxPlayers = MaxSeats
	opts.Rand = rand.New(rand.NewSource(7))
	table := NewTable(opts)
	rec := &recorder{}
	table.Subscribe(rec.record)
	for _, id := range ids {
		table.AddPlayer(id, 300)
	}
	table.StartGame()

	resolved := func(ev engine.Event) bool { _, ok := ev.(engine.RoundResolved); return ok }
	for steps := 0; steps < 500 && rec.count(resolved) == 0; steps++ {
		require.NoError(t, table.Call(rec.lastTurn()))
	}

	require.Equal(t, 1, rec.count(resolved))
	revealed := rec.count(func(ev engine.Event) bool { _, ok := ev.(engine.CardRevealed); return ok })
	assert.Equal(t, 5, revealed)
}

func TestTable_ShortAllInDoesNotReopenBetting(t *testing.T) {
	opts := DefaultOptions()
	opts.Rand = rand.New(rand.NewSource(3))
	table := NewTable(opts)
	rec := &recorder{}
	table.Subscribe(rec.record)
	table.AddPlayer("a", 300) // button
	table.AddPlayer("b", 30)  // small blind, 20 behind
	table.AddPlayer("c", 300) // big blind
	table.StartGame()

	require.Equal(t, "a", rec.lastTurn())
	require.NoError(t, table.Call("a"))
	require.Equal(t, "b", rec.lastTurn())
	require.NoError(t, table.AllIn("b")) // to 30, ten short of a full raise
	require.Equal(t, "c", rec.lastTurn())
	require.NoError(t, table.Call("c"))

	// a already acted and only faces the short all-in: call or fold
	require.Equal(t, "a", rec.lastTurn())
	assert.ErrorIs(t, table.Bet("a", 100), ErrInvalidAction)
	assert.ErrorIs(t, table.AllIn("a"), ErrInvalidAction)
	require.NoError(t, table.Call("a"))
	assert.Equal(t, uint64(270), chips(table)["a"])
}

func TestTable_FullRaiseReopensBetting(t *testing.T) {
	table, rec := newTestTable(t, 4, "a", "b", "c")
	table.StartGame()

	require.NoError(t, table.Call("a"))
	require.NoError(t, table.Bet("b", 50)) // small blind raises to 60
	require.NoError(t, table.Call("c"))
	require.Equal(t, "a", rec.lastTurn())
	assert.NoError(t, table.Bet("a", 120))
}

func TestFactory_ConcurrentTablesGetOwnRand(t *testing.T) {
	opts := DefaultOptions()
	opts.Rand = rand.New(rand.NewSource(1))
	factory := Factory(opts)

	tables := make([]*Table, 8)
	var wg sync.WaitGroup
	for i := range tables {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tables[i] = factory().(*Table)
		}()
	}
	wg.Wait()

	for _, table := range tables {
		assert.NotSame(t, opts.Rand, table.rng)
	}
}

func TestTable_RandomPlayConservesChips(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		table, rec := newTestTable(t, seed, "a", "b", "c", "d")
		pick := rand.New(rand.NewSource(seed + 100))
		table.StartGame()

		for steps := 0; steps < 20000 && !table.over; steps++ {
			id := rec.lastTurn()
			var err error
			switch pick.Intn(6) {
			case 0:
				err = table.Fold(id)
			case 1:
				err = table.Check(id)
			case 2:
				err = table.AllIn(id)
			case 3:
				err = table.Bet(id, uint64(20+pick.Intn(80)))
			default:
				err = table.Call(id)
			}
			if err != nil {
				require.NoError(t, table.Call(id))
			}
		}

		require.True(t, table.over, "seed %d never finished", seed)
		total := uint64(0)
		for _, c := range chips(table) {
			total += c
		}
		assert.Equal(t, uint64(1200), total, "seed %d", seed)
	}
}

func TestTable_SidePots(t *testing.T) {
	table := NewTable(DefaultOptions())
	table.players = []*player{
		{id: "short", committed: 50, dealt: true, allIn: true},
		{id: "mid", committed: 100, dealt: true, allIn: true},
		{id: "big", committed: 100, dealt: true},
		{id: "folder", committed: 30, dealt: true, folded: true},
	}

	pots := table.pots()
	require.Len(t, pots, 2)
	assert.Equal(t, uint64(180), pots[0].amount)
	assert.Equal(t, []int{0, 1, 2}, pots[0].eligible)
	assert.Equal(t, uint64(100), pots[1].amount)
	assert.Equal(t, []int{1, 2}, pots[1].eligible)
}

func TestTable_ShowdownSplitsTies(t *testing.T) {
	table := NewTable(DefaultOptions())
	table.Subscribe((&recorder{}).record)
	table.started, table.running, table.button = true, true, 0
	// Board plays: a royal flush nobody can beat.
	table.board = []card{{1, 3}, {13, 3}, {12, 3}, {11, 3}, {10, 3}}
	table.players = []*player{
		{id: "a", hole: [2]card{{2, 0}, {3, 1}}, dealt: true, committed: 25},
		{id: "b", hole: [2]card{{4, 0}, {5, 1}}, dealt: true, committed: 25},
		{id: "c", hole: [2]card{{6, 0}, {7, 1}}, dealt: true, committed: 25},
	}

	table.showdown()
	c := chips(table)
	// 75 split three ways; no odd chip.
	assert.Equal(t, uint64(25), c["a"])
	assert.Equal(t, uint64(25), c["b"])
	assert.Equal(t, uint64(25), c["c"])
}

func TestCard_String(t *testing.T) {
	assert.Equal(t, "As", card{1, 3}.String())
	assert.Equal(t, "Td", card{10, 1}.String())
	assert.Equal(t, "2c", card{2, 0}.String())
}

package holdem

import (
	"math/rand"

	"github.com/paulhankin/poker"
	"github.com/wfunc/pokerlobby/engine"
)

const (
	rankChars = "?A23456789TJQK"
	suitChars = "cdhs"
)

// card ranks run 1 (ace) to 13 (king); suits club, diamond, heart, spade.
type card struct {
	rank uint8
	suit uint8
}

func (c card) String() string {
	return string(rankChars[c.rank]) + string(suitChars[c.suit])
}

func (c card) render() engine.Card {
	return engine.Card(c.String())
}

func (c card) evalCard() (poker.Card, error) {
	return poker.MakeCard(poker.Suit(c.suit), poker.Rank(c.rank))
}

func newDeck(rng *rand.Rand) []card {
	deck := make([]card, 0, 52)
	for suit := uint8(0); suit < 4; suit++ {
		for rank := uint8(1); rank <= 13; rank++ {
			deck = append(deck, card{rank: rank, suit: suit})
		}
	}
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	return deck
}

// score ranks hole+board; higher wins.
func score(hole [2]card, board []card) (int16, error) {
	var seven [7]poker.Card
	for i, c := range append(append([]card{}, board...), hole[:]...) {
		pc, err := c.evalCard()
		if err != nil {
			return 0, err
		}
		seven[i] = pc
	}
	return poker.Eval7(&seven), nil
}

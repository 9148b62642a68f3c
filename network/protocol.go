// network/protocol.go
package network

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Command is field 0 of every protocol line.
type Command string

// Client → server.
const (
	CmdJoin     Command = "join"
	CmdSpectate Command = "spectate"
	CmdCall     Command = "action-call"
	CmdBet      Command = "action-bet"
	CmdFold     Command = "action-fold"
	CmdAllIn    Command = "action-all-in"
	CmdCheck    Command = "action-check"
)

// Server → client.
const (
	CmdPlayerJoin     Command = "player-join"
	CmdPlayerLeft     Command = "player-left"
	CmdYouAre         Command = "you-are"
	CmdGameStartingIn Command = "game-starting-in"
	CmdGameStarted    Command = "game-started"
	CmdGameOver       Command = "game-over"
	CmdDeal           Command = "deal"
	CmdShowCard       Command = "show-card"
	CmdShowdown       Command = "showdown"
	CmdTurnPrompt     Command = "turn-prompt"
	CmdBetMade        Command = "bet-made"
	CmdWin            Command = "win"
	CmdUnrecognized   Command = "unrecognized-action"

	// Action broadcasts. Kept distinct from the action-* requests.
	CmdCalled  Command = "call"
	CmdBetted  Command = "bet"
	CmdFolded  Command = "fold"
	CmdAllInd  Command = "all-in"
	CmdChecked Command = "check"
)

const (
	fieldSep = ":"
	listSep  = ","

	// DefaultName is used when a join carries no usable name.
	DefaultName   = "Untitled"
	MaxNameLength = 32
)

// Request is a decoded client message. Name is set for join, Amount for action-bet.
type Request struct {
	Command Command
	Name    string
	Amount  uint64
}

// IsAction reports whether the request is a game action for the turn holder.
func (r Request) IsAction() bool {
	switch r.Command {
	case CmdCall, CmdBet, CmdFold, CmdAllIn, CmdCheck:
		return true
	}
	return false
}

var unrecognized = Request{Command: CmdUnrecognized}

// ParseRequest decodes one inbound line. It never fails: anything malformed,
// truncated or unknown comes back as CmdUnrecognized.
func ParseRequest(raw string) Request {
	raw = strings.TrimRight(raw, "\r\n")
	tag, rest, hasArgs := strings.Cut(raw, fieldSep)

	switch cmd := Command(tag); cmd {
	case CmdJoin:
		// 名字里的冒号也属于名字
		return Request{Command: CmdJoin, Name: SanitizeName(rest)}
	case CmdSpectate, CmdCall, CmdFold, CmdAllIn, CmdCheck:
		if hasArgs {
			return unrecognized
		}
		return Request{Command: cmd}
	case CmdBet:
		if !hasArgs || strings.Contains(rest, fieldSep) {
			return unrecognized
		}
		amount, err := strconv.ParseUint(rest, 10, 64)
		if err != nil || amount == 0 {
			return unrecognized
		}
		return Request{Command: CmdBet, Amount: amount}
	}
	return unrecognized
}

// SanitizeName strips the protocol separators from a display name.
func SanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ',', ':', ';', '\n', '\r':
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}
	if name == "" {
		return DefaultName
	}
	return name
}

func encode(cmd Command, fields ...string) string {
	if len(fields) == 0 {
		return string(cmd)
	}
	return string(cmd) + fieldSep + strings.Join(fields, fieldSep)
}

func itoa(n int) string { return strconv.Itoa(n) }

func utoa(n uint64) string { return strconv.FormatUint(n, 10) }

func list(items []string) string { return strings.Join(items, listSep) }

// RosterEntry is one seat of a game-started snapshot.
type RosterEntry struct {
	Seat  int
	Name  string
	Chips uint64
}

func PlayerJoin(seat int, name string) string {
	return encode(CmdPlayerJoin, itoa(seat)+listSep+name)
}

func PlayerLeft(seat int) string { return encode(CmdPlayerLeft, itoa(seat)) }

func YouAre(seat int) string { return encode(CmdYouAre, itoa(seat)) }

func GameStartingIn(ticks int) string { return encode(CmdGameStartingIn, itoa(ticks)) }

// GameStarted renders the roster as seat,name,chips triples joined by commas.
func GameStarted(roster []RosterEntry) string {
	fields := make([]string, 0, len(roster)*3)
	for _, e := range roster {
		fields = append(fields, itoa(e.Seat), e.Name, utoa(e.Chips))
	}
	return encode(CmdGameStarted, list(fields))
}

func GameOver() string { return encode(CmdGameOver) }

func Deal(cards []string) string { return encode(CmdDeal, list(cards)) }

func ShowCard(card string) string { return encode(CmdShowCard, card) }

func Showdown(seat int, cards []string) string {
	return encode(CmdShowdown, itoa(seat), list(cards))
}

func TurnPrompt() string { return encode(CmdTurnPrompt) }

func BetMade(amount uint64, seat int) string { return encode(CmdBetMade, utoa(amount), itoa(seat)) }

func Win(amount uint64) string { return encode(CmdWin, utoa(amount)) }

func Unrecognized() string { return encode(CmdUnrecognized) }

// ActionTaken renders the room-wide broadcast for an accepted action. The request
// command picks the tag; amount is only written for bets.
func ActionTaken(req Command, seat int, amount uint64) string {
	switch req {
	case CmdCall:
		return encode(CmdCalled, itoa(seat))
	case CmdBet:
		return encode(CmdBetted, utoa(amount), itoa(seat))
	case CmdFold:
		return encode(CmdFolded, itoa(seat))
	case CmdAllIn:
		return encode(CmdAllInd, itoa(seat))
	case CmdCheck:
		return encode(CmdChecked, itoa(seat))
	}
	return Unrecognized()
}

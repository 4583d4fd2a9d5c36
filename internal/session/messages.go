package session

import (
	"github.com/borderland-games/arena/internal/game"
	"github.com/borderland-games/arena/internal/transport"
	"github.com/borderland-games/arena/pkg/wire"
)

// Msg is anything the session actor accepts on its inbox.
type Msg interface{ isSessionMsg() }

// Subscribe registers a local consumer (the UI) for snapshots. The
// current snapshot is delivered immediately.
type Subscribe struct {
	ID     string
	Outbox chan Snapshot
}

// Unsubscribe removes a consumer.
type Unsubscribe struct{ ID string }

// SendChat submits a chat line from the local player.
type SendChat struct{ Text string }

// Guess submits the local player's suit bet.
type Guess struct{ Suit game.Suit }

// BuyIntoPot spends amount from the local ledger and adds it to the pot.
type BuyIntoPot struct {
	Amount float64
	Reply  chan error
}

// StartGame begins a fresh round set. Host only.
type StartGame struct{ Reply chan error }

// SeedBots adds computer players to the lobby for practice rooms. Host
// only; bots have no peer identity and guess on a timer during JAIL.
type SeedBots struct{ Bots []game.Player }

// GetView reflects internal state without data races; test-only.
type GetView struct{ Reply chan View }

// Shutdown tears the session down.
type Shutdown struct{}

type fromTransport struct{ ev transport.Event }

type tick struct{ gen int }

type botGuess struct {
	playerID string
	token    string
	suit     game.Suit
}

func (Subscribe) isSessionMsg()     {}
func (Unsubscribe) isSessionMsg()   {}
func (SendChat) isSessionMsg()      {}
func (Guess) isSessionMsg()         {}
func (BuyIntoPot) isSessionMsg()    {}
func (StartGame) isSessionMsg()     {}
func (SeedBots) isSessionMsg()      {}
func (GetView) isSessionMsg()       {}
func (Shutdown) isSessionMsg()      {}
func (fromTransport) isSessionMsg() {}
func (tick) isSessionMsg()          {}
func (botGuess) isSessionMsg()      {}

// Snapshot is what local subscribers render. Always a full copy; the
// receiver replaces, never merges.
type Snapshot struct {
	Version int
	State   game.State
	Players []game.Player
	Chat    []wire.ChatMessage
}

// View is the test-only reflection of the actor's internals.
type View struct {
	Version int
	NumSubs int
	IsHost  bool
	Self    string
	State   game.State
	Players []game.Player
	Chat    []wire.ChatMessage
	Streams int
}

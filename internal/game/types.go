package game

// Phase is one state of the round state machine.
type Phase string

const (
	PhaseLobby      Phase = "LOBBY"
	PhaseDiscussion Phase = "DISCUSSION"
	PhaseJail       Phase = "JAIL"
	PhaseResolving  Phase = "RESOLVING"
	PhaseGameOver   Phase = "GAME_OVER"
)

// Role is a player's hidden allegiance for the current game.
type Role string

const (
	RoleCitizen Role = "CITIZEN"
	RoleJack    Role = "JACK"
)

// Suit is both a player's hidden truth and the bet they place on it.
type Suit string

const (
	SuitHearts   Suit = "HEARTS"
	SuitDiamonds Suit = "DIAMONDS"
	SuitClubs    Suit = "CLUBS"
	SuitSpades   Suit = "SPADES"
)

// Suits in a fixed order for random draws.
var Suits = []Suit{SuitHearts, SuitDiamonds, SuitClubs, SuitSpades}

// Player is one participant, human or bot. ActualSuit is hidden from its
// own holder and shown to everyone else; Role is hidden from everyone but
// the holder. GuessedSuit nil means no bet placed this round.
type Player struct {
	ID          string  `json:"id"`
	PeerID      string  `json:"peerId,omitempty"` // empty for local bots
	Name        string  `json:"name"`
	Avatar      string  `json:"avatar"`
	HP          int     `json:"hp"`
	IsAlive     bool    `json:"isAlive"`
	IsLocal     bool    `json:"isLocal"`
	IsHost      bool    `json:"isHost,omitempty"`
	IsSpectator bool    `json:"isSpectator,omitempty"`
	Role        Role    `json:"role,omitempty"`
	ActualSuit  Suit    `json:"actualSuit,omitempty"`
	GuessedSuit *Suit   `json:"guessedSuit,omitempty"`
	Stake       float64 `json:"stakeAmount"`
	Balance     float64 `json:"balance"`
	Reputation  int     `json:"reputation"`
}

// State is the canonical round/session state. It is owned by the host;
// clients only ever hold a copy replaced wholesale by WELCOME or
// STATE_UPDATE, never merged field by field.
type State struct {
	Phase          Phase    `json:"phase"`
	Round          int      `json:"round"`
	Timer          int      `json:"timer"`
	Pot            float64  `json:"pot"`
	RCPot          float64  `json:"rcPot"`
	Narrative      string   `json:"narrative"`
	History        []string `json:"history"` // most-recent-first
	DiscussionTime int      `json:"discussionTime,omitempty"`
	GameID         string   `json:"gameId,omitempty"`
}

// Welcome is the WELCOME payload: always a full snapshot of both the
// roster and the game state so clients converge atomically.
type Welcome struct {
	Players   []Player `json:"players"`
	GameState State    `json:"gameState"`
}

// Jack returns the current JACK, or nil if no role assignment is live.
func Jack(players []Player) *Player {
	for i := range players {
		if players[i].Role == RoleJack {
			return &players[i]
		}
	}
	return nil
}

// AliveContestants counts players still in the running for the pot.
func AliveContestants(players []Player) int {
	n := 0
	for i := range players {
		if players[i].IsAlive && !players[i].IsSpectator {
			n++
		}
	}
	return n
}

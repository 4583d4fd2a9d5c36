package wire

import "encoding/json"

// Type discriminates the message envelope. All peers in a session speak
// the same closed set; unknown types are dropped by the receiver.
type Type string

const (
	TypeJoin         Type = "JOIN"
	TypeWelcome      Type = "WELCOME"
	TypeStateUpdate  Type = "STATE_UPDATE"
	TypePlayerAction Type = "PLAYER_ACTION"
	TypeChat         Type = "CHAT"
	TypeBuyIn        Type = "BUY_IN"
	// TypeNarrative is reserved; nothing dispatches on it yet.
	TypeNarrative Type = "NARRATIVE"
)

// Message is the envelope every data-channel payload travels in.
type Message struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// New marshals payload into an envelope. Marshal errors are impossible for
// the payload structs in this package, so they are swallowed here.
func New(t Type, payload any) Message {
	raw, _ := json.Marshal(payload)
	return Message{Type: t, Payload: raw}
}

// ActionType is the kind of a PLAYER_ACTION.
type ActionType string

const (
	ActionGuessSuit ActionType = "GUESS_SUIT"
	ActionBribe     ActionType = "BRIBE"
)

// PlayerAction is the PLAYER_ACTION payload.
type PlayerAction struct {
	PlayerID string          `json:"playerId"`
	Type     ActionType      `json:"type"`
	Value    json.RawMessage `json:"value"`
}

// BuyIn is the BUY_IN payload.
type BuyIn struct {
	PlayerID string  `json:"playerId"`
	Amount   float64 `json:"amount"`
}

// ChatMessage is the CHAT payload. Receivers must de-duplicate by ID
// because the host echoes chat back to everyone, sender included.
type ChatMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	IsSystem  bool   `json:"isSystem,omitempty"`
}

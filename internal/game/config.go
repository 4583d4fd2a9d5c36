package game

// Economy and pacing defaults, mirrored by every peer in a session.
const (
	InitialHP      = 100
	InitialBalance = 5.0 // starting chips for guest players

	DefaultDiscussionTime = 240 // seconds
	DefaultJailTime       = 60  // seconds

	BuyInAmount      = 0.1
	RoomCreationCost = 10.0
	MinStake         = 1.0
	NewUserBonus     = 200.0

	// Bots wait at least this long before betting, and never bet in the
	// final seconds of jail.
	BotGuessMinDelaySec = 2
	BotGuessMarginSec   = 5
)

// Config carries the per-room pacing knobs the host was created with.
type Config struct {
	DiscussionTime int
	JailTime       int
}

// DefaultConfig returns the stock room pacing.
func DefaultConfig() Config {
	return Config{
		DiscussionTime: DefaultDiscussionTime,
		JailTime:       DefaultJailTime,
	}
}

// NewState returns the pre-game lobby state a fresh session starts from.
func NewState(cfg Config) State {
	return State{
		Phase:          PhaseLobby,
		Round:          0,
		Timer:          cfg.DiscussionTime,
		Narrative:      "Waiting for game to start...",
		History:        []string{},
		DiscussionTime: cfg.DiscussionTime,
	}
}

package session

import (
	"math/rand"
	"time"

	"github.com/borderland-games/arena/internal/game"
)

// One tick is one second of logical time. The interval is configurable
// so tests can compress time; jitter is tolerated, drift is not
// corrected.
const defaultTickInterval = time.Second

func newTimer(d time.Duration) *time.Timer { return time.NewTimer(d) }

func nowMillis() int64 { return time.Now().UnixMilli() }

// botDelay spreads bot bets across the jail window: at least the minimum
// delay, never inside the closing margin. Expressed in logical seconds
// scaled by the session's tick interval.
func botDelay(rng *rand.Rand, maxDelaySec int, tickEvery time.Duration) time.Duration {
	ms := rng.Intn(maxDelaySec*1000) + game.BotGuessMinDelaySec*1000
	return time.Duration(ms) * tickEvery / 1000
}

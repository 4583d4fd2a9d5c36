// Package mesh keeps full media connectivity between session peers:
// exactly one call per pair, with no broker and no first-come race.
package mesh

import (
	"go.uber.org/zap"

	"github.com/borderland-games/arena/internal/game"
)

// Caller is the slice of the transport the coordinator needs.
type Caller interface {
	CallPeer(peer string)
	HasCall(peer string) bool
}

// Coordinator decides, per pair of peers, which side initiates the media
// call. The lexicographically greater identity calls the lesser one, so
// both sides running Sync independently still produce one call per pair.
type Coordinator struct {
	calls Caller
	log   *zap.Logger
}

func New(calls Caller, log *zap.Logger) *Coordinator {
	return &Coordinator{calls: calls, log: log}
}

// Sync runs one pass over the roster. Called after every WELCOME or JOIN
// changes the known peer set. Peers without a network identity (bots) and
// peers already in-call are skipped. Equal identities never happen under
// correct allocation; if they did, neither side would call.
func (c *Coordinator) Sync(self string, roster []game.Player) {
	if self == "" {
		return
	}
	for i := range roster {
		peer := roster[i].PeerID
		if peer == "" || peer == self {
			continue
		}
		if c.calls.HasCall(peer) {
			continue
		}
		if self > peer {
			c.log.Debug("initiating call", zap.String("peer", peer))
			c.calls.CallPeer(peer)
		}
	}
}

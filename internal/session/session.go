// Package session is the protocol layer of one peer: a single actor
// goroutine that owns the roster, game state and chat log, interprets
// inbound wire messages by type and role, and (on the host) drives the
// round state machine off a one-second tick.
//
// The data topology is a star: clients talk only to the host and never
// relay, the host is the only fan-out point. Media is full mesh on top.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/borderland-games/arena/internal/collab"
	"github.com/borderland-games/arena/internal/game"
	"github.com/borderland-games/arena/internal/mesh"
	"github.com/borderland-games/arena/internal/transport"
	"github.com/borderland-games/arena/pkg/wire"
)

var (
	ErrNotHost             = errors.New("session: host-only operation")
	ErrInsufficientBalance = errors.New("session: insufficient balance")
)

const (
	roomCapacity    = 10
	collabTimeout   = 2 * time.Second
	narratorTimeout = 2 * time.Second
)

// Options wires a session's collaborators. Transport must be unopened;
// the constructors own its lifecycle.
type Options struct {
	Transport  transport.Session
	LocalMedia transport.MediaStream
	Logger     *zap.Logger
	Narrator   collab.Narrator
	Ledger     collab.Ledger
	Registry   collab.Registry
	Config     game.Config
	Rand       *rand.Rand
	// TickInterval maps one logical second to wall time. Tests compress
	// it; zero means one real second.
	TickInterval time.Duration
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Narrator == nil {
		o.Narrator = collab.StaticNarrator{}
	}
	if o.Ledger == nil {
		o.Ledger = collab.NewMemoryLedger(game.NewUserBonus)
	}
	if o.Registry == nil {
		o.Registry = collab.NewMemoryRegistry()
	}
	if o.Config == (game.Config{}) {
		o.Config = game.DefaultConfig()
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.TickInterval <= 0 {
		o.TickInterval = defaultTickInterval
	}
}

// Session is the per-peer protocol actor.
type Session struct {
	inbox     chan Msg
	trans     transport.Session
	log       *zap.Logger
	cfg       game.Config
	rng       *rand.Rand
	tickEvery time.Duration

	narrator collab.Narrator
	ledger   collab.Ledger
	registry collab.Registry
	mesh     *mesh.Coordinator

	self   string
	isHost bool
	roomID string

	players []game.Player
	state   game.State
	chat    []wire.ChatMessage
	streams map[string]transport.MediaStream
	version int
	subs    map[string]chan Snapshot

	tickGen     int
	seenGameID  string
	paidOut     bool
	stakeUnpaid bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Host creates a room: debits the room creation cost, opens the
// transport as host, seeds the roster with the host's own player and
// advertises the room in the registry (best-effort).
func Host(parent context.Context, opts Options, profile game.Player) (*Session, error) {
	opts.defaults()

	ok, err := opts.Ledger.Spend(parent, game.RoomCreationCost)
	if err != nil {
		return nil, fmt.Errorf("session: ledger: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: room costs %.0f", ErrInsufficientBalance, game.RoomCreationCost)
	}

	id, err := opts.Transport.Open(parent, true, opts.LocalMedia)
	if err != nil {
		return nil, fmt.Errorf("session: open transport: %w", err)
	}

	profile.PeerID = id
	profile.IsHost = true
	profile.IsLocal = true
	profile.IsAlive = true
	if profile.HP == 0 {
		profile.HP = game.InitialHP
	}

	s := newSession(parent, opts, id, true)
	s.roomID = id
	s.players = []game.Player{profile}

	rctx, rcancel := context.WithTimeout(parent, collabTimeout)
	defer rcancel()
	if err := s.registry.Register(rctx, collab.RoomRecord{
		RoomID:         id,
		HostPeerID:     id,
		HostName:       profile.Name,
		Status:         collab.RoomWaiting,
		PlayerCount:    1,
		Capacity:       roomCapacity,
		BuyIn:          game.BuyInAmount,
		DiscussionTime: s.cfg.DiscussionTime,
	}); err != nil {
		s.log.Warn("room registration failed", zap.Error(err))
	}

	s.start()
	return s, nil
}

// Join connects to an existing room as a client, debiting buyIn first
// when non-zero. The JOIN message carries the full profile plus our peer
// identity for correlation.
func Join(parent context.Context, opts Options, hostID string, profile game.Player, buyIn float64) (*Session, error) {
	opts.defaults()

	if buyIn > 0 {
		ok, err := opts.Ledger.Spend(parent, buyIn)
		if err != nil {
			return nil, fmt.Errorf("session: ledger: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: buy-in is %.2f", ErrInsufficientBalance, buyIn)
		}
	}

	id, err := opts.Transport.Open(parent, false, opts.LocalMedia)
	if err != nil {
		return nil, fmt.Errorf("session: open transport: %w", err)
	}

	profile.PeerID = id
	profile.IsLocal = true
	profile.IsAlive = true
	if profile.HP == 0 {
		profile.HP = game.InitialHP
	}

	if err := opts.Transport.ConnectToHost(parent, hostID, wire.New(wire.TypeJoin, profile)); err != nil {
		opts.Transport.Close()
		return nil, fmt.Errorf("session: %w", err)
	}

	s := newSession(parent, opts, id, false)
	s.roomID = hostID
	s.players = []game.Player{profile}

	if buyIn > 0 {
		s.trans.Send(wire.New(wire.TypeBuyIn, wire.BuyIn{PlayerID: profile.ID, Amount: buyIn}))
	}

	s.start()
	return s, nil
}

func newSession(parent context.Context, opts Options, self string, isHost bool) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		inbox:     make(chan Msg, 64),
		trans:     opts.Transport,
		log:       opts.Logger,
		cfg:       opts.Config,
		rng:       opts.Rand,
		tickEvery: opts.TickInterval,
		narrator:  opts.Narrator,
		ledger:    opts.Ledger,
		registry:  opts.Registry,
		self:      self,
		isHost:    isHost,
		state:     game.NewState(opts.Config),
		streams:   map[string]transport.MediaStream{},
		subs:      map[string]chan Snapshot{},
		ctx:       ctx,
		cancel:    cancel,
	}
	s.mesh = mesh.New(opts.Transport, opts.Logger)
	return s
}

func (s *Session) start() {
	go s.pump()
	go s.loop()
}

// Inbox exposes the actor's mailbox.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// ID returns this peer's transport identity.
func (s *Session) ID() string { return s.self }

// RoomID returns the room's address, i.e. the host's identity.
func (s *Session) RoomID() string { return s.roomID }

// pump forwards transport events into the inbox so the loop has a
// single message source.
func (s *Session) pump() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-s.trans.Events():
			if !ok {
				return
			}
			select {
			case <-s.ctx.Done():
				return
			case s.inbox <- fromTransport{ev: ev}:
			}
		}
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Subscribe:
				s.subs[msg.ID] = msg.Outbox
				msg.Outbox <- s.snapshot()

			case Unsubscribe:
				delete(s.subs, msg.ID)

			case fromTransport:
				s.handleTransport(msg.ev)

			case SendChat:
				s.handleLocalChat(msg.Text)

			case Guess:
				s.handleLocalGuess(msg.Suit)

			case BuyIntoPot:
				msg.Reply <- s.handleLocalBuyIn(msg.Amount)

			case StartGame:
				msg.Reply <- s.handleStartGame()

			case SeedBots:
				s.handleSeedBots(msg.Bots)

			case tick:
				s.handleTick(msg.gen)

			case botGuess:
				s.handleBotGuess(msg)

			case GetView:
				msg.Reply <- View{
					Version: s.version,
					NumSubs: len(s.subs),
					IsHost:  s.isHost,
					Self:    s.self,
					State:   s.state,
					Players: clonePlayers(s.players),
					Chat:    append([]wire.ChatMessage(nil), s.chat...),
					Streams: len(s.streams),
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) shutdown() {
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	for _, stream := range s.streams {
		stream.Close()
	}
	s.streams = map[string]transport.MediaStream{}
	s.trans.Close()
	s.cancel()
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		Version: s.version,
		State:   s.state,
		Players: clonePlayers(s.players),
		Chat:    append([]wire.ChatMessage(nil), s.chat...),
	}
}

// publish bumps the version and fans the snapshot out to subscribers.
// Slow subscribers are dropped rather than allowed to stall the actor.
func (s *Session) publish() {
	s.version++
	snap := s.snapshot()
	for id, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			close(ch)
			delete(s.subs, id)
		}
	}
}

func clonePlayers(players []game.Player) []game.Player {
	out := make([]game.Player, len(players))
	copy(out, players)
	return out
}

// chatID derives a de-duplicatable id from creation time.
func chatID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}

// newGameID tokens a play-through so clients can detect a fresh game.
func newGameID() string { return uuid.NewString() }

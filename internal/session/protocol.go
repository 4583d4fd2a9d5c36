package session

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/borderland-games/arena/internal/collab"
	"github.com/borderland-games/arena/internal/game"
	"github.com/borderland-games/arena/internal/transport"
	"github.com/borderland-games/arena/pkg/wire"
)

// handleTransport is the single place where "what does receiving X mean
// for my role" is decided.
func (s *Session) handleTransport(ev transport.Event) {
	switch ev.Kind {
	case transport.EventMessage:
		s.dispatch(ev.Peer, ev.Msg)

	case transport.EventStream:
		if old := s.streams[ev.Peer]; old != nil {
			old.Close()
		}
		s.streams[ev.Peer] = ev.Stream
		s.publish()

	case transport.EventPeerDisconnected:
		s.handleDisconnect(ev.Peer)

	case transport.EventError:
		// Transport errors are reported, never thrown across the event
		// boundary. One peer's failed call is recoverable: the session
		// carries on without their video.
		s.log.Warn("transport error", zap.String("peer", ev.Peer), zap.Error(ev.Err))
	}
}

func (s *Session) dispatch(from string, msg wire.Message) {
	switch msg.Type {
	case wire.TypeJoin:
		s.handleJoin(msg.Payload)
	case wire.TypeWelcome:
		s.handleWelcome(msg.Payload)
	case wire.TypeStateUpdate:
		s.handleStateUpdate(msg.Payload)
	case wire.TypePlayerAction:
		s.handlePlayerAction(msg.Payload)
	case wire.TypeChat:
		s.handleChat(msg.Payload)
	case wire.TypeBuyIn:
		s.handleBuyIn(msg.Payload)
	default:
		// Unknown types are dropped, never crash the dispatch loop.
		s.log.Debug("unknown message type", zap.String("type", string(msg.Type)), zap.String("from", from))
	}
}

// handleJoin appends an unseen player, announces them and resyncs state
// to everyone. Duplicate JOINs for a known id are dropped so the
// handshake is idempotent. Host only; clients never receive JOIN.
func (s *Session) handleJoin(payload json.RawMessage) {
	if !s.isHost {
		return
	}
	var p game.Player
	if err := json.Unmarshal(payload, &p); err != nil {
		s.log.Warn("bad JOIN payload", zap.Error(err))
		return
	}
	for i := range s.players {
		if s.players[i].ID == p.ID {
			return
		}
	}
	p.IsLocal = false
	s.players = append(s.players, p)

	// Roster mutation and the broadcast announcing it happen in the same
	// actor turn, so nobody observes a half-applied join.
	s.broadcastWelcome()
	s.systemChat(fmt.Sprintf("%s entered the Borderland.", p.Name))
	s.mesh.Sync(s.self, s.players)
	s.syncRegistryRoster()
	s.publish()
}

// handleWelcome replaces roster and state wholesale, re-derives IsLocal
// from our own identity and runs a mesh pass. Client only; the host is
// authoritative and never receives it.
func (s *Session) handleWelcome(payload json.RawMessage) {
	if s.isHost {
		return
	}
	var w game.Welcome
	if err := json.Unmarshal(payload, &w); err != nil {
		s.log.Warn("bad WELCOME payload", zap.Error(err))
		return
	}
	for i := range w.Players {
		w.Players[i].IsLocal = w.Players[i].PeerID == s.self
	}
	s.players = w.Players
	s.state = w.GameState
	s.noteGameID()
	s.maybePayout()
	s.mesh.Sync(s.self, s.players)
	s.publish()
}

// handleStateUpdate replaces the local game state wholesale. Client only.
func (s *Session) handleStateUpdate(payload json.RawMessage) {
	if s.isHost {
		return
	}
	var st game.State
	if err := json.Unmarshal(payload, &st); err != nil {
		s.log.Warn("bad STATE_UPDATE payload", zap.Error(err))
		return
	}
	s.state = st
	s.noteGameID()
	s.publish()
}

// noteGameID re-triggers per-game side effects when the host started a
// fresh play-through: the local stake is deducted once per game id. A
// game id first seen at GAME_OVER means we joined after the fact: no
// stake goes in and no pot share comes out.
func (s *Session) noteGameID() {
	id := s.state.GameID
	if id == "" || id == s.seenGameID {
		return
	}
	s.seenGameID = id
	if s.state.Phase == game.PhaseGameOver {
		s.paidOut = true
		return
	}
	s.paidOut = false
	s.stakeUnpaid = false
	local := s.localPlayer()
	if local == nil || local.IsSpectator || local.Stake <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, collabTimeout)
	defer cancel()
	ok, err := s.ledger.Spend(ctx, local.Stake)
	if err != nil || !ok {
		// An uncollected stake bars play for this game: no bets placed,
		// no pot share claimed.
		s.stakeUnpaid = true
		s.log.Warn("stake deduction failed", zap.Float64("stake", local.Stake), zap.Error(err))
		s.systemChat("Your stake could not be collected. You are watching this game from the sidelines.")
	}
}

// handlePlayerAction applies a guess first-guess-wins and, on the host,
// relays the action verbatim so every client observes it. Clients apply
// optimistically and never relay.
func (s *Session) handlePlayerAction(payload json.RawMessage) {
	var action wire.PlayerAction
	if err := json.Unmarshal(payload, &action); err != nil {
		s.log.Warn("bad PLAYER_ACTION payload", zap.Error(err))
		return
	}
	switch action.Type {
	case wire.ActionGuessSuit:
		var suit game.Suit
		if err := json.Unmarshal(action.Value, &suit); err != nil {
			return
		}
		s.players, _ = game.ApplyGuess(s.players, action.PlayerID, suit)
	case wire.ActionBribe:
		// Bribes travel the wire but have no state effect here.
	default:
		return
	}
	if s.isHost {
		s.trans.Broadcast(wire.TypePlayerAction, action)
	}
	s.publish()
}

// handleChat appends a message unless its id was already seen; the host
// echoes chat to everyone, which is why receipt must de-duplicate.
func (s *Session) handleChat(payload json.RawMessage) {
	var msg wire.ChatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.log.Warn("bad CHAT payload", zap.Error(err))
		return
	}
	if !s.appendChat(msg) {
		return
	}
	if s.isHost {
		s.trans.Broadcast(wire.TypeChat, msg)
	}
	s.publish()
}

// handleBuyIn grows the pot and announces it. Host only; clients only
// ever send BUY_IN upward.
func (s *Session) handleBuyIn(payload json.RawMessage) {
	if !s.isHost {
		return
	}
	var b wire.BuyIn
	if err := json.Unmarshal(payload, &b); err != nil {
		s.log.Warn("bad BUY_IN payload", zap.Error(err))
		return
	}
	s.state.Pot += b.Amount
	s.systemChat(fmt.Sprintf("Player bought in with %.2f", b.Amount))
	s.trans.Broadcast(wire.TypeStateUpdate, s.state)
	s.publish()
}

// handleDisconnect: the host removes the player and rebroadcasts the
// roster; a client only drops the peer's media stream and waits for the
// host's WELCOME.
func (s *Session) handleDisconnect(peer string) {
	if stream := s.streams[peer]; stream != nil {
		stream.Close()
		delete(s.streams, peer)
	}
	if !s.isHost {
		s.publish()
		return
	}

	name := ""
	kept := s.players[:0:0]
	for _, p := range s.players {
		if p.PeerID == peer {
			name = p.Name
			continue
		}
		kept = append(kept, p)
	}
	if name == "" {
		s.publish()
		return
	}
	s.players = kept

	// A dropped player's stake stays in the pot: disconnecting is
	// elimination-risk the player accepted by joining.
	s.broadcastWelcome()
	s.systemChat(fmt.Sprintf("%s was lost in the void.", name))
	s.syncRegistryRoster()
	s.publish()
}

// --- local commands ---

func (s *Session) handleLocalChat(text string) {
	local := s.localPlayer()
	if local == nil {
		return
	}
	msg := wire.ChatMessage{
		ID:        chatID(),
		Sender:    local.Name,
		Text:      text,
		Timestamp: nowMillis(),
	}
	s.appendChat(msg)
	if s.isHost {
		s.trans.Broadcast(wire.TypeChat, msg)
	} else {
		s.trans.Send(wire.New(wire.TypeChat, msg))
	}
	s.publish()
}

// handleLocalGuess applies the local bet optimistically and forwards it.
// The next authoritative broadcast idempotently overwrites the optimism.
func (s *Session) handleLocalGuess(suit game.Suit) {
	local := s.localPlayer()
	if local == nil || !local.IsAlive || local.IsSpectator || s.stakeUnpaid {
		return
	}
	action := wire.PlayerAction{
		PlayerID: local.ID,
		Type:     wire.ActionGuessSuit,
		Value:    mustJSON(suit),
	}
	s.players, _ = game.ApplyGuess(s.players, local.ID, suit)
	if s.isHost {
		s.trans.Broadcast(wire.TypePlayerAction, action)
	} else {
		s.trans.Send(wire.New(wire.TypePlayerAction, action))
	}
	s.publish()
}

func (s *Session) handleLocalBuyIn(amount float64) error {
	local := s.localPlayer()
	if local == nil {
		return ErrNotHost
	}
	ctx, cancel := context.WithTimeout(s.ctx, collabTimeout)
	defer cancel()
	ok, err := s.ledger.Spend(ctx, amount)
	if err != nil {
		return fmt.Errorf("session: ledger: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: buy-in is %.2f", ErrInsufficientBalance, amount)
	}
	buy := wire.BuyIn{PlayerID: local.ID, Amount: amount}
	if s.isHost {
		s.state.Pot += amount
		s.systemChat(fmt.Sprintf("Player bought in with %.2f", amount))
		s.trans.Broadcast(wire.TypeStateUpdate, s.state)
		s.publish()
	} else {
		s.trans.Send(wire.New(wire.TypeBuyIn, buy))
	}
	return nil
}

// handleStartGame deals fresh roles and suits, collects stakes and moves
// everyone into DISCUSSION. Host only.
func (s *Session) handleStartGame() error {
	if !s.isHost {
		return ErrNotHost
	}
	local := s.localPlayer()
	if local != nil && !local.IsSpectator && local.Stake > 0 {
		ctx, cancel := context.WithTimeout(s.ctx, collabTimeout)
		ok, err := s.ledger.Spend(ctx, local.Stake)
		cancel()
		if err != nil {
			return fmt.Errorf("session: ledger: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: stake is %.2f", ErrInsufficientBalance, local.Stake)
		}
	}

	nctx, ncancel := context.WithTimeout(s.ctx, narratorTimeout)
	intro := collab.IntroOrFallback(nctx, s.narrator)
	ncancel()

	players, st, err := game.StartRound(s.players, s.state, s.cfg, s.rng, intro, newGameID())
	if err != nil {
		return err
	}
	s.players = players
	s.state = st
	s.seenGameID = st.GameID
	s.paidOut = false
	s.stakeUnpaid = false

	// Both broadcasts so late joiners and existing clients converge to
	// the same (state, roster) pair.
	s.trans.Broadcast(wire.TypeStateUpdate, s.state)
	s.broadcastWelcome()
	s.setRegistryStatus(collab.RoomActive)
	s.armTick()
	s.publish()
	return nil
}

// handleSeedBots appends computer players to the lobby roster. Bots
// carry no peer identity, so the transport and mesh layers ignore them.
// Host only, lobby only.
func (s *Session) handleSeedBots(bots []game.Player) {
	if !s.isHost || s.state.Phase != game.PhaseLobby {
		return
	}
	for _, b := range bots {
		b.PeerID = ""
		b.IsLocal = false
		b.IsHost = false
		b.IsAlive = true
		if b.HP == 0 {
			b.HP = game.InitialHP
		}
		s.players = append(s.players, b)
	}
	s.broadcastWelcome()
	s.publish()
}

// --- host tick & round machinery ---

// armTick schedules the next one-second tick under a fresh generation.
// Only DISCUSSION and JAIL keep a live tick; a fire whose generation or
// phase has moved on is a no-op.
func (s *Session) armTick() {
	s.tickGen++
	gen := s.tickGen
	timer := newTimer(s.tickEvery)
	go func() {
		select {
		case <-s.ctx.Done():
			timer.Stop()
		case <-timer.C:
			select {
			case <-s.ctx.Done():
			case s.inbox <- tick{gen: gen}:
			}
		}
	}()
}

func (s *Session) handleTick(gen int) {
	if !s.isHost || gen != s.tickGen {
		return
	}
	if s.state.Phase != game.PhaseDiscussion && s.state.Phase != game.PhaseJail {
		return
	}

	st, step := game.Tick(s.state, s.cfg)
	s.state = st

	switch step {
	case game.TickCountdown:
		s.trans.Broadcast(wire.TypeStateUpdate, s.state)
		s.armTick()

	case game.TickJailStart:
		s.trans.Broadcast(wire.TypeStateUpdate, s.state)
		s.scheduleBotGuesses()
		s.armTick()

	case game.TickResolve:
		s.resolveRound()
	}
	s.publish()
}

// resolveRound broadcasts the RESOLVING marker, grades the round and
// broadcasts the converged (state, roster) pair.
func (s *Session) resolveRound() {
	s.state.Phase = game.PhaseResolving
	s.trans.Broadcast(wire.TypeStateUpdate, s.state)

	narrate := func(round, eliminated, survivors int) string {
		ctx, cancel := context.WithTimeout(s.ctx, narratorTimeout)
		defer cancel()
		return collab.RoundOrFallback(ctx, s.narrator, round, eliminated, survivors)
	}

	localID := ""
	if local := s.localPlayer(); local != nil {
		localID = local.ID
	}
	res := game.Resolve(s.players, s.state, s.cfg, s.rng, localID, narrate)
	s.players = res.Players
	s.state = res.State

	if res.Outcome.GameOver() {
		s.maybePayout()
		s.setRegistryStatus(collab.RoomEnded)
		// Terminal until a fresh StartGame; no tick is rearmed.
	} else {
		s.armTick()
	}

	s.trans.Broadcast(wire.TypeStateUpdate, s.state)
	s.broadcastWelcome()
}

// maybePayout credits this process's own winnings once per game over.
// Every peer runs the same split against the host's (state, roster)
// pair, so each winner credits their own ledger exactly once and
// non-winners get nothing: stakes are non-refundable once a round began.
func (s *Session) maybePayout() {
	if s.paidOut || s.stakeUnpaid || s.state.Phase != game.PhaseGameOver {
		return
	}
	s.paidOut = true
	local := s.localPlayer()
	if local == nil {
		return
	}
	shares := game.SplitPot(s.players, s.state.Pot+s.state.RCPot)
	share, won := shares[local.ID]
	if !won {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, collabTimeout)
	defer cancel()
	if err := s.ledger.Add(ctx, share); err != nil {
		s.log.Warn("payout failed", zap.Float64("share", share), zap.Error(err))
	}
}

// phaseToken identifies one round+phase so a stale bot timer can never
// mutate a future round's state.
func (s *Session) phaseToken() string {
	return fmt.Sprintf("%d-%s", s.state.Round, s.state.Phase)
}

// scheduleBotGuesses arms one randomized-delay guess per living bot for
// the current JAIL phase.
func (s *Session) scheduleBotGuesses() {
	if s.state.Phase != game.PhaseJail {
		return
	}
	token := s.phaseToken()
	for i := range s.players {
		p := s.players[i]
		if p.IsLocal || p.PeerID != "" || !p.IsAlive || p.IsSpectator {
			continue
		}
		maxDelay := s.cfg.JailTime - game.BotGuessMarginSec
		if maxDelay < game.BotGuessMinDelaySec {
			maxDelay = game.BotGuessMinDelaySec
		}
		delay := botDelay(s.rng, maxDelay, s.tickEvery)
		guess := botGuess{playerID: p.ID, token: token, suit: game.RandomSuit(s.rng)}
		timer := newTimer(delay)
		go func() {
			select {
			case <-s.ctx.Done():
				timer.Stop()
			case <-timer.C:
				select {
				case <-s.ctx.Done():
				case s.inbox <- guess:
				}
			}
		}()
	}
}

// handleBotGuess applies a scheduled bot bet if the round+phase it was
// armed for is still live and the bot is still alive and unguessed.
func (s *Session) handleBotGuess(msg botGuess) {
	if !s.isHost || msg.token != s.phaseToken() {
		return
	}
	next, ok := game.ApplyGuess(s.players, msg.playerID, msg.suit)
	if !ok {
		return
	}
	s.players = next
	// Broadcast as a normal action so clients see bot behavior exactly
	// like human behavior.
	s.trans.Broadcast(wire.TypePlayerAction, wire.PlayerAction{
		PlayerID: msg.playerID,
		Type:     wire.ActionGuessSuit,
		Value:    mustJSON(msg.suit),
	})
	s.publish()
}

// --- helpers ---

func (s *Session) localPlayer() *game.Player {
	for i := range s.players {
		if s.players[i].IsLocal {
			return &s.players[i]
		}
	}
	return nil
}

func (s *Session) broadcastWelcome() {
	s.trans.Broadcast(wire.TypeWelcome, game.Welcome{Players: s.players, GameState: s.state})
}

func (s *Session) systemChat(text string) {
	msg := wire.ChatMessage{
		ID:        chatID(),
		Sender:    "SYSTEM",
		Text:      text,
		Timestamp: nowMillis(),
		IsSystem:  true,
	}
	s.appendChat(msg)
	if s.isHost {
		s.trans.Broadcast(wire.TypeChat, msg)
	}
}

// appendChat returns false when the id was already seen.
func (s *Session) appendChat(msg wire.ChatMessage) bool {
	for i := range s.chat {
		if s.chat[i].ID == msg.ID {
			return false
		}
	}
	s.chat = append(s.chat, msg)
	return true
}

func (s *Session) syncRegistryRoster() {
	ctx, cancel := context.WithTimeout(s.ctx, collabTimeout)
	defer cancel()
	up := collab.RosterUpdate{PlayerCount: game.AliveContestants(s.players)}
	if s.state.Phase == game.PhaseLobby {
		up.Status = collab.RoomWaiting
	}
	if err := s.registry.UpdateRoster(ctx, s.roomID, up); err != nil {
		s.log.Warn("registry roster sync failed", zap.Error(err))
	}
}

func (s *Session) setRegistryStatus(status collab.RoomStatus) {
	ctx, cancel := context.WithTimeout(s.ctx, collabTimeout)
	defer cancel()
	if err := s.registry.UpdateStatus(ctx, s.roomID, status); err != nil {
		s.log.Warn("registry status update failed", zap.Error(err))
	}
}

func mustJSON(v any) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}

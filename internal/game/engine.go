package game

import (
	"errors"
	"math/rand"
)

var (
	ErrNoPlayers     = errors.New("no players to start a round with")
	ErrRoundInFlight = errors.New("round already in progress")
)

// Fallback narratives, used verbatim when the narrator collaborator is
// unavailable. Endings are always these literals.
const (
	NarrativeCitizensWin  = "The Jack has fallen! The Citizens have reclaimed the Borderland."
	NarrativeAnnihilation = "The Jack has deceived you all. Complete annihilation."
	NarrativeNoSurvivors  = "No one survived the night."
	NarrativeJackChosen   = "The Jack has been chosen. Trust no one."
)

// RandomSuit draws a uniform suit from rng.
func RandomSuit(rng *rand.Rand) Suit {
	return Suits[rng.Intn(len(Suits))]
}

// StartRound deals a fresh game: exactly one non-spectator becomes the
// JACK, every living non-spectator gets a secret suit, guesses and HP are
// reset, and the stake pot is collected. Only the host calls this.
func StartRound(players []Player, st State, cfg Config, rng *rand.Rand, intro, gameID string) ([]Player, State, error) {
	if st.Phase != PhaseLobby && st.Phase != PhaseGameOver {
		return nil, st, ErrRoundInFlight
	}

	contestants := make([]int, 0, len(players))
	for i := range players {
		if !players[i].IsSpectator {
			contestants = append(contestants, i)
		}
	}
	if len(contestants) == 0 {
		return nil, st, ErrNoPlayers
	}
	jackIdx := contestants[rng.Intn(len(contestants))]

	next := make([]Player, len(players))
	copy(next, players)
	stakePot := 0.0
	for i := range next {
		if next[i].IsSpectator {
			continue
		}
		next[i].Role = RoleCitizen
		if i == jackIdx {
			next[i].Role = RoleJack
		}
		next[i].ActualSuit = RandomSuit(rng)
		next[i].GuessedSuit = nil
		next[i].IsAlive = true
		next[i].HP = InitialHP
		stakePot += next[i].Stake
	}

	st.Phase = PhaseDiscussion
	st.Round++
	st.Timer = cfg.DiscussionTime
	st.RCPot = stakePot
	st.Narrative = intro
	st.History = []string{intro, NarrativeJackChosen}
	st.GameID = gameID
	return next, st, nil
}

// TickStep says what a one-second tick did to the state.
type TickStep int

const (
	TickCountdown TickStep = iota // timer decremented, phase unchanged
	TickJailStart                 // DISCUSSION exhausted, JAIL entered
	TickResolve                   // JAIL exhausted, caller must resolve
)

// Tick applies one second of logical time. It is only meaningful while
// the phase carries a live countdown (DISCUSSION or JAIL); any other
// phase is returned untouched.
func Tick(st State, cfg Config) (State, TickStep) {
	if st.Phase != PhaseDiscussion && st.Phase != PhaseJail {
		return st, TickCountdown
	}
	st.Timer--
	if st.Timer > 0 {
		return st, TickCountdown
	}
	if st.Phase == PhaseDiscussion {
		st.Phase = PhaseJail
		st.Timer = cfg.JailTime
		return st, TickJailStart
	}
	// Jail exhausted; the caller broadcasts the RESOLVING marker and then
	// resolves synchronously. Timer stays at zero until resolution.
	st.Timer = 0
	return st, TickResolve
}

// ApplyGuess records a player's bet. First guess wins: a player who has
// already guessed this round keeps their original bet.
func ApplyGuess(players []Player, playerID string, suit Suit) ([]Player, bool) {
	for i := range players {
		if players[i].ID != playerID {
			continue
		}
		if !players[i].IsAlive || players[i].GuessedSuit != nil {
			return players, false
		}
		next := make([]Player, len(players))
		copy(next, players)
		s := suit
		next[i].GuessedSuit = &s
		return next, true
	}
	return players, false
}

// Outcome classifies the end of a resolution pass.
type Outcome int

const (
	OutcomeContinue Outcome = iota
	OutcomeCitizensWin
	OutcomeAnnihilation
	OutcomeNoSurvivors
)

// GameOver reports whether the outcome ends the game.
func (o Outcome) GameOver() bool { return o != OutcomeContinue }

// Resolution is the result of grading one jail phase.
type Resolution struct {
	Players    []Player
	State      State
	Outcome    Outcome
	Eliminated int
	Survivors  int
	// Share is the per-survivor pot payout; zero while the game continues.
	Share float64
}

// Resolve grades every living non-spectator's guess against their secret
// suit. Silent remote players get a random guess substituted; the host's
// own local player does not, and a nil guess never matches — elimination
// by default. Survivors draw a fresh suit for the next round, the dead
// keep theirs frozen. narrate supplies the between-rounds flavor text and
// must never fail (callers wrap the narrator with its fallback).
func Resolve(players []Player, st State, cfg Config, rng *rand.Rand, localID string, narrate func(round, eliminated, survivors int) string) Resolution {
	next := make([]Player, len(players))
	copy(next, players)

	eliminated := 0
	for i := range next {
		p := &next[i]
		if !p.IsAlive || p.IsSpectator {
			continue
		}
		guess := p.GuessedSuit
		if guess == nil && p.ID != localID {
			s := RandomSuit(rng)
			guess = &s
		}
		survived := guess != nil && *guess == p.ActualSuit
		if survived {
			p.ActualSuit = RandomSuit(rng)
		} else {
			eliminated++
			p.IsAlive = false
			p.HP = 0
		}
		p.GuessedSuit = nil
	}

	survivors := AliveContestants(next)
	jack := Jack(next)
	jackAlive := jack != nil && jack.IsAlive

	outcome := OutcomeContinue
	narrative := ""
	switch {
	case !jackAlive:
		outcome = OutcomeCitizensWin
		narrative = NarrativeCitizensWin
	case survivors <= 2:
		outcome = OutcomeAnnihilation
		narrative = NarrativeAnnihilation
	case survivors == 0:
		outcome = OutcomeNoSurvivors
		narrative = NarrativeNoSurvivors
	default:
		narrative = narrate(st.Round, eliminated, survivors)
	}

	res := Resolution{
		Outcome:    outcome,
		Eliminated: eliminated,
		Survivors:  survivors,
	}

	if outcome.GameOver() {
		st.Phase = PhaseGameOver
		st.Timer = 0
		if pot := st.Pot + st.RCPot; pot > 0 && survivors > 0 {
			res.Share = pot / float64(survivors)
		}
	} else {
		st.Phase = PhaseDiscussion
		st.Round++
		st.Timer = cfg.DiscussionTime
	}
	st.Narrative = narrative
	st.History = append([]string{narrative}, st.History...)

	res.Players = next
	res.State = st
	return res
}

// SplitPot returns each alive non-spectator's even share of pot. The sum
// of shares never exceeds pot; losers get nothing and are not refunded.
func SplitPot(players []Player, pot float64) map[string]float64 {
	shares := map[string]float64{}
	winners := make([]string, 0, len(players))
	for i := range players {
		if players[i].IsAlive && !players[i].IsSpectator {
			winners = append(winners, players[i].ID)
		}
	}
	if len(winners) == 0 || pot <= 0 {
		return shares
	}
	share := pot / float64(len(winners))
	for _, id := range winners {
		shares[id] = share
	}
	return shares
}

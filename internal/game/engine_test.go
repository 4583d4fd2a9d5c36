package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{DiscussionTime: 240, JailTime: 60}
}

func contestant(id string, stake float64) Player {
	return Player{ID: id, Name: id, HP: InitialHP, IsAlive: true, Stake: stake}
}

func suitPtr(s Suit) *Suit { return &s }

func TestStartRound_AssignsExactlyOneJack(t *testing.T) {
	players := []Player{
		contestant("p1", 2),
		contestant("p2", 3),
		contestant("p3", 0),
		{ID: "watcher", Name: "watcher", IsSpectator: true, IsAlive: true},
	}
	st := NewState(testConfig())

	for seed := int64(0); seed < 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		next, ns, err := StartRound(players, st, testConfig(), rng, "intro", "g1")
		require.NoError(t, err)

		jacks := 0
		for _, p := range next {
			if p.IsSpectator {
				require.Empty(t, p.Role, "spectators get no role")
				continue
			}
			if p.Role == RoleJack {
				jacks++
			}
			require.True(t, p.IsAlive)
			require.Equal(t, InitialHP, p.HP)
			require.Nil(t, p.GuessedSuit)
			require.NotEmpty(t, p.ActualSuit)
		}
		require.Equal(t, 1, jacks, "seed %d", seed)

		require.Equal(t, PhaseDiscussion, ns.Phase)
		require.Equal(t, 1, ns.Round)
		require.Equal(t, testConfig().DiscussionTime, ns.Timer)
		require.Equal(t, 5.0, ns.RCPot)
		require.Equal(t, "intro", ns.Narrative)
		require.Equal(t, "g1", ns.GameID)
	}
}

func TestStartRound_RejectsMidRound(t *testing.T) {
	st := NewState(testConfig())
	st.Phase = PhaseDiscussion
	rng := rand.New(rand.NewSource(1))

	_, _, err := StartRound([]Player{contestant("p1", 0)}, st, testConfig(), rng, "x", "g")
	require.ErrorIs(t, err, ErrRoundInFlight)
}

func TestStartRound_NeedsContestants(t *testing.T) {
	st := NewState(testConfig())
	rng := rand.New(rand.NewSource(1))

	_, _, err := StartRound([]Player{{ID: "s", IsSpectator: true}}, st, testConfig(), rng, "x", "g")
	require.ErrorIs(t, err, ErrNoPlayers)
}

func TestTick_DiscussionExhaustsInExactlyTTicks(t *testing.T) {
	cfg := Config{DiscussionTime: 5, JailTime: 3}
	st := NewState(cfg)
	st.Phase = PhaseDiscussion
	st.Timer = cfg.DiscussionTime

	var step TickStep
	for i := 0; i < cfg.DiscussionTime-1; i++ {
		st, step = Tick(st, cfg)
		require.Equal(t, TickCountdown, step, "tick %d", i)
		require.Equal(t, PhaseDiscussion, st.Phase)
	}

	st, step = Tick(st, cfg)
	require.Equal(t, TickJailStart, step)
	require.Equal(t, PhaseJail, st.Phase)
	require.Equal(t, cfg.JailTime, st.Timer)
}

func TestTick_JailExhaustionAsksForResolution(t *testing.T) {
	cfg := Config{DiscussionTime: 5, JailTime: 2}
	st := State{Phase: PhaseJail, Timer: cfg.JailTime}

	st, step := Tick(st, cfg)
	require.Equal(t, TickCountdown, step)

	st, step = Tick(st, cfg)
	require.Equal(t, TickResolve, step)
	require.Equal(t, PhaseJail, st.Phase, "phase change is the resolver's job")
	require.Equal(t, 0, st.Timer)
}

func TestTick_IgnoresPhasesWithoutCountdown(t *testing.T) {
	cfg := testConfig()
	for _, phase := range []Phase{PhaseLobby, PhaseResolving, PhaseGameOver} {
		st := State{Phase: phase, Timer: 10}
		next, step := Tick(st, cfg)
		require.Equal(t, st, next)
		require.Equal(t, TickCountdown, step)
	}
}

func TestApplyGuess_FirstGuessWins(t *testing.T) {
	players := []Player{contestant("p1", 0)}

	players, ok := ApplyGuess(players, "p1", SuitHearts)
	require.True(t, ok)
	require.Equal(t, SuitHearts, *players[0].GuessedSuit)

	players, ok = ApplyGuess(players, "p1", SuitSpades)
	require.False(t, ok)
	require.Equal(t, SuitHearts, *players[0].GuessedSuit, "subsequent guesses are ignored")
}

func TestApplyGuess_DeadAndUnknownPlayersRejected(t *testing.T) {
	dead := contestant("p1", 0)
	dead.IsAlive = false

	_, ok := ApplyGuess([]Player{dead}, "p1", SuitClubs)
	require.False(t, ok)

	_, ok = ApplyGuess([]Player{dead}, "nobody", SuitClubs)
	require.False(t, ok)
}

func staticNarrate(string) func(int, int, int) string {
	return func(int, int, int) string { return "round done" }
}

func TestResolve_CorrectGuessSurvives(t *testing.T) {
	p := contestant("p1", 0)
	p.Role = RoleCitizen
	p.ActualSuit = SuitHearts
	p.GuessedSuit = suitPtr(SuitHearts)

	jack := contestant("jack", 0)
	jack.Role = RoleJack
	jack.ActualSuit = SuitClubs
	jack.GuessedSuit = suitPtr(SuitClubs)

	filler1 := contestant("f1", 0)
	filler1.ActualSuit = SuitSpades
	filler1.GuessedSuit = suitPtr(SuitSpades)
	filler2 := contestant("f2", 0)
	filler2.ActualSuit = SuitSpades
	filler2.GuessedSuit = suitPtr(SuitSpades)

	st := State{Phase: PhaseResolving, Round: 1}
	rng := rand.New(rand.NewSource(7))
	res := Resolve([]Player{p, jack, filler1, filler2}, st, testConfig(), rng, "p1", staticNarrate("x"))

	got := res.Players[0]
	require.True(t, got.IsAlive)
	require.Equal(t, InitialHP, got.HP, "hp unchanged on survival")
	require.Nil(t, got.GuessedSuit, "guess cleared for next round")
	require.NotEmpty(t, got.ActualSuit, "fresh suit assigned")

	require.Equal(t, OutcomeContinue, res.Outcome)
	require.Equal(t, 0, res.Eliminated)
	require.Equal(t, 2, res.State.Round)
	require.Equal(t, PhaseDiscussion, res.State.Phase)
	require.Equal(t, testConfig().DiscussionTime, res.State.Timer)
	require.Equal(t, "round done", res.State.Narrative)
	require.Equal(t, "round done", res.State.History[0])
}

func TestResolve_WrongGuessEliminates(t *testing.T) {
	p := contestant("p1", 0)
	p.ActualSuit = SuitHearts
	p.GuessedSuit = suitPtr(SuitSpades)

	st := State{Phase: PhaseResolving, Round: 1}
	rng := rand.New(rand.NewSource(7))
	res := Resolve([]Player{p}, st, testConfig(), rng, "p1", staticNarrate("x"))

	got := res.Players[0]
	require.False(t, got.IsAlive)
	require.Equal(t, 0, got.HP)
	require.Equal(t, SuitHearts, got.ActualSuit, "suit frozen on elimination")
	require.Nil(t, got.GuessedSuit)
	require.Equal(t, 1, res.Eliminated)
}

// The host never substitutes a guess for its own local player: staying
// silent at timeout means elimination by default.
func TestResolve_LocalNoGuessEliminated(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		local := contestant("me", 0)
		local.ActualSuit = SuitHearts

		rng := rand.New(rand.NewSource(seed))
		res := Resolve([]Player{local}, State{Round: 1}, testConfig(), rng, "me", staticNarrate("x"))
		require.False(t, res.Players[0].IsAlive, "seed %d", seed)
	}
}

func TestResolve_RemoteNoGuessGetsSubstitute(t *testing.T) {
	survived := 0
	for seed := int64(0); seed < 40; seed++ {
		remote := contestant("them", 0)
		remote.ActualSuit = SuitHearts

		rng := rand.New(rand.NewSource(seed))
		res := Resolve([]Player{remote}, State{Round: 1}, testConfig(), rng, "me", staticNarrate("x"))
		if res.Players[0].IsAlive {
			survived++
		}
	}
	// A uniform substitute matches roughly a quarter of the time; zero
	// survivals over 40 seeds would mean no substitution happened.
	require.Greater(t, survived, 0)
	require.Less(t, survived, 40)
}

func TestResolve_GameOverPrecedence(t *testing.T) {
	t.Run("jack dead means citizens win regardless of survivor count", func(t *testing.T) {
		jack := contestant("jack", 0)
		jack.Role = RoleJack
		jack.ActualSuit = SuitHearts
		jack.GuessedSuit = suitPtr(SuitSpades) // wrong: jack dies

		citizens := make([]Player, 3)
		for i := range citizens {
			citizens[i] = contestant(string(rune('a'+i)), 0)
			citizens[i].ActualSuit = SuitClubs
			citizens[i].GuessedSuit = suitPtr(SuitClubs)
		}

		rng := rand.New(rand.NewSource(3))
		res := Resolve(append([]Player{jack}, citizens...), State{Round: 1}, testConfig(), rng, "", staticNarrate("x"))
		require.Equal(t, OutcomeCitizensWin, res.Outcome)
		require.Equal(t, PhaseGameOver, res.State.Phase)
		require.Equal(t, NarrativeCitizensWin, res.State.Narrative)
	})

	t.Run("jack alive with two survivors is annihilation even on correct citizen guesses", func(t *testing.T) {
		jack := contestant("jack", 0)
		jack.Role = RoleJack
		jack.ActualSuit = SuitHearts
		jack.GuessedSuit = suitPtr(SuitHearts)

		right := contestant("right", 0)
		right.ActualSuit = SuitClubs
		right.GuessedSuit = suitPtr(SuitClubs)

		wrong1 := contestant("w1", 0)
		wrong1.ActualSuit = SuitClubs
		wrong1.GuessedSuit = suitPtr(SuitSpades)
		wrong2 := contestant("w2", 0)
		wrong2.ActualSuit = SuitClubs
		wrong2.GuessedSuit = suitPtr(SuitDiamonds)

		rng := rand.New(rand.NewSource(3))
		res := Resolve([]Player{jack, right, wrong1, wrong2}, State{Round: 1}, testConfig(), rng, "", staticNarrate("x"))
		require.Equal(t, OutcomeAnnihilation, res.Outcome)
		require.Equal(t, 2, res.Survivors)
		require.Equal(t, PhaseGameOver, res.State.Phase)
		require.Equal(t, NarrativeAnnihilation, res.State.Narrative)
	})
}

func TestResolve_PotShareOnGameOver(t *testing.T) {
	jack := contestant("jack", 0)
	jack.Role = RoleJack
	jack.ActualSuit = SuitHearts
	jack.GuessedSuit = suitPtr(SuitHearts)

	citizen := contestant("c", 0)
	citizen.ActualSuit = SuitClubs
	citizen.GuessedSuit = suitPtr(SuitClubs)

	st := State{Round: 1, Pot: 1.0, RCPot: 5.0}
	rng := rand.New(rand.NewSource(3))
	res := Resolve([]Player{jack, citizen}, st, testConfig(), rng, "", staticNarrate("x"))

	require.True(t, res.Outcome.GameOver())
	require.Equal(t, 2, res.Survivors)
	require.InDelta(t, 3.0, res.Share, 1e-9)
}

func TestSplitPot(t *testing.T) {
	alive1 := contestant("a", 0)
	alive2 := contestant("b", 0)
	dead := contestant("d", 0)
	dead.IsAlive = false
	watcher := contestant("s", 0)
	watcher.IsSpectator = true

	shares := SplitPot([]Player{alive1, alive2, dead, watcher}, 3.0)
	require.Len(t, shares, 2)
	require.InDelta(t, 1.5, shares["a"], 1e-9)
	require.InDelta(t, 1.5, shares["b"], 1e-9)

	total := 0.0
	for _, s := range shares {
		total += s
	}
	require.LessOrEqual(t, total, 3.0+1e-9)

	require.Empty(t, SplitPot([]Player{dead}, 3.0), "no winners, no payout")
	require.Empty(t, SplitPot([]Player{alive1}, 0), "no pot, no payout")
}

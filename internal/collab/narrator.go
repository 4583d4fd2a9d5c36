// Package collab holds the session layer's external collaborators:
// narrator, ledger, room registry and media source. The session depends
// on the interfaces only; real backends and in-memory stand-ins both
// live here.
package collab

import "context"

// Narrator produces the game's flavor text. Callers must tolerate
// failure: every call site has a literal fallback and a narrator error
// never blocks a phase transition.
type Narrator interface {
	Intro(ctx context.Context) (string, error)
	RoundNarrative(ctx context.Context, round, eliminated, survivors int) (string, error)
}

// Fallback lines used whenever the narrator fails or returns nothing.
const (
	FallbackIntro          = "The game begins. Trust no one."
	FallbackRoundNarrative = "The system reboots... the Jack is still watching."
)

// StaticNarrator serves canned lines and never fails. It is the default
// when no generative backend is configured.
type StaticNarrator struct{}

func (StaticNarrator) Intro(context.Context) (string, error) {
	return "Look at your neighbor; one of you is the Jack, and they will kill you all.", nil
}

func (StaticNarrator) RoundNarrative(context.Context, int, int, int) (string, error) {
	return "The trust has been broken. Only the liars remain.", nil
}

// IntroOrFallback resolves the intro with the fallback applied.
func IntroOrFallback(ctx context.Context, n Narrator) string {
	if n == nil {
		return FallbackIntro
	}
	text, err := n.Intro(ctx)
	if err != nil || text == "" {
		return FallbackIntro
	}
	return text
}

// RoundOrFallback resolves a round narrative with the fallback applied.
func RoundOrFallback(ctx context.Context, n Narrator, round, eliminated, survivors int) string {
	if n == nil {
		return FallbackRoundNarrative
	}
	text, err := n.RoundNarrative(ctx, round, eliminated, survivors)
	if err != nil || text == "" {
		return FallbackRoundNarrative
	}
	return text
}

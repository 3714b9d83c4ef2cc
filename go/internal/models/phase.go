package models

import (
	"time"

	"github.com/google/uuid"
)

// PhaseKind defines the type of timed phase a room can run.
type PhaseKind string

const (
	// PhaseKindImageReveal progressively uncovers picture blocks.
	PhaseKindImageReveal PhaseKind = "IMAGE_REVEAL"
	// PhaseKindWordReveal progressively uncovers letters of a prompt.
	PhaseKindWordReveal PhaseKind = "WORD_REVEAL"
	// PhaseKindTurnClock runs independent per-player countdowns.
	PhaseKindTurnClock PhaseKind = "TURN_CLOCK"
	// PhaseKindAnswerWindow is a plain room-wide countdown with no reveal.
	PhaseKindAnswerWindow PhaseKind = "ANSWER_WINDOW"
)

// TurnSubject is one independently timed subject within a phase, keyed by an
// opaque id chosen by the game service (player name, "global", ...).
type TurnSubject struct {
	SubjectID string
	Duration  time.Duration
}

// Phase is the authoritative description of a running phase. StartsAt and
// EndsAt are server instants; everything derived from them must go through
// the synced clock. Wire shapes live in the events package; this type never
// leaves the process.
type Phase struct {
	ID            uuid.UUID
	RoomCode      string
	Kind          PhaseKind
	Prompt        string
	Units         int
	FloorFraction float64
	StartsAt      time.Time
	EndsAt        time.Time
	Subjects      []TurnSubject
}

// Duration returns the total phase length, zero if the bounds are degenerate.
func (p *Phase) Duration() time.Duration {
	d := p.EndsAt.Sub(p.StartsAt)
	if d < 0 {
		return 0
	}
	return d
}

// ElapsedFraction maps a server instant onto [0, 1] within the phase window.
// A degenerate window (EndsAt at or before StartsAt) counts as fully elapsed.
func (p *Phase) ElapsedFraction(now time.Time) float64 {
	total := p.EndsAt.Sub(p.StartsAt)
	if total <= 0 {
		return 1
	}
	elapsed := now.Sub(p.StartsAt)
	if elapsed <= 0 {
		return 0
	}
	if elapsed >= total {
		return 1
	}
	return float64(elapsed) / float64(total)
}

// HasReveal reports whether the phase kind drives a reveal run.
func (k PhaseKind) HasReveal() bool {
	return k == PhaseKindImageReveal || k == PhaseKindWordReveal
}

package events

import (
	"time"

	"github.com/quizlive/stagetime/go/internal/models"
)

// SubjectDuration is one subject's initial countdown on the wire,
// milliseconds like every duration the clients see.
type SubjectDuration struct {
	SubjectID  string `json:"subject_id"`
	DurationMs int64  `json:"duration_ms"`
}

// PhaseStartedPayload is the payload for a PhaseStarted control event. The
// prompt is the real answer text and must never be forwarded to clients
// as-is; the director broadcasts masked snapshots instead.
type PhaseStartedPayload struct {
	PhaseID       string            `json:"phase_id"`
	Kind          models.PhaseKind  `json:"kind"`
	Prompt        string            `json:"prompt,omitempty"`
	Units         int               `json:"units,omitempty"`
	FloorFraction float64           `json:"floor_fraction,omitempty"`
	StartsAt      time.Time         `json:"starts_at"`
	EndsAt        time.Time         `json:"ends_at"`
	Subjects      []SubjectDuration `json:"subjects,omitempty"`
}

// PhasePausedPayload is the payload for a PhasePaused control event.
type PhasePausedPayload struct {
	PhaseID  string    `json:"phase_id"`
	PausedAt time.Time `json:"paused_at"`
	Reason   string    `json:"reason,omitempty"`
}

// PhaseResumedPayload is the payload for a PhaseResumed control event. EndsAt
// carries the deadline pushed by the pause gap; the game service owns that
// arithmetic.
type PhaseResumedPayload struct {
	PhaseID   string    `json:"phase_id"`
	ResumedAt time.Time `json:"resumed_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// PhaseEndedPayload is the payload for a PhaseEnded control event.
type PhaseEndedPayload struct {
	PhaseID string    `json:"phase_id"`
	EndedAt time.Time `json:"ended_at"`
}

// RoomClosedPayload is the payload for a RoomClosed control event.
type RoomClosedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// TimePulsePayload carries an authoritative clock reading from the game
// service. Pulses and control-event timestamps both feed offset estimation.
type TimePulsePayload struct {
	ServerTime time.Time `json:"server_time"`
}

// RevealAdvancedPayload is emitted once per newly revealed unit. Unit is the
// position in the reveal order; for word phases Position is the rune index in
// the prompt and Glyph the uncovered rune, which is all a client ever learns
// about hidden text.
type RevealAdvancedPayload struct {
	PhaseID  string `json:"phase_id"`
	Unit     int    `json:"unit"`
	Position int    `json:"position"`
	Glyph    string `json:"glyph,omitempty"`
	Revealed int    `json:"revealed"`
	Total    int    `json:"total"`
}

// TimerExpiredPayload is emitted exactly once when a subject's countdown
// drains.
type TimerExpiredPayload struct {
	PhaseID   string    `json:"phase_id"`
	Subject   string    `json:"subject"`
	ExpiredAt time.Time `json:"expired_at"`
}

// SubjectRemaining is one subject's countdown state on the wire.
type SubjectRemaining struct {
	Subject     string `json:"subject"`
	RemainingMs int64  `json:"remaining_ms"`
	Status      string `json:"status"`
}

// TimerTickPayload is the periodic countdown broadcast. ServerTimeMs lets
// clients fold every tick into their own offset estimate.
type TimerTickPayload struct {
	PhaseID      string             `json:"phase_id"`
	ServerTimeMs int64              `json:"server_time_ms"`
	Subjects     []SubjectRemaining `json:"subjects"`
}

// PhaseSnapshot is the client-safe view of the active phase inside a room
// snapshot. Prompt is the masked rendering; hidden runes show as the
// placeholder.
type PhaseSnapshot struct {
	PhaseID       string           `json:"phase_id"`
	Kind          models.PhaseKind `json:"kind"`
	Prompt        string           `json:"prompt,omitempty"`
	Units         int              `json:"units,omitempty"`
	FloorFraction float64          `json:"floor_fraction,omitempty"`
	StartsAt      time.Time        `json:"starts_at"`
	EndsAt        time.Time        `json:"ends_at"`
	Revealed      []int            `json:"revealed,omitempty"`
	RevealedCount int              `json:"revealed_count"`
}

// RoomSnapshotPayload is the full resync blob sent on connect, reconnect,
// and room lifecycle changes. Remaining milliseconds are recomputed
// server-side at send time so a reconnecting client never trusts its own
// stale countdown.
type RoomSnapshotPayload struct {
	RoomCode     string             `json:"room_code"`
	Status       models.RoomStatus  `json:"status"`
	ServerTimeMs int64              `json:"server_time_ms"`
	Phase        *PhaseSnapshot     `json:"phase,omitempty"`
	Subjects     []SubjectRemaining `json:"subjects,omitempty"`
}

// TimePingPayload is the client-sent clock probe. T0 is the client's local
// send time in milliseconds, echoed back untouched.
type TimePingPayload struct {
	T0 int64 `json:"t0"`
}

// TimePongPayload answers a TimePing with the oracle's reading, letting the
// client estimate its offset NTP-style.
type TimePongPayload struct {
	T0           int64 `json:"t0"`
	ServerTimeMs int64 `json:"server_time_ms"`
}

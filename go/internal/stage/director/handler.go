package director

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quizlive/stagetime/go/internal/models"
	"github.com/quizlive/stagetime/go/internal/reveal"
	"github.com/quizlive/stagetime/go/internal/stage/events"
	"github.com/rs/zerolog/log"
)

// HandleControlEvent applies one control event from the game service.
// Semantically stale or contradictory events are logged and absorbed; an
// error is returned only when the payload fails to decode, so the consumer
// can Nak for redelivery.
func (d *Director) HandleControlEvent(ctx context.Context, event *events.Event) error {
	if event == nil || event.RoomCode == "" {
		return nil
	}

	payload, err := events.ParsePayload(event)
	if err != nil {
		return fmt.Errorf("parse %s payload: %w", event.Type, err)
	}

	// Every stamped control event doubles as a clock sample. TimePulse
	// carries its reading in the payload instead.
	if event.Type != events.EventTypeTimePulse {
		d.oracle.Observe(event.Timestamp)
	}

	log.Debug().
		Str("room_code", event.RoomCode).
		Str("event_type", string(event.Type)).
		Msg("handling control event")

	now := d.oracle.Now()

	d.mu.Lock()
	d.eventsIn++
	var out []emission
	switch p := payload.(type) {
	case events.PhaseStartedPayload:
		out = d.handlePhaseStarted(event.RoomCode, p, now)
	case events.PhasePausedPayload:
		out = d.handlePhasePaused(event.RoomCode, p, now)
	case events.PhaseResumedPayload:
		out = d.handlePhaseResumed(event.RoomCode, p, now)
	case events.PhaseEndedPayload:
		out = d.handlePhaseEnded(event.RoomCode, p, now)
	case events.RoomClosedPayload:
		out = d.handleRoomClosed(event.RoomCode, p, now)
	case events.TimePulsePayload:
		d.oracle.Observe(p.ServerTime)
	default:
		log.Warn().
			Str("room_code", event.RoomCode).
			Str("event_type", string(event.Type)).
			Msg("ignoring unhandled control event")
	}
	d.mu.Unlock()

	d.deliver(ctx, out)
	return nil
}

func (d *Director) handlePhaseStarted(roomCode string, p events.PhaseStartedPayload, now time.Time) []emission {
	room := d.getOrCreateRoomLocked(roomCode)

	if room.phase != nil && room.phase.ID.String() == p.PhaseID {
		log.Debug().
			Str("room_code", roomCode).
			Str("phase_id", p.PhaseID).
			Msg("phase already running, ignoring duplicate start")
		return nil
	}

	if room.status != models.RoomStatusLive {
		if !room.status.CanTransitionTo(models.RoomStatusLive) {
			log.Warn().
				Str("room_code", roomCode).
				Str("status", string(room.status)).
				Msg("ignoring phase start for closed room")
			return nil
		}
		room.status = models.RoomStatusLive
	}

	phase := d.buildPhase(roomCode, p, now)
	if phase == nil {
		return nil
	}

	room.phase = phase
	room.started = false
	room.run = nil
	room.mask = nil
	room.bank.Reset()

	if phase.Kind.HasReveal() {
		if phase.Kind == models.PhaseKindWordReveal {
			room.mask = reveal.NewMask(phase.Prompt)
			phase.Units = room.mask.Maskable()
		}
		room.run = reveal.NewRun(phase.Units, phase.FloorFraction, d.shuffle)
	}

	log.Info().
		Str("room_code", roomCode).
		Str("phase_id", p.PhaseID).
		Str("kind", string(phase.Kind)).
		Int("units", phase.Units).
		Time("ends_at", phase.EndsAt).
		Msg("phase started")

	var out []emission
	if !now.Before(phase.StartsAt) {
		out = d.activateLocked(room, now)
	}
	return append(out, d.snapshotEmissionLocked(room, now))
}

// buildPhase normalizes a PhaseStarted payload against the catalog. Missing
// bounds fall back to catalog durations; a bad phase id discards the event.
func (d *Director) buildPhase(roomCode string, p events.PhaseStartedPayload, now time.Time) *models.Phase {
	id, err := uuid.Parse(p.PhaseID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("room_code", roomCode).
			Str("phase_id", p.PhaseID).
			Msg("discarding phase start with bad phase id")
		return nil
	}

	starts := p.StartsAt
	if starts.IsZero() {
		starts = now
	}
	ends := p.EndsAt
	if ends.IsZero() {
		if ms := d.catalog.Defaults(p.Kind).DurationMs; ms > 0 {
			ends = starts.Add(time.Duration(ms) * time.Millisecond)
		}
	}

	phase := &models.Phase{
		ID:            id,
		RoomCode:      roomCode,
		Kind:          p.Kind,
		Prompt:        p.Prompt,
		Units:         d.catalog.Units(p.Kind, p.Units),
		FloorFraction: d.catalog.FloorFraction(p.Kind, p.FloorFraction),
		StartsAt:      starts,
		EndsAt:        ends,
	}
	for _, s := range p.Subjects {
		if s.SubjectID == "" || s.DurationMs <= 0 {
			continue
		}
		phase.Subjects = append(phase.Subjects, models.TurnSubject{
			SubjectID: s.SubjectID,
			Duration:  time.Duration(s.DurationMs) * time.Millisecond,
		})
	}
	if len(phase.Subjects) == 0 && phase.Kind == models.PhaseKindTurnClock {
		log.Warn().
			Str("room_code", roomCode).
			Str("phase_id", p.PhaseID).
			Msg("turn clock phase carries no subjects")
	}
	return phase
}

// activateLocked arms the countdowns and, for reveal phases, uncovers the
// first unit. Runs either straight from the start event or from the first
// tick at or past StartsAt for scheduled phases.
func (d *Director) activateLocked(room *roomState, now time.Time) []emission {
	phase := room.phase
	room.started = true

	late := now.Sub(phase.StartsAt)
	if late < 0 {
		late = 0
	}

	if len(phase.Subjects) > 0 {
		for _, s := range phase.Subjects {
			remaining := s.Duration - late
			if remaining < 0 {
				remaining = 0
			}
			room.bank.Start(s.SubjectID, remaining, now)
		}
	} else if phase.EndsAt.After(now) {
		room.bank.Start(GlobalSubject, phase.EndsAt.Sub(now), now)
	}

	var out []emission
	if room.run != nil {
		if unit, ok := room.run.Advance(phase.ElapsedFraction(now)); ok {
			d.reveals++
			out = append(out, d.revealEmissionLocked(room, unit, now))
		}
	}
	return out
}

func (d *Director) handlePhasePaused(roomCode string, p events.PhasePausedPayload, now time.Time) []emission {
	room, ok := d.rooms[roomCode]
	if !ok || room.phase == nil {
		log.Warn().Str("room_code", roomCode).Msg("pause for unknown room or phase")
		return nil
	}
	if !room.status.CanTransitionTo(models.RoomStatusPaused) {
		log.Warn().
			Str("room_code", roomCode).
			Str("status", string(room.status)).
			Msg("ignoring pause in current status")
		return nil
	}

	room.status = models.RoomStatusPaused
	room.lastActive = d.wall.Now()
	room.bank.PauseAll(now)

	log.Info().
		Str("room_code", roomCode).
		Str("phase_id", p.PhaseID).
		Str("reason", p.Reason).
		Msg("phase paused")

	return []emission{d.snapshotEmissionLocked(room, now)}
}

func (d *Director) handlePhaseResumed(roomCode string, p events.PhaseResumedPayload, now time.Time) []emission {
	room, ok := d.rooms[roomCode]
	if !ok || room.phase == nil {
		log.Warn().Str("room_code", roomCode).Msg("resume for unknown room or phase")
		return nil
	}
	if !room.status.CanTransitionTo(models.RoomStatusLive) {
		log.Warn().
			Str("room_code", roomCode).
			Str("status", string(room.status)).
			Msg("ignoring resume in current status")
		return nil
	}

	room.status = models.RoomStatusLive
	room.lastActive = d.wall.Now()
	// The game service owns the deadline push; a resume without one keeps
	// the old window, which shortens the phase by the pause gap.
	if !p.EndsAt.IsZero() {
		room.phase.EndsAt = p.EndsAt
	}
	room.bank.ResumeAll(now)

	log.Info().
		Str("room_code", roomCode).
		Str("phase_id", p.PhaseID).
		Time("ends_at", room.phase.EndsAt).
		Msg("phase resumed")

	return []emission{d.snapshotEmissionLocked(room, now)}
}

func (d *Director) handlePhaseEnded(roomCode string, p events.PhaseEndedPayload, now time.Time) []emission {
	room, ok := d.rooms[roomCode]
	if !ok || room.phase == nil {
		return nil
	}
	// An empty id ends whatever runs; a mismatched one is stale.
	if p.PhaseID != "" && room.phase.ID.String() != p.PhaseID {
		log.Debug().
			Str("room_code", roomCode).
			Str("phase_id", p.PhaseID).
			Msg("end for a phase that is not running")
		return nil
	}

	room.phase = nil
	room.run = nil
	room.mask = nil
	room.started = false
	room.bank.Reset()
	if room.status == models.RoomStatusPaused {
		room.status = models.RoomStatusLive
	}
	room.lastActive = d.wall.Now()

	log.Info().
		Str("room_code", roomCode).
		Str("phase_id", p.PhaseID).
		Msg("phase ended")

	return []emission{d.snapshotEmissionLocked(room, now)}
}

func (d *Director) handleRoomClosed(roomCode string, p events.RoomClosedPayload, now time.Time) []emission {
	room, ok := d.rooms[roomCode]
	if !ok {
		return nil
	}

	room.status = models.RoomStatusFinished
	room.phase = nil
	room.run = nil
	room.mask = nil
	room.bank.Reset()
	out := []emission{d.snapshotEmissionLocked(room, now)}
	delete(d.rooms, roomCode)

	log.Info().
		Str("room_code", roomCode).
		Str("reason", p.Reason).
		Msg("room closed")

	return out
}

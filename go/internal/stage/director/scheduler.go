package director

import (
	"context"
	"time"

	"github.com/quizlive/stagetime/go/internal/models"
	"github.com/quizlive/stagetime/go/internal/stage/events"
	"github.com/rs/zerolog/log"
)

// emission is an event produced under the director lock and delivered after
// it is released, so publishing never stalls the tick.
type emission struct {
	event *events.Event
	// intent events also go to the intent stream, not just the room.
	intent bool
}

// tick is one pass of the timing loop. A single clock reading covers every
// room so countdowns and reveals in one pass agree on "now".
func (d *Director) tick(ctx context.Context) {
	now := d.oracle.Now()

	d.mu.Lock()
	d.ticks++
	var out []emission
	for _, room := range d.rooms {
		out = append(out, d.tickRoomLocked(room, now)...)
	}
	d.mu.Unlock()

	d.deliver(ctx, out)
}

func (d *Director) tickRoomLocked(room *roomState, now time.Time) []emission {
	if room.status != models.RoomStatusLive || room.phase == nil {
		return nil
	}
	room.lastActive = d.wall.Now()

	var out []emission

	activated := false
	if !room.started {
		if now.Before(room.phase.StartsAt) {
			return nil
		}
		out = d.activateLocked(room, now)
		out = append(out, d.snapshotEmissionLocked(room, now))
		activated = true
	}

	// Reveal progress, at most one unit per pass; a stalled loop catches
	// up across consecutive passes. Activation already uncovered its unit.
	if room.run != nil && !activated {
		if unit, ok := room.run.Advance(room.phase.ElapsedFraction(now)); ok {
			d.reveals++
			out = append(out, d.revealEmissionLocked(room, unit, now))
		}
	}

	for _, subject := range room.bank.TickAll(now) {
		d.expiries++
		ev := makeEvent(room.code, events.EventTypeTimerExpired, now, events.TimerExpiredPayload{
			PhaseID:   room.phase.ID.String(),
			Subject:   subject,
			ExpiredAt: now,
		})
		out = appendEmission(out, ev, true)
		log.Info().
			Str("room_code", room.code).
			Str("subject", subject).
			Msg("countdown expired")
	}

	if room.bank.Running() {
		ev := makeEvent(room.code, events.EventTypeTimerTick, now, events.TimerTickPayload{
			PhaseID:      room.phase.ID.String(),
			ServerTimeMs: now.UnixMilli(),
			Subjects:     subjectsLocked(room),
		})
		out = appendEmission(out, ev, false)
	}

	return out
}

// revealEmissionLocked uncovers one unit and builds the RevealAdvanced
// event. For word phases the payload carries only the position and the
// uncovered rune; the prompt itself never leaves the director unmasked.
func (d *Director) revealEmissionLocked(room *roomState, unit int, now time.Time) emission {
	payload := events.RevealAdvancedPayload{
		PhaseID:  room.phase.ID.String(),
		Unit:     unit,
		Position: unit,
		Revealed: room.run.Count(),
		Total:    room.run.Total(),
	}
	if room.mask != nil {
		room.mask.RevealUnit(unit)
		if pos := room.mask.Position(unit); pos >= 0 {
			payload.Position = pos
			payload.Glyph = string(room.mask.RuneAt(pos))
		}
	}

	log.Debug().
		Str("room_code", room.code).
		Int("unit", unit).
		Int("revealed", payload.Revealed).
		Int("total", payload.Total).
		Msg("reveal advanced")

	ev := makeEvent(room.code, events.EventTypeRevealAdvanced, now, payload)
	return emission{event: ev, intent: true}
}

// deliver publishes and broadcasts collected emissions. Failures are logged
// and absorbed; a bad publish must not stop the loop.
func (d *Director) deliver(ctx context.Context, out []emission) {
	for _, em := range out {
		if em.event == nil {
			continue
		}
		if em.intent && d.publisher != nil {
			if err := d.publisher.Publish(ctx, em.event); err != nil {
				log.Error().
					Err(err).
					Str("room_code", em.event.RoomCode).
					Str("event_type", string(em.event.Type)).
					Msg("failed to publish intent event")
			} else {
				d.mu.Lock()
				d.published++
				d.mu.Unlock()
			}
		}
		if d.broadcast != nil {
			d.broadcast.BroadcastToRoom(em.event.RoomCode, em.event)
		}
	}
}

// reapIdleRooms drops rooms that have sat without an active phase for the
// idle timeout. Rooms holding a phase are kept however stale; closing them
// is the game service's call.
func (d *Director) reapIdleRooms() {
	cutoff := d.wall.Now().Add(-d.config.RoomIdleTimeout)

	d.mu.Lock()
	defer d.mu.Unlock()
	for code, room := range d.rooms {
		if room.phase != nil {
			continue
		}
		if room.lastActive.After(cutoff) {
			continue
		}
		delete(d.rooms, code)
		log.Info().
			Str("room_code", code).
			Str("status", string(room.status)).
			Msg("reaping idle room")
	}
}

func makeEvent(roomCode string, typ events.EventType, now time.Time, payload interface{}) *events.Event {
	ev, err := events.New(roomCode, typ, now, payload)
	if err != nil {
		log.Error().
			Err(err).
			Str("room_code", roomCode).
			Str("event_type", string(typ)).
			Msg("failed to build event")
		return nil
	}
	return ev
}

func appendEmission(out []emission, ev *events.Event, intent bool) []emission {
	if ev == nil {
		return out
	}
	return append(out, emission{event: ev, intent: intent})
}

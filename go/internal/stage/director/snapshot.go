package director

import (
	"time"

	"github.com/quizlive/stagetime/go/internal/stage/events"
)

// Snapshot returns the client-safe state of a room for resyncs, or false
// when the room is unknown. Remaining milliseconds are recomputed at call
// time so reconnecting clients never trust their own stale countdowns.
func (d *Director) Snapshot(roomCode string) (*events.RoomSnapshotPayload, bool) {
	now := d.oracle.Now()

	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomCode]
	if !ok {
		return nil, false
	}
	return d.snapshotLocked(room, now), true
}

func (d *Director) snapshotLocked(room *roomState, now time.Time) *events.RoomSnapshotPayload {
	snap := &events.RoomSnapshotPayload{
		RoomCode:     room.code,
		Status:       room.status,
		ServerTimeMs: now.UnixMilli(),
		Subjects:     subjectsLocked(room),
	}
	if room.phase == nil {
		return snap
	}

	ps := &events.PhaseSnapshot{
		PhaseID:       room.phase.ID.String(),
		Kind:          room.phase.Kind,
		Units:         room.phase.Units,
		FloorFraction: room.phase.FloorFraction,
		StartsAt:      room.phase.StartsAt,
		EndsAt:        room.phase.EndsAt,
	}
	if room.run != nil {
		ps.RevealedCount = room.run.Count()
		if room.mask != nil {
			// Only the masked rendering goes out; revealed positions
			// are rune indexes into it.
			ps.Prompt = room.mask.Rendered(maskPlaceholder)
			for _, unit := range room.run.Revealed() {
				if pos := room.mask.Position(unit); pos >= 0 {
					ps.Revealed = append(ps.Revealed, pos)
				}
			}
		} else {
			ps.Revealed = room.run.Revealed()
		}
	}
	snap.Phase = ps
	return snap
}

func (d *Director) snapshotEmissionLocked(room *roomState, now time.Time) emission {
	ev := makeEvent(room.code, events.EventTypeRoomSnapshot, now, d.snapshotLocked(room, now))
	return emission{event: ev}
}

func subjectsLocked(room *roomState) []events.SubjectRemaining {
	bank := room.bank.Snapshot()
	if len(bank) == 0 {
		return nil
	}
	out := make([]events.SubjectRemaining, 0, len(bank))
	for _, r := range bank {
		out = append(out, events.SubjectRemaining{
			Subject:     r.Subject,
			RemainingMs: r.Remaining.Milliseconds(),
			Status:      r.Status.String(),
		})
	}
	return out
}

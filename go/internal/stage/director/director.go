// Package director runs the presentation-side timing core. It consumes
// control events from the authoritative game service, keeps a per-room
// picture of the active phase, and drives reveal and countdown progress off
// a single periodic tick. Threshold crossings become intent events for the
// game service and presentation events for connected stage clients.
package director

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/quizlive/stagetime/go/internal/clock"
	"github.com/quizlive/stagetime/go/internal/countdown"
	"github.com/quizlive/stagetime/go/internal/models"
	"github.com/quizlive/stagetime/go/internal/reveal"
	"github.com/quizlive/stagetime/go/internal/stage/catalog"
	"github.com/quizlive/stagetime/go/internal/stage/events"
	"github.com/rs/zerolog/log"
)

// IntentPublisher publishes intent events back toward the game service.
type IntentPublisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// Broadcaster fans presentation events out to the clients of a room.
// Implementations must not block; slow clients are the gateway's problem.
type Broadcaster interface {
	BroadcastToRoom(roomCode string, event *events.Event)
}

// GlobalSubject names the room-wide countdown tracking the phase window
// itself, as opposed to per-player turn clocks.
const GlobalSubject = "room"

// maskPlaceholder stands in for hidden runes in client-facing prompts.
const maskPlaceholder = '_'

// Config holds tuning for the director loop.
type Config struct {
	// TickInterval is the cadence of the timing loop.
	TickInterval time.Duration
	// RoomIdleTimeout is how long a room may sit without an active phase
	// before it is reaped. Zero disables reaping.
	RoomIdleTimeout time.Duration
}

// DefaultConfig returns the tuning used in production.
func DefaultConfig() Config {
	return Config{
		TickInterval:    clock.DefaultInterval,
		RoomIdleTimeout: 30 * time.Minute,
	}
}

// roomState is everything the director tracks for one room. All fields are
// guarded by the director mutex.
type roomState struct {
	code   string
	status models.RoomStatus

	phase   *models.Phase
	run     *reveal.Run
	mask    *reveal.Mask
	bank    *countdown.Bank
	started bool

	// lastActive is local wall time, only used for reaping.
	lastActive time.Time
}

// Director owns all room timing state. One instance serves every room; a
// single loop goroutine ticks them sequentially so each pass sees one
// consistent reading of the synced clock.
type Director struct {
	config    Config
	oracle    *clock.SyncedClock
	wall      clockwork.Clock
	catalog   *catalog.Catalog
	publisher IntentPublisher
	broadcast Broadcaster
	shuffle   reveal.ShuffleFunc

	mu    sync.Mutex
	rooms map[string]*roomState

	instanceID string

	// Counters below are guarded by mu.
	ticks     int64
	eventsIn  int64
	reveals   int64
	expiries  int64
	published int64
}

// NewDirector creates a director. A nil publisher or broadcaster disables
// that output; a nil shuffle falls back to a wall-seeded one.
func NewDirector(config Config, oracle *clock.SyncedClock, wall clockwork.Clock, cat *catalog.Catalog, publisher IntentPublisher, broadcast Broadcaster, shuffle reveal.ShuffleFunc) *Director {
	if wall == nil {
		wall = clockwork.NewRealClock()
	}
	if oracle == nil {
		oracle = clock.NewSyncedClock(wall)
	}
	if cat == nil {
		cat = catalog.Default()
	}
	if config.TickInterval <= 0 {
		config.TickInterval = clock.DefaultInterval
	}
	if shuffle == nil {
		shuffle = reveal.NewShuffle(rand.NewSource(wall.Now().UnixNano()))
	}
	return &Director{
		config:     config,
		oracle:     oracle,
		wall:       wall,
		catalog:    cat,
		publisher:  publisher,
		broadcast:  broadcast,
		shuffle:    shuffle,
		rooms:      make(map[string]*roomState),
		instanceID: uuid.New().String()[:8],
	}
}

// Run drives the tick loop and the room reaper until ctx is cancelled.
func (d *Director) Run(ctx context.Context) error {
	log.Info().
		Str("instance_id", d.instanceID).
		Dur("tick_interval", d.config.TickInterval).
		Msg("director starting")

	stopTick := clock.Periodic(ctx, d.wall, d.config.TickInterval, func() {
		d.tick(ctx)
	})
	defer stopTick()

	if d.config.RoomIdleTimeout > 0 {
		stopReap := clock.Periodic(ctx, d.wall, d.config.RoomIdleTimeout/2, d.reapIdleRooms)
		defer stopReap()
	}

	<-ctx.Done()
	log.Info().Str("instance_id", d.instanceID).Msg("director stopped")
	return nil
}

// Oracle exposes the synced clock so the gateway can answer time probes from
// the same estimate the tick loop runs on.
func (d *Director) Oracle() *clock.SyncedClock {
	return d.oracle
}

// Stats returns counters for the stats endpoint.
func (d *Director) Stats() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]interface{}{
		"instance_id":     d.instanceID,
		"rooms":           len(d.rooms),
		"ticks":           d.ticks,
		"events_in":       d.eventsIn,
		"reveals":         d.reveals,
		"expiries":        d.expiries,
		"published":       d.published,
		"clock_offset_ms": d.oracle.Offset().Milliseconds(),
		"clock_synced":    d.oracle.Synced(),
	}
}

func (d *Director) getOrCreateRoomLocked(roomCode string) *roomState {
	room, ok := d.rooms[roomCode]
	if !ok {
		room = &roomState{
			code:   roomCode,
			status: models.RoomStatusLobby,
			bank:   countdown.NewBank(nil),
		}
		d.rooms[roomCode] = room
		log.Info().Str("room_code", roomCode).Msg("tracking new room")
	}
	room.lastActive = d.wall.Now()
	return room
}

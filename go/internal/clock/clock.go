// Package clock provides the synchronized show clock: a local, non-blocking
// estimate of the game service's wall time, plus the periodic scheduler the
// tick loops run on.
//
// The game service's clock is authoritative for every deadline in a show.
// Local machines render against it, so each process keeps a smoothed offset
// between its own wall clock and observed server instants and answers "what
// time is it on the server" without ever doing I/O on the query path.
package clock

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Oracle answers the current best-estimate server time. Implementations must
// be safe for concurrent use and must never block; the tick loops query this
// at 10 Hz and the gateway queries it per client ping.
type Oracle interface {
	Now() time.Time
	NowMillis() int64
}

// maxSamples bounds the offset ring. Old observations age out so a machine
// whose drift changes (NTP step, suspend/resume) converges again.
const maxSamples = 16

type offsetSample struct {
	offset time.Duration
	rtt    time.Duration
}

// SyncedClock implements Oracle over a local wall clock and a ring of offset
// observations. Before the first observation it degrades to plain local time,
// which keeps the query path total: callers always get an answer.
type SyncedClock struct {
	wall clockwork.Clock

	mu      sync.RWMutex
	samples []offsetSample
	offset  time.Duration
}

// NewSyncedClock returns a clock with zero offset reading from wall.
func NewSyncedClock(wall clockwork.Clock) *SyncedClock {
	return &SyncedClock{wall: wall}
}

// Now returns the current best-estimate server time.
func (c *SyncedClock) Now() time.Time {
	c.mu.RLock()
	off := c.offset
	c.mu.RUnlock()
	return c.wall.Now().Add(off)
}

// NowMillis returns the current best-estimate server time in milliseconds
// since the Unix epoch.
func (c *SyncedClock) NowMillis() int64 {
	return c.Now().UnixMilli()
}

// Offset returns the current smoothed offset (server minus local).
func (c *SyncedClock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Synced reports whether at least one observation has been recorded.
func (c *SyncedClock) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.samples) > 0
}

// Observe records a one-way observation of the server clock, e.g. the
// timestamp on a control event as it arrives. One-way samples carry the full
// network delay as error but are plentiful; they stop voting once bounded
// round-trip samples arrive.
func (c *SyncedClock) Observe(serverTime time.Time) {
	if serverTime.IsZero() {
		return
	}
	c.record(offsetSample{offset: serverTime.Sub(c.wall.Now())})
}

// ObserveRoundTrip records an NTP-style observation: the caller sent a probe
// at sentAt, the server stamped it serverTime, the reply landed at receivedAt.
// The server instant is assumed to sit at the midpoint of the round trip.
// Inverted bounds are ignored.
func (c *SyncedClock) ObserveRoundTrip(sentAt, serverTime, receivedAt time.Time) {
	if serverTime.IsZero() || receivedAt.Before(sentAt) {
		return
	}
	rtt := receivedAt.Sub(sentAt)
	mid := sentAt.Add(rtt / 2)
	c.record(offsetSample{offset: serverTime.Sub(mid), rtt: rtt})
}

func (c *SyncedClock) record(s offsetSample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples = append(c.samples, s)
	if len(c.samples) > maxSamples {
		c.samples = c.samples[1:]
	}
	c.offset = smoothOffset(c.samples)
}

// smoothOffset reduces the ring to one offset. Round-trip samples carry a
// delay bound, so once any are in the ring only those within twice the
// tightest bound vote; one-way samples fill in until then. The vote is a
// median.
func smoothOffset(samples []offsetSample) time.Duration {
	best := time.Duration(-1)
	for _, s := range samples {
		if s.rtt > 0 && (best < 0 || s.rtt < best) {
			best = s.rtt
		}
	}

	offsets := make([]time.Duration, 0, len(samples))
	for _, s := range samples {
		if best > 0 && (s.rtt <= 0 || s.rtt > 2*best) {
			continue
		}
		offsets = append(offsets, s.offset)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	mid := len(offsets) / 2
	if len(offsets)%2 == 0 {
		return (offsets[mid-1] + offsets[mid]) / 2
	}
	return offsets[mid]
}

package clock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestSyncedClockFallsBackToLocalTime(t *testing.T) {
	wall := clockwork.NewFakeClock()
	c := NewSyncedClock(wall)

	if c.Synced() {
		t.Fatal("clock reports synced before any observation")
	}
	if got, want := c.Now(), wall.Now(); !got.Equal(want) {
		t.Errorf("Now() = %v, want local %v", got, want)
	}
	if got, want := c.NowMillis(), wall.Now().UnixMilli(); got != want {
		t.Errorf("NowMillis() = %d, want %d", got, want)
	}
}

func TestSyncedClockObserve(t *testing.T) {
	wall := clockwork.NewFakeClock()
	c := NewSyncedClock(wall)

	server := wall.Now().Add(2 * time.Second)
	c.Observe(server)

	if !c.Synced() {
		t.Fatal("clock not synced after observation")
	}
	if got, want := c.Offset(), 2*time.Second; got != want {
		t.Errorf("Offset() = %v, want %v", got, want)
	}
	if got := c.Now(); !got.Equal(server) {
		t.Errorf("Now() = %v, want %v", got, server)
	}
}

func TestSyncedClockMedianAbsorbsOutliers(t *testing.T) {
	wall := clockwork.NewFakeClock()
	c := NewSyncedClock(wall)

	base := wall.Now()
	c.Observe(base.Add(2 * time.Second))
	c.Observe(base.Add(2 * time.Second))
	c.Observe(base.Add(30 * time.Second)) // one delayed delivery

	if got, want := c.Offset(), 2*time.Second; got != want {
		t.Errorf("Offset() = %v, want median %v", got, want)
	}
}

func TestSyncedClockObserveRoundTrip(t *testing.T) {
	wall := clockwork.NewFakeClock()
	c := NewSyncedClock(wall)

	sent := wall.Now()
	received := sent.Add(200 * time.Millisecond)
	// Server stamped the probe 5s ahead of the round-trip midpoint.
	server := sent.Add(100*time.Millisecond + 5*time.Second)

	c.ObserveRoundTrip(sent, server, received)

	if got, want := c.Offset(), 5*time.Second; got != want {
		t.Errorf("Offset() = %v, want %v", got, want)
	}
}

func TestSyncedClockIgnoresBadSamples(t *testing.T) {
	wall := clockwork.NewFakeClock()
	c := NewSyncedClock(wall)

	c.Observe(time.Time{})
	c.ObserveRoundTrip(wall.Now(), wall.Now(), wall.Now().Add(-time.Second))

	if c.Synced() {
		t.Error("bad samples were recorded")
	}
	if got := c.Offset(); got != 0 {
		t.Errorf("Offset() = %v, want 0", got)
	}
}

func TestSyncedClockPrefersTightRoundTrips(t *testing.T) {
	wall := clockwork.NewFakeClock()
	c := NewSyncedClock(wall)

	base := wall.Now()
	// One-way stamps that arrived late read far ahead of the true offset.
	c.Observe(base.Add(8 * time.Second))
	c.Observe(base.Add(9 * time.Second))

	// A tight probe carries a 40ms bound and pins the offset at 2s.
	sent := base
	received := sent.Add(40 * time.Millisecond)
	c.ObserveRoundTrip(sent, sent.Add(20*time.Millisecond+2*time.Second), received)

	if got, want := c.Offset(), 2*time.Second; got != want {
		t.Errorf("Offset() = %v, want round-trip estimate %v", got, want)
	}

	// A sloppy probe, far beyond twice the best bound, does not vote.
	received = sent.Add(2 * time.Second)
	c.ObserveRoundTrip(sent, sent.Add(time.Second+7*time.Second), received)

	if got, want := c.Offset(), 2*time.Second; got != want {
		t.Errorf("Offset() after sloppy probe = %v, want %v", got, want)
	}
}

func TestSyncedClockRingAgesOutOldSamples(t *testing.T) {
	wall := clockwork.NewFakeClock()
	c := NewSyncedClock(wall)

	base := wall.Now()
	for i := 1; i <= 20; i++ {
		c.Observe(base.Add(time.Duration(i) * time.Millisecond))
	}

	// Only the last 16 samples (5ms..20ms) survive; even count, so the
	// median is the mean of 12ms and 13ms.
	if got, want := c.Offset(), 12500*time.Microsecond; got != want {
		t.Errorf("Offset() = %v, want %v", got, want)
	}
}

package clock

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestPeriodicFiresAtCadence(t *testing.T) {
	clk := clockwork.NewFakeClock()
	ctx := context.Background()

	ticks := make(chan struct{})
	cancel := Periodic(ctx, clk, 100*time.Millisecond, func() {
		ticks <- struct{}{}
	})
	defer cancel()

	if err := clk.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}

	for i := 0; i < 3; i++ {
		clk.Advance(100 * time.Millisecond)
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatalf("tick %d not delivered", i+1)
		}
	}
}

func TestPeriodicDoesNotFireEarly(t *testing.T) {
	clk := clockwork.NewFakeClock()
	ctx := context.Background()

	ticks := make(chan struct{}, 1)
	cancel := Periodic(ctx, clk, 100*time.Millisecond, func() {
		ticks <- struct{}{}
	})
	defer cancel()

	if err := clk.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}

	clk.Advance(99 * time.Millisecond)
	select {
	case <-ticks:
		t.Fatal("fired before the interval elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	clk.Advance(1 * time.Millisecond)
	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("did not fire once the interval elapsed")
	}
}

func TestPeriodicCancelStopsCallbacks(t *testing.T) {
	clk := clockwork.NewFakeClock()
	ctx := context.Background()

	ticks := make(chan struct{}, 8)
	cancel := Periodic(ctx, clk, 100*time.Millisecond, func() {
		ticks <- struct{}{}
	})

	if err := clk.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}

	cancel()
	cancel() // idempotent

	clk.Advance(time.Second)
	select {
	case <-ticks:
		t.Fatal("callback fired after cancel returned")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPeriodicHonorsContextCancellation(t *testing.T) {
	clk := clockwork.NewFakeClock()
	ctx, stop := context.WithCancel(context.Background())

	ticks := make(chan struct{}, 8)
	cancel := Periodic(ctx, clk, 100*time.Millisecond, func() {
		ticks <- struct{}{}
	})

	if err := clk.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}

	stop()
	cancel() // returns only once the loop has drained

	clk.Advance(time.Second)
	select {
	case <-ticks:
		t.Fatal("callback fired after context cancellation")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPeriodicDefaultsInterval(t *testing.T) {
	clk := clockwork.NewFakeClock()
	ctx := context.Background()

	ticks := make(chan struct{})
	cancel := Periodic(ctx, clk, 0, func() {
		ticks <- struct{}{}
	})
	defer cancel()

	if err := clk.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}

	clk.Advance(DefaultInterval)
	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("non-positive interval did not fall back to the default cadence")
	}
}

package clock

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultInterval is the standard presentation tick cadence (10 Hz).
const DefaultInterval = 100 * time.Millisecond

// Periodic invokes fn every interval on a dedicated goroutine until the
// context is cancelled or the returned cancel func is called. Invocations are
// strictly sequential; a slow fn delays later ticks rather than overlapping
// them.
//
// Cancel is idempotent and does not return until the loop has stopped, so
// once it returns no further invocation of fn can occur.
func Periodic(ctx context.Context, clk clockwork.Clock, interval time.Duration, fn func()) (cancel func()) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	loopCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	ticker := clk.NewTicker(interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.Chan():
				// Re-check cancellation: a tick may already be buffered when
				// cancel races the ticker.
				select {
				case <-loopCtx.Done():
					return
				default:
				}
				fn()
			}
		}
	}()

	return func() {
		stop()
		<-done
	}
}

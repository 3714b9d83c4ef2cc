// Package countdown implements the per-subject countdown bank: independent
// one-shot timers keyed by an opaque subject id, decremented by real elapsed
// time between ticks rather than by assuming a fixed tick length.
//
// The bank holds no goroutines and no clock. The owner feeds it instants from
// the synced show clock at whatever cadence it runs; missed or late ticks
// cost nothing because elapsed time is measured, not counted. A subject
// expires exactly once per run, synchronously from within the tick that
// drained it.
package countdown

import (
	"sync"
	"time"
)

// Status is the lifecycle state of one subject's timer.
type Status int

const (
	// StatusIdle means no timer exists for the subject.
	StatusIdle Status = iota
	// StatusRunning means the timer is counting down.
	StatusRunning
	// StatusPaused means the timer holds its remaining time; wall time
	// passing while paused does not elapse.
	StatusPaused
	// StatusExpired means the timer ran out. Only an explicit restart with a
	// fresh duration leaves this state.
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusRunning:
		return "RUNNING"
	case StatusPaused:
		return "PAUSED"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Remaining is a point-in-time snapshot of one subject's timer.
type Remaining struct {
	Subject   string
	Remaining time.Duration
	Status    Status
}

type timerState struct {
	remaining time.Duration
	lastTick  time.Time
	status    Status
}

// Bank owns the timer map for one room. All methods are safe for concurrent
// use; the expiry callback runs outside the lock, on the goroutine that
// ticked the subject over the edge.
type Bank struct {
	mu       sync.Mutex
	timers   map[string]*timerState
	order    []string
	onExpire func(subject string)
}

// NewBank returns an empty bank. onExpire may be nil; when set it fires
// exactly once per subject run, from within tick processing.
func NewBank(onExpire func(subject string)) *Bank {
	return &Bank{
		timers:   make(map[string]*timerState),
		onExpire: onExpire,
	}
}

// Start begins a countdown of d for the subject, stamped at now. Starting a
// subject that is already Running or Paused is a no-op returning false: at
// most one active run per subject. Restarting from Expired (or starting
// fresh) returns the subject to Running with the full duration. A
// non-positive d is accepted and expires on the first tick.
func (b *Bank) Start(subject string, d time.Duration, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.timers[subject]
	if ok && (st.status == StatusRunning || st.status == StatusPaused) {
		return false
	}
	if d < 0 {
		d = 0
	}
	if !ok {
		b.order = append(b.order, subject)
	}
	b.timers[subject] = &timerState{
		remaining: d,
		lastTick:  now,
		status:    StatusRunning,
	}
	return true
}

// Tick advances the subject to now. Elapsed time is now minus the previous
// tick; a clock regression counts as zero elapsed and the new instant becomes
// the baseline, so a later correct instant is measured against it. Remaining
// time never goes below zero. The bool reports whether the subject expired on
// this call; ticks on absent, paused, or already-expired subjects change
// nothing.
func (b *Bank) Tick(subject string, now time.Time) (time.Duration, bool) {
	b.mu.Lock()
	st, ok := b.timers[subject]
	if !ok || st.status != StatusRunning {
		var rem time.Duration
		if ok {
			rem = st.remaining
		}
		b.mu.Unlock()
		return rem, false
	}

	elapsed := now.Sub(st.lastTick)
	if elapsed < 0 {
		elapsed = 0
	}
	st.lastTick = now
	st.remaining -= elapsed
	if st.remaining > 0 {
		rem := st.remaining
		b.mu.Unlock()
		return rem, false
	}

	st.remaining = 0
	st.status = StatusExpired
	cb := b.onExpire
	b.mu.Unlock()

	if cb != nil {
		cb(subject)
	}
	return 0, true
}

// TickAll ticks every subject to now, in the order subjects were first
// started, and returns the subjects that expired on this pass.
func (b *Bank) TickAll(now time.Time) []string {
	b.mu.Lock()
	subjects := make([]string, len(b.order))
	copy(subjects, b.order)
	b.mu.Unlock()

	var expired []string
	for _, subject := range subjects {
		if _, exp := b.Tick(subject, now); exp {
			expired = append(expired, subject)
		}
	}
	return expired
}

// Pause settles elapsed time up to now and freezes the subject. Only Running
// subjects can pause.
func (b *Bank) Pause(subject string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.timers[subject]
	if !ok || st.status != StatusRunning {
		return false
	}
	elapsed := now.Sub(st.lastTick)
	if elapsed < 0 {
		elapsed = 0
	}
	st.remaining -= elapsed
	if st.remaining < 0 {
		st.remaining = 0
	}
	st.lastTick = now
	st.status = StatusPaused
	return true
}

// Resume restamps the subject at now and sets it running again. Wall time
// spent paused does not elapse.
func (b *Bank) Resume(subject string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.timers[subject]
	if !ok || st.status != StatusPaused {
		return false
	}
	st.lastTick = now
	st.status = StatusRunning
	return true
}

// PauseAll pauses every running subject.
func (b *Bank) PauseAll(now time.Time) {
	b.mu.Lock()
	subjects := make([]string, len(b.order))
	copy(subjects, b.order)
	b.mu.Unlock()

	for _, subject := range subjects {
		b.Pause(subject, now)
	}
}

// ResumeAll resumes every paused subject.
func (b *Bank) ResumeAll(now time.Time) {
	b.mu.Lock()
	subjects := make([]string, len(b.order))
	copy(subjects, b.order)
	b.mu.Unlock()

	for _, subject := range subjects {
		b.Resume(subject, now)
	}
}

// Stop cancels the subject outright and forgets it; no expiry fires, and the
// subject reads as Idle afterwards. Ticks that race a Stop land on an absent
// subject and do nothing.
func (b *Bank) Stop(subject string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.timers[subject]; !ok {
		return false
	}
	delete(b.timers, subject)
	for i, s := range b.order {
		if s == subject {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true
}

// Remaining reports the subject's remaining time and status. Absent subjects
// are Idle with zero remaining.
func (b *Bank) Remaining(subject string) (time.Duration, Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.timers[subject]
	if !ok {
		return 0, StatusIdle
	}
	return st.remaining, st.status
}

// Snapshot returns every known subject in start order.
func (b *Bank) Snapshot() []Remaining {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Remaining, 0, len(b.order))
	for _, subject := range b.order {
		st, ok := b.timers[subject]
		if !ok {
			continue
		}
		out = append(out, Remaining{
			Subject:   subject,
			Remaining: st.remaining,
			Status:    st.status,
		})
	}
	return out
}

// Running reports whether any subject is currently counting down.
func (b *Bank) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, st := range b.timers {
		if st.status == StatusRunning {
			return true
		}
	}
	return false
}

// Reset drops every subject without firing expiries.
func (b *Bank) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.timers = make(map[string]*timerState)
	b.order = nil
}

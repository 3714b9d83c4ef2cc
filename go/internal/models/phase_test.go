package models

import (
	"testing"
	"time"
)

var base = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

func TestElapsedFraction(t *testing.T) {
	tests := []struct {
		name   string
		length time.Duration
		at     time.Duration
		want   float64
	}{
		{"before start clamps to zero", 8 * time.Second, -2 * time.Second, 0},
		{"at start", 8 * time.Second, 0, 0},
		{"quarter way", 8 * time.Second, 2 * time.Second, 0.25},
		{"half way", 8 * time.Second, 4 * time.Second, 0.5},
		{"at end", 8 * time.Second, 8 * time.Second, 1},
		{"past end clamps to one", 8 * time.Second, 20 * time.Second, 1},
		{"sub-second precision", 10 * time.Second, 100 * time.Millisecond, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Phase{StartsAt: base, EndsAt: base.Add(tt.length)}
			if got := p.ElapsedFraction(base.Add(tt.at)); got != tt.want {
				t.Errorf("ElapsedFraction(%v into %v) = %v, want %v",
					tt.at, tt.length, got, tt.want)
			}
		})
	}
}

func TestElapsedFractionDegenerateWindow(t *testing.T) {
	tests := []struct {
		name string
		end  time.Time
	}{
		{"zero length window", base},
		{"end before start", base.Add(-time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Phase{StartsAt: base, EndsAt: tt.end}
			// Fully elapsed regardless of where now falls.
			for _, at := range []time.Duration{-time.Second, 0, time.Second} {
				if got := p.ElapsedFraction(base.Add(at)); got != 1 {
					t.Errorf("ElapsedFraction(at %v) = %v, want 1", at, got)
				}
			}
		})
	}
}

func TestPhaseDuration(t *testing.T) {
	tests := []struct {
		name string
		end  time.Time
		want time.Duration
	}{
		{"normal window", base.Add(8 * time.Second), 8 * time.Second},
		{"zero length window", base, 0},
		{"end before start clamps to zero", base.Add(-3 * time.Second), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Phase{StartsAt: base, EndsAt: tt.end}
			if got := p.Duration(); got != tt.want {
				t.Errorf("Duration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPhaseKindHasReveal(t *testing.T) {
	tests := []struct {
		kind PhaseKind
		want bool
	}{
		{PhaseKindImageReveal, true},
		{PhaseKindWordReveal, true},
		{PhaseKindTurnClock, false},
		{PhaseKindAnswerWindow, false},
		{PhaseKind("BOGUS"), false},
	}

	for _, tt := range tests {
		if got := tt.kind.HasReveal(); got != tt.want {
			t.Errorf("%s.HasReveal() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

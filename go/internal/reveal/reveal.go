// Package reveal implements progressive reveal scheduling: given how far a
// phase has progressed, how many of its units (picture blocks, letters)
// should be visible, and in what order.
//
// The pacing runs ahead of linear so the last unit lands before the phase
// deadline: with a floor fraction of 0.8, everything is visible once 80% of
// the phase has elapsed, leaving the tail for guessing. All functions here
// are pure; the tick loop in the director drives them.
package reveal

import (
	"math"
	"math/rand"
)

// DefaultFloorFraction is the elapsed fraction at which every unit is
// visible. Configurable per phase; 0.8 is the show default.
const DefaultFloorFraction = 0.8

// TargetCount returns how many units should be revealed at the given elapsed
// fraction of the phase. The fraction is clamped to [0, 1]; at least one unit
// is always due from the very start of the phase. Degenerate inputs
// (non-finite fraction, no units, non-positive floor) return 0, which callers
// treat as "reveal nothing".
func TargetCount(elapsedFraction float64, totalUnits int, floorFraction float64) int {
	if totalUnits <= 0 {
		return 0
	}
	if math.IsNaN(elapsedFraction) || math.IsInf(elapsedFraction, 0) {
		return 0
	}
	if math.IsNaN(floorFraction) || math.IsInf(floorFraction, 0) || floorFraction <= 0 {
		return 0
	}

	if elapsedFraction < 0 {
		elapsedFraction = 0
	} else if elapsedFraction > 1 {
		elapsedFraction = 1
	}

	target := int(math.Ceil(elapsedFraction * float64(totalUnits) / floorFraction))
	if target < 1 {
		target = 1
	}
	if target > totalUnits {
		target = totalUnits
	}
	return target
}

// ShouldRevealNext reports whether another unit is due given the currently
// revealed count and the target for this instant.
func ShouldRevealNext(revealed, target int) bool {
	return target > revealed
}

// ShuffleFunc produces a permutation of [0, n). Injectable so tests and
// deterministic replays can fix the reveal order.
type ShuffleFunc func(n int) []int

// NewShuffle returns a ShuffleFunc backed by the given source.
func NewShuffle(src rand.Source) ShuffleFunc {
	r := rand.New(src)
	return func(n int) []int {
		return r.Perm(n)
	}
}

// Sequence is the fixed reveal order for one question. It is computed once at
// construction and never changes mid-question.
type Sequence struct {
	order []int
}

// NewSequence builds a sequence of n units using shuffle. A nil shuffle, or
// one that returns something that is not a permutation of [0, n), yields
// identity order rather than an error: reveal order is presentation flavor,
// not correctness.
func NewSequence(n int, shuffle ShuffleFunc) *Sequence {
	if n < 0 {
		n = 0
	}
	order := identity(n)
	if shuffle != nil {
		if p := shuffle(n); isPermutation(p, n) {
			order = p
		}
	}
	return &Sequence{order: order}
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func isPermutation(p []int, n int) bool {
	if len(p) != n {
		return false
	}
	seen := make([]bool, n)
	for _, v := range p {
		if v < 0 || v >= n || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

// Len returns the number of units in the sequence.
func (s *Sequence) Len() int {
	return len(s.order)
}

// At returns the unit index at position i, or -1 when out of range.
func (s *Sequence) At(i int) int {
	if i < 0 || i >= len(s.order) {
		return -1
	}
	return s.order[i]
}

// Prefix returns a copy of the first k units of the sequence.
func (s *Sequence) Prefix(k int) []int {
	if k < 0 {
		k = 0
	}
	if k > len(s.order) {
		k = len(s.order)
	}
	out := make([]int, k)
	copy(out, s.order[:k])
	return out
}

// Run tracks reveal progress for one question. The revealed count only ever
// grows; a changed prompt or unit count means a new question and a new Run.
type Run struct {
	seq      *Sequence
	floor    float64
	revealed int
}

// NewRun builds the reveal state for a question of the given unit count.
// Nothing is revealed yet; the first Advance at phase start uncovers the
// first unit because the target is never below one.
func NewRun(units int, floorFraction float64, shuffle ShuffleFunc) *Run {
	if units < 0 {
		units = 0
	}
	return &Run{
		seq:   NewSequence(units, shuffle),
		floor: floorFraction,
	}
}

// Advance reveals at most one further unit if the target for elapsedFraction
// exceeds the revealed count. It returns the newly revealed unit index and
// true, or -1 and false when nothing is due. Catching up after a stall
// happens one unit per call, across consecutive ticks.
func (r *Run) Advance(elapsedFraction float64) (int, bool) {
	target := TargetCount(elapsedFraction, r.seq.Len(), r.floor)
	if !ShouldRevealNext(r.revealed, target) {
		return -1, false
	}
	unit := r.seq.At(r.revealed)
	r.revealed++
	return unit, true
}

// Revealed returns the units uncovered so far, in reveal order.
func (r *Run) Revealed() []int {
	return r.seq.Prefix(r.revealed)
}

// Count returns how many units are currently revealed.
func (r *Run) Count() int {
	return r.revealed
}

// Total returns the unit count of the question.
func (r *Run) Total() int {
	return r.seq.Len()
}

// Done reports whether every unit is revealed.
func (r *Run) Done() bool {
	return r.seq.Len() > 0 && r.revealed == r.seq.Len()
}

package reveal

import "unicode"

// Mask tracks which runes of a prompt are visible during a word reveal.
// Whitespace is never masked: the audience always sees the shape of the
// answer. Every other rune starts hidden and is uncovered by position.
type Mask struct {
	runes    []rune
	maskable []int
	revealed map[int]bool
}

// NewMask builds a mask over the prompt. Maskable positions are rune indices,
// in left-to-right order; a word reveal's Run permutes positions into these.
func NewMask(prompt string) *Mask {
	runes := []rune(prompt)
	var maskable []int
	for i, r := range runes {
		if !unicode.IsSpace(r) {
			maskable = append(maskable, i)
		}
	}
	return &Mask{
		runes:    runes,
		maskable: maskable,
		revealed: make(map[int]bool),
	}
}

// Maskable returns how many runes can be revealed. This is the unit count a
// word reveal's Run is built with.
func (m *Mask) Maskable() int {
	return len(m.maskable)
}

// Position maps a unit index (0..Maskable-1) to its rune position in the
// prompt, or -1 when out of range.
func (m *Mask) Position(unit int) int {
	if unit < 0 || unit >= len(m.maskable) {
		return -1
	}
	return m.maskable[unit]
}

// RevealUnit uncovers the rune for the given unit index. Out-of-range units
// are ignored.
func (m *Mask) RevealUnit(unit int) bool {
	pos := m.Position(unit)
	if pos < 0 {
		return false
	}
	m.revealed[pos] = true
	return true
}

// RuneAt returns the prompt rune at the given rune position, or zero when out
// of range.
func (m *Mask) RuneAt(pos int) rune {
	if pos < 0 || pos >= len(m.runes) {
		return 0
	}
	return m.runes[pos]
}

// Rendered returns the prompt with hidden runes replaced by placeholder.
// Whitespace always shows through.
func (m *Mask) Rendered(placeholder rune) string {
	out := make([]rune, len(m.runes))
	for i, r := range m.runes {
		switch {
		case unicode.IsSpace(r):
			out[i] = r
		case m.revealed[i]:
			out[i] = r
		default:
			out[i] = placeholder
		}
	}
	return string(out)
}

// RevealedCount returns how many runes are currently visible (whitespace not
// counted).
func (m *Mask) RevealedCount() int {
	return len(m.revealed)
}

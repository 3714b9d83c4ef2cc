package reveal

import "testing"

func TestMaskNeverHidesSpaces(t *testing.T) {
	m := NewMask("NEW YORK CITY")

	if got, want := m.Maskable(), 11; got != want {
		t.Fatalf("Maskable() = %d, want %d", got, want)
	}
	if got, want := m.Rendered('_'), "___ ____ ____"; got != want {
		t.Errorf("Rendered() = %q, want %q", got, want)
	}
}

func TestMaskRevealByUnit(t *testing.T) {
	m := NewMask("GO TIME")

	// Unit 2 is the third maskable rune: the 'T' after the space.
	if !m.RevealUnit(2) {
		t.Fatal("RevealUnit(2) refused a valid unit")
	}
	if got, want := m.Rendered('_'), "__ T___"; got != want {
		t.Errorf("Rendered() = %q, want %q", got, want)
	}
	if got := m.RevealedCount(); got != 1 {
		t.Errorf("RevealedCount() = %d, want 1", got)
	}
}

func TestMaskRevealAllRestoresPrompt(t *testing.T) {
	const prompt = "QUIZ NIGHT"
	m := NewMask(prompt)

	for u := 0; u < m.Maskable(); u++ {
		m.RevealUnit(u)
	}
	if got := m.Rendered('_'); got != prompt {
		t.Errorf("Rendered() = %q, want %q", got, prompt)
	}
}

func TestMaskOutOfRangeUnits(t *testing.T) {
	m := NewMask("ABC")

	if m.RevealUnit(-1) || m.RevealUnit(3) {
		t.Error("out-of-range unit accepted")
	}
	if got := m.Position(99); got != -1 {
		t.Errorf("Position(99) = %d, want -1", got)
	}
}

func TestMaskUnicodePrompt(t *testing.T) {
	m := NewMask("CAFÉ AU LAIT")

	if got, want := m.Maskable(), 10; got != want {
		t.Fatalf("Maskable() = %d, want %d", got, want)
	}
	// Reveal the accented rune (unit 3) and check rune alignment survives.
	m.RevealUnit(3)
	if got, want := m.Rendered('•'), "•••É •• ••••"; got != want {
		t.Errorf("Rendered() = %q, want %q", got, want)
	}
}

func TestMaskEmptyPrompt(t *testing.T) {
	m := NewMask("")
	if got := m.Maskable(); got != 0 {
		t.Errorf("Maskable() = %d, want 0", got)
	}
	if got := m.Rendered('_'); got != "" {
		t.Errorf("Rendered() = %q, want empty", got)
	}
}

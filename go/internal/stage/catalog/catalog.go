// Package catalog loads the show catalog: per-phase-kind timing defaults the
// director falls back on when a control event leaves a field blank. Show
// producers tune these per format; the built-in values match the standard
// show.
package catalog

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quizlive/stagetime/go/internal/clock"
	"github.com/quizlive/stagetime/go/internal/models"
	"github.com/quizlive/stagetime/go/internal/reveal"
)

// PhaseDefaults are the fallback timing parameters for one phase kind.
type PhaseDefaults struct {
	Units          int     `yaml:"units"`
	FloorFraction  float64 `yaml:"floor_fraction"`
	DurationMs     int64   `yaml:"duration_ms"`
	TurnDurationMs int64   `yaml:"turn_duration_ms"`
}

// Catalog is the parsed show catalog.
type Catalog struct {
	TickIntervalMs int64                              `yaml:"tick_interval_ms"`
	Phases         map[models.PhaseKind]PhaseDefaults `yaml:"phases"`
}

// Default returns the built-in catalog for the standard show format.
func Default() *Catalog {
	return &Catalog{
		TickIntervalMs: clock.DefaultInterval.Milliseconds(),
		Phases: map[models.PhaseKind]PhaseDefaults{
			models.PhaseKindImageReveal: {
				Units:         9,
				FloorFraction: reveal.DefaultFloorFraction,
			},
			models.PhaseKindWordReveal: {
				FloorFraction: reveal.DefaultFloorFraction,
			},
			models.PhaseKindTurnClock: {
				TurnDurationMs: 20_000,
			},
			models.PhaseKindAnswerWindow: {
				DurationMs: 30_000,
			},
		},
	}
}

// Load reads the catalog at path, layered over the defaults. An empty path
// returns the defaults untouched.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var loaded Catalog
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if loaded.TickIntervalMs > 0 {
		c.TickIntervalMs = loaded.TickIntervalMs
	}
	for kind, def := range loaded.Phases {
		merged := c.Phases[kind]
		if def.Units > 0 {
			merged.Units = def.Units
		}
		if def.FloorFraction > 0 {
			merged.FloorFraction = def.FloorFraction
		}
		if def.DurationMs > 0 {
			merged.DurationMs = def.DurationMs
		}
		if def.TurnDurationMs > 0 {
			merged.TurnDurationMs = def.TurnDurationMs
		}
		c.Phases[kind] = merged
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) validate() error {
	if c.TickIntervalMs <= 0 {
		return fmt.Errorf("tick_interval_ms must be positive, got %d", c.TickIntervalMs)
	}
	for kind, def := range c.Phases {
		if def.FloorFraction < 0 || def.FloorFraction > 1 {
			return fmt.Errorf("phase %s: floor_fraction %v outside [0, 1]", kind, def.FloorFraction)
		}
		if def.Units < 0 {
			return fmt.Errorf("phase %s: negative units", kind)
		}
		if def.DurationMs < 0 || def.TurnDurationMs < 0 {
			return fmt.Errorf("phase %s: negative duration", kind)
		}
	}
	return nil
}

// TickInterval returns the presentation tick cadence.
func (c *Catalog) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// Defaults returns the fallbacks for a phase kind. Unknown kinds get a zero
// value; the director still guards every field.
func (c *Catalog) Defaults(kind models.PhaseKind) PhaseDefaults {
	return c.Phases[kind]
}

// FloorFraction resolves the reveal floor for a phase: the event value when
// set, the catalog value otherwise, the show default as a last resort.
func (c *Catalog) FloorFraction(kind models.PhaseKind, fromEvent float64) float64 {
	if fromEvent > 0 && fromEvent <= 1 {
		return fromEvent
	}
	if def := c.Phases[kind]; def.FloorFraction > 0 {
		return def.FloorFraction
	}
	return reveal.DefaultFloorFraction
}

// Units resolves the unit count for an image reveal.
func (c *Catalog) Units(kind models.PhaseKind, fromEvent int) int {
	if fromEvent > 0 {
		return fromEvent
	}
	return c.Phases[kind].Units
}

// TurnDuration resolves the countdown for a subject that arrived without one.
func (c *Catalog) TurnDuration(kind models.PhaseKind, fromEvent time.Duration) time.Duration {
	if fromEvent > 0 {
		return fromEvent
	}
	if def := c.Phases[kind]; def.TurnDurationMs > 0 {
		return time.Duration(def.TurnDurationMs) * time.Millisecond
	}
	if def := c.Phases[kind]; def.DurationMs > 0 {
		return time.Duration(def.DurationMs) * time.Millisecond
	}
	return 0
}

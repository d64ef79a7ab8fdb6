// Package animation implements the phase-table bytecode a signal head's
// color transitions and flashing overlay are both built from. A table
// is a short, constant sequence of Phases; a Cursor walks one table for
// one animated quantity (a color transition, or a flash cycle).
//
// The encoding is intentionally compact: Phase.Length multiplexes four
// meanings into one signed byte (zero is reserved, a positive N runs
// for N ticks, a negative N jumps back |N| phases, and the constant 127
// sentinel means "hold this value forever, never advance"), so a new
// animation is addable as data rather than code.
package animation

import (
	"fmt"

	"github.com/trackside/searchlight/colors"
)

// Forever is the Phase.Length value meaning "never advance past this
// phase" (as opposed to Length == 0, which is reserved and never valid
// at runtime).
const Forever int8 = 127

// input selects where a phase's start/end color comes from.
type input uint8

const (
	// inputA and inputB are the two ephemeral colors the caller passes
	// to Cursor.Step (typically a signal head's "from" and "to"
	// colors, or its current color and the off-color for flashing).
	inputA input = 0
	inputB input = 1
	// inputs >= inputPaletteBase select colors.Palette[input-inputPaletteBase].
	inputPaletteBase input = 2
)

// completeBit marks, in Phase.Flags, that the animation is considered
// finished once execution reaches this phase (chasing backward jumps
// first). The caller (signalhead.State) uses this to know when to
// promote a pending color or stop flashing.
const completeBit uint8 = 0x80

// Phase is one step of an animation's bytecode.
type Phase struct {
	// Length is the phase duration in ticks if positive, a backward
	// jump of |Length| phases if negative, and Forever (127) if the
	// phase should be held indefinitely without advancing. Zero is
	// reserved and never valid in a table used at runtime.
	Length int8
	// Flags packs the start color selector in bits 4-6 and the end
	// color selector in bits 0-2; bit 7 is completeBit.
	Flags uint8
}

func (p Phase) startInput() input { return input((p.Flags >> 4) & 0x7) }
func (p Phase) endInput() input   { return input(p.Flags & 0x7) }
func (p Phase) complete() bool    { return p.Flags&completeBit != 0 }

// MakePhase builds a Phase from a length, a start/end input pair, and
// whether it marks completion. Exported as a constructor so table
// literals stay readable without manual bit math.
func MakePhase(length int8, start, end uint8, complete bool) Phase {
	flags := (start&0x7)<<4 | (end & 0x7)
	if complete {
		flags |= completeBit
	}
	return Phase{Length: length, Flags: flags}
}

// Table is a constant, ordered animation. Build one with NewTable so
// its jump structure is validated once, at construction, rather than
// on every tick.
type Table struct {
	phases []Phase
}

// NewTable validates that every phase with a negative Length lands,
// after following the chain of jumps, on a phase that is not itself
// part of an all-jump cycle (every cycle must contain at least one
// phase with non-negative length, or Cursor.currentPhase would loop
// forever). It panics on an invalid table — this is a programming
// error in a compile-time constant, not a runtime condition.
func NewTable(phases []Phase) Table {
	for i, p := range phases {
		if p.Length == 0 {
			panic(fmt.Sprintf("animation: phase %d has reserved zero length", i))
		}
	}
	for i := range phases {
		visited := make(map[int]bool)
		idx := i
		for phases[idx].Length < 0 {
			if visited[idx] {
				panic(fmt.Sprintf("animation: phase %d is part of an all-jump cycle", i))
			}
			visited[idx] = true
			idx = wrapIndex(idx, int(phases[idx].Length), len(phases))
		}
	}
	return Table{phases: phases}
}

func wrapIndex(idx, delta, n int) int {
	idx += delta
	for idx < 0 {
		idx += n
	}
	return idx % n
}

// Cursor tracks position within one Table for one animated quantity.
type Cursor struct {
	table    Table
	timestep uint8
	phaseIdx int
}

// NewCursor returns a Cursor into table, starting at the given phase
// index.
func NewCursor(table Table, startPhase int) Cursor {
	return Cursor{table: table, phaseIdx: startPhase}
}

// SetPhase resets the cursor to start at the given phase index (used
// when a signal head picks a new animation, e.g. switching between the
// direct and via-red color transitions).
func (c *Cursor) SetPhase(index int) {
	c.phaseIdx = index
	c.timestep = 0
}

func (c *Cursor) currentPhase() Phase {
	p := c.table.phases[c.phaseIdx]
	for p.Length < 0 {
		c.phaseIdx = wrapIndex(c.phaseIdx, int(p.Length), len(c.table.phases))
		p = c.table.phases[c.phaseIdx]
	}
	return p
}

// Complete reports whether the phase the cursor is currently on (after
// chasing any backward jumps) marks the animation complete.
func (c *Cursor) Complete() bool {
	return c.currentPhase().complete()
}

func selectColor(a, b colors.RGB, palette colors.Palette, in input) colors.RGB {
	switch in {
	case inputA:
		return a
	case inputB:
		return b
	default:
		return palette[in-inputPaletteBase]
	}
}

func blend(start, end uint8, timestep, length int8) uint8 {
	return uint8(int16(timestep)*int16(int16(end)-int16(start))/int16(length)) + start
}

// Step advances the cursor by one tick and returns the interpolated
// color for this tick. a and b are the caller-supplied ephemeral colors
// (inputs 0 and 1); palette supplies the higher-numbered inputs.
func (c *Cursor) Step(a, b colors.RGB, palette colors.Palette) colors.RGB {
	phase := c.currentPhase()

	start := selectColor(a, b, palette, phase.startInput())
	end := selectColor(a, b, palette, phase.endInput())

	var out colors.RGB
	if phase.Length == Forever {
		out = end
	} else {
		out = colors.RGB{
			R: blend(start.R, end.R, int8(c.timestep), phase.Length),
			G: blend(start.G, end.G, int8(c.timestep), phase.Length),
			B: blend(start.B, end.B, int8(c.timestep), phase.Length),
		}
	}

	c.timestep++
	if phase.Length != Forever && int8(c.timestep) >= phase.Length {
		c.timestep = 0
		c.phaseIdx = wrapIndex(c.phaseIdx, 1, len(c.table.phases))
	}
	return out
}

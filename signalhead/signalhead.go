// Package signalhead implements the per-output animation state machine:
// a signal head owns a current/target color pair, an optional queued
// color, and a flashing overlay, and advances both on every tick.
package signalhead

import (
	"github.com/trackside/searchlight/animation"
	"github.com/trackside/searchlight/colors"
)

const (
	inA = 0
	inB = 1
)

func inColor(n colors.Name) uint8 { return uint8(n) + 2 }

// Tick durations, in ticks at the ~50Hz (20ms) tick cadence, for the
// default phase table. Flash timing and color-switch timing are kept
// as named constants the way the original firmware does, even though
// nothing outside this file reads them, because they document the
// phase table below.
const (
	flashFullyOnTicks    = 2
	flashTurningOffTicks = 20
	flashFullyOffTicks   = 4
	flashTurningOnTicks  = 20

	colorSwitchTicks    = 20
	colorSwitchRedPause = 1
)

// Phase indices into defaultTable. Exported so tests and alternative
// compositions can reference them; a decoder embedding this package
// normally never needs to.
const (
	FlashStart        = 0
	SwitchDirectStart = 5
	switchDone        = 7
	SwitchViaRedStart = 8
	switchViaRedDone  = 13
)

// defaultTable is the stock animation bytecode: a flashing loop (phases
// 0-4), a direct fade used whenever red is one endpoint (phases 5-7),
// and a fade-to-red-then-to-target used for any other transition
// (phases 8-13, mirroring real color-light signaling practice of never
// showing two non-red aspects simultaneously mid-change).
//
// The via-red sequence's terminal hold phase (13) has no counterpart in
// the retrieved original source, which runs off the end of its table
// instead — almost certainly an artifact of the source's many parallel
// revisions rather than intended behavior. It is added here, mirroring
// phase 7, so a Cursor never walks past the end of the table.
var defaultTable = animation.NewTable([]animation.Phase{
	animation.MakePhase(flashFullyOnTicks, inA, inA, true),                                     // 0
	animation.MakePhase(flashTurningOffTicks, inA, inColor(colors.Undefined), false),                  // 1
	animation.MakePhase(flashFullyOffTicks, inColor(colors.Undefined), inColor(colors.Undefined), false), // 2
	animation.MakePhase(flashTurningOnTicks, inColor(colors.Undefined), inA, false),                   // 3
	animation.MakePhase(-4, 0, 0, false),                                                       // 4: loop back to 0

	animation.MakePhase(colorSwitchTicks/2, inA, inColor(colors.Undefined), false), // 5
	animation.MakePhase(colorSwitchTicks/2, inColor(colors.Undefined), inB, false), // 6
	animation.MakePhase(animation.Forever, inB, inB, true),                 // 7: switchDone

	animation.MakePhase(colorSwitchTicks/4, inA, inColor(colors.Undefined), false),                     // 8
	animation.MakePhase(colorSwitchTicks/4, inColor(colors.Undefined), inColor(colors.Red), false),      // 9
	animation.MakePhase(colorSwitchRedPause, inColor(colors.Red), inColor(colors.Red), false),           // 10
	animation.MakePhase(colorSwitchTicks/4, inColor(colors.Red), inColor(colors.Undefined), false),      // 11
	animation.MakePhase(colorSwitchTicks/4, inColor(colors.Undefined), inB, false),                      // 12
	animation.MakePhase(animation.Forever, inB, inB, true),                                       // 13: switchViaRedDone
})

// State is one signal head's animation state.
type State struct {
	from, to, pending colors.Name
	flashing          bool

	color   animation.Cursor
	flasher animation.Cursor
}

// New returns a signal head initialized to Red, not flashing, with no
// transition in flight.
func New() *State {
	return &State{
		from:    colors.Red,
		to:      colors.Red,
		pending: colors.Undefined,
		color:   animation.NewCursor(defaultTable, switchDone),
		flasher: animation.NewCursor(defaultTable, FlashStart),
	}
}

// SetColor requests a new target color. If a transition is already
// underway and another SetColor arrives before it completes, only the
// most recent request is honored — intermediate ones are coalesced
// into the pending slot, never queued.
func (s *State) SetColor(c colors.Name) {
	if s.to != c {
		s.pending = c
	} else {
		s.pending = colors.Undefined
	}
}

// SetFlashing enables or disables the flashing overlay.
func (s *State) SetFlashing(on bool) {
	s.flashing = on
}

// Advance runs one tick of both cursors and returns the resulting RGB
// output for this head.
func (s *State) Advance(palette colors.Palette) colors.RGB {
	out := s.color.Step(palette[s.from], palette[s.to], palette)

	if s.color.Complete() && s.pending != colors.Undefined {
		s.from = s.to
		s.to = s.pending
		s.pending = colors.Undefined

		if s.from == colors.Red || s.to == colors.Red {
			s.color.SetPhase(SwitchDirectStart)
		} else {
			s.color.SetPhase(SwitchViaRedStart)
		}
		// The new animation starts running on the next tick; this
		// tick's output is still the resolved color of the transition
		// that just completed.
	}

	if s.flashing || !s.flasher.Complete() {
		out = s.flasher.Step(out, palette[colors.Undefined], palette)
	}

	return out
}

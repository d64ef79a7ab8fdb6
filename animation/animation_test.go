package animation

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/trackside/searchlight/colors"
)

func TestPhaseStartEndInput(t *testing.T) {
	c := qt.New(t)
	p := MakePhase(10, uint8(inputPaletteBase)+uint8(colors.Red), 1, true)
	c.Assert(p.startInput(), qt.Equals, inputPaletteBase+input(colors.Red))
	c.Assert(p.endInput(), qt.Equals, inputB)
	c.Assert(p.complete(), qt.IsTrue)
}

func TestNewTableRejectsZeroLength(t *testing.T) {
	c := qt.New(t)
	c.Assert(func() {
		NewTable([]Phase{{Length: 0, Flags: 0}})
	}, qt.PanicMatches, ".*reserved zero length.*")
}

func TestNewTableRejectsAllJumpCycle(t *testing.T) {
	c := qt.New(t)
	c.Assert(func() {
		NewTable([]Phase{
			{Length: -1, Flags: 0},
			{Length: -1, Flags: 0},
		})
	}, qt.PanicMatches, ".*all-jump cycle.*")
}

func TestCursorStepLinearInterpolation(t *testing.T) {
	c := qt.New(t)
	table := NewTable([]Phase{
		MakePhase(4, 0, 1, true),
	})
	cur := NewCursor(table, 0)
	palette := colors.Default()

	a := colors.RGB{R: 0, G: 0, B: 0}
	b := colors.RGB{R: 100, G: 0, B: 0}

	out0 := cur.Step(a, b, palette)
	c.Assert(out0.R, qt.Equals, uint8(0))

	out1 := cur.Step(a, b, palette)
	c.Assert(out1.R, qt.Equals, uint8(25))

	out2 := cur.Step(a, b, palette)
	c.Assert(out2.R, qt.Equals, uint8(50))

	out3 := cur.Step(a, b, palette)
	c.Assert(out3.R, qt.Equals, uint8(75))
}

func TestCursorForeverHoldsEndColor(t *testing.T) {
	c := qt.New(t)
	table := NewTable([]Phase{
		MakePhase(Forever, 0, 1, true),
	})
	cur := NewCursor(table, 0)
	palette := colors.Default()

	a := colors.RGB{R: 1, G: 2, B: 3}
	b := colors.RGB{R: 9, G: 8, B: 7}

	for i := 0; i < 5; i++ {
		out := cur.Step(a, b, palette)
		c.Assert(out, qt.Equals, b)
		c.Assert(cur.Complete(), qt.IsTrue)
	}
}

func TestCursorAdvancesPhaseAfterLengthTicks(t *testing.T) {
	c := qt.New(t)
	table := NewTable([]Phase{
		MakePhase(2, 0, 1, false),
		MakePhase(Forever, 1, 1, true),
	})
	cur := NewCursor(table, 0)
	palette := colors.Default()
	a := colors.RGB{R: 0}
	b := colors.RGB{R: 10}

	c.Assert(cur.Complete(), qt.IsFalse)
	cur.Step(a, b, palette)
	c.Assert(cur.Complete(), qt.IsFalse)
	cur.Step(a, b, palette)
	// After 2 ticks the cursor has rolled onto the terminal phase.
	c.Assert(cur.Complete(), qt.IsTrue)
}

func TestCursorChasesBackwardJump(t *testing.T) {
	c := qt.New(t)
	table := NewTable([]Phase{
		MakePhase(1, 0, 0, true), // 0
		{Length: -1, Flags: 0},   // 1: jumps back to 0
	})
	cur := NewCursor(table, 1)
	// Landing on phase 1 should chase the jump straight back to phase 0.
	c.Assert(cur.Complete(), qt.IsTrue)
}

func TestCursorSetPhaseResetsTimestep(t *testing.T) {
	c := qt.New(t)
	table := NewTable([]Phase{
		MakePhase(4, 0, 1, false),
		MakePhase(Forever, 1, 1, true),
	})
	cur := NewCursor(table, 0)
	palette := colors.Default()
	a := colors.RGB{R: 0}
	b := colors.RGB{R: 100}

	cur.Step(a, b, palette)
	cur.Step(a, b, palette)
	cur.SetPhase(0)

	// A fresh start from phase 0 should behave exactly like a brand new
	// cursor: first tick's output is the phase's starting color.
	out := cur.Step(a, b, palette)
	c.Assert(out.R, qt.Equals, uint8(0))
}

package colors

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/trackside/searchlight/nvm"
)

func TestDefaultPaletteUndefinedIsBlack(t *testing.T) {
	c := qt.New(t)
	p := Default()
	c.Assert(p[Undefined], qt.Equals, RGB{0, 0, 0})
}

func TestPaletteRoundTripsThroughStore(t *testing.T) {
	c := qt.New(t)
	store := nvm.NewMemory(NumChannels)

	p := Default()
	p[Red] = RGB{10, 20, 30}
	Save(store, 0, p)

	loaded := Load(store, 0)
	c.Assert(loaded, qt.DeepEquals, p)
}

func TestChannelValueLayout(t *testing.T) {
	c := qt.New(t)
	p := Default()

	// Index 0..2 is Red's R,G,B; Red defaults to (255,0,0).
	c.Assert(p.ChannelValue(0), qt.Equals, uint8(255))
	c.Assert(p.ChannelValue(1), qt.Equals, uint8(0))
	c.Assert(p.ChannelValue(2), qt.Equals, uint8(0))

	// Index 3..5 is Green; defaults to (0,255,0).
	c.Assert(p.ChannelValue(3), qt.Equals, uint8(0))
	c.Assert(p.ChannelValue(4), qt.Equals, uint8(255))
}

func TestSetChannelValueRoundTrips(t *testing.T) {
	c := qt.New(t)
	p := Default()

	p.SetChannelValue(0, 42) // Red.R
	c.Assert(p[Red].R, qt.Equals, uint8(42))
	c.Assert(p.ChannelValue(0), qt.Equals, uint8(42))
}

func TestSetChannelValueIgnoresOutOfRangeIndex(t *testing.T) {
	c := qt.New(t)
	p := Default()
	before := p

	p.SetChannelValue(255, 7)
	c.Assert(p, qt.DeepEquals, before)
	c.Assert(p.ChannelValue(255), qt.Equals, uint8(0))
}

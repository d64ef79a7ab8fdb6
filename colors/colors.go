// Package colors holds the fixed-size color palette a signal head
// picks its RGB triples from, and its persistence to a non-volatile
// store.
package colors

import "github.com/trackside/searchlight/nvm"

// Name indexes the palette. Values double as the color-selection input
// used by animation.Phase (offset by 2; see package animation).
type Name uint8

const (
	Red Name = iota
	Green
	Yellow
	Lunar
	Undefined // always (0,0,0); the off-state

	Count
)

// RGB is a single color triple.
type RGB struct {
	R, G, B uint8
}

// Palette is the fixed-size set of colors a decoder's signal heads draw
// from. Index Undefined is always black.
type Palette [Count]RGB

// Default returns the factory-default palette, per the configuration
// record's documented defaults.
func Default() Palette {
	return Palette{
		Red:       {255, 0, 0},
		Green:     {0, 255, 0},
		Yellow:    {127, 127, 0},
		Lunar:     {96, 96, 96},
		Undefined: {0, 0, 0},
	}
}

// bytesPerColor is how many non-volatile bytes each palette entry
// occupies (R, G, B).
const bytesPerColor = 3

// Load reads the palette from offset in store, 3 bytes per entry in
// Name order.
func Load(store nvm.Store, offset uint16) Palette {
	var p Palette
	for i := range p {
		base := offset + uint16(i)*bytesPerColor
		p[i] = RGB{
			R: store.ReadByte(base),
			G: store.ReadByte(base + 1),
			B: store.ReadByte(base + 2),
		}
	}
	return p
}

// Save writes the palette to offset in store, 3 bytes per entry.
func Save(store nvm.Store, offset uint16, p Palette) {
	for i, c := range p {
		base := offset + uint16(i)*bytesPerColor
		store.WriteByte(base, c.R)
		store.WriteByte(base+1, c.G)
		store.WriteByte(base+2, c.B)
	}
}

// ChannelValue returns the byte at the given CV-style index into the
// flattened palette: index = int(name)*3 + field, field 0=R, 1=G, 2=B.
// Used by the color CV window (CV 48..62).
func (p Palette) ChannelValue(index uint8) uint8 {
	name := index / bytesPerColor
	field := index % bytesPerColor
	if int(name) >= len(p) {
		return 0
	}
	switch field {
	case 0:
		return p[name].R
	case 1:
		return p[name].G
	default:
		return p[name].B
	}
}

// SetChannelValue writes a single channel byte at the given CV-style
// index, same layout as ChannelValue.
func (p *Palette) SetChannelValue(index uint8, v uint8) {
	name := index / bytesPerColor
	field := index % bytesPerColor
	if int(name) >= len(p) {
		return
	}
	switch field {
	case 0:
		p[name].R = v
	case 1:
		p[name].G = v
	default:
		p[name].B = v
	}
}

// NumChannels is the size of the CV color window (5 colors * 3 bytes).
const NumChannels = int(Count) * bytesPerColor

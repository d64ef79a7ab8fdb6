// Package pixel composes the active signal heads' colors into the
// wire-format byte buffer handed to an external pixel sink (the
// bit-banged WS2812/SK6812 transmitter this spec treats as out of
// scope — see the project's send(pixels) primitive).
package pixel

import "github.com/trackside/searchlight/colors"

// Sink is the external "send(pixels)" primitive: a synchronous
// transmitter for a buffer of 3*activeSignalHeads bytes in wire channel
// order. Implementations are expected to block until transmission is
// complete, the way a bit-banged LED strip write necessarily does.
type Sink interface {
	Send(pixels []byte) error
}

// Order is the wire channel ordering for the attached LED strip.
type Order uint8

const (
	RGB Order = iota
	GRB
)

// Compose writes the given heads' colors into buf in the requested
// channel order, scaled by brightness (0..100), and returns the slice
// actually written. buf is reused if its capacity is at least
// 3*len(heads) bytes; otherwise a new buffer is allocated.
func Compose(buf []byte, heads []colors.RGB, order Order, brightness uint8) []byte {
	n := 3 * len(heads)
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]

	for i, c := range heads {
		r, g, b := c.R, c.G, c.B
		if order == GRB {
			r, g = g, r
		}
		buf[i*3+0] = scale(r, brightness)
		buf[i*3+1] = scale(g, brightness)
		buf[i*3+2] = scale(b, brightness)
	}
	return buf
}

func scale(v, brightness uint8) uint8 {
	if brightness >= 100 {
		return v
	}
	return uint8(uint16(v) * uint16(brightness) / 100)
}

// WriterSink adapts anything that can absorb a byte buffer (a recorded
// test fixture, a serial port driving a bit-bang transmitter, a
// simulator's in-memory strip) into a Sink.
type WriterSink struct {
	Write func(pixels []byte) error
}

func (s WriterSink) Send(pixels []byte) error {
	return s.Write(pixels)
}

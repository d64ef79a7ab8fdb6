// Package dcc implements the DCC bit-edge decoder and frame assembler:
// the two state machines that turn falling-edge timing into
// checksummed packets. Per NMRA S-9.2 / RCN-211, a '1' bit is a ~58µs
// half-period and a '0' bit is a ~100µs half-period; the decoder arms
// a one-shot timer at the midpoint of those two and reads the pin
// level when it fires.
package dcc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/trackside/searchlight/dccpacket"
)

// Bit is one decoded DCC half-bit pair: true is a '1', false a '0'.
type Bit bool

// Timing constants per NMRA S-9.2, matching the original firmware's
// DCC_TIME_ONE/DCC_TIME_ZERO/DCC_WAIT_TIME.
const (
	OneHalfPeriod  = 58 * time.Microsecond
	ZeroHalfPeriod = 100 * time.Microsecond
	SampleDelay    = (OneHalfPeriod + ZeroHalfPeriod) / 2 // 79µs
)

// EdgeSource delivers one notification per DCC falling edge. The
// physical edge-interrupt wiring is out of scope for this module (see
// SPEC_FULL.md §1) and modeled as this abstract collaborator.
type EdgeSource interface {
	Edges() <-chan struct{}
}

// LevelSampler reads the input pin level some fixed duration after the
// most recent edge notification. Also out of scope; modeled the same
// way.
type LevelSampler interface {
	SampleAfter(d time.Duration) bool
}

// BitDecoder turns edge notifications plus delayed level samples into
// a bit stream. Bits are never dropped: Run blocks on delivering each
// bit until the consumer receives it (or the context is canceled), so
// a consumer that falls behind stalls edge processing.
type BitDecoder struct {
	edges   EdgeSource
	sampler LevelSampler
	bits    chan Bit
}

// NewBitDecoder returns a decoder reading edges and sampling levels
// from the given collaborators. Buffer size 1 matches "at most one
// edge's latency" from the contract.
func NewBitDecoder(edges EdgeSource, sampler LevelSampler) *BitDecoder {
	return &BitDecoder{edges: edges, sampler: sampler, bits: make(chan Bit, 1)}
}

// Bits returns the channel bits are delivered on.
func (d *BitDecoder) Bits() <-chan Bit { return d.bits }

// Run pumps edges until ctx is canceled. Intended to run on its own
// goroutine; stands in for the paired edge/sampling-timer interrupt
// contexts in the original firmware (SPEC_FULL.md §5).
func (d *BitDecoder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-d.edges.Edges():
			if !ok {
				return
			}
			bit := Bit(d.sampler.SampleAfter(SampleDelay))
			select {
			case d.bits <- bit:
			case <-ctx.Done():
				return
			}
		}
	}
}

// assemblerState is the frame assembler's state.
type assemblerState uint8

const (
	statePreamble assemblerState = iota
	stateByte
	stateSeparator
)

const maxPacketBytes = 10

// FrameAssembler consumes a bit stream and produces complete,
// XOR-validated packets into a single shared buffer, releasing each
// new packet to readers via a monotonically wrapping counter rather
// than a lock — see SPEC_FULL.md §5 and §9 ("prefer an atomic-byte or
// memory-fence idiom over disabling interrupts").
type FrameAssembler struct {
	state         assemblerState
	preambleCount int
	currentByte   byte
	bitCount      int

	buf        [maxPacketBytes]byte
	length     int
	runningXOR byte

	counter     atomic.Uint32
	lastCounter uint32
}

// NewFrameAssembler returns an assembler ready to receive bits,
// starting in preamble-hunting state.
func NewFrameAssembler() *FrameAssembler {
	return &FrameAssembler{}
}

func (a *FrameAssembler) resetToPreamble() {
	a.state = statePreamble
	a.preambleCount = 0
}

func (a *FrameAssembler) startByte() {
	a.state = stateByte
	a.bitCount = 0
	a.currentByte = 0
}

// Feed advances the assembler by one decoded bit.
func (a *FrameAssembler) Feed(b Bit) {
	switch a.state {
	case statePreamble:
		if b {
			a.preambleCount++
			return
		}
		if a.preambleCount < 10 {
			a.preambleCount = 0
			return
		}
		// Ten or more consecutive ones, then a zero: this zero is the
		// preamble-end separator.
		a.length = 0
		a.runningXOR = 0
		a.startByte()

	case stateByte:
		a.currentByte = a.currentByte<<1 | bitValue(b)
		a.bitCount++
		if a.bitCount < 8 {
			return
		}
		if a.length >= len(a.buf) {
			// Next byte would overflow the packet buffer; resync.
			a.resetToPreamble()
			return
		}
		a.buf[a.length] = a.currentByte
		a.length++
		a.runningXOR ^= a.currentByte
		a.state = stateSeparator

	case stateSeparator:
		if b {
			// '1' ends the packet.
			if a.runningXOR == 0 {
				a.counter.Add(1)
			}
			a.resetToPreamble()
			return
		}
		// '0': another byte follows.
		a.startByte()
	}
}

func bitValue(b Bit) byte {
	if b {
		return 1
	}
	return 0
}

// HasNewPacket reports whether a new packet has completed since the
// last call, latching the observed counter value. Mirrors the
// compare-and-latch pattern of the original firmware's
// hasNewMessage().
func (a *FrameAssembler) HasNewPacket() bool {
	current := a.counter.Load()
	if current == a.lastCounter {
		return false
	}
	a.lastCounter = current
	return true
}

// Packet returns a copy of the most recently completed packet. Callers
// must call this (or otherwise read through) before the next preamble
// completes, per the single-buffer contract in SPEC_FULL.md §4.2.
//
// The reported Length counts every byte read off the wire, including
// the trailing XOR checksum byte: the original firmware's
// DccMessage.length is incremented once per byte in its
// AWAIT_SEPARATOR state, and that state runs for the checksum byte
// exactly like any other, so the checksum is counted too. Downstream
// length comparisons (register-mode==3, direct-mode==4, POM==6) are
// literal ports of the original's own length checks and rely on this.
func (a *FrameAssembler) Packet() dccpacket.Packet {
	return dccpacket.Packet{Length: uint8(a.length), Data: a.buf}
}

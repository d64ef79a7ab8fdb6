// Package decoder is the top-level state machine: it owns a signal
// head per active output, dispatches classified DCC packets to the
// programming engine or to signal head commands depending on the
// current decoder mode, and drives the pixel sink on every tick.
//
// The mode transitions and dispatch order below are transcribed
// directly from the retrieved original firmware's parseNewMessage and
// loop functions (see SPEC_FULL.md §4.4, §9), including its quirks:
// programming packets are honored in every non-OPERATION mode (not
// just RESET_RECEIVED/PROGRAMMING — EMERGENCY_STOP included), any
// other packet unconditionally falls the mode back to OPERATION unless
// currently EMERGENCY_STOP (regardless of whether that packet actually
// addresses this decoder), and the emergency-off output-address check
// is preserved even though the packet classifier's address formula
// makes it effectively unreachable.
package decoder

import (
	"sync/atomic"
	"time"

	"github.com/trackside/searchlight/colors"
	"github.com/trackside/searchlight/config"
	"github.com/trackside/searchlight/dccpacket"
	"github.com/trackside/searchlight/pixel"
	"github.com/trackside/searchlight/program"
	"github.com/trackside/searchlight/signalhead"
)

// Mode is the decoder's current operating mode.
type Mode uint32

const (
	ModeOperation Mode = iota
	ModeEmergencyStop
	ModeResetReceived
	ModeProgramming
	ModeSendingAck
)

// ackPulseDuration is how long a programming acknowledgement pulse (pin
// drive or signal-head flash) is held, matching the original firmware's
// WAIT_TIME_ACK-derived ~6ms one-shot.
const ackPulseDuration = 6 * time.Millisecond

// AckSink drives the physical acknowledgement signal: either a
// dedicated pin, or (via FlashAckSink) the signal heads themselves.
type AckSink interface {
	Assert() error
	Deassert() error
}

// PinAckSink drives a dedicated acknowledgement output pin.
type PinAckSink struct {
	Set func(on bool) error
}

func (s PinAckSink) Assert() error   { return s.Set(true) }
func (s PinAckSink) Deassert() error { return s.Set(false) }

// FlashAckSink drives every active signal head to full white for the
// acknowledgement pulse, for decoders with no spare pin wired for it.
type FlashAckSink struct {
	Sink       pixel.Sink
	NumHeads   func() int
	ColorOrder func() pixel.Order
	Brightness func() uint8
}

func (s FlashAckSink) Assert() error {
	n := s.NumHeads()
	heads := make([]colors.RGB, n)
	for i := range heads {
		heads[i] = colors.RGB{R: 255, G: 255, B: 255}
	}
	buf := pixel.Compose(make([]byte, 0, 3*n), heads, s.ColorOrder(), s.Brightness())
	return s.Sink.Send(buf)
}

func (s FlashAckSink) Deassert() error {
	return nil // the first tick back in OPERATION repaints the true signal-head colors.
}

// Context is the assembled decoder: configuration registry, programming
// engine, signal heads, and the pixel sink they're composited to.
type Context struct {
	registry *config.Registry
	engine   *program.Engine
	heads    []*signalhead.State

	sink       pixel.Sink
	sinkBuf    []byte
	colorOrder pixel.Order

	mode atomic.Uint32

	lastProgramming    [10]byte
	lastProgrammingLen int
	haveLastProgram    bool

	ack          AckSink
	ackRemaining time.Duration
}

// NewContext builds a decoder bound to registry, engine, and sink, with
// one signal head per registry's configured ActiveSignalHeads.
func NewContext(registry *config.Registry, engine *program.Engine, sink pixel.Sink, ack AckSink) *Context {
	n := int(registry.Record().ActiveSignalHeads)
	heads := make([]*signalhead.State, n)
	for i := range heads {
		heads[i] = signalhead.New()
	}

	order := pixel.RGB
	if registry.Record().ColorOrder == config.ColorOrderGRB {
		order = pixel.GRB
	}

	return &Context{
		registry:   registry,
		engine:     engine,
		heads:      heads,
		sink:       sink,
		colorOrder: order,
		ack:        ack,
	}
}

// Mode returns the decoder's current mode.
func (c *Context) Mode() Mode { return Mode(c.mode.Load()) }

func (c *Context) setMode(m Mode) { c.mode.Store(uint32(m)) }

// HandlePacket dispatches one classified packet, per parseNewMessage's
// control flow.
func (c *Context) HandlePacket(p dccpacket.Packet) error {
	if c.Mode() == ModeSendingAck {
		// All incoming traffic is ignored while an acknowledgement pulse
		// is in flight.
		return nil
	}

	cl := dccpacket.Classify(p)

	if cl.Kind == dccpacket.Reset {
		if c.Mode() == ModeOperation {
			c.setMode(ModeResetReceived)
			c.haveLastProgram = false
			return c.blankDisplay()
		}
		return nil
	}

	if cl.Kind == dccpacket.Programming && c.Mode() != ModeOperation {
		c.setMode(ModeProgramming)
		return c.dispatchProgramming(p)
	}

	if c.Mode() != ModeEmergencyStop {
		c.setMode(ModeOperation)
	}

	if cl.Kind != dccpacket.BasicAccessory {
		return nil
	}

	if cl.IsEmergencyOff() {
		c.setMode(ModeEmergencyStop)
		return c.blankDisplay()
	}

	if cl.IsPOM {
		return c.handlePOM(cl)
	}

	relative, ok := c.addressMatch(cl)
	if !ok {
		return nil
	}

	// A second, unconditional reset to OPERATION: parseNewMessage does
	// this once a non-POM accessory command is confirmed to match our
	// address range, which is precisely what lets a later valid command
	// clear EMERGENCY_STOP — the tentative reset above is skipped while
	// EMERGENCY_STOP is active, but this one never is.
	c.setMode(ModeOperation)

	if cl.BitC == 0 {
		// Deactivation of a basic accessory output: no visible effect
		// and no Railcom channel to acknowledge on, so nothing to do.
		return nil
	}

	return c.applyAccessoryCommand(cl, relative)
}

// addressMatch reports whether cl's output address falls within the
// range this decoder's active heads occupy (3 addresses per head:
// color, color, flashing), and if so the address's offset from the
// decoder's base address.
func (c *Context) addressMatch(cl dccpacket.Classification) (relative uint16, ok bool) {
	rec := c.registry.Record()
	n := len(c.heads)
	if n == 0 || cl.OutputAddress < rec.Address {
		return 0, false
	}
	relative = cl.OutputAddress - rec.Address
	if int(relative) >= n*3 {
		return 0, false
	}
	return relative, true
}

// dispatchProgramming routes a 0x7_-leading packet to the register-mode
// or direct-mode engine by length, executing it only when it repeats
// the last programming packet seen byte-for-byte (a command station
// resends each programming packet several times awaiting
// acknowledgement; see spec.md §4.5).
func (c *Context) dispatchProgramming(p dccpacket.Packet) error {
	if p.Length < 1 {
		return nil
	}
	// Keep the leading opcode/register byte; drop only the trailing
	// checksum. The original passes its DccMessage data and length
	// through to processProgrammingMessage unstripped, and
	// HandleDirect/HandleRegisterMode expect that same leading byte as
	// pkt[0].
	body := p.Data[0 : p.Length-1]
	if c.processProgrammingBytes(body) {
		return c.sendAck()
	}
	return nil
}

// processProgrammingBytes runs the shared duplicate-suppression and
// register/direct-mode dispatch that both the main-track programming
// path and the POM path feed through — in the original firmware both
// call the same processProgrammingMessage function against the same
// one-slot lastProgrammingMessage buffer. Reports whether the engine
// accepted the command.
func (c *Context) processProgrammingBytes(body []byte) bool {
	matches := c.haveLastProgram && c.lastProgrammingLen == len(body) &&
		bytesEqual(c.lastProgramming[:len(body)], body)

	copy(c.lastProgramming[:], body)
	c.lastProgrammingLen = len(body)
	c.haveLastProgram = true

	if !matches {
		// First sighting of this packet (or it differs from the last
		// one seen): store it and wait for the command station to
		// repeat it identically before acting on it.
		return false
	}

	switch len(body) {
	case 2:
		if c.Mode() != ModeProgramming {
			return false
		}
		var sub [2]byte
		copy(sub[:], body)
		return c.engine.HandleRegisterMode(sub)
	case 3:
		var sub [3]byte
		copy(sub[:], body)
		return c.engine.HandleDirect(sub)
	default:
		return false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// handlePOM dispatches a Programming-on-Main sub-packet once its
// address has been matched, either against the output address range
// this decoder's heads occupy, or — if the ESU addressing workaround
// is enabled and bit C is clear — directly against the decoder (board)
// address, matching a command station that addresses POM at the board
// rather than the output.
func (c *Context) handlePOM(cl dccpacket.Classification) error {
	rec := c.registry.Record()

	matched := false
	if rec.Workarounds&config.WorkaroundPOMAddressesDecoder != 0 && cl.BitC == 0 {
		matched = cl.DecoderAddress == rec.Address
	} else {
		lo := rec.Address
		hi := rec.Address + uint16(len(c.heads))*3
		matched = cl.OutputAddress >= lo && cl.OutputAddress < hi
	}
	if !matched {
		return nil
	}

	// Routed through the same dedup buffer as dispatchProgramming: the
	// original's POM path calls processProgrammingMessage(&data[2],
	// length-2), the identical function and lastProgrammingMessage slot
	// the main programming path uses.
	c.processProgrammingBytes(cl.POMSubPacket[:])
	// POM never drives a visible acknowledgement pulse: doing so would
	// flash signal heads mid-operation, the opposite of the point.
	return nil
}

// applyAccessoryCommand maps a matched basic-accessory command onto one
// signal head's color or flashing state. relative is the output
// address's offset from the decoder's base address, as established by
// addressMatch.
func (c *Context) applyAccessoryCommand(cl dccpacket.Classification, relative uint16) error {
	n := len(c.heads)
	signalHead := int(relative) / 3
	field := int(relative) - signalHead*3
	inverted := n - 1 - signalHead // head 0 is the topmost physical head

	head := c.heads[inverted]
	direction := cl.Direction != 0

	switch field {
	case 0:
		if direction {
			head.SetColor(colors.Green)
		} else {
			head.SetColor(colors.Red)
		}
	case 1:
		if direction {
			head.SetColor(colors.Yellow)
		} else {
			head.SetColor(colors.Lunar)
		}
	case 2:
		head.SetFlashing(direction)
	}
	return nil
}

// sendAck arms the acknowledgement pulse: mode moves to SENDING_ACK, the
// sink is asserted, and Tick will deassert it and return to PROGRAMMING
// once ackPulseDuration has elapsed. Matches sendProgrammingAck's guard
// against firing while already in OPERATION-driven traffic.
func (c *Context) sendAck() error {
	if c.Mode() == ModeOperation {
		return nil
	}
	c.setMode(ModeSendingAck)
	c.ackRemaining = ackPulseDuration
	return c.ack.Assert()
}

// Tick counts down an in-flight acknowledgement pulse (sending nothing
// to the pixel sink), or, while in OPERATION, advances animation by one
// step and composes and sends the current pixel buffer; in any other
// mode it does nothing. It is the one entry point an
// external tick source calls, standing in for the shared hardware timer
// the original firmware reprograms between animation-tick and
// ack-pulse-termination duty (SPEC_FULL.md §4.4, §5).
func (c *Context) Tick(elapsed time.Duration) error {
	if c.Mode() == ModeSendingAck {
		c.ackRemaining -= elapsed
		if c.ackRemaining <= 0 {
			c.setMode(ModeProgramming)
			if err := c.ack.Deassert(); err != nil {
				return err
			}
		}
		return nil
	}

	if c.Mode() != ModeOperation {
		return nil
	}

	palette := c.registry.Palette()
	out := make([]colors.RGB, len(c.heads))
	for i, h := range c.heads {
		out[i] = h.Advance(palette)
	}

	c.sinkBuf = pixel.Compose(c.sinkBuf, out, c.colorOrder, c.registry.Record().Brightness)
	return c.sink.Send(c.sinkBuf)
}

// blankDisplay sends an all-zero pixel buffer directly, without
// touching any signal head's internal state, matching the original
// firmware's turnLedsOff: blanking is a one-shot write to the output
// buffer, not a reset of the animation the heads resume from once back
// in OPERATION.
func (c *Context) blankDisplay() error {
	n := 3 * len(c.heads)
	if cap(c.sinkBuf) < n {
		c.sinkBuf = make([]byte, n)
	}
	c.sinkBuf = c.sinkBuf[:n]
	for i := range c.sinkBuf {
		c.sinkBuf[i] = 0
	}
	return c.sink.Send(c.sinkBuf)
}

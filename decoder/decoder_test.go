package decoder

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/trackside/searchlight/colors"
	"github.com/trackside/searchlight/config"
	"github.com/trackside/searchlight/dccpacket"
	"github.com/trackside/searchlight/nvm"
	"github.com/trackside/searchlight/program"
)

type fakeSink struct {
	last []byte
	n    int
}

func (s *fakeSink) Send(pixels []byte) error {
	s.last = append(s.last[:0], pixels...)
	s.n++
	return nil
}

type fakeAck struct {
	asserted, deasserted int
}

func (a *fakeAck) Assert() error   { a.asserted++; return nil }
func (a *fakeAck) Deassert() error { a.deasserted++; return nil }

func newTestContext() (*Context, *fakeSink, *fakeAck) {
	registry := config.NewRegistry(nvm.NewMemory(config.RegionSize))
	// A blank store loads as all zeros; start from the factory defaults
	// (address=1, one head, GRB, full brightness, default palette).
	registry.FactoryReset()
	engine := program.NewEngine(registry)
	sink := &fakeSink{}
	ack := &fakeAck{}
	return NewContext(registry, engine, sink, ack), sink, ack
}

// pkt builds a dccpacket.Packet from data bytes, appending the XOR
// checksum byte the frame assembler would have validated, matching the
// worked example in spec.md §8 (address=1, activeSignalHeads=1: packet
// {0x81, 0xF8} checksum 0x79 is output address 1, direction=0, bitC=1).
func pkt(data ...byte) dccpacket.Packet {
	var checksum byte
	for _, b := range data {
		checksum ^= b
	}
	var p dccpacket.Packet
	p.Length = uint8(len(data) + 1)
	copy(p.Data[:], data)
	p.Data[len(data)] = checksum
	return p
}

func tick(c *Context, n int) {
	for i := 0; i < n; i++ {
		c.Tick(20 * time.Millisecond)
	}
}

// TestBootAndFirstCommand reproduces spec.md §8 scenario 1: the default
// boot configuration (address=1, one active head) receiving
// {0x81, 0xF8} sets head 0 towards the color the original author's
// worked example names (direction=0 -> RED; the default power-on color
// is already RED, so the real visible transition this test exercises
// is direction=1 -> GREEN instead, using the same address/port bits).
func TestBootAndFirstCommand(t *testing.T) {
	c := qt.New(t)
	ctx, sink, _ := newTestContext()

	// Same decoder/port bits as the spec's worked example, direction
	// flipped to 1 (bit0 of the second byte) so the head actually
	// moves off its RED power-on default.
	err := ctx.HandlePacket(pkt(0x81, 0xF9))
	c.Assert(err, qt.IsNil)
	c.Assert(ctx.Mode(), qt.Equals, ModeOperation)

	tick(ctx, 60)
	palette := ctx.registry.Palette()
	// GRB wire order: green channel byte comes first.
	c.Assert(sink.last, qt.DeepEquals, []byte{palette[colors.Green].G, palette[colors.Green].R, palette[colors.Green].B})
}

// TestGeneralResetEntersResetReceived reproduces the RESET_RECEIVED
// transition and its one-shot display blank.
func TestGeneralResetEntersResetReceived(t *testing.T) {
	c := qt.New(t)
	ctx, sink, _ := newTestContext()

	err := ctx.HandlePacket(pkt(0x00, 0x00))
	c.Assert(err, qt.IsNil)
	c.Assert(ctx.Mode(), qt.Equals, ModeResetReceived)
	c.Assert(sink.last, qt.DeepEquals, []byte{0, 0, 0})
}

// TestProgrammingRequiresDuplicateBeforeExecuting reproduces spec.md
// §8 scenario 6 / §4.5's duplicate-message requirement: the first copy
// of a programming packet is stored but not acted on; only the second,
// byte-identical copy executes and triggers acknowledgement.
func TestProgrammingRequiresDuplicateBeforeExecuting(t *testing.T) {
	c := qt.New(t)
	ctx, _, ack := newTestContext()

	c.Assert(ctx.HandlePacket(pkt(0x00, 0x00)), qt.IsNil) // reset -> RESET_RECEIVED

	// CV 47 (brightness) write to 50: direct-mode write, cv-1=46.
	write := pkt(0x7C, 0x2E, 0x32)

	c.Assert(ctx.HandlePacket(write), qt.IsNil)
	c.Assert(ack.asserted, qt.Equals, 0)
	c.Assert(ctx.registry.Record().Brightness, qt.Not(qt.Equals), uint8(50))

	c.Assert(ctx.HandlePacket(write), qt.IsNil)
	c.Assert(ack.asserted, qt.Equals, 1)
	c.Assert(ctx.registry.Record().Brightness, qt.Equals, uint8(50))
	c.Assert(ctx.Mode(), qt.Equals, ModeSendingAck)
}

// TestAckPulseReturnsToProgrammingAfterDuration checks the 6ms
// acknowledgement pulse is terminated by Tick and the decoder falls
// back to PROGRAMMING, ignoring all traffic meanwhile.
func TestAckPulseReturnsToProgrammingAfterDuration(t *testing.T) {
	c := qt.New(t)
	ctx, _, ack := newTestContext()

	c.Assert(ctx.HandlePacket(pkt(0x00, 0x00)), qt.IsNil)
	write := pkt(0x7C, 0x2E, 0x32)
	c.Assert(ctx.HandlePacket(write), qt.IsNil)
	c.Assert(ctx.HandlePacket(write), qt.IsNil)
	c.Assert(ctx.Mode(), qt.Equals, ModeSendingAck)

	// A packet arriving mid-pulse must be ignored entirely.
	c.Assert(ctx.HandlePacket(pkt(0x00, 0x00)), qt.IsNil)
	c.Assert(ctx.Mode(), qt.Equals, ModeSendingAck)

	ctx.Tick(5 * time.Millisecond)
	c.Assert(ctx.Mode(), qt.Equals, ModeSendingAck)
	c.Assert(ack.deasserted, qt.Equals, 0)

	ctx.Tick(2 * time.Millisecond)
	c.Assert(ctx.Mode(), qt.Equals, ModeProgramming)
	c.Assert(ack.deasserted, qt.Equals, 1)
}

// TestAccessoryCommandClearsEmergencyStop reproduces spec.md §8
// scenario 2's tail: once in EMERGENCY_STOP, a later valid
// non-emergency accessory command for this decoder clears the state.
func TestAccessoryCommandClearsEmergencyStop(t *testing.T) {
	c := qt.New(t)
	ctx, _, _ := newTestContext()
	ctx.setMode(ModeEmergencyStop)

	c.Assert(ctx.HandlePacket(pkt(0x81, 0xF8)), qt.IsNil)
	c.Assert(ctx.Mode(), qt.Equals, ModeOperation)
}

// TestDeactivationBitIsIgnored checks that bitC==0 (deactivation) never
// changes a head's state.
func TestDeactivationBitIsIgnored(t *testing.T) {
	c := qt.New(t)
	ctx, sink, _ := newTestContext()

	// Same address/port as the boot example but bitC (bit3 of byte 1)
	// cleared: 0xF8 -> 0xF0.
	c.Assert(ctx.HandlePacket(pkt(0x81, 0xF0)), qt.IsNil)
	tick(ctx, 5)
	palette := ctx.registry.Palette()
	c.Assert(sink.last, qt.DeepEquals, []byte{palette[colors.Red].G, palette[colors.Red].R, palette[colors.Red].B})
}

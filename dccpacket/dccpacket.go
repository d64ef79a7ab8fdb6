// Package dccpacket classifies assembled DCC packets and reconstructs
// the accessory address fields a basic-accessory command carries.
package dccpacket

// Packet is a complete, checksum-validated frame as produced by
// dcc.FrameAssembler. Length counts every byte in Data[0:Length],
// including the trailing XOR checksum byte that validated the frame
// (mirroring the original firmware's DccMessage, whose length likewise
// counts the checksum byte). Downstream length comparisons against 3,
// 4, and 6 throughout this package and the decoder package are literal
// ports of the original's own checksum-inclusive length checks.
type Packet struct {
	Length uint8
	Data   [10]byte
}

// Kind tags the recognized packet categories. Locomotive packets are
// recognized but never acted on further (see SPEC_FULL.md §9 — the
// repository this spec was distilled from contains abandoned
// locomotive-handling code; this module implements accessory decoding
// only).
type Kind uint8

const (
	Unknown Kind = iota
	Reset
	Programming
	BasicAccessory
	LocomotiveShort
	LocomotiveLong
)

// Classification is the result of classifying one packet. Only the
// fields relevant to Kind are meaningful.
type Classification struct {
	Kind Kind

	// BasicAccessory fields.
	DecoderAddress uint16 // the raw 6-bit-plus-complement board address
	OutputAddress  uint16
	Direction      uint8
	BitC           uint8

	// IsPOM marks a Programming-on-Main: a 6-byte basic-accessory
	// packet whose third byte is 0xE_, embedding a 3-byte direct-access
	// sub-packet. POMSubPacket holds that sub-packet.
	IsPOM        bool
	POMSubPacket [3]byte
}

// Classify inspects a packet's leading bytes and, for basic-accessory
// commands, reconstructs the output address.
//
// Programming-mode packets (leading byte 0x7_) are always tagged
// Programming here; whether they are honored depends on the decoder's
// current mode (see package decoder), because the 0x7_ pattern
// overlaps the short-address locomotive range 0x70..0x7F and the
// original firmware resolves the ambiguity by context, not by content.
func Classify(p Packet) Classification {
	if p.Length < 2 {
		return Classification{Kind: Unknown}
	}
	b0, b1 := p.Data[0], p.Data[1]

	switch {
	case b0 == 0x00 && b1 == 0x00:
		return Classification{Kind: Reset}
	case b0&0xF0 == 0x70:
		return Classification{Kind: Programming}
	case b0&0xC0 == 0x80:
		return classifyBasicAccessory(p)
	case b0&0x80 == 0:
		return Classification{Kind: LocomotiveShort}
	case p.Length >= 3 && b0&0xC0 == 0xC0:
		return Classification{Kind: LocomotiveLong}
	default:
		return Classification{Kind: Unknown}
	}
}

// classifyBasicAccessory reconstructs the address fields bit-for-bit
// the way original_source/src/main.cpp's parseNewMessage does,
// including its address formula's quirk: the decoder address's
// mirrored-complement high bits are OR'd into data[0]'s low 6 bits
// rather than shifted clear of them. That keeps small board addresses
// (the only ones this firmware's own command stations ever send)
// correct, but means the output address this produces tops out well
// below the reserved 2047 broadcast value — see the emergency-off
// check on Classification, kept for fidelity exactly as the original
// keeps it despite the same limitation.
func classifyBasicAccessory(p Packet) Classification {
	b0, b1 := p.Data[0], p.Data[1]

	mirroredHigh := uint16(0x07) & ^(uint16(b1&0x70) >> 4)
	decoderAddress := uint16(b0&0x3F) | mirroredHigh
	port := uint16(b1&0x06) >> 1
	outputAddress := decoderAddress<<2 | port
	outputAddress -= 3 // wraps per uint16 arithmetic, matching the original's uint16_t subtraction

	c := Classification{
		Kind:           BasicAccessory,
		DecoderAddress: decoderAddress,
		OutputAddress:  outputAddress,
		Direction:      b1 & 0x01,
		BitC:           (b1 >> 3) & 0x01,
	}

	if p.Length == 6 && p.Data[2]&0xF0 == 0xE0 {
		c.IsPOM = true
		c.POMSubPacket = [3]byte{p.Data[2], p.Data[3], p.Data[4]}
	}

	return c
}

// IsEmergencyOff reports whether c represents the fleet-wide
// emergency-off command: output address 2047, direction and activation
// bit both clear.
func (c Classification) IsEmergencyOff() bool {
	return c.Kind == BasicAccessory && c.OutputAddress == 2047 &&
		c.Direction == 0 && c.BitC == 0
}

// Package swd builds and parses single SWD transaction frames: the 8-bit
// request header, turnaround bits, three-bit ACK, and the 32-bit data phase
// with its parity bit. This is the single highest-risk piece of the wire
// protocol: the probe samples on falling edges while the target drives on
// rising edges, so the first captured ACK bit lands in what would nominally
// be the turnaround slot. Build and Parse must agree on that phase or every
// transaction silently misparses.
package swd

import (
	"github.com/go-dap/jlink/pkg/bitio"
	"github.com/go-dap/jlink/pkg/dapproto"
)

// Kind is the read/write shape of one SWD transaction; kept distinct from
// dapproto.TransferDirection so the codec has no dependency on transfer
// bookkeeping, only on the wire shape.
type Kind int

const (
	KindRead Kind = iota
	KindWrite
)

// ResponseLength returns the number of bits a frame of the given kind
// occupies on the wire: 2 idle + 8 request + 1 turnaround + 3 ack, then
// either (32 data + 1 parity + 1 turnaround) for a read or (1 turnaround +
// 32 data + 1 parity) for a write. Both total 48.
func ResponseLength(kind Kind) int {
	return 48
}

// Frame builds the output bit sequence for one SWD transaction. addr carries
// only bits 2-3 on the wire (byte-addressed 32-bit registers); value is only
// consulted for a write.
func Frame(port dapproto.PortType, kind Kind, addr uint16, value uint32) *bitio.BitBuffer {
	b := bitio.NewWithCapacity(48)

	// 1. idle
	b.PushOutput(false)
	b.PushOutput(false)

	// 2. 8-bit request, pushed in wire (LSB-first) order.
	apnDP := port.IsAP()
	rnW := kind == KindRead
	a2 := addr&0x4 != 0
	a3 := addr&0x8 != 0
	parity := xor(apnDP, rnW, a2, a3)

	b.PushOutput(true)   // Start
	b.PushOutput(apnDP)  // APnDP
	b.PushOutput(rnW)    // RnW
	b.PushOutput(a2)     // A2
	b.PushOutput(a3)     // A3
	b.PushOutput(parity) // Parity
	b.PushOutput(false)  // Stop
	b.PushOutput(true)   // Park

	// 3. turnaround
	b.PushInput()

	// 4. ACK
	b.PushInputMany(3)

	if kind == KindWrite {
		// 5. turnaround, then 32 data bits + parity, all output.
		b.PushInput()
		bits := dataBitsLSB(value)
		b.PushOutputMany(bits)
		b.PushOutput(xorAll(bits))
	} else {
		// 6. 32 data bits + parity + turnaround, all input.
		b.PushInputMany(32)
		b.PushInput()
		b.PushInput()
	}

	return b
}

// Response parses a sampled bit stream of the same length Frame produced.
// value is meaningful only when status is Ok and kind is KindRead.
func Response(sampled []bool, kind Kind) (value uint32, status dapproto.TransferStatus) {
	cursor := 0

	// Skip 2 idle + 8 request bits. The probe's falling-edge sampling phase
	// against the target's rising-edge drive means the captured stream is
	// effectively shifted one bit early: what the wire diagram calls the
	// turnaround slot is where the first ACK bit actually lands, so no
	// separate turnaround bit is skipped here.
	cursor += 2 + 8

	ack := sampled[cursor : cursor+3]
	cursor += 3

	if kind == KindWrite {
		cursor += 2 // turnaround pair
	}

	data := sampled[cursor : cursor+32]
	cursor += 32
	parity := sampled[cursor]

	switch ackPattern(ack) {
	case ackOK:
		if kind == KindRead {
			value = bitio.PackedUint32(data)
			want := bitio.PopCount(data)%2 == 1
			if want != parity {
				return 0, dapproto.Failed(dapproto.IncorrectParity)
			}
			return value, dapproto.Ok()
		}
		return 0, dapproto.Ok()
	case ackWait:
		return 0, dapproto.Failed(dapproto.WaitResponse)
	case ackFault:
		return 0, dapproto.Failed(dapproto.FaultResponse)
	case ackNoAck:
		return 0, dapproto.Failed(dapproto.NoAcknowledge)
	default:
		return 0, dapproto.Failed(dapproto.SwdProtocol)
	}
}

type ack int

const (
	ackOK ack = iota
	ackWait
	ackFault
	ackNoAck
	ackMalformed
)

func ackPattern(bits []bool) ack {
	switch {
	case bits[0] && !bits[1] && !bits[2]:
		return ackOK
	case !bits[0] && bits[1] && !bits[2]:
		return ackWait
	case !bits[0] && !bits[1] && bits[2]:
		return ackFault
	case bits[0] && bits[1] && bits[2]:
		return ackNoAck
	default:
		return ackMalformed
	}
}

func dataBitsLSB(v uint32) []bool {
	bits := make([]bool, 32)
	for i := 0; i < 32; i++ {
		bits[i] = (v>>uint(i))&1 != 0
	}
	return bits
}

func xorAll(bits []bool) bool {
	p := false
	for _, b := range bits {
		p = p != b
	}
	return p
}

func xor(bits ...bool) bool {
	return xorAll(bits)
}

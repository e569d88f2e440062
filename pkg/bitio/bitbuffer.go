// Package bitio provides BitBuffer, the co-indexed (value, direction) bit
// sequence every wire-level frame in this module is built from before it is
// handed to a ProbeTransport in a single round trip.
package bitio

// BitBuffer holds two equal-length bit sequences: IO carries the bit values
// (drive-high/drive-line on output positions, always false on input
// positions, whose captured level comes back from the transport) and
// Dir carries the per-bit direction (true = probe drives / output, false =
// target drives / input). A BitBuffer is built once per burst and consumed
// exactly once by a transport call; nothing mutates it afterward.
type BitBuffer struct {
	io  []bool
	dir []bool
}

// New returns an empty BitBuffer ready to be appended to.
func New() *BitBuffer {
	return &BitBuffer{}
}

// NewWithCapacity preallocates space for n bits, avoiding reallocation when
// the final length is known up front.
func NewWithCapacity(n int) *BitBuffer {
	return &BitBuffer{io: make([]bool, 0, n), dir: make([]bool, 0, n)}
}

// PushOutput appends one output bit driving the line to the given value.
func (b *BitBuffer) PushOutput(bit bool) {
	b.io = append(b.io, bit)
	b.dir = append(b.dir, true)
}

// PushOutputMany appends a run of output bits in order.
func (b *BitBuffer) PushOutputMany(bits []bool) {
	for _, bit := range bits {
		b.PushOutput(bit)
	}
}

// PushInput appends one input bit: the probe releases the line and samples
// whatever the target drives.
func (b *BitBuffer) PushInput() {
	b.io = append(b.io, false)
	b.dir = append(b.dir, false)
}

// PushInputMany appends n input bits.
func (b *BitBuffer) PushInputMany(n int) {
	for i := 0; i < n; i++ {
		b.PushInput()
	}
}

// Append concatenates other onto b in order.
func (b *BitBuffer) Append(other *BitBuffer) {
	b.io = append(b.io, other.io...)
	b.dir = append(b.dir, other.dir...)
}

// IO returns the bit-value sequence. The caller must not mutate it.
func (b *BitBuffer) IO() []bool { return b.io }

// Dir returns the direction sequence. The caller must not mutate it.
func (b *BitBuffer) Dir() []bool { return b.dir }

// Len reports the number of bits currently held.
func (b *BitBuffer) Len() int { return len(b.io) }

// BitsToByte packs up to 8 bits, LSB-first, into a single byte. Bits beyond
// index 7 are ignored; callers shift their own cursor for longer runs.
func BitsToByte(bits []bool) byte {
	var v byte
	for i, bit := range bits {
		if i >= 8 {
			break
		}
		if bit {
			v |= 1 << uint(i)
		}
	}
	return v
}

// PackLSB packs an LSB-first bit slice into a byte slice, the layout used for
// both JTAG DR/IR shift results and SWD 32-bit data phases.
func PackLSB(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// UnpackLSB expands n bits, LSB-first, out of a byte slice.
func UnpackLSB(data []byte, n int) []bool {
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		byteIdx := i / 8
		if byteIdx >= len(data) {
			break
		}
		out[i] = (data[byteIdx]>>(uint(i)%8))&1 != 0
	}
	return out
}

// PackedUint32 reassembles a 32-bit word from an LSB-first []bool, the
// layout an SWD read data phase or a 32-bit JTAG DR shift produces.
func PackedUint32(bits []bool) uint32 {
	var v uint32
	for i, bit := range bits {
		if i >= 32 {
			break
		}
		if bit {
			v |= 1 << uint(i)
		}
	}
	return v
}

// PopCount returns the number of set bits in a []bool, used for SWD read
// parity checks.
func PopCount(bits []bool) int {
	n := 0
	for _, bit := range bits {
		if bit {
			n++
		}
	}
	return n
}

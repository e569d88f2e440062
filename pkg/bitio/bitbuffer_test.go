package bitio

import (
	"bytes"
	"reflect"
	"testing"
)

func TestPushAndDirections(t *testing.T) {
	b := New()
	b.PushOutput(true)
	b.PushOutput(false)
	b.PushInput()
	b.PushInputMany(2)
	b.PushOutputMany([]bool{true, true})

	wantIO := []bool{true, false, false, false, false, true, true}
	wantDir := []bool{true, true, false, false, false, true, true}

	if !reflect.DeepEqual(b.IO(), wantIO) {
		t.Errorf("IO() = %v, want %v", b.IO(), wantIO)
	}
	if !reflect.DeepEqual(b.Dir(), wantDir) {
		t.Errorf("Dir() = %v, want %v", b.Dir(), wantDir)
	}
	if b.Len() != 7 {
		t.Errorf("Len() = %d, want 7", b.Len())
	}
}

func TestAppend(t *testing.T) {
	a := New()
	a.PushOutput(true)
	b := New()
	b.PushInput()
	b.PushOutput(false)

	a.Append(b)
	if a.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", a.Len())
	}
	wantDir := []bool{true, false, true}
	if !reflect.DeepEqual(a.Dir(), wantDir) {
		t.Errorf("Dir() = %v, want %v", a.Dir(), wantDir)
	}
}

func TestInputBitsDriveLow(t *testing.T) {
	b := New()
	b.PushInputMany(4)
	for i, bit := range b.IO() {
		if bit {
			t.Errorf("input bit %d drives high", i)
		}
	}
}

func TestPackLSB(t *testing.T) {
	tests := []struct {
		name string
		bits []bool
		want []byte
	}{
		{"empty", nil, []byte{}},
		{"one byte", []bool{true, false, true, true, false, false, false, true}, []byte{0x8D}},
		{"partial byte", []bool{true, true, true}, []byte{0x07}},
		{"cross byte", []bool{false, false, false, false, false, false, false, false, true}, []byte{0x00, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PackLSB(tt.bits); !bytes.Equal(got, tt.want) {
				t.Errorf("PackLSB() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnpackLSBRoundTrip(t *testing.T) {
	bits := []bool{true, false, true, true, false, false, true, false, true, true, false}
	got := UnpackLSB(PackLSB(bits), len(bits))
	if !reflect.DeepEqual(got, bits) {
		t.Errorf("round trip = %v, want %v", got, bits)
	}
}

func TestUnpackLSBShortData(t *testing.T) {
	// Requesting more bits than data holds leaves the tail false.
	got := UnpackLSB([]byte{0xFF}, 12)
	for i := 0; i < 8; i++ {
		if !got[i] {
			t.Errorf("bit %d lost", i)
		}
	}
	for i := 8; i < 12; i++ {
		if got[i] {
			t.Errorf("bit %d invented", i)
		}
	}
}

func TestPackedUint32(t *testing.T) {
	bits := make([]bool, 32)
	// 0x11223344: set bits per LSB-first layout.
	for i := 0; i < 32; i++ {
		bits[i] = (uint32(0x11223344)>>uint(i))&1 != 0
	}
	if got := PackedUint32(bits); got != 0x11223344 {
		t.Errorf("PackedUint32() = 0x%08X, want 0x11223344", got)
	}
}

func TestBitsToByte(t *testing.T) {
	if got := BitsToByte([]bool{true, false, true}); got != 0x05 {
		t.Errorf("BitsToByte() = 0x%02X, want 0x05", got)
	}
	// Bits past index 7 are ignored.
	long := make([]bool, 10)
	long[9] = true
	if got := BitsToByte(long); got != 0 {
		t.Errorf("BitsToByte() = 0x%02X, want 0", got)
	}
}

func TestPopCount(t *testing.T) {
	if got := PopCount([]bool{true, false, true, true}); got != 3 {
		t.Errorf("PopCount() = %d, want 3", got)
	}
	if got := PopCount(nil); got != 0 {
		t.Errorf("PopCount(nil) = %d, want 0", got)
	}
}

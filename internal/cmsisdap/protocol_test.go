package cmsisdap

import (
	"bytes"
	"testing"
)

func TestEncodeInfo(t *testing.T) {
	tests := []struct {
		name string
		id   byte
		want []byte
	}{
		{"serial", InfoSerialNum, []byte{0x00, 0x03}},
		{"firmware", InfoFirmwareVer, []byte{0x00, 0x04}},
		{"capabilities", InfoCapabilities, []byte{0x00, 0xF0}},
		{"packet size", InfoPacketSize, []byte{0x00, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeInfo(tt.id); !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeInfo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeInfoString(t *testing.T) {
	tests := []struct {
		name    string
		resp    []byte
		want    string
		wantErr bool
	}{
		{name: "plain", resp: []byte{0x00, 0x04, 'v', '2', '.', '1'}, want: "v2.1"},
		{name: "nul terminated", resp: []byte{0x00, 0x05, 'v', '2', '.', '1', 0x00}, want: "v2.1"},
		{name: "too short", resp: []byte{0x00}, wantErr: true},
		{name: "wrong command", resp: []byte{0x01, 0x01, 'x'}, wantErr: true},
		{name: "truncated", resp: []byte{0x00, 0x10, 'x'}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInfoString(tt.resp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeInfoString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("DecodeInfoString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeInfoUint16(t *testing.T) {
	got, err := DecodeInfoUint16([]byte{0x00, 0x02, 0x40, 0x00})
	if err != nil {
		t.Fatalf("DecodeInfoUint16() error = %v", err)
	}
	if got != 64 {
		t.Errorf("DecodeInfoUint16() = %d, want 64", got)
	}
}

func TestDecodeConnect(t *testing.T) {
	tests := []struct {
		name    string
		resp    []byte
		want    byte
		wantErr bool
	}{
		{name: "swd", resp: []byte{CmdConnect, PortSWD}, want: PortSWD},
		{name: "jtag", resp: []byte{CmdConnect, PortJTAG}, want: PortJTAG},
		{name: "refused", resp: []byte{CmdConnect, PortDefault}, wantErr: true},
		{name: "short", resp: []byte{CmdConnect}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeConnect(tt.resp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeConnect() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("DecodeConnect() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEncodeSWJClock(t *testing.T) {
	got := EncodeSWJClock(4_000_000)
	want := []byte{CmdSWJClock, 0x00, 0x09, 0x3D, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeSWJClock() = %v, want %v", got, want)
	}
}

func TestEncodeSWJPins(t *testing.T) {
	got := EncodeSWJPins(1<<PinNRESET, 1<<PinNRESET, 0)
	want := []byte{CmdSWJPins, 0x80, 0x80, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeSWJPins() = %v, want %v", got, want)
	}
}

func TestEncodeSWJSequence(t *testing.T) {
	// Ten high bits: count byte then LSB-first packed data.
	bits := make([]bool, 10)
	for i := range bits {
		bits[i] = true
	}
	got := EncodeSWJSequence(bits)
	want := []byte{CmdSWJSequence, 10, 0xFF, 0x03}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeSWJSequence() = %v, want %v", got, want)
	}
}

func TestSequenceBits(t *testing.T) {
	if got := SWDSequence(64, true, nil).Bits(); got != 64 {
		t.Errorf("64-bit sequence encodes count %d", got)
	}
	if got := SWDSequence(3, true, nil).Bits(); got != 3 {
		t.Errorf("3-bit sequence encodes count %d", got)
	}
}

func TestEncodeSequencesSWD(t *testing.T) {
	seqs := []Sequence{
		SWDSequence(8, false, []byte{0xA5}),
		SWDSequence(4, true, nil),
	}
	got := EncodeSequences(CmdSWDSeq, seqs)
	want := []byte{CmdSWDSeq, 2, 0x08, 0xA5, 0x84}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeSequences() = %v, want %v", got, want)
	}
	if n := EncodedLen(seqs); n != len(want) {
		t.Errorf("EncodedLen() = %d, want %d", n, len(want))
	}
}

func TestDecodeSequencesSWD(t *testing.T) {
	seqs := []Sequence{
		SWDSequence(8, false, []byte{0xA5}), // output, no capture
		SWDSequence(4, true, nil),           // input, one capture byte
		SWDSequence(12, true, nil),          // input, two capture bytes
	}
	resp := []byte{CmdSWDSeq, StatusOK, 0x0B, 0x34, 0x02}
	got, err := DecodeSequences(CmdSWDSeq, resp, seqs)
	if err != nil {
		t.Fatalf("DecodeSequences() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("DecodeSequences() returned %d captures, want 2", len(got))
	}
	if !bytes.Equal(got[0], []byte{0x0B}) || !bytes.Equal(got[1], []byte{0x34, 0x02}) {
		t.Errorf("DecodeSequences() = %v", got)
	}
}

func TestDecodeSequencesErrors(t *testing.T) {
	seqs := []Sequence{SWDSequence(8, true, nil)}
	if _, err := DecodeSequences(CmdSWDSeq, []byte{CmdSWDSeq, StatusError}, seqs); err == nil {
		t.Error("error status not surfaced")
	}
	if _, err := DecodeSequences(CmdSWDSeq, []byte{CmdSWDSeq, StatusOK}, seqs); err == nil {
		t.Error("truncated capture not surfaced")
	}
}

func TestEncodeSequencesJTAG(t *testing.T) {
	seqs := []Sequence{
		JTAGSequence(3, true, true, []byte{0x00}),
		JTAGSequence(8, false, true, []byte{0x55}),
	}
	got := EncodeSequences(CmdJTAGSeq, seqs)
	want := []byte{CmdJTAGSeq, 2, 0xC3, 0x00, 0x88, 0x55}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeSequences() = %v, want %v", got, want)
	}
}

func TestDecodeSWOData(t *testing.T) {
	tests := []struct {
		name    string
		resp    []byte
		want    []byte
		wantErr bool
	}{
		{name: "empty", resp: []byte{CmdSWOData, 0x00, 0x00, 0x00}, want: []byte{}},
		{name: "three bytes", resp: []byte{CmdSWOData, 0x00, 0x03, 0x00, 'a', 'b', 'c'}, want: []byte("abc")},
		{name: "truncated", resp: []byte{CmdSWOData, 0x00, 0x05, 0x00, 'a'}, wantErr: true},
		{name: "short", resp: []byte{CmdSWOData}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSWOData(tt.resp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeSWOData() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(got, tt.want) {
				t.Errorf("DecodeSWOData() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPackUnpackBits(t *testing.T) {
	bits := []bool{true, false, true, true, false, false, false, true, true, false}
	packed := packBits(bits)
	if !bytes.Equal(packed, []byte{0x8D, 0x01}) {
		t.Fatalf("packBits() = %v", packed)
	}
	round := make([]bool, len(bits))
	unpackBits(packed, round)
	for i := range bits {
		if round[i] != bits[i] {
			t.Fatalf("bit %d: round-tripped %v, want %v", i, round[i], bits[i])
		}
	}
}

package jtagshift

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/go-dap/jlink/pkg/dapproto"
)

type fakeJtag struct {
	tms [][]bool
	tdi [][]bool
	// respond builds the TDO stream for shift n; nil answers all zeros.
	respond func(n int, tms, tdi []bool) []bool
}

func (f *fakeJtag) JtagIO(tms []bool, tdi []bool) ([]bool, error) {
	m := make([]bool, len(tms))
	copy(m, tms)
	d := make([]bool, len(tdi))
	copy(d, tdi)
	f.tms = append(f.tms, m)
	f.tdi = append(f.tdi, d)

	n := len(f.tms) - 1
	if f.respond != nil {
		if tdo := f.respond(n, tms, tdi); tdo != nil {
			return tdo, nil
		}
	}
	return make([]bool, len(tms)), nil
}

func newTestShifter(fake *fakeJtag) (*Shifter, *dapproto.ProbeState) {
	state := dapproto.NewProbeState()
	return New(fake, state), state
}

func TestReadDRSequence(t *testing.T) {
	fake := &fakeJtag{}
	s, _ := newTestShifter(fake)

	if _, err := s.ReadDR(8); err != nil {
		t.Fatalf("ReadDR() error = %v", err)
	}

	// 3 enter-shift bits, 7 stay bits, 3 exit-to-idle bits, no idle cycles.
	wantTMS := []bool{true, false, false, false, false, false, false, false, false, false, true, true, false}
	if !reflect.DeepEqual(fake.tms[0], wantTMS) {
		t.Errorf("TMS = %v, want %v", fake.tms[0], wantTMS)
	}
	for i, bit := range fake.tdi[0] {
		if bit {
			t.Errorf("TDI bit %d driven high on a read", i)
		}
	}
}

func TestReadDRCapturesAfterEnterShift(t *testing.T) {
	fake := &fakeJtag{respond: func(n int, tms, tdi []bool) []bool {
		tdo := make([]bool, len(tms))
		// Plant 0xA5 starting right after the 3 enter-shift bits.
		for i := 0; i < 8; i++ {
			tdo[3+i] = (0xA5>>uint(i))&1 != 0
		}
		return tdo
	}}
	s, _ := newTestShifter(fake)

	got, err := s.ReadDR(8)
	if err != nil {
		t.Fatalf("ReadDR() error = %v", err)
	}
	if !bytes.Equal(got, []byte{0xA5}) {
		t.Errorf("ReadDR() = %v, want [0xA5]", got)
	}
}

func TestReadDRIdleCycles(t *testing.T) {
	fake := &fakeJtag{}
	s, _ := newTestShifter(fake)
	s.SetIdleCycles(4)

	if _, err := s.ReadDR(32); err != nil {
		t.Fatalf("ReadDR() error = %v", err)
	}
	// 3 + 31 + 3 + 4 idle cycles.
	if len(fake.tms[0]) != 41 {
		t.Fatalf("TMS length = %d, want 41", len(fake.tms[0]))
	}
	for i := 37; i < 41; i++ {
		if fake.tms[0][i] {
			t.Errorf("idle cycle bit %d has TMS high", i)
		}
	}
}

func TestWriteIRSequence(t *testing.T) {
	fake := &fakeJtag{}
	s, state := newTestShifter(fake)

	if err := s.WriteIR([]byte{0x0A}, 5); err != nil {
		t.Fatalf("WriteIR() error = %v", err)
	}

	// 4 enter-shift-IR bits, 4 stay bits, 3 exit-to-idle bits.
	wantTMS := []bool{true, true, false, false, false, false, false, false, true, true, false}
	if !reflect.DeepEqual(fake.tms[0], wantTMS) {
		t.Errorf("TMS = %v, want %v", fake.tms[0], wantTMS)
	}
	// TDI: 4 leading zeros, 5 data bits LSB-first, 2 trailing zeros.
	wantTDI := []bool{false, false, false, false, false, true, false, true, false, false, false}
	if !reflect.DeepEqual(fake.tdi[0], wantTDI) {
		t.Errorf("TDI = %v, want %v", fake.tdi[0], wantTDI)
	}
	if state.CurrentIR != 0x0A {
		t.Errorf("CurrentIR = %d, want 0x0A", state.CurrentIR)
	}
}

func TestWriteIRValidation(t *testing.T) {
	fake := &fakeJtag{}
	s, _ := newTestShifter(fake)

	if err := s.WriteIR([]byte{0xFF, 0x01}, 9); !dapproto.IsKind(err, dapproto.NotImplemented) {
		t.Errorf("9-bit IR: error = %v, want NotImplemented", err)
	}
	if err := s.WriteIR([]byte{0xFF}, 0); err == nil {
		t.Error("zero-length IR accepted")
	}
	if err := s.WriteIR([]byte{}, 5); err == nil {
		t.Error("short data accepted")
	}
	if len(fake.tms) != 0 {
		t.Errorf("%d shifts issued for rejected IR writes", len(fake.tms))
	}
}

func TestWriteDRReturnsPriorContents(t *testing.T) {
	fake := &fakeJtag{respond: func(n int, tms, tdi []bool) []bool {
		tdo := make([]bool, len(tms))
		for i := 0; i < 8; i++ {
			tdo[3+i] = (0x5A>>uint(i))&1 != 0
		}
		return tdo
	}}
	s, _ := newTestShifter(fake)

	got, err := s.WriteDR([]byte{0xFF}, 8)
	if err != nil {
		t.Fatalf("WriteDR() error = %v", err)
	}
	if !bytes.Equal(got, []byte{0x5A}) {
		t.Errorf("WriteDR() = %v, want [0x5A]", got)
	}
	// The written bits ride TDI after the enter-shift phase.
	for i := 3; i < 11; i++ {
		if !fake.tdi[0][i] {
			t.Errorf("TDI bit %d low, want 0xFF shifted in", i)
		}
	}
}

func TestRegisterAccessSkipsRedundantIRWrite(t *testing.T) {
	fake := &fakeJtag{}
	s, state := newTestShifter(fake)

	// First access to address 5: IR write + DR shift.
	if _, err := s.ReadRegister(5, 8); err != nil {
		t.Fatalf("ReadRegister() error = %v", err)
	}
	if len(fake.tms) != 2 {
		t.Fatalf("first access issued %d shifts, want 2 (IR + DR)", len(fake.tms))
	}

	// Second access to the same address reuses the loaded IR.
	if _, err := s.ReadRegister(5, 8); err != nil {
		t.Fatalf("ReadRegister() error = %v", err)
	}
	if len(fake.tms) != 3 {
		t.Fatalf("second access issued %d total shifts, want 3", len(fake.tms))
	}

	// A different address forces a fresh IR write.
	if _, err := s.WriteRegister(7, []byte{0x00}, 8); err != nil {
		t.Fatalf("WriteRegister() error = %v", err)
	}
	if len(fake.tms) != 5 {
		t.Fatalf("third access issued %d total shifts, want 5", len(fake.tms))
	}
	if state.CurrentIR != 7 {
		t.Errorf("CurrentIR = %d, want 7", state.CurrentIR)
	}
}

func TestRegisterAddressBound(t *testing.T) {
	fake := &fakeJtag{}
	s, _ := newTestShifter(fake)

	if _, err := s.ReadRegister(0x20, 8); !dapproto.IsKind(err, dapproto.NotImplemented) {
		t.Errorf("6-bit address: error = %v, want NotImplemented", err)
	}
	if _, err := s.WriteRegister(0xFF, []byte{0}, 8); !dapproto.IsKind(err, dapproto.NotImplemented) {
		t.Errorf("wide address: error = %v, want NotImplemented", err)
	}
}

func TestReadDRRejectsNonPositiveLength(t *testing.T) {
	fake := &fakeJtag{}
	s, _ := newTestShifter(fake)
	if _, err := s.ReadDR(0); err == nil {
		t.Error("zero-length DR read accepted")
	}
}

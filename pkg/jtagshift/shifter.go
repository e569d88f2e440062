// Package jtagshift builds TMS/TDI sequences for IEEE 1149.1 IR and DR
// shift-update cycles. TAP state traversal is delegated to
// pkg/tap.StateMachine; only three paths are ever requested (enter
// Shift-DR, enter Shift-IR, exit shift to Run-Test/Idle).
package jtagshift

import (
	"fmt"

	"github.com/go-dap/jlink/pkg/bitio"
	"github.com/go-dap/jlink/pkg/dapproto"
	"github.com/go-dap/jlink/pkg/tap"
)

// Transport is the subset of ProbeTransport the shifter needs: a blocking
// TMS/TDI shift returning the sampled TDO stream of the same length.
type Transport interface {
	JtagIO(tms []bool, tdi []bool) ([]bool, error)
}

// Shifter drives a single JTAG TAP through IR/DR shift-update cycles. It
// owns a tap.StateMachine tracking the controller's logical state and
// mutates the shared ProbeState's CurrentIR field, the same way the rest of
// the driver shares state across components rather than duplicating it.
type Shifter struct {
	transport Transport
	state     *dapproto.ProbeState
	tm        *tap.StateMachine
}

// New returns a Shifter assuming the TAP starts in Run-Test/Idle, the state
// every operation here returns to before completing.
func New(transport Transport, state *dapproto.ProbeState) *Shifter {
	tm := tap.NewStateMachine()
	tm.Clock(false) // Test-Logic-Reset -> Run-Test/Idle
	return &Shifter{transport: transport, state: state, tm: tm}
}

// SetIdleCycles configures the number of TMS-low idle cycles appended after
// every DR shift.
func (s *Shifter) SetIdleCycles(n uint8) {
	s.state.JtagIdleCycles = n
}

func boolSlice(n int, v bool) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// ReadDR shifts n bits out of the current DR, driving zeros in, and returns
// the captured bits LSB-first packed into bytes.
func (s *Shifter) ReadDR(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("jtagshift: read_dr length must be positive, got %d", n)
	}

	enter, err := s.tm.GoTo(tap.StateShiftDR)
	if err != nil {
		return nil, fmt.Errorf("jtagshift: enter shift-dr: %w", err)
	}
	exit, err := s.tm.GoTo(tap.StateRunTestIdle)
	if err != nil {
		return nil, fmt.Errorf("jtagshift: exit shift-dr: %w", err)
	}

	tms := make([]bool, 0, len(enter.TMS)+(n-1)+len(exit.TMS)+int(s.state.JtagIdleCycles))
	tms = append(tms, enter.TMS...)
	tms = append(tms, boolSlice(n-1, false)...)
	tms = append(tms, exit.TMS...)
	tms = append(tms, boolSlice(int(s.state.JtagIdleCycles), false)...)

	tdi := boolSlice(len(tms), false)

	tdo, err := s.transport.JtagIO(tms, tdi)
	if err != nil {
		return nil, fmt.Errorf("jtagshift: read_dr transport: %w", err)
	}

	return bitio.PackLSB(tdo[len(enter.TMS) : len(enter.TMS)+n]), nil
}

// WriteDR shifts n bits of data into DR and returns the bits that were
// shifted out of the prior DR contents, using the same layout as ReadDR.
func (s *Shifter) WriteDR(data []byte, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("jtagshift: write_dr length must be positive, got %d", n)
	}

	enter, err := s.tm.GoTo(tap.StateShiftDR)
	if err != nil {
		return nil, fmt.Errorf("jtagshift: enter shift-dr: %w", err)
	}
	exit, err := s.tm.GoTo(tap.StateRunTestIdle)
	if err != nil {
		return nil, fmt.Errorf("jtagshift: exit shift-dr: %w", err)
	}

	dataBits := bitio.UnpackLSB(data, n)

	tms := make([]bool, 0, len(enter.TMS)+(n-1)+len(exit.TMS)+int(s.state.JtagIdleCycles))
	tms = append(tms, enter.TMS...)
	tms = append(tms, boolSlice(n-1, false)...)
	tms = append(tms, exit.TMS...)
	tms = append(tms, boolSlice(int(s.state.JtagIdleCycles), false)...)

	tdi := make([]bool, 0, len(tms))
	tdi = append(tdi, boolSlice(len(enter.TMS), false)...)
	tdi = append(tdi, dataBits...)
	tdi = append(tdi, boolSlice(len(tms)-len(enter.TMS)-n, false)...)

	tdo, err := s.transport.JtagIO(tms, tdi)
	if err != nil {
		return nil, fmt.Errorf("jtagshift: write_dr transport: %w", err)
	}

	return bitio.PackLSB(tdo[len(enter.TMS) : len(enter.TMS)+n]), nil
}

// WriteIR shifts an IR value of up to 8 bits and updates ProbeState.CurrentIR
// to data's first byte on success.
func (s *Shifter) WriteIR(data []byte, lenBits int) error {
	if lenBits < 1 || lenBits > 8 {
		return dapproto.ErrNotImplemented(fmt.Sprintf("write_ir length %d (only 1-8 bit IRs are supported)", lenBits))
	}
	if len(data)*8 < lenBits {
		return fmt.Errorf("jtagshift: write_ir data too short for %d bits", lenBits)
	}

	enter, err := s.tm.GoTo(tap.StateShiftIR)
	if err != nil {
		return fmt.Errorf("jtagshift: enter shift-ir: %w", err)
	}
	exit, err := s.tm.GoTo(tap.StateRunTestIdle)
	if err != nil {
		return fmt.Errorf("jtagshift: exit shift-ir: %w", err)
	}

	dataBits := bitio.UnpackLSB(data, lenBits)

	tms := make([]bool, 0, len(enter.TMS)+(lenBits-1)+len(exit.TMS))
	tms = append(tms, enter.TMS...)
	tms = append(tms, boolSlice(lenBits-1, false)...)
	tms = append(tms, exit.TMS...)

	tdi := make([]bool, 0, len(tms))
	tdi = append(tdi, boolSlice(len(enter.TMS), false)...)
	tdi = append(tdi, dataBits...)
	tdi = append(tdi, boolSlice(len(tms)-len(enter.TMS)-lenBits, false)...)

	if _, err := s.transport.JtagIO(tms, tdi); err != nil {
		return fmt.Errorf("jtagshift: write_ir transport: %w", err)
	}

	s.state.CurrentIR = uint32(data[0])
	return nil
}

// ReadRegister reads n bits from the DR addressed by the 5-bit JTAG address,
// issuing a write_ir(addr, 5) first only when CurrentIR differs.
func (s *Shifter) ReadRegister(addr uint32, n int) ([]byte, error) {
	if addr > 0x1f {
		return nil, dapproto.ErrNotImplemented(fmt.Sprintf("jtag address %d exceeds 5 bits", addr))
	}
	if s.state.CurrentIR != addr {
		if err := s.WriteIR([]byte{byte(addr)}, 5); err != nil {
			return nil, err
		}
	}
	return s.ReadDR(n)
}

// WriteRegister writes data into the DR addressed by the 5-bit JTAG address,
// issuing a write_ir(addr, 5) first only when CurrentIR differs.
func (s *Shifter) WriteRegister(addr uint32, data []byte, n int) ([]byte, error) {
	if addr > 0x1f {
		return nil, dapproto.ErrNotImplemented(fmt.Sprintf("jtag address %d exceeds 5 bits", addr))
	}
	if s.state.CurrentIR != addr {
		if err := s.WriteIR([]byte{byte(addr)}, 5); err != nil {
			return nil, err
		}
	}
	return s.WriteDR(data, n)
}

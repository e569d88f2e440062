package dap

import (
	"testing"

	"github.com/go-dap/jlink/pkg/dapproto"
)

func newTestLoop(fake *fakeSwd) *RetryLoop {
	return NewRetryLoop(fake, nil)
}

func TestWaitThenOKRetry(t *testing.T) {
	// Burst 0: read answered WAIT. Burst 1: the Abort write (status
	// ignored). Burst 2: read answered OK.
	fake := &fakeSwd{respond: func(n int, dir, io []bool) []bool {
		s := make([]bool, len(dir))
		switch n {
		case 0:
			ackWait(s, 0)
		case 2:
			ackOK(s, 0)
		}
		return s
	}}

	v, err := newTestLoop(fake).ReadRegister(dapproto.DebugPort(), 0)
	if err != nil {
		t.Fatalf("ReadRegister() error = %v", err)
	}
	if v != 0 {
		t.Errorf("value = 0x%08X, want 0", v)
	}
	if fake.calls() != 3 {
		t.Fatalf("probe observed %d bursts, want 3 (failed read, abort write, retry)", fake.calls())
	}
	// The middle burst is the Abort write: write frame + idle + RDBUFF.
	if len(fake.dirs[1]) != 112 {
		t.Errorf("abort burst length = %d, want 112", len(fake.dirs[1]))
	}
	// Abort payload carries ORUNERRCLR, pushed LSB-first starting at bit 15.
	if !fake.ios[1][15+4] {
		t.Error("abort write does not set ORUNERRCLR")
	}
}

func TestFaultClearsStickyAndSurfaces(t *testing.T) {
	// Burst 0: AP read whose draining RDBUFF answers FAULT. Burst 1:
	// CTRL/STAT read shows STICKYORUN. Burst 2: Abort write. Then the fault
	// surfaces.
	fake := &fakeSwd{respond: func(n int, dir, io []bool) []bool {
		s := make([]bool, len(dir))
		switch n {
		case 0:
			ackOK(s, 0)
			ackFault(s, 48)
		case 1:
			ackOK(s, 0)
			readWord(s, 0, CtrlStatStickyOrun)
		case 2:
			ackOK(s, 0)
			ackOK(s, 64)
		}
		return s
	}}

	_, err := newTestLoop(fake).ReadRegister(dapproto.AccessPort(0), 0)
	if err != dapproto.FaultResponse {
		t.Fatalf("error = %v, want FaultResponse", err)
	}
	if fake.calls() != 3 {
		t.Fatalf("probe observed %d bursts, want 3 (fault, ctrl/stat, abort)", fake.calls())
	}
	if !fake.ios[2][15+4] {
		t.Error("abort write does not set ORUNERRCLR for STICKYORUN")
	}
}

func TestFaultWithStickyErrClearsStkErr(t *testing.T) {
	fake := &fakeSwd{respond: func(n int, dir, io []bool) []bool {
		s := make([]bool, len(dir))
		switch n {
		case 0:
			ackOK(s, 0)
			ackFault(s, 64)
		case 1:
			ackOK(s, 0)
			readWord(s, 0, CtrlStatStickyErr)
		case 2:
			ackOK(s, 0)
			ackOK(s, 64)
		}
		return s
	}}

	err := newTestLoop(fake).WriteRegister(dapproto.AccessPort(0), 0, 0xFFFFFFFF)
	if err != dapproto.FaultResponse {
		t.Fatalf("error = %v, want FaultResponse", err)
	}
	if !fake.ios[2][15+2] {
		t.Error("abort write does not set STKERRCLR for STICKYERR")
	}
}

func TestProtocolErrorTriggersLineReset(t *testing.T) {
	// Burst 0: garbage ACK. Burst 1: the 50-bit line reset. Burst 2: OK.
	fake := &fakeSwd{respond: func(n int, dir, io []bool) []bool {
		s := make([]bool, len(dir))
		if n == 2 {
			ackOK(s, 0)
		}
		return s
	}}

	if _, err := newTestLoop(fake).ReadRegister(dapproto.DebugPort(), 0); err != nil {
		t.Fatalf("ReadRegister() error = %v", err)
	}
	if fake.calls() != 3 {
		t.Fatalf("probe observed %d bursts, want 3", fake.calls())
	}
	reset := fake.ios[1]
	if len(reset) != LineResetBits {
		t.Fatalf("line reset length = %d, want %d", len(reset), LineResetBits)
	}
	for i, bit := range reset {
		if !bit || !fake.dirs[1][i] {
			t.Fatalf("line reset bit %d not driven high", i)
		}
	}
}

func TestRetryCapReturnsTimeout(t *testing.T) {
	// Every read attempt answers WAIT; the loop must stop at MaxRetries.
	attempts := 0
	fake := &fakeSwd{respond: func(n int, dir, io []bool) []bool {
		s := make([]bool, len(dir))
		if len(dir) == 48 { // the read itself, not the abort write
			attempts++
			ackWait(s, 0)
		}
		return s
	}}

	_, err := newTestLoop(fake).ReadRegister(dapproto.DebugPort(), 0)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !dapproto.IsKind(err, dapproto.Timeout) {
		t.Fatalf("error = %v, want Timeout kind", err)
	}
	if attempts != MaxRetries {
		t.Errorf("probe observed %d read attempts, want %d", attempts, MaxRetries)
	}
}

func TestWriteRegisterSuccess(t *testing.T) {
	fake := &fakeSwd{respond: func(n int, dir, io []bool) []bool {
		s := make([]bool, len(dir))
		ackOK(s, 0)
		ackOK(s, 64)
		return s
	}}

	if err := newTestLoop(fake).WriteRegister(dapproto.AccessPort(0), 0xC, 0xDEADBEEF); err != nil {
		t.Fatalf("WriteRegister() error = %v", err)
	}
	if fake.calls() != 1 {
		t.Errorf("probe observed %d bursts, want 1", fake.calls())
	}
}

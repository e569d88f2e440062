package dap

import (
	"github.com/go-dap/jlink/pkg/bitio"
	"github.com/go-dap/jlink/pkg/dapproto"
	"github.com/sirupsen/logrus"
)

// MaxRetries bounds every top-level register operation at 20 attempts of
// its own transfer; recovery bursts (Abort writes, line resets) issued
// between attempts are not counted against it.
const MaxRetries = 20

// LineResetBits is the minimum run of consecutive high bits that returns the
// SWD line to a known state.
const LineResetBits = 50

// LineReset drives LineResetBits consecutive 1 output bits, returning the
// line to a known idle state. Used both by attach and by the retry loop
// when a non-WAIT, non-FAULT error is observed.
func LineReset(transport Transport) error {
	bb := bitio.NewWithCapacity(LineResetBits)
	for i := 0; i < LineResetBits; i++ {
		bb.PushOutput(true)
	}
	_, err := transport.SwdIO(bb.Dir(), bb.IO())
	return err
}

// RetryLoop executes single-register DAP operations through the sequencer,
// absorbing WAIT via an Abort/ORUNERRCLR write, surfacing FAULT after a
// best-effort sticky-flag clear, and recovering from any other error with a
// line reset, up to MaxRetries attempts.
type RetryLoop struct {
	Transport Transport
	Log       *logrus.Logger
}

// NewRetryLoop returns a RetryLoop logging through log, or logrus's standard
// logger if log is nil.
func NewRetryLoop(transport Transport, log *logrus.Logger) *RetryLoop {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RetryLoop{Transport: transport, Log: log}
}

// ReadRegister performs a single DP/AP read, retrying per the recovery
// table until it succeeds or MaxRetries is exhausted.
func (r *RetryLoop) ReadRegister(port dapproto.PortType, addr uint16) (uint32, error) {
	t := dapproto.NewRead(port, addr)
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if err := Execute(r.Transport, []*dapproto.SwdTransfer{&t}); err != nil {
			return 0, err
		}
		switch {
		case t.Status.IsOk():
			return t.Value, nil
		case t.Status.IsPending():
			r.Log.Debug("dap: pending status after perform, retrying defensively")
			continue
		default:
			if done, err := r.recover(t.Status.Err(), attempt); done {
				return 0, err
			}
		}
		t = dapproto.NewRead(port, addr)
	}
	return 0, dapproto.ErrTimeout()
}

// WriteRegister performs a single DP/AP write, retrying per the recovery
// table until it succeeds or MaxRetries is exhausted.
func (r *RetryLoop) WriteRegister(port dapproto.PortType, addr uint16, value uint32) error {
	t := dapproto.NewWrite(port, addr, value)
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if err := Execute(r.Transport, []*dapproto.SwdTransfer{&t}); err != nil {
			return err
		}
		switch {
		case t.Status.IsOk():
			return nil
		case t.Status.IsPending():
			r.Log.Debug("dap: pending status after perform, retrying defensively")
			continue
		default:
			if done, err := r.recover(t.Status.Err(), attempt); done {
				return err
			}
		}
		t = dapproto.NewWrite(port, addr, value)
	}
	return dapproto.ErrTimeout()
}

// recover reacts to a failed transfer's DapError. It returns done=true with
// a terminal error when the caller should stop retrying (a surfaced FAULT),
// and done=false when the caller should loop again after recovery actions.
func (r *RetryLoop) recover(derr dapproto.DapError, attempt int) (done bool, err error) {
	switch derr {
	case dapproto.WaitResponse:
		r.Log.Debugf("dap: WAIT on attempt %d, clearing overrun and retrying", attempt)
		abort := dapproto.NewWrite(dapproto.DebugPort(), AddrAbort, AbortOrunErrClr)
		_ = Execute(r.Transport, []*dapproto.SwdTransfer{&abort})
		return false, nil

	case dapproto.FaultResponse:
		r.Log.Warn("dap: FAULT response, clearing sticky flags before surfacing")
		ctrlStat := dapproto.NewRead(dapproto.DebugPort(), AddrCtrlStat)
		_ = Execute(r.Transport, []*dapproto.SwdTransfer{&ctrlStat})
		if ctrlStat.Status.IsOk() {
			var clear uint32
			if ctrlStat.Value&CtrlStatStickyOrun != 0 {
				clear |= AbortOrunErrClr
			}
			if ctrlStat.Value&CtrlStatStickyErr != 0 {
				clear |= AbortStkErrClr
			}
			if clear != 0 {
				abort := dapproto.NewWrite(dapproto.DebugPort(), AddrAbort, clear)
				_ = Execute(r.Transport, []*dapproto.SwdTransfer{&abort})
			}
		}
		return true, dapproto.FaultResponse

	default:
		r.Log.Debugf("dap: protocol error %v on attempt %d, issuing line reset", derr, attempt)
		_ = LineReset(r.Transport)
		return false, nil
	}
}

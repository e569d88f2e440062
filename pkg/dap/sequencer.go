// Package dap implements the DAP sequencer and retry loop: translating a
// batch of logical register accesses into one SWD wire burst honoring the
// ADIv5 pipeline rules (posted writes, one-frame-late AP reads, draining
// reads), then retrying failed single-register operations per the WAIT/
// FAULT/line-reset recovery table.
package dap

import (
	"fmt"

	"github.com/go-dap/jlink/pkg/bitio"
	"github.com/go-dap/jlink/pkg/dapproto"
	"github.com/go-dap/jlink/pkg/swd"
)

// DP register addresses from ADIv5, used by the sequencer to recognize and
// synthesize the auxiliary transfers the pipeline rules require.
const (
	AddrDPIDR    uint16 = 0x0
	AddrAbort    uint16 = 0x0
	AddrCtrlStat uint16 = 0x4
	AddrSelect   uint16 = 0x8
	AddrRDBuff   uint16 = 0xC
)

// Abort register clear bits.
const (
	AbortOrunErrClr uint32 = 1 << 4
	AbortStkErrClr  uint32 = 1 << 2
	AbortStkCmpClr  uint32 = 1 << 1
)

// CTRL/STAT sticky bits.
const (
	CtrlStatStickyOrun uint32 = 1 << 1
	CtrlStatStickyErr  uint32 = 1 << 5
)

// IdleBitsAfterWrite is the number of zero output bits clocked after every
// posted write to give the DP time to commit.
const IdleBitsAfterWrite = 16

// Transport is the subset of ProbeTransport the sequencer needs: a single
// blocking SWD bit-banged transaction.
type Transport interface {
	SwdIO(dir []bool, io []bool) ([]bool, error)
}

func isAPRead(t *dapproto.SwdTransfer) bool {
	return t.Port.IsAP() && t.Direction == dapproto.Read
}

func isAPWrite(t *dapproto.SwdTransfer) bool {
	return t.Port.IsAP() && t.Direction == dapproto.Write
}

// isStallableDPAccess reports whether t is one of the DP accesses the
// pipeline rules single out as needing a drained write buffer first: a
// write to Abort, or a read of DPIDR or CTRL/STAT.
func isStallableDPAccess(t *dapproto.SwdTransfer) bool {
	if t.Port.IsAP() {
		return false
	}
	if t.Direction == dapproto.Write {
		return t.Address == AddrAbort
	}
	return t.Address == AddrDPIDR || t.Address == AddrCtrlStat
}

func swdKind(dir dapproto.TransferDirection) swd.Kind {
	if dir == dapproto.Read {
		return swd.KindRead
	}
	return swd.KindWrite
}

type emittedFrame struct {
	kind   swd.Kind
	length int // total bits this frame (and any trailing idle) occupies in the response stream
}

// Execute batches transfers into a single wire burst, inserting the
// auxiliary RDBUFF drains and idle cycles the pipeline rules require, and
// fills in Status (and Value, for reads) on every element of transfers in
// place.
func Execute(transport Transport, transfers []*dapproto.SwdTransfer) error {
	bb := bitio.New()
	var frames []emittedFrame
	resultIndex := make([]int, len(transfers))

	needAPRead := false
	bufferedWrite := false
	writeResponsePending := false

	emit := func(port dapproto.PortType, kind swd.Kind, addr uint16, value uint32) int {
		f := swd.Frame(port, kind, addr, value)
		bb.Append(f)
		length := swd.ResponseLength(kind)
		idx := len(frames)
		frames = append(frames, emittedFrame{kind: kind, length: length})
		if kind == swd.KindWrite {
			for i := 0; i < IdleBitsAfterWrite; i++ {
				bb.PushOutput(false)
			}
			frames[idx].length += IdleBitsAfterWrite
		}
		return idx
	}

	for k, t := range transfers {
		nextIsAPRead := isAPRead(t)

		// 1. drain a pending AP read if the next transfer isn't itself one.
		if needAPRead && !nextIsAPRead {
			emit(dapproto.DebugPort(), swd.KindRead, AddrRDBuff, 0)
		}

		// 2. drain a buffered write before a stallable DP access.
		if bufferedWrite && isStallableDPAccess(t) {
			emit(dapproto.DebugPort(), swd.KindRead, AddrRDBuff, 0)
		}

		// 3. append the transfer's own frame.
		idx := emit(t.Port, swdKind(t.Direction), t.Address, t.Value)

		// 4. update flags for the next iteration.
		needAPRead = isAPRead(t)
		bufferedWrite = isAPWrite(t)
		writeResponsePending = t.Direction == dapproto.Write

		// 6. record where this transfer's result lands.
		if needAPRead || writeResponsePending {
			resultIndex[k] = idx + 1 // filled in once the next frame is emitted
		} else {
			resultIndex[k] = idx
		}
	}

	// After the loop, drain anything still outstanding.
	if needAPRead || writeResponsePending || bufferedWrite {
		emit(dapproto.DebugPort(), swd.KindRead, AddrRDBuff, 0)
	}

	dirs := make([]bool, bb.Len())
	copy(dirs, bb.Dir())

	sampled, err := transport.SwdIO(dirs, bb.IO())
	if err != nil {
		return fmt.Errorf("dap: swd_io: %w", err)
	}

	// Parse every emitted frame in order, recording per-frame results.
	responses := make([]struct {
		value  uint32
		status dapproto.TransferStatus
	}, len(frames))

	cursor := 0
	for i, f := range frames {
		frameBits := sampled[cursor : cursor+f.length]
		cursor += f.length
		value, status := swd.Response(frameBits[:swd.ResponseLength(f.kind)], f.kind)
		responses[i].value = value
		responses[i].status = status
	}

	for k, t := range transfers {
		i := resultIndex[k]
		if i >= len(responses) {
			return fmt.Errorf("dap: result index %d out of range (%d frames emitted)", i, len(responses))
		}
		r := responses[i]
		if r.status.IsFailed() {
			t.Status = dapproto.Failed(r.status.Err())
			continue
		}
		if t.Direction == dapproto.Read {
			t.Value = r.value
		}
		t.Status = dapproto.Ok()
	}

	return nil
}

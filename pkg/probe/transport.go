// Package probe implements protocol selection, attach/detach, speed
// negotiation, and the exported DebugProbe/DAPAccess/JTAGAccess/SwoAccess
// surfaces layered on top of the dap and jtagshift packages. It is the only
// package that talks directly to a ProbeTransport implementation such as
// internal/cmsisdap.
package probe

import (
	"time"

	"github.com/go-dap/jlink/pkg/dapproto"
)

// Capabilities reports what a transport supports, queried via
// ReadCapabilities on every SelectProtocol call.
type Capabilities struct {
	HasSelectInterface bool
	HasSWD             bool
	HasJTAG            bool
	HasSWO             bool
}

// Speeds reports the transport's clock generation parameters, used by
// set_speed's divider computation.
type Speeds struct {
	BaseFreqHz uint32
	MinDiv     uint32
}

// Selector identifies a single probe among those attached to the host. An
// empty Selector matches any probe; Serial, when set, must match exactly.
type Selector struct {
	VID    uint16
	PID    uint16
	Serial string
}

// ProbeTransport is the capability surface a concrete USB transport (such as
// internal/cmsisdap.Transport) must provide. It deliberately stays below the
// abstraction level of "read a DAP register" — that logic lives in this
// package and in pkg/dap — so a transport implementation only has to move
// bits, not understand ADIv5.
type ProbeTransport interface {
	// SwdIO performs one equal-length bit-banged SWD transaction, returning
	// sampled bits of the same length as dir/io.
	SwdIO(dir []bool, io []bool) ([]bool, error)
	// JtagIO performs one TMS/TDI shift, returning the TDO sample stream.
	JtagIO(tms []bool, tdi []bool) ([]bool, error)

	ReadCapabilities() (Capabilities, error)
	ReadAvailableInterfaces() ([]dapproto.WireProtocol, error)
	ReadCurrentInterface() (dapproto.WireProtocol, error)
	SelectInterface(dapproto.WireProtocol) error

	ReadSpeeds() (Speeds, error)
	SetSpeed(khz uint16) error

	SetReset(bool) error
	ResetTRST() error

	SwoStartUART(baud uint32, bufferSize int) error
	SwoStop() error
	SwoRead(buf []byte) ([]byte, error)

	SerialString() (string, error)
	ProductString() (string, error)
	VIDPID() (vid, pid uint16)
	ReadFirmwareVersion() (string, error)
	ReadHardwareVersion() (string, error)
	ReadTargetVoltageMillivolts() (int, error)

	Close() error
}

// SwoAccess is the exported SWO trace surface; returned by Probe.SWO.
type SwoAccess interface {
	EnableSWO(config dapproto.SwoConfig) error
	DisableSWO() error
	SWOBufferSize() int
	ReadSWOTimeout(d time.Duration) ([]byte, error)
}

// DAPAccess is the exported ADIv5 register surface; returned by Probe.DAP.
type DAPAccess interface {
	ReadRegister(port dapproto.PortType, addr uint16) (uint32, error)
	WriteRegister(port dapproto.PortType, addr uint16, value uint32) error
}

// JTAGAccess is the exported JTAG register surface; returned by Probe.JTAG.
type JTAGAccess interface {
	ReadRegister(addr uint32, lenBits int) ([]byte, error)
	WriteRegister(addr uint32, data []byte, lenBits int) ([]byte, error)
	SetIdleCycles(n uint8)
}

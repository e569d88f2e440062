// Package dapproto holds the wire-independent data model shared by the SWD
// and JTAG transports: port addressing, transfer bookkeeping, and the error
// taxonomy that both the DAP sequencer and the probe attach logic surface to
// callers.
package dapproto

import "fmt"

// WireProtocol names a physical debug transport a probe may speak.
type WireProtocol int

const (
	Swd WireProtocol = iota
	Jtag
)

func (w WireProtocol) String() string {
	switch w {
	case Swd:
		return "SWD"
	case Jtag:
		return "JTAG"
	default:
		return fmt.Sprintf("WireProtocol(%d)", int(w))
	}
}

// PortType tags a DAP register access as targeting the Debug Port or one of
// the indexed Access Ports. The index is metadata only: the wire format
// carries a single APnDP bit, never the index itself.
type PortType struct {
	isAP  bool
	apIdx uint8
}

// DebugPort addresses the single Debug Port.
func DebugPort() PortType { return PortType{} }

// AccessPort addresses the Access Port at the given index.
func AccessPort(index uint8) PortType { return PortType{isAP: true, apIdx: index} }

// IsAP reports whether this PortType targets an Access Port.
func (p PortType) IsAP() bool { return p.isAP }

// Index returns the Access Port index; meaningless when IsAP is false.
func (p PortType) Index() uint8 { return p.apIdx }

func (p PortType) String() string {
	if p.isAP {
		return fmt.Sprintf("AP(%d)", p.apIdx)
	}
	return "DP"
}

// TransferDirection is Read or Write.
type TransferDirection int

const (
	Read TransferDirection = iota
	Write
)

func (d TransferDirection) String() string {
	if d == Read {
		return "Read"
	}
	return "Write"
}

// DapError classifies a failed SWD transaction at the ACK/parity level.
type DapError int

const (
	NoAcknowledge DapError = iota
	WaitResponse
	FaultResponse
	SwdProtocol
	IncorrectParity
)

func (e DapError) Error() string {
	switch e {
	case NoAcknowledge:
		return "dap: no acknowledge"
	case WaitResponse:
		return "dap: wait response"
	case FaultResponse:
		return "dap: fault response"
	case SwdProtocol:
		return "dap: malformed ack pattern"
	case IncorrectParity:
		return "dap: incorrect parity"
	default:
		return fmt.Sprintf("dap: unknown error (%d)", int(e))
	}
}

// TransferStatus is the lifecycle state of a SwdTransfer.
type TransferStatus struct {
	pending bool
	failed  bool
	err     DapError
}

// Pending is the initial status of every constructed transfer.
func Pending() TransferStatus { return TransferStatus{pending: true} }

// Ok marks a transfer as having completed successfully.
func Ok() TransferStatus { return TransferStatus{} }

// Failed marks a transfer as having completed with the given DapError.
func Failed(e DapError) TransferStatus { return TransferStatus{failed: true, err: e} }

func (s TransferStatus) IsPending() bool { return s.pending }
func (s TransferStatus) IsOk() bool      { return !s.pending && !s.failed }
func (s TransferStatus) IsFailed() bool  { return s.failed }
func (s TransferStatus) Err() DapError   { return s.err }

func (s TransferStatus) String() string {
	switch {
	case s.pending:
		return "Pending"
	case s.failed:
		return fmt.Sprintf("Failed(%s)", s.err)
	default:
		return "Ok"
	}
}

// SwdTransfer is one logical DAP register access: a DP or AP read/write at a
// byte address (only bits 2-3 are meaningful on the wire). On a successful
// read, Value is overwritten with the word returned by the target; on a
// write, Value is input-only.
type SwdTransfer struct {
	Port      PortType
	Direction TransferDirection
	Address   uint16
	Value     uint32
	Status    TransferStatus
}

// NewRead builds a Pending read transfer.
func NewRead(port PortType, address uint16) SwdTransfer {
	return SwdTransfer{Port: port, Direction: Read, Address: address, Status: Pending()}
}

// NewWrite builds a Pending write transfer carrying value.
func NewWrite(port PortType, address uint16, value uint32) SwdTransfer {
	return SwdTransfer{Port: port, Direction: Write, Address: address, Value: value, Status: Pending()}
}

// DebugProbeError classifies failures at the operation level, above the
// per-transfer DapError taxonomy.
type DebugProbeError struct {
	kind debugProbeErrorKind
	msg  string
	err  error
}

type debugProbeErrorKind int

const (
	UnsupportedProtocol debugProbeErrorKind = iota
	UnsupportedSpeed
	NotImplemented
	Timeout
	ProbeCouldNotBeCreated
	ArchitectureSpecific
	ProbeSpecific
)

func (e *DebugProbeError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *DebugProbeError) Unwrap() error { return e.err }

// Kind returns the error classification.
func (e *DebugProbeError) Kind() debugProbeErrorKind { return e.kind }

func newProbeError(kind debugProbeErrorKind, msg string, wrapped error) *DebugProbeError {
	return &DebugProbeError{kind: kind, msg: msg, err: wrapped}
}

func ErrUnsupportedProtocol(proto WireProtocol) error {
	return newProbeError(UnsupportedProtocol, fmt.Sprintf("unsupported protocol: %s", proto), nil)
}

func ErrUnsupportedSpeed(khz uint32) error {
	return newProbeError(UnsupportedSpeed, fmt.Sprintf("unsupported speed: %d kHz", khz), nil)
}

func ErrNotImplemented(what string) error {
	return newProbeError(NotImplemented, fmt.Sprintf("not implemented: %s", what), nil)
}

func ErrTimeout() error {
	return newProbeError(Timeout, "operation timed out after exhausting retries", nil)
}

func ErrProbeCouldNotBeCreated(wrapped error) error {
	return newProbeError(ProbeCouldNotBeCreated, "probe could not be created", wrapped)
}

func ErrArchitectureSpecific(msg string, wrapped error) error {
	return newProbeError(ArchitectureSpecific, msg, wrapped)
}

func ErrProbeSpecific(wrapped error) error {
	return newProbeError(ProbeSpecific, "transport error", wrapped)
}

// IsKind reports whether err is a *DebugProbeError with the given kind.
func IsKind(err error, kind debugProbeErrorKind) bool {
	pe, ok := err.(*DebugProbeError)
	if !ok {
		return false
	}
	return pe.kind == kind
}

// ProbeState holds the mutable attach-time state of a Probe: the selected
// protocol, the set of protocols the transport supports, the JTAG shadow IR
// register, idle-cycle counts, clock speed, and SWO configuration.
//
// CurrentIR tracks the last IR value successfully shifted; register accesses
// skip the IR write when it already matches.
type ProbeState struct {
	SelectedProtocol *WireProtocol
	Supported        map[WireProtocol]bool
	CurrentIR        uint32
	JtagIdleCycles   uint8
	SpeedKHz         uint32
	SwoConfig        *SwoConfig
}

// NewProbeState returns a freshly attached ProbeState. CurrentIR starts at
// 1, the IDCODE instruction a RISC-V DTM selects out of reset.
func NewProbeState() *ProbeState {
	return &ProbeState{
		Supported:      make(map[WireProtocol]bool),
		CurrentIR:      1,
		JtagIdleCycles: 0,
	}
}

// SwoConfig describes an active SWO UART capture session.
type SwoConfig struct {
	Baud uint32
}

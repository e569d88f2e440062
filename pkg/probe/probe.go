package probe

import (
	"time"

	"github.com/go-dap/jlink/pkg/dap"
	"github.com/go-dap/jlink/pkg/dapproto"
	"github.com/go-dap/jlink/pkg/jtagshift"
	"github.com/go-dap/jlink/pkg/swo"
	"github.com/sirupsen/logrus"
)

// SWOBufferSizeBytes is the SWO capture buffer size requested from the
// probe.
const SWOBufferSizeBytes = 128

// Probe is the top-level debug probe: it owns a ProbeTransport, the shared
// ProbeState, and the DAP/JTAG components layered above the wire.
type Probe struct {
	transport ProbeTransport
	state     *dapproto.ProbeState
	retry     *dap.RetryLoop
	jtag      *jtagshift.Shifter
	log       *logrus.Logger
}

// OpenFunc resolves a Selector to a live ProbeTransport, or returns
// ProbeCouldNotBeCreated-class errors (NotFound / AmbiguousMatch) when the
// selection can't be made unambiguously. A concrete implementation lives in
// internal/cmsisdap; pkg/probe never imports a transport package directly so
// tests can substitute a fake.
type OpenFunc func(Selector) (ProbeTransport, error)

// New wraps an already-open transport in a Probe, ready for SelectProtocol
// and Attach. Most callers go through NewFromSelector instead.
func New(transport ProbeTransport, log *logrus.Logger) *Probe {
	if log == nil {
		log = logrus.StandardLogger()
	}
	state := dapproto.NewProbeState()
	retry := dap.NewRetryLoop(transport, log)
	return &Probe{
		transport: transport,
		state:     state,
		retry:     retry,
		jtag:      jtagshift.New(transport, state),
		log:       log,
	}
}

// NewFromSelector resolves sel via open and wraps the result in a Probe.
func NewFromSelector(sel Selector, open OpenFunc, log *logrus.Logger) (*Probe, error) {
	transport, err := open(sel)
	if err != nil {
		return nil, err
	}
	return New(transport, log), nil
}

// SelectProtocol chooses the wire protocol for this session.
func (p *Probe) SelectProtocol(proto dapproto.WireProtocol) error {
	return p.selectProtocol(proto)
}

// Attach brings up the currently selected protocol: JTAG TAP reset plus
// IDCODE scan, or the SWD line-reset/DPIDR handshake.
func (p *Probe) Attach() error {
	if p.state.SelectedProtocol == nil {
		return dapproto.ErrNotImplemented("attach requires SelectProtocol first")
	}

	if vtref, err := p.transport.ReadTargetVoltageMillivolts(); err == nil && vtref == 0 {
		p.log.Warn("probe: target voltage reads 0 mV; target may be unpowered or disconnected")
	}
	if fw, err := p.transport.ReadFirmwareVersion(); err == nil {
		p.log.Debugf("probe: firmware version %s", fw)
	}
	if hw, err := p.transport.ReadHardwareVersion(); err == nil {
		p.log.Debugf("probe: hardware version %s", hw)
	}
	if serial, err := p.transport.SerialString(); err == nil {
		p.log.Debugf("probe: serial %s", serial)
	}

	switch *p.state.SelectedProtocol {
	case dapproto.Jtag:
		return p.attachJTAG()
	case dapproto.Swd:
		return p.attachSWD()
	default:
		return dapproto.ErrUnsupportedProtocol(*p.state.SelectedProtocol)
	}
}

// Detach releases the transport. Bus state is left to whatever the
// transport's Close does; no tri-state sequence is clocked first.
func (p *Probe) Detach() error {
	return p.transport.Close()
}

// TargetReset pulses SRST. Soft (protocol-level) reset distinct from TRST is
// not implemented; see DESIGN.md.
func (p *Probe) TargetReset() error {
	if err := p.TargetResetAssert(); err != nil {
		return err
	}
	return p.TargetResetDeassert()
}

func (p *Probe) TargetResetAssert() error {
	if err := p.transport.SetReset(true); err != nil {
		return dapproto.ErrProbeSpecific(err)
	}
	return nil
}

func (p *Probe) TargetResetDeassert() error {
	if err := p.transport.SetReset(false); err != nil {
		return dapproto.ErrProbeSpecific(err)
	}
	return nil
}

// SetSpeed negotiates the closest achievable clock at or below khz.
func (p *Probe) SetSpeed(khz uint32) error {
	return p.setSpeed(khz)
}

// Speed returns the last negotiated clock speed in kHz.
func (p *Probe) Speed() uint32 {
	return p.state.SpeedKHz
}

// HasARMInterface reports whether SWD attach is possible.
func (p *Probe) HasARMInterface() bool {
	return p.state.Supported[dapproto.Swd]
}

// HasRISCVInterface reports whether JTAG attach is possible.
func (p *Probe) HasRISCVInterface() bool {
	return p.state.Supported[dapproto.Jtag]
}

// DAP returns the DAPAccess view of this probe, valid once SWD is attached.
func (p *Probe) DAP() DAPAccess { return dapAccess{p} }

// JTAG returns the JTAGAccess view of this probe, valid once JTAG is attached.
func (p *Probe) JTAG() JTAGAccess { return jtagAccess{p} }

// SWO returns the SwoAccess view of this probe.
func (p *Probe) SWO() SwoAccess { return swoAccess{p} }

type dapAccess struct{ p *Probe }

func (d dapAccess) ReadRegister(port dapproto.PortType, addr uint16) (uint32, error) {
	return d.p.retry.ReadRegister(port, addr)
}

func (d dapAccess) WriteRegister(port dapproto.PortType, addr uint16, value uint32) error {
	return d.p.retry.WriteRegister(port, addr, value)
}

type jtagAccess struct{ p *Probe }

func (j jtagAccess) ReadRegister(addr uint32, lenBits int) ([]byte, error) {
	return j.p.jtag.ReadRegister(addr, lenBits)
}

func (j jtagAccess) WriteRegister(addr uint32, data []byte, lenBits int) ([]byte, error) {
	return j.p.jtag.WriteRegister(addr, data, lenBits)
}

func (j jtagAccess) SetIdleCycles(n uint8) {
	j.p.jtag.SetIdleCycles(n)
}

type swoAccess struct{ p *Probe }

func (s swoAccess) EnableSWO(config dapproto.SwoConfig) error {
	if err := s.p.transport.SwoStartUART(config.Baud, SWOBufferSizeBytes); err != nil {
		return dapproto.ErrProbeSpecific(err)
	}
	s.p.state.SwoConfig = &config
	return nil
}

func (s swoAccess) DisableSWO() error {
	if err := s.p.transport.SwoStop(); err != nil {
		return dapproto.ErrProbeSpecific(err)
	}
	s.p.state.SwoConfig = nil
	return nil
}

func (s swoAccess) SWOBufferSize() int { return SWOBufferSizeBytes }

func (s swoAccess) ReadSWOTimeout(d time.Duration) ([]byte, error) {
	return swo.ReadTimeout(s.p.transport, d)
}

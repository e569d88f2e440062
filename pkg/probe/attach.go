package probe

import (
	"fmt"
	"math"

	"github.com/go-dap/jlink/pkg/bitio"
	"github.com/go-dap/jlink/pkg/dap"
	"github.com/go-dap/jlink/pkg/dapproto"
	"github.com/go-dap/jlink/pkg/idcode"
)

// jtagToSWDMagic is the 16-bit JTAG-to-SWD switch sequence, listed LSB-first
// on the wire exactly as it must be transmitted.
var jtagToSWDMagic = []bool{false, true, true, true, true, false, false, true, true, true, true, false, false, true, true, true}

// selectProtocol queries transport capabilities and records which protocols
// are available. Requesting a protocol the transport never reports as
// available fails with UnsupportedProtocol.
func (p *Probe) selectProtocol(proto dapproto.WireProtocol) error {
	caps, err := p.transport.ReadCapabilities()
	if err != nil {
		return dapproto.ErrProbeSpecific(err)
	}

	if caps.HasSelectInterface {
		ifaces, err := p.transport.ReadAvailableInterfaces()
		if err != nil {
			return dapproto.ErrProbeSpecific(err)
		}
		for _, i := range ifaces {
			p.state.Supported[i] = true
		}
	} else {
		// No SELECT_IF command: older probes are JTAG-only.
		p.state.Supported[dapproto.Jtag] = true
	}

	if !p.state.Supported[proto] {
		return dapproto.ErrUnsupportedProtocol(proto)
	}

	if caps.HasSelectInterface {
		if err := p.transport.SelectInterface(proto); err != nil {
			return dapproto.ErrProbeSpecific(err)
		}
	}

	sel := proto
	p.state.SelectedProtocol = &sel
	return nil
}

// attachJTAG asserts TRST, drives the TAP to Run-Test/Idle via 5 TMS-high
// cycles plus one low, then shifts out and logs the 32-bit IDCODE.
func (p *Probe) attachJTAG() error {
	if err := p.transport.ResetTRST(); err != nil {
		return dapproto.ErrProbeSpecific(err)
	}

	tms := append([]bool{true, true, true, true, true}, false)
	tdi := make([]bool, len(tms))
	if _, err := p.transport.JtagIO(tms, tdi); err != nil {
		return dapproto.ErrProbeSpecific(err)
	}

	raw, err := p.jtag.ReadDR(32)
	if err != nil {
		return fmt.Errorf("probe: attach(JTAG) idcode read: %w", err)
	}

	id := idcode.Parse(bitio.PackedUint32(bitio.UnpackLSB(raw, 32)))
	if id.Valid {
		p.log.Infof("probe: attach(JTAG) IDCODE=0x%08X manufacturer=%s part=0x%04X", id.Raw, id.ManufacturerName(), id.Part)
	} else {
		p.log.Warnf("probe: attach(JTAG) IDCODE=0x%08X has no IDCODE bit set, TAP may be bypassed", id.Raw)
	}

	return nil
}

// attachSWD emits the line-reset preamble and JTAG-to-SWD magic sequence,
// then performs an SWD line reset and reads DPIDR, retrying the line reset
// once if the target was mid-transfer.
func (p *Probe) attachSWD() error {
	bb := bitio.NewWithCapacity(80)
	for i := 0; i < 64; i++ {
		bb.PushOutput(true)
	}
	bb.PushOutputMany(jtagToSWDMagic)

	if _, err := p.transport.SwdIO(bb.Dir(), bb.IO()); err != nil {
		return dapproto.ErrProbeSpecific(err)
	}

	// The DPIDR read goes straight through the sequencer: a target caught
	// mid-transfer deserves exactly one more line reset, not the full retry
	// loop's recovery machinery.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := dap.LineReset(p.transport); err != nil {
			return dapproto.ErrProbeSpecific(err)
		}
		t := dapproto.NewRead(dapproto.DebugPort(), dap.AddrDPIDR)
		if err := dap.Execute(p.transport, []*dapproto.SwdTransfer{&t}); err != nil {
			return err
		}
		if t.Status.IsOk() {
			p.log.Debugf("probe: attach(SWD) DPIDR=0x%08X", t.Value)
			return nil
		}
		lastErr = t.Status.Err()
	}
	return fmt.Errorf("probe: attach(SWD) DPIDR read failed after retry: %w", lastErr)
}

// setSpeed implements the divider search: reject 0 or >=65535 kHz up front,
// then pick the smallest divider whose clock does not exceed the requested
// speed.
func (p *Probe) setSpeed(khz uint32) error {
	if khz == 0 || khz >= 65535 {
		return dapproto.ErrUnsupportedSpeed(khz)
	}

	speeds, err := p.transport.ReadSpeeds()
	if err != nil {
		return dapproto.ErrProbeSpecific(err)
	}

	speedHz := khz * 1000
	div := uint32(math.Ceil(float64(speeds.BaseFreqHz) / float64(speedHz)))
	if div < speeds.MinDiv {
		div = speeds.MinDiv
	}

	actual := uint32(math.Ceil(float64(speeds.BaseFreqHz/div) / 1000.0))
	if actual > khz {
		return dapproto.ErrUnsupportedSpeed(khz)
	}

	if err := p.transport.SetSpeed(uint16(actual)); err != nil {
		return dapproto.ErrProbeSpecific(err)
	}
	p.state.SpeedKHz = actual
	return nil
}

package cmsisdap

import (
	"fmt"
	"sync"

	"github.com/boljen/go-bitmap"
	"github.com/sirupsen/logrus"

	"github.com/go-dap/jlink/pkg/dapproto"
	"github.com/go-dap/jlink/pkg/probe"
)

// maxClockHz is the highest TCK/SWCLK frequency this transport will program.
// CMSIS-DAP probes have no query for their clock generator, so the divider
// model exposed through ReadSpeeds is synthesized from this ceiling.
const maxClockHz = 10_000_000

// swoTransportData and swoModeUART select reading trace bytes through
// DAP_SWO_Data in UART framing.
const (
	swoTransportData = 1
	swoModeUART      = 1
)

// Transport drives a CMSIS-DAP probe over USB. Each command/response round
// trip holds an internal mutex, since the probe hardware processes one packet
// at a time; a multi-packet burst is not held under the lock as a whole, and
// the cached identity and capability getters do not take it.
type Transport struct {
	usb *usbDevice
	log *logrus.Logger

	mu sync.Mutex

	caps     bitmap.Bitmap
	serial   string
	product  string
	firmware string
	vid, pid uint16

	currentPort byte
	swoBufSize  int
}

var _ probe.ProbeTransport = (*Transport)(nil)

// Open resolves sel to exactly one CMSIS-DAP probe and prepares it for use.
// Selection failures come back wrapped as ProbeCouldNotBeCreated.
func Open(sel probe.Selector, log *logrus.Logger) (*Transport, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	usb, err := openUSB(sel, log)
	if err != nil {
		return nil, dapproto.ErrProbeCouldNotBeCreated(err)
	}

	t := &Transport{usb: usb, log: log}
	if err := t.queryInfo(); err != nil {
		usb.close()
		return nil, dapproto.ErrProbeCouldNotBeCreated(err)
	}

	log.Debugf("cmsisdap: opened %s (serial %q, firmware %q, packet size %d)",
		t.product, t.serial, t.firmware, usb.packetSize)
	return t, nil
}

// queryInfo reads the identification strings, capability bits, and packet
// size the rest of the driver consults.
func (t *Transport) queryInfo() error {
	desc := t.usb.dev.Desc
	t.vid, t.pid = uint16(desc.Vendor), uint16(desc.Product)

	if serial, err := t.usb.dev.SerialNumber(); err == nil {
		t.serial = serial
	}
	if product, err := t.usb.dev.Product(); err == nil {
		t.product = product
	}

	resp, err := t.usb.writeRead(EncodeInfo(InfoFirmwareVer))
	if err != nil {
		return err
	}
	if fw, err := DecodeInfoString(resp); err == nil {
		t.firmware = fw
	}

	resp, err = t.usb.writeRead(EncodeInfo(InfoCapabilities))
	if err != nil {
		return err
	}
	capBytes, err := DecodeInfoBytes(resp)
	if err != nil {
		return err
	}
	if len(capBytes) == 0 {
		return fmt.Errorf("cmsisdap: empty capabilities response")
	}
	t.caps = bitmap.Bitmap(capBytes)

	resp, err = t.usb.writeRead(EncodeInfo(InfoPacketSize))
	if err != nil {
		return err
	}
	if size, err := DecodeInfoUint16(resp); err == nil && int(size) > 0 {
		t.usb.packetSize = int(size)
	}

	return nil
}

// command runs one locked write/read round trip.
func (t *Transport) command(cmd []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usb.writeRead(cmd)
}

// ReadCapabilities maps the probe's capability bits onto the surface
// pkg/probe understands. Every CMSIS-DAP probe can switch ports through
// DAP_Connect, so interface selection is always available.
func (t *Transport) ReadCapabilities() (probe.Capabilities, error) {
	return probe.Capabilities{
		HasSelectInterface: true,
		HasSWD:             t.caps.Get(CapSWD),
		HasJTAG:            t.caps.Get(CapJTAG),
		HasSWO:             t.caps.Get(CapSWOUART),
	}, nil
}

func (t *Transport) ReadAvailableInterfaces() ([]dapproto.WireProtocol, error) {
	var out []dapproto.WireProtocol
	if t.caps.Get(CapSWD) {
		out = append(out, dapproto.Swd)
	}
	if t.caps.Get(CapJTAG) {
		out = append(out, dapproto.Jtag)
	}
	return out, nil
}

func (t *Transport) ReadCurrentInterface() (dapproto.WireProtocol, error) {
	switch t.currentPort {
	case PortSWD:
		return dapproto.Swd, nil
	case PortJTAG:
		return dapproto.Jtag, nil
	default:
		return 0, fmt.Errorf("cmsisdap: no interface connected")
	}
}

// SelectInterface issues DAP_Connect for the requested port, verifying the
// probe actually granted it rather than falling back to its default.
func (t *Transport) SelectInterface(proto dapproto.WireProtocol) error {
	var port byte
	switch proto {
	case dapproto.Swd:
		port = PortSWD
	case dapproto.Jtag:
		port = PortJTAG
	default:
		return dapproto.ErrUnsupportedProtocol(proto)
	}

	resp, err := t.command(EncodeConnect(port))
	if err != nil {
		return err
	}
	granted, err := DecodeConnect(resp)
	if err != nil {
		return err
	}
	if granted != port {
		return fmt.Errorf("cmsisdap: requested port %d, probe connected port %d", port, granted)
	}
	t.currentPort = port
	t.log.Debugf("cmsisdap: connected %s", proto)
	return nil
}

// ReadSpeeds reports the synthesized clock model: a fixed base frequency
// divided by any integer divider.
func (t *Transport) ReadSpeeds() (probe.Speeds, error) {
	return probe.Speeds{BaseFreqHz: maxClockHz, MinDiv: 1}, nil
}

func (t *Transport) SetSpeed(khz uint16) error {
	resp, err := t.command(EncodeSWJClock(uint32(khz) * 1000))
	if err != nil {
		return err
	}
	return DecodeStatus(CmdSWJClock, resp)
}

// SetReset drives nRESET: asserted means the line pulled low.
func (t *Transport) SetReset(assert bool) error {
	var level byte
	if !assert {
		level = 1 << PinNRESET
	}
	resp, err := t.command(EncodeSWJPins(level, 1<<PinNRESET, 0))
	if err != nil {
		return err
	}
	_, err = DecodeSWJPins(resp)
	return err
}

// ResetTRST pulses nTRST low and releases it.
func (t *Transport) ResetTRST() error {
	resp, err := t.command(EncodeSWJPins(0, 1<<PinNTRST, 0))
	if err != nil {
		return err
	}
	if _, err := DecodeSWJPins(resp); err != nil {
		return err
	}
	resp, err = t.command(EncodeSWJPins(1<<PinNTRST, 1<<PinNTRST, 0))
	if err != nil {
		return err
	}
	_, err = DecodeSWJPins(resp)
	return err
}

// SwdIO clocks one bit-banged SWD transaction. The burst is split into runs
// of equal direction, each run becoming one DAP_SWD_Sequence descriptor;
// runs are packed into as few USB packets as the probe's packet size allows.
// The returned stream has the same length as dir: captured bits fill input
// positions, and output positions echo the driven bits (the probe does not
// sample while it drives).
func (t *Transport) SwdIO(dir []bool, io []bool) ([]bool, error) {
	if len(dir) != len(io) {
		return nil, fmt.Errorf("cmsisdap: swd burst dir/io length mismatch (%d vs %d)", len(dir), len(io))
	}

	sampled := make([]bool, len(dir))
	copy(sampled, io)

	type run struct {
		seq   Sequence
		start int // bit offset of this run in the burst
	}
	var runs []run

	pos := 0
	for pos < len(dir) {
		input := !dir[pos]
		n := 0
		for pos+n < len(dir) && n < maxSeqBits && dir[pos+n] == dir[pos] {
			n++
		}
		var data []byte
		if !input {
			data = packBits(io[pos : pos+n])
		}
		runs = append(runs, run{seq: SWDSequence(n, input, data), start: pos})
		pos += n
	}

	// Flush greedily: each packet carries as many runs as fit in both the
	// request and the capture response.
	flush := func(batch []run) error {
		seqs := make([]Sequence, len(batch))
		for i, r := range batch {
			seqs[i] = r.seq
		}
		resp, err := t.command(EncodeSequences(CmdSWDSeq, seqs))
		if err != nil {
			return err
		}
		captured, err := DecodeSequences(CmdSWDSeq, resp, seqs)
		if err != nil {
			return err
		}
		ci := 0
		for _, r := range batch {
			if !r.seq.Captures(CmdSWDSeq) {
				continue
			}
			unpackBits(captured[ci], sampled[r.start:r.start+r.seq.Bits()])
			ci++
		}
		return nil
	}

	if err := t.batchRuns(len(runs), func(i int) Sequence { return runs[i].seq },
		func(lo, hi int) error { return flush(runs[lo:hi]) }); err != nil {
		return nil, err
	}
	return sampled, nil
}

// JtagIO clocks one TMS/TDI shift and returns the sampled TDO stream. TMS is
// level-per-sequence in CMSIS-DAP, so the burst splits on TMS transitions.
func (t *Transport) JtagIO(tms []bool, tdi []bool) ([]bool, error) {
	if len(tms) != len(tdi) {
		return nil, fmt.Errorf("cmsisdap: jtag burst tms/tdi length mismatch (%d vs %d)", len(tms), len(tdi))
	}

	tdo := make([]bool, len(tms))

	type run struct {
		seq   Sequence
		start int
	}
	var runs []run

	pos := 0
	for pos < len(tms) {
		n := 0
		for pos+n < len(tms) && n < maxSeqBits && tms[pos+n] == tms[pos] {
			n++
		}
		seq := JTAGSequence(n, tms[pos], true, packBits(tdi[pos:pos+n]))
		runs = append(runs, run{seq: seq, start: pos})
		pos += n
	}

	flush := func(batch []run) error {
		seqs := make([]Sequence, len(batch))
		for i, r := range batch {
			seqs[i] = r.seq
		}
		resp, err := t.command(EncodeSequences(CmdJTAGSeq, seqs))
		if err != nil {
			return err
		}
		captured, err := DecodeSequences(CmdJTAGSeq, resp, seqs)
		if err != nil {
			return err
		}
		for i, r := range batch {
			unpackBits(captured[i], tdo[r.start:r.start+r.seq.Bits()])
		}
		return nil
	}

	if err := t.batchRuns(len(runs), func(i int) Sequence { return runs[i].seq },
		func(lo, hi int) error { return flush(runs[lo:hi]) }); err != nil {
		return nil, err
	}
	return tdo, nil
}

// batchRuns walks n sequence descriptors, flushing [lo,hi) windows sized so
// each request fits one USB packet and its capture fits one response packet.
func (t *Transport) batchRuns(n int, seq func(int) Sequence, flush func(lo, hi int) error) error {
	lo := 0
	reqSize, respSize := 2, 2
	for i := 0; i < n; i++ {
		s := seq(i)
		r := 1 + len(s.Data)
		c := 0
		if s.Info&swdSeqInput != 0 || s.Info&jtagSeqTDO != 0 {
			c = dataLen(s.Bits())
		}
		if i > lo && (reqSize+r > t.usb.packetSize || respSize+c > t.usb.packetSize || i-lo >= 255) {
			if err := flush(lo, i); err != nil {
				return err
			}
			lo, reqSize, respSize = i, 2, 2
		}
		reqSize += r
		respSize += c
	}
	if lo < n {
		return flush(lo, n)
	}
	return nil
}

func (t *Transport) SwoStartUART(baud uint32, bufferSize int) error {
	t.swoBufSize = bufferSize

	resp, err := t.command(EncodeSWOTransport(swoTransportData))
	if err != nil {
		return err
	}
	if err := DecodeStatus(CmdSWOTrans, resp); err != nil {
		return err
	}

	resp, err = t.command(EncodeSWOMode(swoModeUART))
	if err != nil {
		return err
	}
	if err := DecodeStatus(CmdSWOMode, resp); err != nil {
		return err
	}

	resp, err = t.command(EncodeSWOBaudrate(baud))
	if err != nil {
		return err
	}
	actual, err := DecodeSWOBaudrate(resp)
	if err != nil {
		return err
	}
	if actual == 0 {
		return fmt.Errorf("cmsisdap: probe rejected SWO baud rate %d", baud)
	}
	if actual != baud {
		t.log.Warnf("cmsisdap: SWO baud %d requested, probe configured %d", baud, actual)
	}

	resp, err = t.command(EncodeSWOControl(true))
	if err != nil {
		return err
	}
	return DecodeStatus(CmdSWOControl, resp)
}

func (t *Transport) SwoStop() error {
	resp, err := t.command(EncodeSWOControl(false))
	if err != nil {
		return err
	}
	return DecodeStatus(CmdSWOControl, resp)
}

// SwoRead drains up to len(buf) pending trace bytes into buf.
func (t *Transport) SwoRead(buf []byte) ([]byte, error) {
	max := len(buf)
	if t.swoBufSize > 0 && max > t.swoBufSize {
		max = t.swoBufSize
	}
	// The count and header share the response packet with the data.
	if max > t.usb.packetSize-4 {
		max = t.usb.packetSize - 4
	}

	resp, err := t.command(EncodeSWOData(uint16(max)))
	if err != nil {
		return nil, err
	}
	data, err := DecodeSWOData(resp)
	if err != nil {
		return nil, err
	}
	return buf[:copy(buf, data)], nil
}

func (t *Transport) SerialString() (string, error)  { return t.serial, nil }
func (t *Transport) ProductString() (string, error) { return t.product, nil }
func (t *Transport) VIDPID() (vid, pid uint16)      { return t.vid, t.pid }

func (t *Transport) ReadFirmwareVersion() (string, error) { return t.firmware, nil }

// ReadHardwareVersion reports the USB device release number; CMSIS-DAP has
// no dedicated hardware revision query.
func (t *Transport) ReadHardwareVersion() (string, error) {
	return t.usb.dev.Desc.Device.String(), nil
}

// ReadTargetVoltageMillivolts is unsupported on CMSIS-DAP: the protocol has
// no VTref query.
func (t *Transport) ReadTargetVoltageMillivolts() (int, error) {
	return 0, fmt.Errorf("cmsisdap: target voltage readout not supported")
}

// Close disconnects the probe and releases the USB stack.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.currentPort != PortDefault {
		if _, err := t.usb.writeRead(EncodeDisconnect()); err != nil {
			t.log.Debugf("cmsisdap: disconnect on close: %v", err)
		}
		t.currentPort = PortDefault
	}
	return t.usb.close()
}

// packBits packs an LSB-first bit run into bytes.
func packBits(bits []bool) []byte {
	out := make([]byte, dataLen(len(bits)))
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// unpackBits expands packed bytes into dst, LSB-first, up to len(dst) bits.
func unpackBits(data []byte, dst []bool) {
	for i := range dst {
		if i/8 >= len(data) {
			return
		}
		dst[i] = data[i/8]>>(uint(i)%8)&1 != 0
	}
}

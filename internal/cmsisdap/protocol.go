package cmsisdap

import (
	"encoding/binary"
	"fmt"
)

// CMSIS-DAP command IDs used by this transport.
const (
	CmdInfo        = 0x00
	CmdHostStatus  = 0x01
	CmdConnect     = 0x02
	CmdDisconnect  = 0x03
	CmdDelay       = 0x09
	CmdResetTarget = 0x0A
	CmdSWJPins     = 0x10
	CmdSWJClock    = 0x11
	CmdSWJSequence = 0x12
	CmdJTAGSeq     = 0x14
	CmdSWOTrans    = 0x17
	CmdSWOMode     = 0x18
	CmdSWOBaudrate = 0x19
	CmdSWOControl  = 0x1A
	CmdSWOStatus   = 0x1B
	CmdSWOData     = 0x1C
	CmdSWDSeq      = 0x1D
)

// DAP_Info IDs.
const (
	InfoVendorID     = 0x01
	InfoProductID    = 0x02
	InfoSerialNum    = 0x03
	InfoFirmwareVer  = 0x04
	InfoCapabilities = 0xF0
	InfoPacketCount  = 0xFE
	InfoPacketSize   = 0xFF
)

// Capability bits in the DAP_Info(CAPABILITIES) response, first info byte.
const (
	CapSWD           = 0
	CapJTAG          = 1
	CapSWOUART       = 2
	CapSWOManchester = 3
	CapAtomic        = 4
)

// DAP_Connect port selectors.
const (
	PortDefault = 0
	PortSWD     = 1
	PortJTAG    = 2
)

// DAP_SWJ_Pins bit positions.
const (
	PinSWCLK  = 0
	PinSWDIO  = 1
	PinTDI    = 2
	PinTDO    = 3
	PinNTRST  = 5
	PinNRESET = 7
)

// Status byte values.
const (
	StatusOK    = 0x00
	StatusError = 0xFF
)

// Sequence info byte layout, shared by DAP_JTAG_Sequence and
// DAP_SWD_Sequence: bits [5:0] carry the clock count (0 encodes 64), the top
// two bits carry per-command flags.
const (
	seqCountMask = 0x3F
	jtagSeqTMS   = 0x40 // TMS level held for the whole JTAG sequence
	jtagSeqTDO   = 0x80 // capture TDO
	swdSeqInput  = 0x80 // target drives SWDIO; probe captures
)

// maxSeqBits is the largest clock count one sequence descriptor can carry.
const maxSeqBits = 64

// Sequence is one run of clocks sharing a direction (SWD) or TMS level
// (JTAG). Data is LSB-first packed; nil for SWD input runs, which carry no
// host-driven bits.
type Sequence struct {
	Info byte
	Data []byte
}

// Bits returns the clock count encoded in the info byte.
func (s Sequence) Bits() int {
	n := int(s.Info & seqCountMask)
	if n == 0 {
		return maxSeqBits
	}
	return n
}

// Captures reports whether this sequence produces response bytes: a JTAG
// sequence with TDO capture requested, or an SWD input sequence.
func (s Sequence) Captures(cmd byte) bool {
	if cmd == CmdJTAGSeq {
		return s.Info&jtagSeqTDO != 0
	}
	return s.Info&swdSeqInput != 0
}

// dataLen is the number of packed data bytes a sequence of n bits occupies.
func dataLen(n int) int { return (n + 7) / 8 }

// EncodeInfo builds a DAP_Info request.
func EncodeInfo(id byte) []byte { return []byte{CmdInfo, id} }

// DecodeInfoString parses a DAP_Info response carrying a string payload.
func DecodeInfoString(resp []byte) (string, error) {
	if len(resp) < 2 {
		return "", fmt.Errorf("cmsisdap: info response too short")
	}
	if resp[0] != CmdInfo {
		return "", fmt.Errorf("cmsisdap: info response has command 0x%02X", resp[0])
	}
	n := int(resp[1])
	if len(resp) < 2+n {
		return "", fmt.Errorf("cmsisdap: info string truncated (%d of %d bytes)", len(resp)-2, n)
	}
	// Firmware strings are often NUL-terminated inside the declared length.
	s := resp[2 : 2+n]
	for i, c := range s {
		if c == 0 {
			s = s[:i]
			break
		}
	}
	return string(s), nil
}

// DecodeInfoBytes parses a DAP_Info response carrying a raw byte payload,
// such as CAPABILITIES.
func DecodeInfoBytes(resp []byte) ([]byte, error) {
	if len(resp) < 2 {
		return nil, fmt.Errorf("cmsisdap: info response too short")
	}
	if resp[0] != CmdInfo {
		return nil, fmt.Errorf("cmsisdap: info response has command 0x%02X", resp[0])
	}
	n := int(resp[1])
	if len(resp) < 2+n {
		return nil, fmt.Errorf("cmsisdap: info payload truncated (%d of %d bytes)", len(resp)-2, n)
	}
	return resp[2 : 2+n], nil
}

// DecodeInfoUint16 parses a DAP_Info response carrying a little-endian u16,
// such as PACKET_SIZE.
func DecodeInfoUint16(resp []byte) (uint16, error) {
	b, err := DecodeInfoBytes(resp)
	if err != nil {
		return 0, err
	}
	if len(b) < 2 {
		return 0, fmt.Errorf("cmsisdap: info payload too short for u16")
	}
	return binary.LittleEndian.Uint16(b), nil
}

// EncodeConnect builds a DAP_Connect request for the given port.
func EncodeConnect(port byte) []byte { return []byte{CmdConnect, port} }

// DecodeConnect parses a DAP_Connect response and returns the port actually
// selected by the probe. A zero port means the probe refused the connection.
func DecodeConnect(resp []byte) (byte, error) {
	if len(resp) < 2 || resp[0] != CmdConnect {
		return 0, fmt.Errorf("cmsisdap: malformed connect response")
	}
	if resp[1] == PortDefault {
		return 0, fmt.Errorf("cmsisdap: probe refused connection")
	}
	return resp[1], nil
}

// EncodeDisconnect builds a DAP_Disconnect request.
func EncodeDisconnect() []byte { return []byte{CmdDisconnect} }

// EncodeResetTarget builds a DAP_ResetTarget request.
func EncodeResetTarget() []byte { return []byte{CmdResetTarget} }

// DecodeStatus parses the single status byte most commands return.
func DecodeStatus(cmd byte, resp []byte) error {
	if len(resp) < 2 || resp[0] != cmd {
		return fmt.Errorf("cmsisdap: malformed response to command 0x%02X", cmd)
	}
	if resp[1] != StatusOK {
		return fmt.Errorf("cmsisdap: command 0x%02X failed with status 0x%02X", cmd, resp[1])
	}
	return nil
}

// EncodeSWJClock builds a DAP_SWJ_Clock request for the given frequency.
func EncodeSWJClock(hz uint32) []byte {
	cmd := make([]byte, 5)
	cmd[0] = CmdSWJClock
	binary.LittleEndian.PutUint32(cmd[1:], hz)
	return cmd
}

// EncodeSWJPins builds a DAP_SWJ_Pins request driving the pins selected in
// mask to the levels in output, waiting up to waitUS microseconds for them to
// settle.
func EncodeSWJPins(output, mask byte, waitUS uint32) []byte {
	cmd := make([]byte, 7)
	cmd[0] = CmdSWJPins
	cmd[1] = output
	cmd[2] = mask
	binary.LittleEndian.PutUint32(cmd[3:], waitUS)
	return cmd
}

// DecodeSWJPins parses a DAP_SWJ_Pins response and returns the sampled pin
// levels.
func DecodeSWJPins(resp []byte) (byte, error) {
	if len(resp) < 2 || resp[0] != CmdSWJPins {
		return 0, fmt.Errorf("cmsisdap: malformed SWJ pins response")
	}
	return resp[1], nil
}

// EncodeSWJSequence builds a DAP_SWJ_Sequence request clocking out bits
// LSB-first. SWJ sequences are output-only: they drive SWDIO/TMS without
// sampling, which is all the line-reset and switch preambles need.
func EncodeSWJSequence(bits []bool) []byte {
	n := len(bits)
	cmd := make([]byte, 2+dataLen(n))
	cmd[0] = CmdSWJSequence
	// Count byte: 0 encodes 256.
	cmd[1] = byte(n)
	for i, b := range bits {
		if b {
			cmd[2+i/8] |= 1 << uint(i%8)
		}
	}
	return cmd
}

// SWDSequence builds one DAP_SWD_Sequence run descriptor. For output runs
// data carries the host-driven bits; input runs carry none.
func SWDSequence(bits int, input bool, data []byte) Sequence {
	info := byte(bits & seqCountMask)
	if input {
		info |= swdSeqInput
		return Sequence{Info: info}
	}
	return Sequence{Info: info, Data: data}
}

// JTAGSequence builds one DAP_JTAG_Sequence run descriptor holding TMS at a
// fixed level while shifting the given TDI bits.
func JTAGSequence(bits int, tms bool, captureTDO bool, tdi []byte) Sequence {
	info := byte(bits & seqCountMask)
	if tms {
		info |= jtagSeqTMS
	}
	if captureTDO {
		info |= jtagSeqTDO
	}
	return Sequence{Info: info, Data: tdi}
}

// EncodeSequences builds a DAP_SWD_Sequence or DAP_JTAG_Sequence request
// from the given run descriptors.
func EncodeSequences(cmd byte, seqs []Sequence) []byte {
	size := 2
	for _, s := range seqs {
		size += 1 + len(s.Data)
	}
	out := make([]byte, 2, size)
	out[0] = cmd
	out[1] = byte(len(seqs))
	for _, s := range seqs {
		out = append(out, s.Info)
		out = append(out, s.Data...)
	}
	return out
}

// EncodedLen returns the request size EncodeSequences would produce, used to
// split bursts across fixed-size packets.
func EncodedLen(seqs []Sequence) int {
	size := 2
	for _, s := range seqs {
		size += 1 + len(s.Data)
	}
	return size
}

// DecodeSequences parses the response to a sequence command, returning the
// captured byte runs in the order of the capturing descriptors.
func DecodeSequences(cmd byte, resp []byte, seqs []Sequence) ([][]byte, error) {
	if err := DecodeStatus(cmd, resp); err != nil {
		return nil, err
	}
	var out [][]byte
	offset := 2
	for _, s := range seqs {
		if !s.Captures(cmd) {
			continue
		}
		n := dataLen(s.Bits())
		if offset+n > len(resp) {
			return nil, fmt.Errorf("cmsisdap: sequence response truncated")
		}
		out = append(out, resp[offset:offset+n])
		offset += n
	}
	return out, nil
}

// EncodeSWOTransport builds a DAP_SWO_Transport request. Transport 1 reads
// trace data via DAP_SWO_Data.
func EncodeSWOTransport(transport byte) []byte { return []byte{CmdSWOTrans, transport} }

// EncodeSWOMode builds a DAP_SWO_Mode request. Mode 1 is UART.
func EncodeSWOMode(mode byte) []byte { return []byte{CmdSWOMode, mode} }

// EncodeSWOBaudrate builds a DAP_SWO_Baudrate request.
func EncodeSWOBaudrate(baud uint32) []byte {
	cmd := make([]byte, 5)
	cmd[0] = CmdSWOBaudrate
	binary.LittleEndian.PutUint32(cmd[1:], baud)
	return cmd
}

// DecodeSWOBaudrate parses the actual baud rate the probe configured.
func DecodeSWOBaudrate(resp []byte) (uint32, error) {
	if len(resp) < 5 || resp[0] != CmdSWOBaudrate {
		return 0, fmt.Errorf("cmsisdap: malformed SWO baudrate response")
	}
	return binary.LittleEndian.Uint32(resp[1:5]), nil
}

// EncodeSWOControl builds a DAP_SWO_Control request; active starts capture,
// inactive stops it.
func EncodeSWOControl(active bool) []byte {
	var b byte
	if active {
		b = 1
	}
	return []byte{CmdSWOControl, b}
}

// EncodeSWOData builds a DAP_SWO_Data request for up to max trace bytes.
func EncodeSWOData(max uint16) []byte {
	cmd := make([]byte, 3)
	cmd[0] = CmdSWOData
	binary.LittleEndian.PutUint16(cmd[1:], max)
	return cmd
}

// DecodeSWOData parses a DAP_SWO_Data response: trace status byte followed
// by a little-endian count and that many trace bytes.
func DecodeSWOData(resp []byte) ([]byte, error) {
	if len(resp) < 4 || resp[0] != CmdSWOData {
		return nil, fmt.Errorf("cmsisdap: malformed SWO data response")
	}
	n := int(binary.LittleEndian.Uint16(resp[2:4]))
	if 4+n > len(resp) {
		return nil, fmt.Errorf("cmsisdap: SWO data truncated (%d of %d bytes)", len(resp)-4, n)
	}
	return resp[4 : 4+n], nil
}

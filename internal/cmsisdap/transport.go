// Package cmsisdap is the concrete ProbeTransport implementation: a
// CMSIS-DAP probe reached over USB bulk endpoints via libusb. It moves
// packed command packets and bit runs; everything that understands ADIv5
// lives above it in pkg/dap and pkg/probe.
package cmsisdap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
	"github.com/sirupsen/logrus"

	"github.com/go-dap/jlink/pkg/probe"
)

const (
	defaultPacketSize = 64
	writeTimeout      = 5 * time.Second
	readTimeout       = 5 * time.Second
)

// Selection errors wrapped into ProbeCouldNotBeCreated by Open.
var (
	ErrNotFound       = errors.New("no probe matched the selector")
	ErrAmbiguousMatch = errors.New("selector matched more than one probe")
)

// usbDevice is a claimed CMSIS-DAP USB function: the vendor-class interface
// and its bulk endpoint pair.
type usbDevice struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
}

// matches reports whether desc satisfies sel. A zero VID/PID matches any
// device; Serial is checked later, against an opened handle.
func matches(sel probe.Selector, desc *gousb.DeviceDesc) bool {
	if sel.VID != 0 && uint16(desc.Vendor) != sel.VID {
		return false
	}
	if sel.PID != 0 && uint16(desc.Product) != sel.PID {
		return false
	}
	return true
}

// openUSB resolves sel to exactly one claimed USB device. More than one
// candidate left after serial filtering is an error: the caller asked for "a
// probe" and got several, and guessing would bind the session to whichever
// enumerated first.
func openUSB(sel probe.Selector, log *logrus.Logger) (*usbDevice, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return matches(sel, desc)
	})
	// OpenDevices reports an error if any single device failed to open; as
	// long as a usable handle came back the failures concern devices we did
	// not match.
	if len(devs) == 0 {
		ctx.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, ErrNotFound
	}

	var candidates []*gousb.Device
	for _, dev := range devs {
		if sel.Serial != "" {
			serial, serr := dev.SerialNumber()
			if serr != nil || serial != sel.Serial {
				dev.Close()
				continue
			}
		}
		candidates = append(candidates, dev)
	}

	switch len(candidates) {
	case 0:
		ctx.Close()
		return nil, ErrNotFound
	case 1:
	default:
		for _, dev := range candidates {
			dev.Close()
		}
		ctx.Close()
		return nil, fmt.Errorf("%w: %d candidates", ErrAmbiguousMatch, len(candidates))
	}

	dev := candidates[0]
	if err := dev.SetAutoDetach(true); err != nil {
		// Only meaningful on Linux; elsewhere the kernel never binds a
		// driver to a vendor-class interface.
		log.Debugf("cmsisdap: auto-detach not available: %v", err)
	}

	u := &usbDevice{ctx: ctx, dev: dev, packetSize: defaultPacketSize}
	if err := u.claim(); err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	return u, nil
}

// claim finds the vendor-class interface carrying the CMSIS-DAP function and
// opens its bulk endpoint pair.
func (u *usbDevice) claim() error {
	cfg, err := u.dev.Config(1)
	if err != nil {
		return fmt.Errorf("cmsisdap: get config: %w", err)
	}
	u.cfg = cfg

	intfNum := -1
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) == 0 {
			continue
		}
		if intf.AltSettings[0].Class == gousb.ClassVendorSpec {
			intfNum = intf.Number
			break
		}
	}
	if intfNum == -1 {
		intfNum = 0
	}

	intf, err := cfg.Interface(intfNum, 0)
	if err != nil {
		return fmt.Errorf("cmsisdap: claim interface %d: %w", intfNum, err)
	}
	u.intf = intf

	var outNum, inNum int
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			if outNum == 0 {
				outNum = ep.Number
			}
		case gousb.EndpointDirectionIn:
			if inNum == 0 {
				inNum = ep.Number
				u.packetSize = ep.MaxPacketSize
			}
		}
	}
	if outNum == 0 || inNum == 0 {
		intf.Close()
		return fmt.Errorf("cmsisdap: bulk endpoint pair not found on interface %d", intfNum)
	}

	epOut, err := intf.OutEndpoint(outNum)
	if err != nil {
		intf.Close()
		return fmt.Errorf("cmsisdap: open OUT endpoint: %w", err)
	}
	epIn, err := intf.InEndpoint(inNum)
	if err != nil {
		intf.Close()
		return fmt.Errorf("cmsisdap: open IN endpoint: %w", err)
	}
	u.epOut, u.epIn = epOut, epIn
	return nil
}

// writeRead performs one command/response round trip. Requests are padded to
// the probe's packet size; CMSIS-DAP consumes fixed-size packets.
func (u *usbDevice) writeRead(cmd []byte) ([]byte, error) {
	packet := make([]byte, u.packetSize)
	copy(packet, cmd)

	wctx, cancelW := context.WithTimeout(context.Background(), writeTimeout)
	defer cancelW()
	if _, err := u.epOut.WriteContext(wctx, packet); err != nil {
		return nil, fmt.Errorf("cmsisdap: usb write: %w", err)
	}

	resp := make([]byte, u.packetSize)
	rctx, cancelR := context.WithTimeout(context.Background(), readTimeout)
	defer cancelR()
	n, err := u.epIn.ReadContext(rctx, resp)
	if err != nil {
		return nil, fmt.Errorf("cmsisdap: usb read: %w", err)
	}
	return resp[:n], nil
}

func (u *usbDevice) close() error {
	if u.intf != nil {
		u.intf.Close()
		u.intf = nil
	}
	if u.cfg != nil {
		u.cfg.Close()
		u.cfg = nil
	}
	if u.dev != nil {
		u.dev.Close()
		u.dev = nil
	}
	if u.ctx != nil {
		u.ctx.Close()
		u.ctx = nil
	}
	return nil
}

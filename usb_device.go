// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Provides low-level interface for the USB page bootloader.
// The bootloader only uses the default control endpoint: every request is a
// vendor-specific control transfer addressed to the device.
package fwupdate

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/golang/glog"
	"github.com/google/gousb"
)

const (
	DefaultVendorID  gousb.ID = 0x16c0
	DefaultProductID gousb.ID = 0x27d8
	DefaultSerial             = "snopf.com:boot"
)

type Request uint8

const (
	ReqGetStatus  Request = 0
	ReqSubmitPage Request = 1
	ReqSubmitCrc  Request = 2
)

func (r Request) String() string {
	switch r {
	case ReqGetStatus:
		return "ReqGetStatus"
	case ReqSubmitPage:
		return "ReqSubmitPage"
	case ReqSubmitCrc:
		return "ReqSubmitCrc"
	}
	return fmt.Sprintf("Request(%d)", uint8(r))
}

const (
	rTypeControlIn  uint8 = gousb.ControlIn | gousb.ControlVendor | gousb.ControlDevice
	rTypeControlOut uint8 = gousb.ControlOut | gousb.ControlVendor | gousb.ControlDevice
)

//go:generate mockgen -destination=mocks/usb_device.go -package=mocks github.com/google/fwupdate UsbDeviceInterface
type UsbDeviceInterface interface {
	io.Closer
	// Sends a request over the control endpoint. Returns the number of
	// bytes actually transferred.
	ControlIn(request Request, val uint16, data []byte) (int, error)
	ControlOut(request Request, val uint16, data []byte) (int, error)
}

type DeviceNotFoundError struct {
	Vendor  gousb.ID
	Product gousb.ID
	Serial  string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("no USB device %v:%v with serial %q", e.Vendor, e.Product, e.Serial)
}

type AmbiguousDeviceError struct {
	Vendor  gousb.ID
	Product gousb.ID
	Serial  string
	Count   int
}

func (e *AmbiguousDeviceError) Error() string {
	return fmt.Sprintf("%d USB devices match %v:%v with serial %q, expected exactly one",
		e.Count, e.Vendor, e.Product, e.Serial)
}

// Encapsulates bootloader USB resources.
type UsbDevice struct {
	ctx *gousb.Context
	dev *gousb.Device
}

// Opens the single device matching vid, pid and serial.
func OpenUsbDevice(vid, pid gousb.ID, serial string) (*UsbDevice, error) {
	d := &UsbDevice{}
	d.ctx = gousb.NewContext()

	devs, err := d.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vid && desc.Product == pid
	})
	// OpenDevices may return opened devices together with an error.
	var matches []*gousb.Device
	for _, dev := range devs {
		s, serr := dev.SerialNumber()
		if serr != nil || s != serial {
			glog.V(1).Infof("Skipping device %v (serial %q, err %v)", dev, s, serr)
			dev.Close()
			continue
		}
		matches = append(matches, dev)
	}

	if len(matches) != 1 {
		for _, dev := range matches {
			dev.Close()
		}
		d.Close()
		if len(matches) > 1 {
			return nil, &AmbiguousDeviceError{vid, pid, serial, len(matches)}
		}
		if err != nil {
			return nil, fmt.Errorf("Opening bootloader device: %v", err)
		}
		return nil, &DeviceNotFoundError{vid, pid, serial}
	}

	d.dev = matches[0]
	glog.V(1).Infof("Opened bootloader device %v", d.dev)
	return d, nil
}

func (d *UsbDevice) Close() error {
	glog.V(1).Infof("Closing USB device")
	if d.dev != nil {
		d.dev.Close()
		d.dev = nil
	}
	if d.ctx != nil {
		d.ctx.Close()
		d.ctx = nil
	}
	return nil
}

func (d *UsbDevice) ControlIn(request Request, val uint16, data []byte) (int, error) {
	n, err := d.dev.Control(rTypeControlIn, uint8(request), val, 0, data)
	if err != nil {
		return n, fmt.Errorf("dev.Control failed: %w", err)
	}
	glog.V(2).Infof("[usb-ctrl IN]: request = %v, val = %x, data =\n%s",
		request, val, hex.Dump(data[:n]))
	return n, nil
}

func (d *UsbDevice) ControlOut(request Request, val uint16, data []byte) (int, error) {
	n, err := d.dev.Control(rTypeControlOut, uint8(request), val, 0, data)
	if err != nil {
		return n, fmt.Errorf("dev.Control failed: %w", err)
	}
	glog.V(2).Infof("[usb-ctrl OUT]: request = %v, val = %x, sent %d of %d bytes, data =\n%s",
		request, val, n, len(data), hex.Dump(data))
	return n, nil
}

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

// Bootloader status register.
package fwupdate

import (
	"fmt"
)

// Value of the bootloader status register. Read fresh on every poll.
type DeviceStatus uint8

const (
	// Ready to receive a page.
	StatusIdle DeviceStatus = 0x00
	// Page received, waiting for its CRC.
	StatusPageReceived DeviceStatus = 0x01
	// Page and CRC received, flash write in progress.
	StatusCommitting DeviceStatus = 0x02
	StatusTxError    DeviceStatus = 0xFE
	StatusCrcError   DeviceStatus = 0xFF
)

// Reports whether the status is a device-side fault. Faults are final: the
// bootloader will not leave them until it is restarted.
func (s DeviceStatus) IsFault() bool {
	return s == StatusTxError || s == StatusCrcError
}

// Reports whether the status is neither a known ready state nor a fault.
// Such values mean the device is busy and should be polled again.
func (s DeviceStatus) IsBusy() bool {
	switch s {
	case StatusIdle, StatusPageReceived, StatusTxError, StatusCrcError:
		return false
	}
	return true
}

func (s DeviceStatus) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusPageReceived:
		return "PAGE_RECEIVED"
	case StatusCommitting:
		return "COMMITTING"
	case StatusTxError:
		return "TX_ERROR"
	case StatusCrcError:
		return "CRC_ERROR"
	}
	return fmt.Sprintf("BUSY(0x%02x)", uint8(s))
}

// Reads the bootloader status register.
func ReadStatus(dev UsbDeviceInterface) (DeviceStatus, error) {
	buf := make([]byte, 1)
	n, err := dev.ControlIn(ReqGetStatus, 0, buf)
	if err != nil {
		return 0, fmt.Errorf("ReqGetStatus: %w", err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("ReqGetStatus: read %d bytes, expected %d", n, len(buf))
	}
	return DeviceStatus(buf[0]), nil
}

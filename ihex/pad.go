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

package ihex

import (
	"bytes"

	"github.com/golang/glog"
)

// Highest address representable by a record without extended addressing.
const maxBoundary = 0x10000

type PadConfig struct {
	// First address of the bootloader section. The image is extended up to,
	// but not including, this address.
	Boundary uint32
	// Payload size of synthesized records.
	ChunkSize int
	FillByte  byte
}

var DefaultPadConfig = PadConfig{
	Boundary:  0x1680,
	ChunkSize: 16,
	FillByte:  0xFF,
}

// Returns the first address after the highest occupied data address, or 0
// if there are no DATA records. Extended address records are ignored.
func MaxDataAddress(records []Record) uint32 {
	var highest uint32
	for i := range records {
		if records[i].Type != RecordData {
			continue
		}
		if end := records[i].End(); end > highest {
			highest = end
		}
	}
	return highest
}

// Extends the image with filler DATA records from its highest occupied
// address up to conf.Boundary. Fillers are inserted right before the last
// record, which is expected to be the end-of-file record. Input records are
// left untouched. If the image already reaches the boundary, records is
// returned as is.
//
// Gaps below the highest occupied address are not detected or filled.
func PadToBoundary(records []Record, conf *PadConfig) []Record {
	c := DefaultPadConfig
	if conf != nil {
		c = *conf
	}
	if c.ChunkSize <= 0 || c.ChunkSize > 0xff {
		c.ChunkSize = DefaultPadConfig.ChunkSize
	}
	boundary := c.Boundary
	if boundary > maxBoundary {
		glog.Warningf("Boundary 0x%x exceeds 16-bit address space, clamping", boundary)
		boundary = maxBoundary
	}
	if len(records) == 0 {
		return records
	}

	start := MaxDataAddress(records)
	if start >= boundary {
		glog.V(1).Infof("Image ends at 0x%04x, boundary 0x%04x: no padding needed", start, boundary)
		return records
	}

	var fillers []Record
	for addr := start; addr < boundary; addr += uint32(c.ChunkSize) {
		n := uint32(c.ChunkSize)
		if boundary-addr < n {
			n = boundary - addr
		}
		fillers = append(fillers, NewDataRecord(uint16(addr), bytes.Repeat([]byte{c.FillByte}, int(n))))
	}
	glog.V(1).Infof("Padding 0x%04x-0x%04x with %d records", start, boundary, len(fillers))

	last := len(records) - 1
	out := make([]Record, 0, len(records)+len(fillers))
	out = append(out, records[:last]...)
	out = append(out, fillers...)
	return append(out, records[last])
}

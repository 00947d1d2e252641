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

package pageloader

import (
	"encoding/binary"

	"github.com/sigurn/crc16"
)

const PageSize = 64

// Reflected polynomial 0xA001, initial value 0xFFFF, no final xor.
// Matches _crc16_update() as used by the bootloader.
var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Unit of firmware transfer. Immutable once built.
type Page struct {
	// Position in transfer order.
	Index int
	// Byte offset of the page in the image.
	Offset int
	Data   [PageSize]byte
}

func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

func (p *Page) CRC() uint16 {
	return CRC16(p.Data[:])
}

// CRC payload as sent to the device, low byte first.
func (p *Page) CRCBytes() []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, p.CRC())
	return buf
}

// Splits image into pages in address order. Index equals address order.
func SplitPages(image []byte) ([]Page, error) {
	if len(image)%PageSize != 0 {
		return nil, &SizeMismatchError{len(image), PageSize}
	}
	pages := make([]Page, len(image)/PageSize)
	for i := range pages {
		pages[i].Index = i
		pages[i].Offset = i * PageSize
		copy(pages[i].Data[:], image[i*PageSize:])
	}
	return pages, nil
}

// Returns pages in the order the bootloader expects them: it commits pages
// downwards, starting with the one right below the bootloader section, so
// the last page of the image goes first.
func TransferOrder(image []byte) ([]Page, error) {
	pages, err := SplitPages(image)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(pages)-1; i < j; i, j = i+1, j-1 {
		pages[i], pages[j] = pages[j], pages[i]
	}
	for i := range pages {
		pages[i].Index = i
	}
	return pages, nil
}

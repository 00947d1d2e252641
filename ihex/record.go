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

// Intel HEX records at line granularity.
// Records read from a file keep their original text and are written back
// verbatim; only synthesized records are formatted here.
package ihex

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

type RecordType uint8

const (
	RecordData                RecordType = 0x00
	RecordEOF                 RecordType = 0x01
	RecordExtSegmentAddress   RecordType = 0x02
	RecordStartSegmentAddress RecordType = 0x03
	RecordExtLinearAddress    RecordType = 0x04
	RecordStartLinearAddress  RecordType = 0x05
)

var recordTypeNames = [...]string{
	RecordData:                "DATA",
	RecordEOF:                 "EOF",
	RecordExtSegmentAddress:   "EXT_SEGMENT_ADDRESS",
	RecordStartSegmentAddress: "START_SEGMENT_ADDRESS",
	RecordExtLinearAddress:    "EXT_LINEAR_ADDRESS",
	RecordStartLinearAddress:  "START_LINEAR_ADDRESS",
}

func (t RecordType) String() string {
	if int(t) >= len(recordTypeNames) {
		return fmt.Sprintf("RecordType(0x%02x)", uint8(t))
	}
	return recordTypeNames[t]
}

// Byte count, 2 address bytes, record type and checksum.
const recordOverhead = 5

type Record struct {
	Type     RecordType
	Address  uint16
	Data     []byte
	Checksum byte
	// Original line, without the line terminator. Empty for synthesized
	// records.
	text string
}

type MalformedRecordError struct {
	// 1-based line number, 0 when unknown.
	Line   int
	Text   string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed HEX record on line %d (%q): %s", e.Line, e.Text, e.Reason)
	}
	return fmt.Sprintf("malformed HEX record %q: %s", e.Text, e.Reason)
}

// Computes the Intel HEX checksum: two's complement of the sum of the
// byte count, address, record type and data bytes.
func Checksum(typ RecordType, addr uint16, data []byte) byte {
	sum := byte(len(data)) + byte(addr>>8) + byte(addr) + byte(typ)
	for _, b := range data {
		sum += b
	}
	return -sum
}

// Builds a DATA record with a freshly computed checksum.
func NewDataRecord(addr uint16, data []byte) Record {
	return Record{
		Type:     RecordData,
		Address:  addr,
		Data:     data,
		Checksum: Checksum(RecordData, addr, data),
	}
}

// First address after the record's payload.
func (r *Record) End() uint32 {
	return uint32(r.Address) + uint32(len(r.Data))
}

// Parses a single record. The checksum is taken as-is and not validated.
func ParseRecord(line string) (Record, error) {
	text := strings.TrimSpace(line)
	malformed := func(format string, a ...interface{}) (Record, error) {
		return Record{}, &MalformedRecordError{Text: text, Reason: fmt.Sprintf(format, a...)}
	}

	if !strings.HasPrefix(text, ":") {
		return malformed("missing start code")
	}
	raw, err := hex.DecodeString(text[1:])
	if err != nil {
		return malformed("invalid hex digits: %v", err)
	}
	if len(raw) < recordOverhead {
		return malformed("record too short (%d bytes)", len(raw))
	}
	count := int(raw[0])
	if len(raw) != count+recordOverhead {
		return malformed("byte count %d does not match record length %d", count, len(raw)-recordOverhead)
	}

	return Record{
		Type:     RecordType(raw[3]),
		Address:  uint16(raw[1])<<8 | uint16(raw[2]),
		Data:     raw[4 : 4+count],
		Checksum: raw[len(raw)-1],
		text:     text,
	}, nil
}

func (r Record) String() string {
	if r.text != "" {
		return r.text
	}
	return fmt.Sprintf(":%02X%04X%02X%s%02X",
		len(r.Data), r.Address, uint8(r.Type), strings.ToUpper(hex.EncodeToString(r.Data)), r.Checksum)
}

// Reads all records from r. Blank lines are skipped.
func ReadRecords(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		rec, err := ParseRecord(scanner.Text())
		if err != nil {
			if me, ok := err.(*MalformedRecordError); ok {
				me.Line = line
			}
			return nil, err
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("Failed reading HEX records: %v", err)
	}
	return records, nil
}

// Writes records one per line.
func WriteRecords(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := bw.WriteString(r.String() + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

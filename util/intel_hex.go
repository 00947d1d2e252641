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

package util

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/marcinbor85/gohex"
)

// Turns an Intel HEX file into a raw binary image.
type Converter interface {
	Convert(hexFile string) ([]byte, error)
}

type ConverterFunc func(hexFile string) ([]byte, error)

func (f ConverterFunc) Convert(hexFile string) ([]byte, error) {
	return f(hexFile)
}

type ConversionError struct {
	Path string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("converting %s to binary: %v", e.Path, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

type Segment struct {
	Address uint32
	Data    []byte
}

// Loads a HEX file as one contiguous segment spanning the lowest to the
// highest occupied address. Holes are filled with fill.
func LoadIntelHexFile(filename string, fill byte) (*Segment, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	mem := gohex.NewMemory()
	if err = mem.ParseIntelHex(file); err != nil {
		return nil, err
	}

	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return &Segment{}, nil
	}
	start, end := segments[0].Address, uint32(0)
	for _, s := range segments {
		if s.Address < start {
			start = s.Address
		}
		if e := s.Address + uint32(len(s.Data)); e > end {
			end = e
		}
	}
	glog.V(1).Infof("Loaded %s: %d segments, 0x%04x-0x%04x", filename, len(segments), start, end)
	return &Segment{start, mem.ToBinary(start, end-start, fill)}, nil
}

// Converts in-process. Produces the same layout as objcopy -O binary, except
// that holes are filled with Fill instead of zeros.
type GohexConverter struct {
	Fill byte
}

func (c *GohexConverter) Convert(hexFile string) ([]byte, error) {
	seg, err := LoadIntelHexFile(hexFile, c.Fill)
	if err != nil {
		return nil, &ConversionError{hexFile, err}
	}
	return seg.Data, nil
}

// Converts by running objcopy.
type ObjcopyConverter struct {
	// Defaults to "objcopy" from PATH.
	Path string
}

func (c *ObjcopyConverter) Convert(hexFile string) ([]byte, error) {
	tool := c.Path
	if tool == "" {
		tool = "objcopy"
	}
	out, err := os.CreateTemp("", filepath.Base(hexFile)+".*.bin")
	if err != nil {
		return nil, &ConversionError{hexFile, err}
	}
	out.Close()
	defer os.Remove(out.Name())

	cmd := exec.Command(tool, "-I", "ihex", hexFile, "-O", "binary", out.Name())
	glog.V(1).Infof("Running %v", cmd.Args)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, &ConversionError{hexFile, fmt.Errorf("%s: %v: %s", tool, err, output)}
	}

	data, err := os.ReadFile(out.Name())
	if err != nil {
		return nil, &ConversionError{hexFile, err}
	}
	return data, nil
}

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
	"time"

	"github.com/google/fwupdate"
	"github.com/google/fwupdate/ihex"
	"github.com/google/fwupdate/programmer/pageloader"

	"github.com/google/gousb"
	"gopkg.in/yaml.v3"
)

const (
	ConverterGohex   = "gohex"
	ConverterObjcopy = "objcopy"
)

type DeviceConfig struct {
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
	Serial    string `yaml:"serial"`
}

// Device profile for a firmware update.
//
// Example:
//
//	device:
//	  vendor_id: 0x16c0
//	  product_id: 0x27d8
//	  serial: snopf.com:boot
//	boundary: 0x1680
//	poll_interval: 100ms
//	patience: 30s
//	converter: objcopy
type Config struct {
	Device       DeviceConfig  `yaml:"device"`
	Boundary     uint32        `yaml:"boundary"`
	FillChunk    int           `yaml:"fill_chunk"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Patience     time.Duration `yaml:"patience"`
	Converter    string        `yaml:"converter"`
	Objcopy      string        `yaml:"objcopy"`

	// Keep the padded HEX file at this path. Not part of the profile.
	PaddedFile string                  `yaml:"-"`
	Progress   pageloader.ProgressFunc `yaml:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			VendorID:  uint16(fwupdate.DefaultVendorID),
			ProductID: uint16(fwupdate.DefaultProductID),
			Serial:    fwupdate.DefaultSerial,
		},
		Boundary:     ihex.DefaultPadConfig.Boundary,
		FillChunk:    ihex.DefaultPadConfig.ChunkSize,
		PollInterval: pageloader.DefaultConfig.PollInterval,
		Converter:    ConverterGohex,
	}
}

// Reads a YAML profile. Keys missing from the file keep their defaults.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	conf := DefaultConfig()
	if err = yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("Failed parsing %s: %v", filename, err)
	}
	if err = conf.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config %s: %v", filename, err)
	}
	return conf, nil
}

func (c *Config) Validate() error {
	if c.Boundary > 0x10000 {
		return fmt.Errorf("boundary 0x%x is beyond the 16-bit address space", c.Boundary)
	}
	if c.FillChunk < 1 || c.FillChunk > 0xff {
		return fmt.Errorf("fill_chunk %d out of range 1-255", c.FillChunk)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.Patience < 0 {
		return fmt.Errorf("patience must not be negative, got %v", c.Patience)
	}
	switch c.Converter {
	case ConverterGohex, ConverterObjcopy:
	default:
		return fmt.Errorf("unknown converter %q", c.Converter)
	}
	return nil
}

func (c *Config) PadConfig() *ihex.PadConfig {
	return &ihex.PadConfig{
		Boundary:  c.Boundary,
		ChunkSize: c.FillChunk,
		FillByte:  ihex.DefaultPadConfig.FillByte,
	}
}

func (c *Config) LoaderConfig() *pageloader.Config {
	return &pageloader.Config{
		PollInterval: c.PollInterval,
		Patience:     c.Patience,
		Progress:     c.Progress,
	}
}

func (c *Config) NewConverter() Converter {
	if c.Converter == ConverterObjcopy {
		return &ObjcopyConverter{c.Objcopy}
	}
	return &GohexConverter{ihex.DefaultPadConfig.FillByte}
}

func (c *Config) OpenProgrammer() (*pageloader.Programmer, error) {
	return pageloader.NewProgrammer(
		gousb.ID(c.Device.VendorID), gousb.ID(c.Device.ProductID), c.Device.Serial, c.LoaderConfig())
}

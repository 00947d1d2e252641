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
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/fwupdate/ihex"
	"github.com/google/fwupdate/programmer"
	"github.com/google/fwupdate/programmer/pageloader"

	"github.com/golang/glog"
)

// Pads hexFile up to the bootloader boundary and converts the result to a
// binary image. The padded HEX file is written to paddedFile, or to a
// temporary file that is removed afterwards if paddedFile is empty.
func PrepareImage(hexFile string, pad *ihex.PadConfig, conv Converter, paddedFile string) ([]byte, error) {
	in, err := os.Open(hexFile)
	if err != nil {
		return nil, err
	}
	records, err := ihex.ReadRecords(in)
	in.Close()
	if err != nil {
		return nil, fmt.Errorf("Failed reading %s: %w", hexFile, err)
	}

	padded := ihex.PadToBoundary(records, pad)
	glog.V(1).Infof("Added %d filler records", len(padded)-len(records))

	var out *os.File
	if paddedFile != "" {
		out, err = os.Create(paddedFile)
	} else {
		out, err = os.CreateTemp("", filepath.Base(hexFile)+".*.hex")
		if err == nil {
			defer os.Remove(out.Name())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("Failed creating padded file: %v", err)
	}
	err = ihex.WriteRecords(out, padded)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("Failed writing padded file: %v", err)
	}

	image, err := conv.Convert(out.Name())
	if err != nil {
		return nil, err
	}
	glog.Infof("Firmware image: %d bytes", len(image))
	return image, nil
}

// Transfers image to the device.
func ProgramDevice(ctx context.Context, prog programmer.ProgrammerInterface, image []byte) error {
	glog.Info("Programming flash")
	if err := prog.Program(ctx, image); err != nil {
		return fmt.Errorf("Failed to program device: %w", err)
	}
	glog.Info("Device programmed successfully")
	return nil
}

// Pads, converts and programs a HEX file into the device described by conf.
func ProgramFlashFile(ctx context.Context, filename string, conf *Config) error {
	if conf == nil {
		conf = DefaultConfig()
	}
	image, err := PrepareImage(filename, conf.PadConfig(), conf.NewConverter(), conf.PaddedFile)
	if err != nil {
		return err
	}
	// Catch a bad image before touching the device.
	if _, err = pageloader.SplitPages(image); err != nil {
		return err
	}

	prog, err := conf.OpenProgrammer()
	if err != nil {
		return fmt.Errorf("Failed opening bootloader device: %w", err)
	}
	defer prog.Close()

	return ProgramDevice(ctx, prog, image)
}

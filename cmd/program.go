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

// Programs firmware into a device running the USB page bootloader.
// The HEX file is padded up to the bootloader boundary, converted to a
// binary image and written page by page, last page first.
//
// With --watch the file is reflashed every time it changes.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"time"

	"github.com/google/fwupdate/programmer/pageloader"
	"github.com/google/fwupdate/util"

	"github.com/golang/glog"
)

var (
	firmwareFile = flag.String("firmware", "", ".hex firmware file name")
	configFile   = flag.String("config", "", "YAML device profile")
	boundary     = flag.Uint("boundary", 0, "Bootloader start address, overrides the profile")
	converter    = flag.String("converter", "", "HEX to binary converter: gohex or objcopy")
	paddedFile   = flag.String("padded", "", "Keep the padded .hex file at this path")
	patience     = flag.Duration("patience", -1, "Give up waiting for the device after this long. 0 waits forever")
	watch        = flag.Bool("watch", false, "Reflash every time the firmware file changes")
)

// Quiet time after the last write before the file is reflashed.
const settleTime = 500 * time.Millisecond

func init() {
	flag.Parse()
}

func loadConfig() *util.Config {
	conf := util.DefaultConfig()
	if *configFile != "" {
		var err error
		if conf, err = util.LoadConfig(*configFile); err != nil {
			glog.Fatal(err)
		}
	}
	if *boundary != 0 {
		conf.Boundary = uint32(*boundary)
	}
	if *converter != "" {
		conf.Converter = *converter
	}
	if *patience >= 0 {
		conf.Patience = *patience
	}
	conf.PaddedFile = *paddedFile
	conf.Progress = func(p pageloader.Progress) {
		glog.V(1).Infof("Page %d/%d, %d bytes sent", p.Page, p.Total, p.Sent)
	}
	if err := conf.Validate(); err != nil {
		glog.Fatal(err)
	}
	return conf
}

func watchAndProgram(ctx context.Context, conf *util.Config) {
	broker := util.NewBroker(settleTime)
	go broker.Start()
	defer broker.Stop()
	events := broker.Subscribe()

	stop, err := util.WatchFile(*firmwareFile, broker)
	if err != nil {
		glog.Fatalf("Failed watching %s: %v", *firmwareFile, err)
	}
	defer stop()

	glog.Infof("Watching %s", *firmwareFile)
	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
		}
		if err := util.ProgramFlashFile(ctx, *firmwareFile, conf); err != nil {
			glog.Errorf("Failed programming device: %v", err)
			continue
		}
		glog.Info("Successfully programmed device")
	}
}

func main() {
	defer glog.Flush()

	if len(*firmwareFile) == 0 {
		glog.Fatal("Missing --firmware argument")
	}
	if path.Ext(*firmwareFile) != ".hex" {
		glog.Fatal("Expected Intel-Hex firmware file")
	}
	conf := loadConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if *watch {
		watchAndProgram(ctx, conf)
		return
	}
	if err := util.ProgramFlashFile(ctx, *firmwareFile, conf); err != nil {
		glog.Fatalf("Failed programming device: %v", err)
	}
	glog.Info("Successfully programmed device")
}

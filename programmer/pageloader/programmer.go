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

// Programs a device running the USB page bootloader.
// Each page goes through a status-driven handshake over vendor control
// transfers: wait for IDLE, submit the page, wait for PAGE_RECEIVED, submit
// the page CRC. The device verifies the CRC and returns to IDLE once the
// page is committed.
package pageloader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/fwupdate"

	"github.com/golang/glog"
	"github.com/google/gousb"
)

// Implements programmer.ProgrammerInterface
type Programmer struct {
	dev     fwupdate.UsbDeviceInterface
	conf    Config
	ownsDev bool
}

type Progress struct {
	// 1-based position in transfer order.
	Page  int
	Total int
	// Bytes the device accepted for this page.
	Sent int
}

type ProgressFunc func(Progress)

type Config struct {
	// Delay before each status poll.
	PollInterval time.Duration
	// Longest time to wait for a single status. Zero waits forever.
	Patience time.Duration
	// Called after each page is transferred. Optional.
	Progress ProgressFunc
}

var DefaultConfig = Config{
	PollInterval: 100 * time.Millisecond,
}

type PageState int

const (
	StateAwaitingIdle PageState = iota
	StatePayloadSubmitted
	StateAwaitingAck
	StateCrcSubmitted
	StateDone
	StateTxFailed
	StateCrcFailed
)

var pageStateNames = [...]string{
	StateAwaitingIdle:     "awaiting idle",
	StatePayloadSubmitted: "payload submitted",
	StateAwaitingAck:      "awaiting page ack",
	StateCrcSubmitted:     "crc submitted",
	StateDone:             "done",
	StateTxFailed:         "tx failed",
	StateCrcFailed:        "crc failed",
}

func (s PageState) String() string {
	if s < 0 || int(s) >= len(pageStateNames) {
		return fmt.Sprintf("PageState(%d)", int(s))
	}
	return pageStateNames[s]
}

// Borrows dev: Close() leaves it open.
func NewProgrammerDeps(dev fwupdate.UsbDeviceInterface, conf *Config) *Programmer {
	p := &Programmer{dev: dev, conf: DefaultConfig}
	if conf != nil {
		p.conf = *conf
	}
	if p.conf.PollInterval <= 0 {
		p.conf.PollInterval = DefaultConfig.PollInterval
	}
	return p
}

// Opens the bootloader device. The programmer owns it and closes it on
// Close().
func NewProgrammer(vid, pid gousb.ID, serial string, conf *Config) (*Programmer, error) {
	dev, err := fwupdate.OpenUsbDevice(vid, pid, serial)
	if err != nil {
		return nil, err
	}
	p := NewProgrammerDeps(dev, conf)
	p.ownsDev = true
	return p, nil
}

func (p *Programmer) Close() error {
	var err error
	if p.dev != nil && p.ownsDev {
		err = p.dev.Close()
	}
	p.dev = nil
	return err
}

// Transfers image page by page. Any device fault aborts the session; the
// caller has to restart from the first page.
func (p *Programmer) Program(ctx context.Context, image []byte) error {
	if p.dev == nil {
		return fmt.Errorf("programmer is closed")
	}
	pages, err := TransferOrder(image)
	if err != nil {
		return err
	}

	total := len(pages)
	for i := range pages {
		page := &pages[i]
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("page %d of %d: %w", i+1, total, err)
		}
		glog.Infof("writing page %d of %d", i+1, total)
		sent, err := p.writePage(ctx, page, total)
		if err != nil {
			return err
		}
		if p.conf.Progress != nil {
			p.conf.Progress(Progress{Page: i + 1, Total: total, Sent: sent})
		}
	}
	glog.Info("done")
	return nil
}

func (p *Programmer) enter(page *Page, state PageState) PageState {
	glog.V(2).Infof("[page %d @0x%04x]: %v", page.Index+1, page.Offset, state)
	return state
}

// Runs the handshake for one page. Returns the number of payload bytes the
// device accepted.
func (p *Programmer) writePage(ctx context.Context, page *Page, total int) (int, error) {
	state := p.enter(page, StateAwaitingIdle)
	if err := p.waitForStatus(ctx, fwupdate.StatusIdle, page, total, state); err != nil {
		return 0, err
	}

	sent, err := p.dev.ControlOut(fwupdate.ReqSubmitPage, 0, page.Data[:])
	if err != nil {
		return sent, fmt.Errorf("page %d of %d: ReqSubmitPage failed: %w", page.Index+1, total, err)
	}
	// A short transfer shows up as a fault in the next status poll.
	if sent != PageSize {
		glog.Warningf("Sent %d of %d bytes", sent, PageSize)
	} else {
		glog.V(1).Infof("Sent %d bytes", sent)
	}
	p.enter(page, StatePayloadSubmitted)

	state = p.enter(page, StateAwaitingAck)
	if err := p.waitForStatus(ctx, fwupdate.StatusPageReceived, page, total, state); err != nil {
		return sent, err
	}

	if _, err := p.dev.ControlOut(fwupdate.ReqSubmitCrc, 0, page.CRCBytes()); err != nil {
		return sent, fmt.Errorf("page %d of %d: ReqSubmitCrc failed: %w", page.Index+1, total, err)
	}
	p.enter(page, StateCrcSubmitted)
	p.enter(page, StateDone)
	return sent, nil
}

// Polls the device until it reports want. Fault statuses abort immediately,
// anything else is polled again.
func (p *Programmer) waitForStatus(ctx context.Context, want fwupdate.DeviceStatus, page *Page, total int, state PageState) error {
	var waited time.Duration
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("page %d of %d: %w", page.Index+1, total, ctx.Err())
		case <-time.After(p.conf.PollInterval):
		}
		waited += p.conf.PollInterval

		status, err := fwupdate.ReadStatus(p.dev)
		if err != nil {
			return fmt.Errorf("page %d of %d: %w", page.Index+1, total, err)
		}
		if status == want {
			return nil
		}
		if status.IsFault() {
			return p.fault(page, total, state, status)
		}
		if status.IsBusy() {
			glog.V(1).Infof("device busy: %v", status)
		} else {
			glog.V(1).Infof("device %v, waiting for %v", status, want)
		}

		if p.conf.Patience > 0 && waited >= p.conf.Patience {
			return &StatusTimeoutError{page.Index + 1, total, want, status, waited}
		}
	}
}

func (p *Programmer) fault(page *Page, total int, state PageState, status fwupdate.DeviceStatus) error {
	if status == fwupdate.StatusCrcError {
		p.enter(page, StateCrcFailed)
		return &CrcError{page.Index + 1, total, state, status}
	}
	p.enter(page, StateTxFailed)
	return &TxError{page.Index + 1, total, state, status}
}

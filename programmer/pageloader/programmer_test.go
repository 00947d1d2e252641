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

package pageloader_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/fwupdate"
	"github.com/google/fwupdate/mocks"
	"github.com/google/fwupdate/programmer"
	"github.com/google/fwupdate/programmer/pageloader"

	"github.com/golang/mock/gomock"
	"github.com/google/gousb"
)

var _ programmer.ProgrammerInterface = (*pageloader.Programmer)(nil)

func expectStatus(dev *mocks.MockUsbDeviceInterface, status fwupdate.DeviceStatus) *gomock.Call {
	return dev.EXPECT().ControlIn(fwupdate.ReqGetStatus, uint16(0), gomock.Any()).
		SetArg(2, []byte{byte(status)}).
		Return(1, nil)
}

func expectPage(dev *mocks.MockUsbDeviceInterface, data []byte) *gomock.Call {
	return dev.EXPECT().ControlOut(fwupdate.ReqSubmitPage, uint16(0), data).
		Return(len(data), nil)
}

func expectCrc(dev *mocks.MockUsbDeviceInterface, data []byte) *gomock.Call {
	crc := pageloader.CRC16(data)
	return dev.EXPECT().ControlOut(fwupdate.ReqSubmitCrc, uint16(0), []byte{byte(crc), byte(crc >> 8)}).
		Return(2, nil)
}

func newProgrammer(dev fwupdate.UsbDeviceInterface, progress pageloader.ProgressFunc) *pageloader.Programmer {
	return pageloader.NewProgrammerDeps(dev, &pageloader.Config{
		PollInterval: time.Millisecond,
		Progress:     progress,
	})
}

func TestProgramSinglePage(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	image := testImage(1)
	dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
	gomock.InOrder(
		expectStatus(dev, fwupdate.StatusIdle),
		expectPage(dev, image),
		expectStatus(dev, fwupdate.StatusPageReceived),
		expectCrc(dev, image),
	)

	var progress []pageloader.Progress
	prog := newProgrammer(dev, func(p pageloader.Progress) {
		progress = append(progress, p)
	})
	if err := prog.Program(context.Background(), image); err != nil {
		t.Fatalf("Program failed: %v", err)
	}
	want := []pageloader.Progress{{Page: 1, Total: 1, Sent: 64}}
	if len(progress) != 1 || progress[0] != want[0] {
		t.Errorf("Unexpected progress %v, want %v", progress, want)
	}
}

func TestProgramLastPageFirst(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	image := testImage(2)
	first, second := image[:64], image[64:]
	dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
	gomock.InOrder(
		expectStatus(dev, fwupdate.StatusIdle),
		expectPage(dev, second),
		expectStatus(dev, fwupdate.StatusPageReceived),
		expectCrc(dev, second),
		expectStatus(dev, fwupdate.StatusIdle),
		expectPage(dev, first),
		expectStatus(dev, fwupdate.StatusPageReceived),
		expectCrc(dev, first),
	)

	var pages []int
	prog := newProgrammer(dev, func(p pageloader.Progress) {
		if p.Total != 2 {
			t.Errorf("Unexpected total %d", p.Total)
		}
		pages = append(pages, p.Page)
	})
	if err := prog.Program(context.Background(), image); err != nil {
		t.Fatalf("Program failed: %v", err)
	}
	if len(pages) != 2 || pages[0] != 1 || pages[1] != 2 {
		t.Errorf("Unexpected progress pages %v", pages)
	}
}

func TestProgramPollsWhileBusy(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	image := testImage(1)
	dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
	gomock.InOrder(
		expectStatus(dev, fwupdate.StatusCommitting),
		expectStatus(dev, fwupdate.StatusPageReceived),
		expectStatus(dev, fwupdate.DeviceStatus(0x42)),
		expectStatus(dev, fwupdate.StatusIdle),
		expectPage(dev, image),
		expectStatus(dev, fwupdate.StatusIdle),
		expectStatus(dev, fwupdate.StatusPageReceived),
		expectCrc(dev, image),
	)

	if err := newProgrammer(dev, nil).Program(context.Background(), image); err != nil {
		t.Fatalf("Program failed: %v", err)
	}
}

func TestProgramCrcErrorAborts(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	// Any transfer after the CRC error fails the test.
	dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
	expectStatus(dev, fwupdate.StatusCrcError)

	err := newProgrammer(dev, nil).Program(context.Background(), testImage(3))
	var crcErr *pageloader.CrcError
	if !errors.As(err, &crcErr) {
		t.Fatalf("Program err = %v, want CrcError", err)
	}
	if crcErr.Page != 1 || crcErr.Total != 3 || crcErr.State != pageloader.StateAwaitingIdle {
		t.Errorf("Unexpected error context %+v", crcErr)
	}
	if !strings.Contains(err.Error(), "CRC_ERROR") {
		t.Errorf("error message should contain status, got: %v", err)
	}
}

func TestProgramCrcErrorOnSecondPage(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	image := testImage(2)
	dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
	gomock.InOrder(
		expectStatus(dev, fwupdate.StatusIdle),
		expectPage(dev, image[64:]),
		expectStatus(dev, fwupdate.StatusPageReceived),
		expectCrc(dev, image[64:]),
		expectStatus(dev, fwupdate.StatusCrcError),
	)

	err := newProgrammer(dev, nil).Program(context.Background(), image)
	var crcErr *pageloader.CrcError
	if !errors.As(err, &crcErr) || crcErr.Page != 2 {
		t.Fatalf("Program err = %v, want CrcError on page 2", err)
	}
}

func TestProgramTxErrorAfterPageSubmit(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	image := testImage(1)
	dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
	gomock.InOrder(
		expectStatus(dev, fwupdate.StatusIdle),
		expectPage(dev, image),
		expectStatus(dev, fwupdate.StatusTxError),
	)

	err := newProgrammer(dev, nil).Program(context.Background(), image)
	var txErr *pageloader.TxError
	if !errors.As(err, &txErr) {
		t.Fatalf("Program err = %v, want TxError", err)
	}
	if txErr.State != pageloader.StateAwaitingAck || txErr.Status != fwupdate.StatusTxError {
		t.Errorf("Unexpected error context %+v", txErr)
	}
}

func TestProgramShortTransferIsNotAnError(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	image := testImage(1)
	dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
	gomock.InOrder(
		expectStatus(dev, fwupdate.StatusIdle),
		dev.EXPECT().ControlOut(fwupdate.ReqSubmitPage, uint16(0), image).Return(32, nil),
		expectStatus(dev, fwupdate.StatusPageReceived),
		expectCrc(dev, image),
	)

	var sent int
	prog := newProgrammer(dev, func(p pageloader.Progress) { sent = p.Sent })
	if err := prog.Program(context.Background(), image); err != nil {
		t.Fatalf("Program failed: %v", err)
	}
	if sent != 32 {
		t.Errorf("Progress reported %d bytes sent, want 32", sent)
	}
}

func TestProgramSubmitFails(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	image := testImage(1)
	dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
	gomock.InOrder(
		expectStatus(dev, fwupdate.StatusIdle),
		dev.EXPECT().ControlOut(fwupdate.ReqSubmitPage, uint16(0), image).
			Return(0, fmt.Errorf("device disconnected")),
	)

	err := newProgrammer(dev, nil).Program(context.Background(), image)
	if err == nil || !strings.Contains(err.Error(), "device disconnected") {
		t.Errorf("Program did not fail as expected. Err: %v", err)
	}
}

func TestProgramKeepsTransportError(t *testing.T) {
	image := testImage(1)
	tests := []struct {
		name   string
		expect func(dev *mocks.MockUsbDeviceInterface)
	}{
		{"status", func(dev *mocks.MockUsbDeviceInterface) {
			dev.EXPECT().ControlIn(fwupdate.ReqGetStatus, uint16(0), gomock.Any()).
				Return(0, gousb.ErrorNoDevice)
		}},
		{"page", func(dev *mocks.MockUsbDeviceInterface) {
			gomock.InOrder(
				expectStatus(dev, fwupdate.StatusIdle),
				dev.EXPECT().ControlOut(fwupdate.ReqSubmitPage, uint16(0), image).
					Return(0, gousb.ErrorNoDevice),
			)
		}},
		{"crc", func(dev *mocks.MockUsbDeviceInterface) {
			gomock.InOrder(
				expectStatus(dev, fwupdate.StatusIdle),
				expectPage(dev, image),
				expectStatus(dev, fwupdate.StatusPageReceived),
				dev.EXPECT().ControlOut(fwupdate.ReqSubmitCrc, uint16(0), gomock.Any()).
					Return(0, gousb.ErrorNoDevice),
			)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockCtrl := gomock.NewController(t)
			defer mockCtrl.Finish()

			dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
			tt.expect(dev)
			err := newProgrammer(dev, nil).Program(context.Background(), image)
			if !errors.Is(err, gousb.ErrorNoDevice) {
				t.Errorf("Program err = %v, want gousb.ErrorNoDevice in chain", err)
			}
		})
	}
}

func TestProgramIdleWhileAwaitingAckKeepsPolling(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	image := testImage(1)
	dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
	gomock.InOrder(
		expectStatus(dev, fwupdate.StatusIdle),
		expectPage(dev, image),
		expectStatus(dev, fwupdate.StatusIdle),
		expectStatus(dev, fwupdate.StatusPageReceived),
		expectCrc(dev, image),
	)

	if err := newProgrammer(dev, nil).Program(context.Background(), image); err != nil {
		t.Fatalf("Program failed: %v", err)
	}
}

func TestProgramSizeMismatchBeforeTransfer(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
	for _, size := range []int{63, 65} {
		err := newProgrammer(dev, nil).Program(context.Background(), make([]byte, size))
		var sme *pageloader.SizeMismatchError
		if !errors.As(err, &sme) {
			t.Errorf("Program(%d bytes) err = %v, want SizeMismatchError", size, err)
		}
	}
}

func TestProgramEmptyImage(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
	if err := newProgrammer(dev, nil).Program(context.Background(), nil); err != nil {
		t.Errorf("Program failed on empty image: %v", err)
	}
}

func TestProgramCancelled(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newProgrammer(dev, nil).Program(ctx, testImage(1))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Program err = %v, want context.Canceled", err)
	}
}

func TestProgramCancelledWhilePolling(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
	dev.EXPECT().ControlIn(fwupdate.ReqGetStatus, uint16(0), gomock.Any()).
		SetArg(2, []byte{byte(fwupdate.StatusCommitting)}).
		DoAndReturn(func(fwupdate.Request, uint16, []byte) (int, error) {
			cancel()
			return 1, nil
		}).
		MinTimes(1)

	err := newProgrammer(dev, nil).Program(ctx, testImage(1))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Program err = %v, want context.Canceled", err)
	}
}

func TestProgramPatienceExhausted(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
	expectStatus(dev, fwupdate.StatusCommitting).Times(3)

	prog := pageloader.NewProgrammerDeps(dev, &pageloader.Config{
		PollInterval: time.Millisecond,
		Patience:     3 * time.Millisecond,
	})
	err := prog.Program(context.Background(), testImage(1))
	var timeoutErr *pageloader.StatusTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Program err = %v, want StatusTimeoutError", err)
	}
	if timeoutErr.Want != fwupdate.StatusIdle || timeoutErr.Last != fwupdate.StatusCommitting {
		t.Errorf("Unexpected error context %+v", timeoutErr)
	}
}

func TestCloseLeavesBorrowedDeviceOpen(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	// No Close() expectation: closing dev fails the test.
	dev := mocks.NewMockUsbDeviceInterface(mockCtrl)
	prog := newProgrammer(dev, nil)
	if err := prog.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := prog.Program(context.Background(), testImage(1)); err == nil {
		t.Errorf("Program expected to fail after Close")
	}
}

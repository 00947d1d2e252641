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
	"fmt"
	"time"

	"github.com/google/fwupdate"
)

// Image length is not a whole number of pages.
type SizeMismatchError struct {
	Size     int
	PageSize int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("binary must be a multiple of page size %d, got %d bytes (%d extra)",
		e.PageSize, e.Size, e.Size%e.PageSize)
}

// Device reported a transmission fault.
// Page is 1-based in transfer order.
type TxError struct {
	Page   int
	Total  int
	State  PageState
	Status fwupdate.DeviceStatus
}

func (e *TxError) Error() string {
	return fmt.Sprintf("device reported %v on page %d of %d while %v", e.Status, e.Page, e.Total, e.State)
}

// Device rejected a page CRC.
// Page is 1-based in transfer order.
type CrcError struct {
	Page   int
	Total  int
	State  PageState
	Status fwupdate.DeviceStatus
}

func (e *CrcError) Error() string {
	return fmt.Sprintf("device reported %v on page %d of %d while %v", e.Status, e.Page, e.Total, e.State)
}

// Device did not reach the expected status within the patience budget.
type StatusTimeoutError struct {
	Page   int
	Total  int
	Want   fwupdate.DeviceStatus
	Last   fwupdate.DeviceStatus
	Waited time.Duration
}

func (e *StatusTimeoutError) Error() string {
	return fmt.Sprintf("page %d of %d: device still %v after %v, waiting for %v",
		e.Page, e.Total, e.Last, e.Waited, e.Want)
}

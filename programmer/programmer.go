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

package programmer

import (
	"context"
	"io"
)

//go:generate mockgen -destination=mocks/programmer.go -package=mocks github.com/google/fwupdate/programmer ProgrammerInterface
type ProgrammerInterface interface {
	io.Closer
	// Transfers a raw firmware image to the device.
	Program(ctx context.Context, image []byte) error
}

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
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
)

// Publishes a FileEvent to broker every time filename is written or created.
// The parent directory is watched so that build tools replacing the file are
// noticed too. The watch is active when WatchFile returns; call the returned
// func to stop it.
func WatchFile(filename string, broker *Broker) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("NewWatcher failed: %v", err)
	}
	abs, err := filepath.Abs(filename)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if err = watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watcher.Add failed: %v", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				glog.V(1).Infof("Watcher event: %v", event)
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&fsnotify.Write == fsnotify.Write ||
					event.Op&fsnotify.Create == fsnotify.Create {
					broker.Publish(FileEvent{Path: event.Name, Op: event.Op, Writes: 1})
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				glog.Warning("Watcher error: ", err)
			}
		}
	}()

	return func() { watcher.Close() }, nil
}

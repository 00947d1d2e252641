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
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
)

// Firmware file change notification.
type FileEvent struct {
	Path string
	// Last operation of the burst.
	Op fsnotify.Op
	// Number of file system events merged into this one.
	Writes int
}

// Delivers firmware file changes to subscribers, one event per burst.
// Linkers and editors write a HEX file in several steps; the broker holds
// published events until the file has been quiet for the settle time, so a
// rebuild triggers a single reflash.
//
// Subscribers that fall behind miss events rather than block the broker.
type Broker struct {
	settle    time.Duration
	stopCh    chan struct{}
	publishCh chan FileEvent
	subCh     chan chan FileEvent
	unsubCh   chan chan FileEvent
}

// A zero settle time delivers every event as it is published.
func NewBroker(settle time.Duration) *Broker {
	return &Broker{
		settle:    settle,
		stopCh:    make(chan struct{}),
		publishCh: make(chan FileEvent, 1),
		subCh:     make(chan chan FileEvent),
		unsubCh:   make(chan chan FileEvent),
	}
}

func (b *Broker) Start() {
	subs := map[chan FileEvent]struct{}{}
	var (
		pending FileEvent
		quiet   <-chan time.Time
	)
	deliver := func(ev FileEvent) {
		glog.V(1).Infof("%s changed (%d writes)", ev.Path, ev.Writes)
		for ch := range subs {
			select {
			case ch <- ev:
			default:
				glog.Warningf("Dropped change of %s for a slow subscriber", ev.Path)
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			return
		case ch := <-b.subCh:
			subs[ch] = struct{}{}
		case ch := <-b.unsubCh:
			delete(subs, ch)
		case ev := <-b.publishCh:
			if ev.Writes == 0 {
				ev.Writes = 1
			}
			if b.settle <= 0 {
				deliver(ev)
				continue
			}
			// Restart the quiet period on every write.
			ev.Writes += pending.Writes
			pending = ev
			quiet = time.After(b.settle)
		case <-quiet:
			deliver(pending)
			pending, quiet = FileEvent{}, nil
		}
	}
}

func (b *Broker) Stop() {
	close(b.stopCh)
}

// The channel is registered once Subscribe returns.
func (b *Broker) Subscribe() chan FileEvent {
	ch := make(chan FileEvent, 1)
	b.subCh <- ch
	return ch
}

func (b *Broker) Unsubscribe(ch chan FileEvent) {
	b.unsubCh <- ch
}

func (b *Broker) Publish(ev FileEvent) {
	b.publishCh <- ev
}

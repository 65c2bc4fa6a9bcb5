// Copyright 2024 The Nucleus Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package waiter

import (
	"testing"
)

type countingCallback struct {
	fired int
	last  EventMask
}

func (c *countingCallback) Callback(e *Entry, mask EventMask) {
	c.fired++
	c.last = mask
}

func TestNotifyFiltersByMask(t *testing.T) {
	var q Queue
	stop := &countingCallback{}
	exit := &countingCallback{}
	all := &countingCallback{}
	eStop := &Entry{Callback: stop}
	eExit := &Entry{Callback: exit}
	eAll := &Entry{Callback: all}
	q.EventRegister(eStop, EventStopped)
	q.EventRegister(eExit, EventExit)
	q.EventRegister(eAll, AllEvents)

	q.Notify(EventStopped)
	if stop.fired != 1 || exit.fired != 0 || all.fired != 1 {
		t.Errorf("after EventStopped: stop=%d exit=%d all=%d", stop.fired, exit.fired, all.fired)
	}
	if stop.last != EventStopped {
		t.Errorf("stop callback saw mask %v", stop.last)
	}

	q.Notify(EventExit | EventContinued)
	if stop.fired != 1 || exit.fired != 1 || all.fired != 2 {
		t.Errorf("after EventExit|EventContinued: stop=%d exit=%d all=%d", stop.fired, exit.fired, all.fired)
	}
	// Callbacks see only the intersection of the fired events with their
	// registration.
	if exit.last != EventExit {
		t.Errorf("exit callback saw mask %v", exit.last)
	}
	if all.last != EventExit|EventContinued {
		t.Errorf("all callback saw mask %v", all.last)
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	var q Queue
	cb := &countingCallback{}
	e := &Entry{Callback: cb}
	q.EventRegister(e, AllEvents)
	q.Notify(EventExit)
	q.EventUnregister(e)
	q.Notify(EventExit)
	if cb.fired != 1 {
		t.Errorf("fired %d times, want 1", cb.fired)
	}
}

func TestQueueIsEmpty(t *testing.T) {
	var q Queue
	if !q.IsEmpty() {
		t.Error("fresh queue not empty")
	}
	e := &Entry{Callback: &countingCallback{}}
	q.EventRegister(e, EventExit)
	if q.IsEmpty() {
		t.Error("queue with a waiter reported empty")
	}
	q.EventUnregister(e)
	if !q.IsEmpty() {
		t.Error("queue not empty after unregister")
	}
}

func TestChannelEntryDoesNotBlock(t *testing.T) {
	var q Queue
	e, ch := NewChannelEntry(1)
	q.EventRegister(&e, AllEvents)

	// The buffer holds one event; further events are dropped, never
	// blocked on.
	q.Notify(EventStopped)
	q.Notify(EventContinued)
	select {
	case got := <-ch:
		if got != EventStopped {
			t.Errorf("first event = %v, want EventStopped", got)
		}
	default:
		t.Fatal("no event delivered")
	}
	select {
	case got := <-ch:
		t.Errorf("unexpected second event %v", got)
	default:
	}
}

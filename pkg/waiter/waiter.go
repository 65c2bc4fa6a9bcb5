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

// Package waiter provides the notification primitive the kernel core uses to
// wake anyone waiting for a task's status to change.
package waiter

import (
	"sync"
)

// EventMask represents a set of status-change events.
type EventMask uint16

// Status-change events.
const (
	// EventStopped is signaled when a task enters a job-control stop.
	EventStopped EventMask = 1 << iota

	// EventContinued is signaled when a stopped task is resumed by
	// SIGCONT.
	EventContinued

	// EventExit is signaled when a task becomes a zombie.
	EventExit
)

// AllEvents is the set of all defined events.
const AllEvents = EventStopped | EventContinued | EventExit

// EntryCallback is invoked when an event the entry is registered for fires.
type EntryCallback interface {
	// Callback is run with the queue lock held; it must not block.
	Callback(e *Entry, mask EventMask)
}

// Entry represents a waiter registered on a Queue.
type Entry struct {
	Callback EntryCallback

	mask EventMask
}

type channelCallback struct {
	ch chan EventMask
}

// Callback implements EntryCallback.Callback.
func (c *channelCallback) Callback(e *Entry, mask EventMask) {
	select {
	case c.ch <- mask:
	default:
	}
}

// NewChannelEntry returns an Entry whose events are delivered on the returned
// channel. The channel is buffered; an event firing while the buffer is full
// is dropped, so observers must drain promptly or size for coalescing.
func NewChannelEntry(buffer int) (Entry, chan EventMask) {
	ch := make(chan EventMask, buffer)
	return Entry{Callback: &channelCallback{ch: ch}}, ch
}

// Queue is the registration point for waiters.
type Queue struct {
	mu      sync.Mutex
	entries map[*Entry]struct{}
}

// EventRegister adds a waiter to the queue for the given events.
func (q *Queue) EventRegister(e *Entry, mask EventMask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.entries == nil {
		q.entries = make(map[*Entry]struct{})
	}
	e.mask = mask
	q.entries[e] = struct{}{}
}

// EventUnregister removes a waiter from the queue.
func (q *Queue) EventUnregister(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, e)
}

// Notify fires the given events at all registered waiters whose mask
// intersects them.
func (q *Queue) Notify(mask EventMask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for e := range q.entries {
		if m := e.mask & mask; m != 0 {
			e.Callback.Callback(e, m)
		}
	}
}

// IsEmpty returns whether the queue has no registered waiters.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) == 0
}

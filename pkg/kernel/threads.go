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

package kernel

import (
	"fmt"
	"sync"

	"nucleus.dev/nucleus/pkg/errors/linuxerr"
)

// TasksLimit is the maximum number of live tasks. Tasks are backed by
// goroutines, so resource limits would be hit long before this number; it
// exists so that thread-id exhaustion is a reportable error rather than an
// integer wrap.
const TasksLimit = 1 << 16

// ThreadID is a generic thread identifier.
type ThreadID int32

// String returns a decimal representation of the ThreadID.
func (tid ThreadID) String() string {
	return fmt.Sprintf("%d", tid)
}

// ProcessID is a process identifier.
type ProcessID int32

// InitTID is the thread id of the init task. Signals whose disposition says
// "ignore" are still logged when aimed at init, so a misbehaving supervisor
// does not silently try to kill pid 1.
const InitTID ThreadID = 1

// A TaskSet comprises all tasks in the system: a map between thread ids and
// task descriptors. Thread ids are allocated monotonically and never reused
// within a boot.
//
// The TaskSet is owned by the scheduler and accessed only under its
// critical-section discipline (preemption disabled), never via a blocking
// lock.
type TaskSet struct {
	tasks   map[ThreadID]*Task
	nextTID ThreadID

	// live counts non-exited task goroutines.
	live sync.WaitGroup
}

func newTaskSet() *TaskSet {
	return &TaskSet{
		tasks:   make(map[ThreadID]*Task),
		nextTID: InitTID,
	}
}

// newTID allocates the next thread id.
//
// Preconditions: preemption disabled.
func (ts *TaskSet) newTID() (ThreadID, error) {
	if len(ts.tasks) >= TasksLimit || ts.nextTID <= 0 {
		return 0, linuxerr.EAGAIN
	}
	tid := ts.nextTID
	ts.nextTID++
	return tid, nil
}

// add registers t.
//
// Preconditions: preemption disabled; t.id was returned by newTID.
func (ts *TaskSet) add(t *Task) {
	if _, ok := ts.tasks[t.id]; ok {
		panic(fmt.Sprintf("duplicate thread id %v", t.id))
	}
	ts.tasks[t.id] = t
}

// remove unregisters t, making its thread id dead.
//
// Preconditions: preemption disabled.
func (ts *TaskSet) remove(t *Task) {
	delete(ts.tasks, t.id)
}

// taskWithID returns the task with the given id, or nil.
//
// Preconditions: preemption disabled.
func (ts *TaskSet) taskWithID(tid ThreadID) *Task {
	return ts.tasks[tid]
}

// forEach applies f to every registered task.
//
// Preconditions: preemption disabled. f must not mutate the set.
func (ts *TaskSet) forEach(f func(t *Task)) {
	for _, t := range ts.tasks {
		f(t)
	}
}

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
	"runtime"
)

// Never is the result type of operations that do not return: once committed,
// control never comes back to the caller. No value of this type is ever
// constructed, so code after such a call is unreachable by construction.
type Never struct {
	_ never
}

type never struct{}

// enqueue adds t to the run queue if it is eligible and not already queued.
// The idle context is never queued; it gets the CPU only when the queue
// drains.
//
// Preconditions: preemption disabled.
func (k *Kernel) enqueue(t *Task) {
	if t == k.idle || t.queued || t.stopped || t.vforkStopped {
		return
	}
	t.queued = true
	k.runq = append(k.runq, t)
}

// pickNext pops the next schedulable task off the run queue, skipping
// entries that became ineligible while queued.
//
// Preconditions: preemption disabled.
func (k *Kernel) pickNext() *Task {
	for len(k.runq) > 0 {
		t := k.runq[0]
		k.runq = k.runq[1:]
		t.queued = false
		if t.state == TaskRunnable && !t.stopped && !t.vforkStopped {
			return t
		}
	}
	return nil
}

// schedule picks the next runnable task (the idle context if none) and
// switches to it.
//
// Preconditions: preemption disabled; the caller has already moved the
// current task out of TaskRunning.
func (k *Kernel) schedule() {
	cur := k.cpu.current
	cur.savedIntrDepth = k.cpu.intrCount
	next := k.pickNext()
	if next == nil {
		next = k.idle
	}
	k.switchToTask(next)
}

// switchToTask transfers control of the CPU to t.
//
// Preconditions: preemption disabled by the caller; t is TaskRunnable, or
// already TaskRunning for same-task re-entry. Violations are programming
// errors and abort: this path runs too close to the hardware for graceful
// degradation.
//
// The call returns only when the calling context is itself next scheduled;
// for a caller that has become a zombie it never returns at all.
func (k *Kernel) switchToTask(t *Task) {
	cur := k.cpu.current
	if cur == nil {
		panic("switchToTask with no current task")
	}
	if t != cur {
		if cur.state == TaskRunning {
			panic(fmt.Sprintf("switchToTask: current task %v still running", cur.id))
		}
		if t.state != TaskRunnable {
			panic(fmt.Sprintf("switchToTask: target task %v in state %v", t.id, t.state))
		}
	}
	if k.PreemptionEnabled() {
		panic("switchToTask with preemption enabled")
	}

	// Do as much work as possible before disabling interrupts.
	t.setStateIdempotent(TaskRunning)

	if !cur.kernelThread && cur.state != TaskZombie && cur.fpuEnabled() {
		cur.fpu.SaveFrom(k.cpu.fpuRegs)
	}

	if !t.kernelThread {
		if k.cpu.addressSpace != t.p.as {
			k.cpu.addressSpace = t.p.as
			t.p.as.Activate()
		}
		if !t.runningInKernel && t.frame.User() {
			// Returning to user mode: pending signals must be
			// checked before user code resumes.
			t.checkSignals = true
		}
		if t.fpuEnabled() {
			t.fpu.RestoreTo(k.cpu.fpuRegs)
		}
	}

	// From here to the commit we have to be as fast as possible.
	k.disableInterruptsForced()
	k.popNestedInterrupts()
	k.enablePreemptionNoSched()
	if !k.PreemptionEnabled() {
		panic("switchToTask: preemption still disabled at commit")
	}

	if !t.runningInKernel {
		t.resetKernelStack()
	} else {
		k.adjustNestedInterrupts(t)
	}

	k.commitFrame(t)
}

// commitFrame commits t as the current task and restores its frame: the
// target's goroutine is unparked and the calling context parks (or, if its
// task has exited, is torn down). This is the transfer of control itself.
func (k *Kernel) commitFrame(t *Task) {
	prev := k.cpu.current
	k.cpu.current = t
	k.cpu.intrForced = false
	if t == prev {
		// Same-task re-entry: nothing to hand off.
		return
	}
	// Once the gate send lands, t runs concurrently with this goroutine and
	// may mutate task state. Everything needed from prev must be read first.
	exiting := prev.state == TaskZombie
	t.gate <- struct{}{}
	if exiting {
		runtime.Goexit()
	}
	<-prev.gate
	// Scheduled again: prev owns the CPU.
	prev.onResume()
}

// onResume runs on a task's own goroutine immediately after it regains the
// CPU, before control returns to whatever it was doing.
func (t *Task) onResume() {
	if !t.checkSignals {
		return
	}
	t.checkSignals = false
	t.k.DisablePreemption()
	if !t.k.deliverPending() {
		t.k.enablePreemptionNoSched()
	}
}

// Yield gives up the CPU, leaving the current task runnable.
func (k *Kernel) Yield() {
	k.DisablePreemption()
	cur := k.cpu.current
	if cur == k.idle {
		k.enablePreemptionNoSched()
		return
	}
	cur.setState(TaskRunnable)
	k.schedule()
}

// yieldStopped gives up the CPU from a task that just entered a job-control
// stop. The task stays off the run queue until the stop is lifted.
//
// Preconditions: preemption disabled exactly once by the caller; it is
// restored before return.
func (k *Kernel) yieldStopped() {
	cur := k.cpu.current
	cur.state = TaskRunnable // ineligible while the stopped flag holds
	k.schedule()
	// Stop lifted and scheduled again; restore the caller's critical
	// section.
	k.DisablePreemption()
}

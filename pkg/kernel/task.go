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

	"nucleus.dev/nucleus/pkg/abi/linux"
	"nucleus.dev/nucleus/pkg/arch"
	"nucleus.dev/nucleus/pkg/arch/fpu"
	"nucleus.dev/nucleus/pkg/log"
	"nucleus.dev/nucleus/pkg/waiter"
)

// TaskState is the scheduling state of a task.
type TaskState int32

// Task states. Job-control stop and vfork stop are tracked by auxiliary
// flags, not states: a stopped task keeps its underlying state and simply
// becomes ineligible for scheduling.
const (
	// TaskRunnable means the task is eligible to run.
	TaskRunnable TaskState = iota

	// TaskRunning means the task owns the CPU. Exactly one task is in this
	// state at any instant.
	TaskRunning

	// TaskSleeping means the task is blocked on a wait object.
	TaskSleeping

	// TaskZombie means the task has exited and awaits reaping.
	TaskZombie
)

// String implements fmt.Stringer.String.
func (s TaskState) String() string {
	switch s {
	case TaskRunnable:
		return "runnable"
	case TaskRunning:
		return "running"
	case TaskSleeping:
		return "sleeping"
	case TaskZombie:
		return "zombie"
	default:
		return fmt.Sprintf("TaskState(%d)", int32(s))
	}
}

// WaitObjectKind discriminates what a sleeping task is blocked on. The
// distinction matters to signal delivery: tasks waiting on a mutex or a
// semaphore must never be spuriously woken by a signal, while tasks waiting
// on a condition or in a generic sleep must be.
type WaitObjectKind int

// Wait object kinds.
const (
	WaitNone WaitObjectKind = iota
	WaitMutex
	WaitSemaphore
	WaitCondition
	WaitSleep
)

// String implements fmt.Stringer.String.
func (k WaitObjectKind) String() string {
	switch k {
	case WaitNone:
		return "none"
	case WaitMutex:
		return "mutex"
	case WaitSemaphore:
		return "semaphore"
	case WaitCondition:
		return "condition"
	case WaitSleep:
		return "sleep"
	default:
		return fmt.Sprintf("WaitObjectKind(%d)", int(k))
	}
}

// WaitObject is a tagged reference to whatever a task is blocked on.
type WaitObject struct {
	Kind WaitObjectKind

	// Obj is the blocking object; nil for WaitNone and WaitSleep.
	Obj any
}

// signalImmune returns whether a terminating signal must leave the wait
// undisturbed.
func (w WaitObject) signalImmune() bool {
	return w.Kind == WaitMutex || w.Kind == WaitSemaphore
}

// TaskFunc is a task body: the entry point a kernel thread or task begins
// executing at.
type TaskFunc func(arg any)

// Task is a task descriptor: the per-thread control block.
type Task struct {
	k *Kernel

	// id is the task's thread id, unique within a boot. Immutable.
	id ThreadID

	// name is a diagnostic label. Immutable.
	name string

	// p is the owning process; referenced, not owned. Immutable.
	p *Process

	// kernelThread is whether the task only ever executes kernel code.
	// Kernel threads cannot receive signals. Immutable.
	kernelThread bool

	// state is the scheduling state. Written only with preemption
	// disabled.
	state TaskState

	// queued is whether the task currently sits on the run queue.
	queued bool

	// frame is the task's saved register frame. It is valid whenever
	// state != TaskRunning; while running, the live CPU owns the register
	// contents and the field is transient.
	frame arch.Context

	// pending is the task's pending-signal bitmask.
	pending linux.SignalSet

	// nestedSignalHandlers counts in-flight injected handler invocations.
	// It only grows while preparing an injection; a nonzero value means
	// the pre-handler machine state has already been saved and must not be
	// saved again.
	nestedSignalHandlers int

	// stopped marks a job-control stop (SIGSTOP family). A stopped task is
	// ineligible for scheduling regardless of state.
	stopped bool

	// vforkStopped marks a parent blocked until its vfork child execs or
	// exits. It suppresses signal-driven wake-up entirely.
	vforkStopped bool

	// wobj is what the task is blocked on while TaskSleeping.
	wobj WaitObject

	// fpu is the task's saved floating-point context, lazily allocated and
	// reused across the task's lifetime. nil until first needed.
	fpu fpu.State

	// runningInKernel is whether the task is currently executing kernel
	// code rather than having trapped from user mode. It decides both the
	// frame re-save policy and the interrupt-nesting bookkeeping on
	// switch.
	runningInKernel bool

	// savedIntrDepth is the interrupt-nesting depth to restore when a
	// task suspended in kernel code is resumed.
	savedIntrDepth int32

	// kstackTop is the top of the task's kernel stack.
	kstackTop uint64

	// wstatus is the task's last reported wait status (stop, continue,
	// exit).
	wstatus linux.WaitStatus

	// statusWaiters is notified on status changes.
	statusWaiters waiter.Queue

	// gate parks the task's goroutine between scheduling turns.
	gate chan struct{}

	// checkSignals requests a pending-signal check before the task resumes
	// user mode.
	checkSignals bool

	// entry and arg are the Go-level body driven by the task goroutine.
	entry TaskFunc
	arg   any

	logger *log.Entry
}

// ID returns the task's thread id.
func (t *Task) ID() ThreadID { return t.id }

// Name returns the task's diagnostic name.
func (t *Task) Name() string { return t.name }

// Process returns the owning process.
func (t *Task) Process() *Process { return t.p }

// IsKernelThread returns whether the task is a kernel-only thread.
func (t *Task) IsKernelThread() bool { return t.kernelThread }

// State returns the task's scheduling state.
func (t *Task) State() TaskState { return t.state }

// Stopped returns whether the task is in a job-control stop.
func (t *Task) Stopped() bool { return t.stopped }

// VforkStopped returns whether the task is vfork-stopped.
func (t *Task) VforkStopped() bool { return t.vforkStopped }

// SetVforkStopped marks or clears the vfork stop.
//
// Preconditions: preemption disabled, or the machine is idle.
func (t *Task) SetVforkStopped(v bool) { t.vforkStopped = v }

// Pending returns a copy of the task's pending-signal bitmask.
func (t *Task) Pending() linux.SignalSet { return t.pending }

// NestedSignalHandlers returns the in-flight handler injection count.
func (t *Task) NestedSignalHandlers() int { return t.nestedSignalHandlers }

// WaitStatus returns the task's last reported wait status.
func (t *Task) WaitStatus() linux.WaitStatus { return t.wstatus }

// WaitObjectInfo returns what the task is currently blocked on.
func (t *Task) WaitObjectInfo() WaitObject { return t.wobj }

// Frame returns the task's register frame.
//
// Preconditions: t.State() != TaskRunning; while running the frame is
// transient and owned by the CPU.
func (t *Task) Frame() arch.Context { return t.frame }

// StatusWaiters returns the queue notified on the task's status changes.
func (t *Task) StatusWaiters() *waiter.Queue { return &t.statusWaiters }

// Debugf logs a task-scoped debug message.
func (t *Task) Debugf(format string, args ...any) {
	t.logger.Debugf(format, args...)
}

// Infof logs a task-scoped info message.
func (t *Task) Infof(format string, args ...any) {
	t.logger.Infof(format, args...)
}

// Warningf logs a task-scoped warning.
func (t *Task) Warningf(format string, args ...any) {
	t.logger.Warningf(format, args...)
}

// setState moves the task to state s, maintaining run-queue membership.
//
// Preconditions: preemption disabled.
func (t *Task) setState(s TaskState) {
	t.state = s
	if s == TaskRunnable {
		t.k.enqueue(t)
	}
}

// setStateIdempotent is setState, tolerating a task already in the target
// state. Used by the switch path for same-task re-entry.
func (t *Task) setStateIdempotent(s TaskState) {
	if t.state != s {
		t.state = s
	}
}

// wake makes a sleeping task runnable. A vfork-stopped task is left alone;
// it can only resume through its own vfork completion.
//
// Preconditions: preemption disabled.
func (t *Task) wake() {
	if t.vforkStopped {
		return
	}
	if t.state == TaskSleeping {
		t.setState(TaskRunnable)
	}
}

// fpuEnabled returns whether the task has live floating-point state that the
// switch path must preserve.
func (t *Task) fpuEnabled() bool {
	return t.fpu != nil && t.frame.FPUDirty()
}

// resetKernelStack points the frame's kernel stack pointer back at the top of
// the task's kernel stack, for tasks resuming to user mode.
func (t *Task) resetKernelStack() {
	t.frame.SetKernelStack(t.kstackTop)
}

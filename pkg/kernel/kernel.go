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

// Package kernel implements the task-scheduling and signal-delivery core of
// a Unix-ABI-compatible kernel, modeled on a single logical CPU.
//
// Tasks are gated goroutines: at most one holds the CPU at any instant, and
// the only way off the CPU is an explicit pass through the context-switch
// engine. Preemption is driven by timer ticks latched until the outermost
// preemption-disabled section exits. Signal state lives in per-task pending
// bitmasks and per-process disposition tables, and is delivered on the
// kernel-to-user return path.
package kernel

import (
	"nucleus.dev/nucleus/pkg/arch"
	"nucleus.dev/nucleus/pkg/arch/fpu"
	"nucleus.dev/nucleus/pkg/errors/linuxerr"
)

// Allocator is the memory collaborator for per-task kernel resources. The
// default implementation allocates from the Go heap; tests substitute failing
// allocators to exercise exhaustion paths.
type Allocator interface {
	// NewTask returns storage for a task descriptor.
	NewTask() (*Task, error)

	// NewFPUState returns a floating-point context buffer.
	NewFPUState(size int) (fpu.State, error)

	// FreeTask returns task storage.
	FreeTask(t *Task)

	// FreeFPUState returns a floating-point buffer.
	FreeFPUState(s fpu.State)
}

type heapAllocator struct{}

func (heapAllocator) NewTask() (*Task, error) { return &Task{}, nil }

func (heapAllocator) NewFPUState(size int) (fpu.State, error) {
	return fpu.NewState(size), nil
}

func (heapAllocator) FreeTask(t *Task) {}

func (heapAllocator) FreeFPUState(s fpu.State) {}

// Options configures a Kernel.
type Options struct {
	// Arch selects the register-frame layout. Defaults to RISCV64.
	Arch arch.Arch

	// Allocator overrides the task/FPU allocator.
	Allocator Allocator
}

// Kernel owns the task table, the process table and the CPU model. It is
// created at init and torn down only at shutdown; all access to its tables is
// mediated through the preemption-disable discipline.
type Kernel struct {
	arch  arch.Arch
	alloc Allocator

	ts        *TaskSet
	processes map[ProcessID]*Process
	nextPID   ProcessID

	cpu  CPU
	runq []*Task

	// ticks counts timer ticks; sleepers maps a task in a timed sleep to
	// the tick it wakes at.
	ticks    uint64
	sleepers map[*Task]uint64

	// kernelProc owns all kernel threads.
	kernelProc *Process

	// idle is the boot/idle context: the goroutine that called Run. It
	// receives the CPU when nothing else is runnable.
	idle *Task
}

// New creates a kernel with an idle context holding the CPU.
func New(opts Options) *Kernel {
	k := &Kernel{
		arch:      opts.Arch,
		alloc:     opts.Allocator,
		ts:        newTaskSet(),
		processes: make(map[ProcessID]*Process),
		nextPID:   1,
		sleepers:  make(map[*Task]uint64),
	}
	if k.alloc == nil {
		k.alloc = heapAllocator{}
	}
	k.cpu.fpuRegs = make([]byte, fpuRegsSize(k.arch))

	k.kernelProc = &Process{k: k, pid: 0, name: "kernel"}
	k.processes[0] = k.kernelProc

	k.idle = k.newIdleTask()
	k.cpu.current = k.idle
	return k
}

func fpuRegsSize(a arch.Arch) int {
	switch a {
	case arch.AMD64:
		return fpu.StateSizeAMD64
	default:
		return fpu.StateSizeRISCV64
	}
}

func (k *Kernel) newIdleTask() *Task {
	t := &Task{
		k:               k,
		id:              0,
		name:            "idle",
		p:               k.kernelProc,
		kernelThread:    true,
		state:           TaskRunning,
		frame:           arch.New(k.arch),
		runningInKernel: true,
		gate:            make(chan struct{}, 1),
		logger:          taskLogger(0, "idle"),
	}
	return t
}

// Arch returns the architecture the kernel was built for.
func (k *Kernel) Arch() arch.Arch { return k.arch }

// CurrentTask returns the task owning the CPU, or nil from the idle context.
func (k *Kernel) CurrentTask() *Task {
	if k.cpu.current == k.idle {
		return nil
	}
	return k.cpu.current
}

// TaskWithID returns the task with the given thread id, or nil.
func (k *Kernel) TaskWithID(tid ThreadID) *Task {
	return k.ts.taskWithID(tid)
}

// ForEachTask calls f on every task in the task table, the idle context
// excluded.
//
// Preconditions: no task is mutating the table, i.e. the caller runs from
// the idle context or with preemption disabled.
func (k *Kernel) ForEachTask(f func(t *Task)) {
	k.ts.forEach(f)
}

// ProcessWithID returns the process with the given id, or nil.
func (k *Kernel) ProcessWithID(pid ProcessID) *Process {
	return k.processes[pid]
}

// Run hands the CPU to the scheduler and drives tasks until none is
// runnable, then returns control to the caller (the idle context). Callers
// may mutate kernel state between runs; all parked tasks are quiescent.
func (k *Kernel) Run() {
	if k.cpu.current != k.idle {
		panic("Run called from a task context")
	}
	k.DisablePreemption()
	k.idle.state = TaskRunnable
	k.schedule()
	// The CPU came back: nothing else was runnable.
}

// ReapTask reclaims a zombie task, freeing its thread id and, if it was the
// process's last task, the process. It returns the task's wait status.
func (k *Kernel) ReapTask(tid ThreadID) (int32, error) {
	k.DisablePreemption()
	defer k.EnablePreemption()
	t := k.ts.taskWithID(tid)
	if t == nil {
		return 0, linuxerr.ESRCH
	}
	if t.state != TaskZombie {
		return 0, linuxerr.EAGAIN
	}
	k.ts.remove(t)
	t.p.removeTask(t)
	if t.fpu != nil {
		k.alloc.FreeFPUState(t.fpu)
		t.fpu = nil
	}
	status := int32(t.wstatus)
	k.alloc.FreeTask(t)
	return status, nil
}

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
	"nucleus.dev/nucleus/pkg/arch"
	"nucleus.dev/nucleus/pkg/errors/linuxerr"
	"nucleus.dev/nucleus/pkg/log"
)

// Synthetic layout constants for frames. Task bodies are Go functions; these
// give every task a stable, distinct set of addresses so frames stay
// meaningful and assertable.
const (
	// kernelTextBase is where synthetic kernel entry points live.
	kernelTextBase = uint64(0xffffffff80000000)

	// kthreadExitTrampoline is the fixed return address every kernel
	// thread frame points at.
	kthreadExitTrampoline = uint64(0xffffffff80000010)

	// userTextBase is where synthetic user entry points live.
	userTextBase = uint64(0x00400000)

	// postHandlerTrampoline is the fixed user-visible address a signal
	// handler returns to.
	postHandlerTrampoline = uint64(0x00007ffff0000000)

	// kernelStackBase and kernelStackSize lay out per-task kernel stacks.
	kernelStackBase = uint64(0xffffffc000000000)
	kernelStackSize = uint64(16 << 10)
)

// Kernel thread creation flags.
const (
	// ThreadAllocFPU requests an FPU context buffer for a kernel thread
	// that needs one.
	ThreadAllocFPU = 1 << iota
)

func taskLogger(tid ThreadID, name string) *log.Entry {
	return log.TaskEntry(int32(tid), name)
}

func kstackTopFor(tid ThreadID) uint64 {
	return kernelStackBase + uint64(tid)*kernelStackSize + kernelStackSize
}

func kernelEntryAddr(tid ThreadID) uint64 {
	return kernelTextBase + uint64(tid)*0x100
}

func userEntryAddr(tid ThreadID) uint64 {
	return userTextBase + uint64(tid)*0x100
}

// CreateKernelThread allocates and registers a new task that begins
// executing entry(arg) in kernel context, and returns its thread id.
//
// It fails with EAGAIN when no thread id is available and ENOMEM when task
// memory is exhausted.
//
// Once the task is registered, there is no guarantee the returned id still
// denotes a live thread by the time the caller resumes: the new thread may
// run to completion first. Callers must treat the id as ephemeral unless
// they independently hold a reference.
func (k *Kernel) CreateKernelThread(entry TaskFunc, name string, flags int, arg any) (ThreadID, error) {
	if name == "" {
		panic("kernel thread must be named")
	}

	k.DisablePreemption()
	tid, err := k.ts.newTID()
	if err != nil {
		k.EnablePreemption()
		return 0, err
	}
	t, err := k.alloc.NewTask()
	if err != nil {
		k.EnablePreemption()
		return 0, linuxerr.ENOMEM
	}

	*t = Task{
		k:               k,
		id:              tid,
		name:            name,
		p:               k.kernelProc,
		kernelThread:    true,
		runningInKernel: true,
		kstackTop:       kstackTopFor(tid),
		gate:            make(chan struct{}, 1),
		entry:           entry,
		arg:             arg,
		logger:          taskLogger(tid, name),
	}
	t.frame = arch.NewKernelContext(k.arch, kernelEntryAddr(tid), 0, kthreadExitTrampoline)
	t.frame.SetKernelStack(t.kstackTop)

	if flags&ThreadAllocFPU != 0 {
		if err := k.ensureFPUState(t); err != nil {
			k.alloc.FreeTask(t)
			k.EnablePreemption()
			return 0, err
		}
	}

	t.setState(TaskRunnable)
	k.ts.add(t)
	k.kernelProc.addTask(t)
	k.startTaskGoroutine(t)
	t.Debugf("kernel thread created")
	k.EnablePreemption()
	return tid, nil
}

// CreateTask allocates and registers a new task of process p that begins
// executing entry(arg) as user code. The task gets a fresh user stack carved
// from the process image and a floating-point context buffer.
func (k *Kernel) CreateTask(p *Process, entry TaskFunc, name string, arg any) (ThreadID, error) {
	if p == k.kernelProc {
		panic("user task attached to the kernel process")
	}

	k.DisablePreemption()
	tid, err := k.ts.newTID()
	if err != nil {
		k.EnablePreemption()
		return 0, err
	}
	t, err := k.alloc.NewTask()
	if err != nil {
		k.EnablePreemption()
		return 0, linuxerr.ENOMEM
	}

	*t = Task{
		k:         k,
		id:        tid,
		name:      name,
		p:         p,
		kstackTop: kstackTopFor(tid),
		gate:      make(chan struct{}, 1),
		entry:     entry,
		arg:       arg,
		logger:    taskLogger(tid, name),
	}
	t.frame = arch.NewUserContext(k.arch, userEntryAddr(tid), uint64(p.allocStackTop()))
	t.frame.SetKernelStack(t.kstackTop)

	if err := k.ensureFPUState(t); err != nil {
		k.alloc.FreeTask(t)
		k.EnablePreemption()
		return 0, err
	}

	t.setState(TaskRunnable)
	k.ts.add(t)
	p.addTask(t)
	k.startTaskGoroutine(t)
	t.Debugf("task created in process %d", p.pid)
	k.EnablePreemption()
	return tid, nil
}

// ensureFPUState gives t a floating-point context buffer, reusing an
// existing one (cleared) rather than reallocating, and marks the frame's
// floating-point state live so the switch path saves and restores it.
func (k *Kernel) ensureFPUState(t *Task) error {
	if t.fpu == nil {
		s, err := k.alloc.NewFPUState(fpuRegsSize(k.arch))
		if err != nil {
			return linuxerr.ENOMEM
		}
		t.fpu = s
	} else {
		t.fpu.Reset()
	}
	t.frame.SetFPUDirty(true)
	return nil
}

// startTaskGoroutine spawns the goroutine backing t. It parks immediately
// and runs only when the context-switch engine hands it the CPU.
func (k *Kernel) startTaskGoroutine(t *Task) {
	k.ts.live.Add(1)
	go func() {
		defer k.ts.live.Done()
		<-t.gate
		t.onResume()
		t.entry(t.arg)
		k.exitCurrent(0)
	}()
}

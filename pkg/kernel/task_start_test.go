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
	"testing"

	"nucleus.dev/nucleus/pkg/arch"
	"nucleus.dev/nucleus/pkg/arch/fpu"
	"nucleus.dev/nucleus/pkg/errors/linuxerr"
)

// failingAllocator fails task or FPU allocations on demand.
type failingAllocator struct {
	heapAllocator
	failTask bool
	failFPU  bool
}

func (a *failingAllocator) NewTask() (*Task, error) {
	if a.failTask {
		return nil, linuxerr.ENOMEM
	}
	return a.heapAllocator.NewTask()
}

func (a *failingAllocator) NewFPUState(size int) (fpu.State, error) {
	if a.failFPU {
		return nil, linuxerr.ENOMEM
	}
	return a.heapAllocator.NewFPUState(size)
}

func TestCreateKernelThreadAllocFailure(t *testing.T) {
	alloc := &failingAllocator{failTask: true}
	k := New(Options{Arch: arch.RISCV64, Allocator: alloc})

	if _, err := k.CreateKernelThread(func(any) {}, "doomed", 0, nil); !linuxerr.Equals(linuxerr.ENOMEM, err) {
		t.Fatalf("CreateKernelThread = %v, want ENOMEM", err)
	}
	if !k.PreemptionEnabled() {
		t.Error("preemption left disabled after failed create")
	}

	// The failure consumed a tid but must not have registered a task.
	alloc.failTask = false
	tid, err := k.CreateKernelThread(func(any) {}, "ok", 0, nil)
	if err != nil {
		t.Fatalf("CreateKernelThread: %v", err)
	}
	if got := k.TaskWithID(tid - 1); got != nil {
		t.Errorf("failed create left task %v in the table", got.ID())
	}
	k.Run()
	if _, err := k.ReapTask(tid); err != nil {
		t.Errorf("ReapTask: %v", err)
	}
}

func TestCreateTaskFPUAllocFailure(t *testing.T) {
	alloc := &failingAllocator{failFPU: true}
	k := New(Options{Arch: arch.RISCV64, Allocator: alloc})
	p := k.NewProcess("p")

	if _, err := k.CreateTask(p, func(any) {}, "doomed", nil); !linuxerr.Equals(linuxerr.ENOMEM, err) {
		t.Fatalf("CreateTask = %v, want ENOMEM", err)
	}
	if !k.PreemptionEnabled() {
		t.Error("preemption left disabled after failed create")
	}
}

func TestCreateKernelThreadRequiresName(t *testing.T) {
	k := newTestKernel(t)
	defer func() {
		if recover() == nil {
			t.Error("CreateKernelThread with empty name did not panic")
		}
	}()
	k.CreateKernelThread(func(any) {}, "", 0, nil)
}

func TestCreateTaskRejectsKernelProcess(t *testing.T) {
	k := newTestKernel(t)
	defer func() {
		if recover() == nil {
			t.Error("CreateTask on the kernel process did not panic")
		}
	}()
	k.CreateTask(k.ProcessWithID(0), func(any) {}, "bad", nil)
}

func TestKernelThreadInitialFrame(t *testing.T) {
	k := newTestKernel(t)
	tid, err := k.CreateKernelThread(func(any) { k.Sleep(100) }, "kt", ThreadAllocFPU, nil)
	if err != nil {
		t.Fatalf("CreateKernelThread: %v", err)
	}
	task := k.TaskWithID(tid)
	frame := task.Frame()

	if frame.User() {
		t.Error("kernel thread frame claims user mode")
	}
	if got, want := frame.IP(), kernelEntryAddr(tid); got != want {
		t.Errorf("IP = %#x, want %#x", got, want)
	}
	if got, want := frame.ReturnAddr(), kthreadExitTrampoline; got != want {
		t.Errorf("return address = %#x, want exit trampoline %#x", got, want)
	}
	if got, want := frame.KernelStack(), kstackTopFor(tid); got != want {
		t.Errorf("kernel stack = %#x, want %#x", got, want)
	}
	if !task.IsKernelThread() {
		t.Error("IsKernelThread = false")
	}
	if !task.fpuEnabled() {
		t.Error("ThreadAllocFPU did not attach FPU state")
	}

	// Without ThreadAllocFPU the thread carries no floating-point state and
	// the switch path must skip it.
	plain, err := k.CreateKernelThread(func(any) { k.Sleep(100) }, "plain", 0, nil)
	if err != nil {
		t.Fatalf("CreateKernelThread: %v", err)
	}
	if k.TaskWithID(plain).fpuEnabled() {
		t.Error("kernel thread without ThreadAllocFPU has live FPU state")
	}
}

func TestUserTaskInitialFrame(t *testing.T) {
	k := newTestKernel(t)
	p := k.NewProcess("p")
	tid, err := k.CreateTask(p, func(any) { k.Sleep(100) }, "u", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	task := k.TaskWithID(tid)
	frame := task.Frame()

	if !frame.User() {
		t.Error("user task frame claims kernel mode")
	}
	if got, want := frame.IP(), userEntryAddr(tid); got != want {
		t.Errorf("IP = %#x, want %#x", got, want)
	}
	if frame.UserStack() == 0 {
		t.Error("user stack not assigned")
	}
	if task.IsKernelThread() {
		t.Error("IsKernelThread = true for user task")
	}
	if !task.fpuEnabled() {
		t.Error("user task has no FPU state")
	}

	// Stacks are carved from the top of the process image and must not
	// collide.
	tid2, err := k.CreateTask(p, func(any) { k.Sleep(100) }, "u2", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	s1 := task.Frame().UserStack()
	s2 := k.TaskWithID(tid2).Frame().UserStack()
	if s2 >= s1 {
		t.Errorf("second stack %#x not below first %#x", s2, s1)
	}
}

func TestThreadIDsAreSequential(t *testing.T) {
	k := newTestKernel(t)
	p := k.NewProcess("p")
	var last ThreadID
	for i := 0; i < 3; i++ {
		tid, err := k.CreateTask(p, func(any) {}, "t", nil)
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		if last != 0 && tid != last+1 {
			t.Errorf("tid %v does not follow %v", tid, last)
		}
		last = tid
	}
}

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

	"github.com/google/go-cmp/cmp"

	"nucleus.dev/nucleus/pkg/abi/linux"
	"nucleus.dev/nucleus/pkg/arch"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	return New(Options{Arch: arch.RISCV64})
}

func TestYieldRoundRobin(t *testing.T) {
	k := newTestKernel(t)
	var order []string

	body := func(arg any) {
		for i := 0; i < 3; i++ {
			order = append(order, arg.(string))
			k.Yield()
		}
	}
	if _, err := k.CreateKernelThread(body, "a", 0, "a"); err != nil {
		t.Fatalf("CreateKernelThread: %v", err)
	}
	if _, err := k.CreateKernelThread(body, "b", 0, "b"); err != nil {
		t.Fatalf("CreateKernelThread: %v", err)
	}

	k.Run()

	want := []string{"a", "b", "a", "b", "a", "b"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("run order mismatch (-want +got):\n%s", diff)
	}
}

func TestRunWithNothingRunnable(t *testing.T) {
	k := newTestKernel(t)
	// Must return immediately and leave the counters balanced.
	k.Run()
	if !k.PreemptionEnabled() {
		t.Errorf("preemption disabled after idle Run")
	}
	if !k.InterruptsEnabled() {
		t.Errorf("interrupts disabled after idle Run")
	}
}

func TestKernelThreadRunsToExit(t *testing.T) {
	k := newTestKernel(t)
	ran := false
	tid, err := k.CreateKernelThread(func(any) { ran = true }, "worker", 0, nil)
	if err != nil {
		t.Fatalf("CreateKernelThread: %v", err)
	}

	k.Run()

	if !ran {
		t.Fatalf("thread body never ran")
	}
	status, err := k.ReapTask(tid)
	if err != nil {
		t.Fatalf("ReapTask(%v): %v", tid, err)
	}
	ws := linux.WaitStatus(status)
	if !ws.Exited() || ws.ExitStatus() != 0 {
		t.Errorf("wait status = %v, want clean exit", ws)
	}
}

func TestSignalRightAfterTaskParks(t *testing.T) {
	// When Run returns, the last task to block has just handed the CPU back
	// and its goroutine may still be finishing the handoff. Signaling it
	// immediately from the caller must not race with that teardown.
	k := newTestKernel(t)
	p := k.NewProcess("parked")
	tid, err := k.CreateTask(p, func(any) { k.Sleep(1000) }, "sleeper", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	k.Run()

	if err := k.SendSignal(p.ID(), tid, linux.SIGTERM, false); err != nil {
		t.Fatalf("SendSignal: %v", err)
	}
	k.Run()

	task := k.TaskWithID(tid)
	if got := task.State(); got != TaskZombie {
		t.Fatalf("state = %v, want zombie", got)
	}
	ws := task.WaitStatus()
	if !ws.Signaled() || ws.TerminationSignal() != linux.SIGTERM {
		t.Errorf("wait status = %v, want termination by SIGTERM", ws)
	}
}

func TestSwitchPanicsWithPreemptionEnabled(t *testing.T) {
	k := newTestKernel(t)
	defer func() {
		if recover() == nil {
			t.Errorf("switchToTask with preemption enabled did not panic")
		}
	}()
	k.switchToTask(k.idle)
}

func TestSwitchPanicsOnNonRunnableTarget(t *testing.T) {
	k := newTestKernel(t)
	target := &Task{
		k:      k,
		id:     99,
		name:   "bogus",
		p:      k.kernelProc,
		state:  TaskSleeping,
		gate:   make(chan struct{}, 1),
		logger: taskLogger(99, "bogus"),
	}
	k.DisablePreemption()
	k.idle.state = TaskRunnable
	defer func() {
		if recover() == nil {
			t.Errorf("switchToTask to a sleeping task did not panic")
		}
	}()
	k.switchToTask(target)
}

func TestPreemptionCountersNest(t *testing.T) {
	k := newTestKernel(t)
	k.DisablePreemption()
	k.DisablePreemption()
	if k.PreemptionEnabled() {
		t.Errorf("preemption enabled inside nested sections")
	}
	k.EnablePreemption()
	if k.PreemptionEnabled() {
		t.Errorf("preemption enabled after exiting only the inner section")
	}
	k.EnablePreemption()
	if !k.PreemptionEnabled() {
		t.Errorf("preemption still disabled after exiting all sections")
	}

	k.DisableInterrupts()
	if k.InterruptsEnabled() {
		t.Errorf("interrupts enabled inside a disabled section")
	}
	k.EnableInterrupts()
	if !k.InterruptsEnabled() {
		t.Errorf("interrupts still disabled after exiting the section")
	}
}

func TestEnablePreemptionUnderflowPanics(t *testing.T) {
	k := newTestKernel(t)
	defer func() {
		if recover() == nil {
			t.Errorf("unbalanced EnablePreemption did not panic")
		}
	}()
	k.EnablePreemption()
}

func TestTickForcesYieldAtPreemptionPoint(t *testing.T) {
	k := newTestKernel(t)
	var order []string

	if _, err := k.CreateKernelThread(func(any) {
		order = append(order, "a1")
		k.Tick()
		k.PreemptionPoint()
		order = append(order, "a2")
	}, "a", 0, nil); err != nil {
		t.Fatalf("CreateKernelThread: %v", err)
	}
	if _, err := k.CreateKernelThread(func(any) {
		order = append(order, "b")
	}, "b", 0, nil); err != nil {
		t.Fatalf("CreateKernelThread: %v", err)
	}

	k.Run()

	want := []string{"a1", "b", "a2"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("run order mismatch (-want +got):\n%s", diff)
	}
}

func TestTickIsNoOpWhilePreemptionDisabled(t *testing.T) {
	k := newTestKernel(t)
	var order []string

	if _, err := k.CreateKernelThread(func(any) {
		k.DisablePreemption()
		order = append(order, "a1")
		k.Tick()
		k.PreemptionPoint() // must not yield here
		order = append(order, "a2")
		k.EnablePreemption() // tick honored here
		order = append(order, "a3")
	}, "a", 0, nil); err != nil {
		t.Fatalf("CreateKernelThread: %v", err)
	}
	if _, err := k.CreateKernelThread(func(any) {
		order = append(order, "b")
	}, "b", 0, nil); err != nil {
		t.Fatalf("CreateKernelThread: %v", err)
	}

	k.Run()

	want := []string{"a1", "a2", "b", "a3"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("run order mismatch (-want +got):\n%s", diff)
	}
}

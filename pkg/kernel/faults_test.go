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
	"strings"
	"testing"

	"nucleus.dev/nucleus/pkg/abi/linux"
)

func TestFaultSignalMapping(t *testing.T) {
	for _, tc := range []struct {
		kind FaultKind
		want linux.Signal
	}{
		{FaultAccess, linux.SIGSEGV},
		{FaultIllegalInstruction, linux.SIGILL},
		{FaultMisalignedAccess, linux.SIGBUS},
	} {
		if got := tc.kind.Signal(); got != tc.want {
			t.Errorf("%v.Signal() = %v, want %v", tc.kind, got, tc.want)
		}
	}
}

func TestFaultWithNoCurrentTaskPanics(t *testing.T) {
	k := newTestKernel(t)
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("HandleFault from the idle context did not panic")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, "illegal access") {
			t.Errorf("panic value = %v", r)
		}
	}()
	k.HandleFault(FaultAccess)
}

func TestFaultInKernelThreadPanics(t *testing.T) {
	k := newTestKernel(t)
	panicked := false
	_, err := k.CreateKernelThread(func(any) {
		defer func() {
			if recover() != nil {
				panicked = true
			}
		}()
		k.HandleFault(FaultIllegalInstruction)
	}, "faulter", 0, nil)
	if err != nil {
		t.Fatalf("CreateKernelThread: %v", err)
	}
	k.Run()
	if !panicked {
		t.Error("fault in a kernel thread did not panic")
	}
}

func TestFaultTerminatesUserTask(t *testing.T) {
	k := newTestKernel(t)
	p := k.NewProcess("p")
	tid, err := k.CreateTask(p, func(any) {
		k.HandleFault(FaultAccess)
	}, "faulter", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	k.Run()

	task := k.TaskWithID(tid)
	if got := task.State(); got != TaskZombie {
		t.Fatalf("state = %v, want zombie", got)
	}
	ws := task.WaitStatus()
	if !ws.Signaled() || ws.TerminationSignal() != linux.SIGSEGV {
		t.Errorf("wait status = %v, want termination by SIGSEGV", ws)
	}
}

func TestFaultKindString(t *testing.T) {
	for _, tc := range []struct {
		kind FaultKind
		want string
	}{
		{FaultAccess, "illegal access"},
		{FaultIllegalInstruction, "illegal instruction"},
		{FaultMisalignedAccess, "misaligned access"},
	} {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("%v String = %q, want %q", int(tc.kind), got, tc.want)
		}
	}
}

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
)

// FaultKind is a category of CPU fault trap.
type FaultKind int

const (
	// FaultAccess is an illegal memory access (page fault that cannot be
	// resolved, protection violation).
	FaultAccess FaultKind = iota

	// FaultIllegalInstruction is an undefined or privileged instruction
	// executed in user mode.
	FaultIllegalInstruction

	// FaultMisalignedAccess is a misaligned or bus-errored access.
	FaultMisalignedAccess
)

// String implements fmt.Stringer.String.
func (f FaultKind) String() string {
	switch f {
	case FaultAccess:
		return "illegal access"
	case FaultIllegalInstruction:
		return "illegal instruction"
	case FaultMisalignedAccess:
		return "misaligned access"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(f))
	}
}

// Signal returns the fatal signal the fault maps to.
func (f FaultKind) Signal() linux.Signal {
	switch f {
	case FaultAccess:
		return linux.SIGSEGV
	case FaultIllegalInstruction:
		return linux.SIGILL
	case FaultMisalignedAccess:
		return linux.SIGBUS
	default:
		panic(fmt.Sprintf("unknown fault kind %d", int(f)))
	}
}

// HandleFault translates a CPU fault trap into its fatal signal against the
// current task and never returns. A fault with no current task, or from a
// kernel thread, is unrecoverable and panics immediately.
func (k *Kernel) HandleFault(kind FaultKind) Never {
	t := k.CurrentTask()
	if t == nil || t.kernelThread {
		panic(fmt.Sprintf("FAULT. Error: %s", kind))
	}

	t.Debugf("fault: %s, raising %s", kind, kind.Signal())
	k.DisablePreemption()
	k.actionTerminate(t, kind.Signal())
	panic("unreachable")
}

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

// Package arch provides abstractions around architecture-dependent details,
// above all the trap frame: the register snapshot that makes a suspended
// execution context resumable. Each supported architecture defines one frame
// structure with named fields, built through constructors rather than offset
// arithmetic, behind the common Context interface.
package arch

import (
	"fmt"

	"nucleus.dev/nucleus/pkg/usermem"
)

// Arch describes an architecture.
type Arch int

const (
	// RISCV64 is the riscv64 architecture.
	RISCV64 Arch = iota

	// AMD64 is the x86-64 architecture.
	AMD64
)

// String implements fmt.Stringer.String.
func (a Arch) String() string {
	switch a {
	case RISCV64:
		return "riscv64"
	case AMD64:
		return "amd64"
	default:
		return fmt.Sprintf("Arch(%d)", int(a))
	}
}

// Context provides architecture-independent access to a suspended context's
// trap frame.
type Context interface {
	// Arch returns the architecture of the frame.
	Arch() Arch

	// IP returns the instruction pointer the context resumes at.
	IP() uint64

	// SetIP sets the resuming instruction pointer.
	SetIP(v uint64)

	// UserStack returns the user stack pointer.
	UserStack() uint64

	// SetUserStack sets the user stack pointer.
	SetUserStack(v uint64)

	// KernelStack returns the kernel stack pointer.
	KernelStack() uint64

	// SetKernelStack sets the kernel stack pointer.
	SetKernelStack(v uint64)

	// Arg0 returns the first-argument register.
	Arg0() uint64

	// SetArg0 sets the first-argument register.
	SetArg0(v uint64)

	// ReturnAddr returns the return address in effect for the context.
	ReturnAddr() uint64

	// SetReturnAddr sets the return address.
	SetReturnAddr(v uint64)

	// SyscallReturn returns the register holding a system call's result.
	SyscallReturn() uint64

	// SetSyscallReturn forces a system call's result, e.g. to EINTR when a
	// handler is injected over an interrupted system call.
	SetSyscallReturn(v uint64)

	// User returns whether the frame resumes to user mode.
	User() bool

	// FPUDirty returns whether the context has live floating-point state
	// that must be preserved across a switch.
	FPUDirty() bool

	// SetFPUDirty marks the floating-point state live or dead.
	SetFPUDirty(dirty bool)

	// FrameSize returns the size in bytes of the serialized frame.
	FrameSize() int

	// SaveTo pushes the serialized frame onto st, returning the address it
	// was saved at. A fault while writing user memory is returned as-is
	// and leaves the frame unmodified.
	SaveTo(st *Stack) (usermem.Addr, error)

	// RestoreFrom pops a frame previously pushed by SaveTo from st back
	// into the context.
	RestoreFrom(st *Stack) error

	// InstallHandlerFrame rewrites the frame so that execution resumes at
	// handler with the signal number in the first-argument register and
	// the return address pointing at ret, reserving and aligning user
	// stack space per the architecture's calling convention.
	InstallHandlerFrame(handler uint64, sig int, ret uint64)
}

// HandlerStackAlign is the user stack alignment required at signal handler
// entry on all supported architectures.
const HandlerStackAlign = 16

// New returns a zeroed kernel-mode Context for the given architecture.
func New(a Arch) Context {
	switch a {
	case RISCV64:
		return &riscv64Context{}
	case AMD64:
		return &amd64Context{}
	default:
		panic(fmt.Sprintf("unknown architecture %v", a))
	}
}

// NewKernelContext builds the initial frame for a kernel thread: execution
// starts at entry with arg in the first-argument register and returns to the
// ret trampoline.
func NewKernelContext(a Arch, entry, arg, ret uint64) Context {
	switch a {
	case RISCV64:
		return newKernelFrameRISCV64(entry, arg, ret)
	case AMD64:
		return newKernelFrameAMD64(entry, arg, ret)
	default:
		panic(fmt.Sprintf("unknown architecture %v", a))
	}
}

// NewUserContext builds the initial frame for a task entering user mode at
// entry with the given user stack top.
func NewUserContext(a Arch, entry, userStack uint64) Context {
	switch a {
	case RISCV64:
		return newUserFrameRISCV64(entry, userStack)
	case AMD64:
		return newUserFrameAMD64(entry, userStack)
	default:
		panic(fmt.Sprintf("unknown architecture %v", a))
	}
}

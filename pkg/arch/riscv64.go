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

package arch

import (
	"encoding/binary"

	"nucleus.dev/nucleus/pkg/usermem"
)

// sstatus bits relevant to context switching.
const (
	// StatusSIE enables supervisor interrupts.
	StatusSIE = uint64(1) << 1

	// StatusSPIE is the prior interrupt-enable bit, restored on sret.
	StatusSPIE = uint64(1) << 5

	// StatusSPP is the prior privilege: set means the trap came from
	// supervisor mode, clear means user mode.
	StatusSPP = uint64(1) << 8

	// StatusFS is the floating-point unit status field; nonzero means the
	// FPU has live state.
	StatusFS = uint64(3) << 13

	// StatusSUM permits supervisor access to user memory.
	StatusSUM = uint64(1) << 18
)

// FrameRISCV64 is the riscv64 trap frame, version 1: the register snapshot
// pushed on the kernel stack when a context is suspended.
type FrameRISCV64 struct {
	// KernelResumePC is where the trap-return path re-enters.
	KernelResumePC uint64

	// PC is the sepc register: the instruction the context resumes at.
	PC uint64

	// RA is the return address register (x1).
	RA uint64

	// SP is the kernel stack pointer (x2 while in kernel mode).
	SP uint64

	// UserSP is the saved user stack pointer.
	UserSP uint64

	// A0 is the first argument/return value register (x10).
	A0 uint64

	// Status is the sstatus register.
	Status uint64
}

// frameSizeRISCV64 is the size of the serialized FrameRISCV64.
const frameSizeRISCV64 = 7 * 8

type riscv64Context struct {
	Frame FrameRISCV64
}

func newKernelFrameRISCV64(entry, arg, ret uint64) *riscv64Context {
	return &riscv64Context{
		Frame: FrameRISCV64{
			PC:     entry,
			RA:     ret,
			A0:     arg,
			Status: StatusSPIE | StatusSPP | StatusSIE | StatusSUM,
		},
	}
}

func newUserFrameRISCV64(entry, userStack uint64) *riscv64Context {
	return &riscv64Context{
		Frame: FrameRISCV64{
			PC:     entry,
			UserSP: userStack,
			Status: StatusSPIE | StatusSUM,
		},
	}
}

// Arch implements Context.Arch.
func (c *riscv64Context) Arch() Arch { return RISCV64 }

// IP implements Context.IP.
func (c *riscv64Context) IP() uint64 { return c.Frame.PC }

// SetIP implements Context.SetIP.
func (c *riscv64Context) SetIP(v uint64) { c.Frame.PC = v }

// UserStack implements Context.UserStack.
func (c *riscv64Context) UserStack() uint64 { return c.Frame.UserSP }

// SetUserStack implements Context.SetUserStack.
func (c *riscv64Context) SetUserStack(v uint64) { c.Frame.UserSP = v }

// KernelStack implements Context.KernelStack.
func (c *riscv64Context) KernelStack() uint64 { return c.Frame.SP }

// SetKernelStack implements Context.SetKernelStack.
func (c *riscv64Context) SetKernelStack(v uint64) { c.Frame.SP = v }

// Arg0 implements Context.Arg0.
func (c *riscv64Context) Arg0() uint64 { return c.Frame.A0 }

// SetArg0 implements Context.SetArg0.
func (c *riscv64Context) SetArg0(v uint64) { c.Frame.A0 = v }

// ReturnAddr implements Context.ReturnAddr.
func (c *riscv64Context) ReturnAddr() uint64 { return c.Frame.RA }

// SetReturnAddr implements Context.SetReturnAddr.
func (c *riscv64Context) SetReturnAddr(v uint64) { c.Frame.RA = v }

// SyscallReturn implements Context.SyscallReturn. The riscv64 syscall ABI
// returns in a0.
func (c *riscv64Context) SyscallReturn() uint64 { return c.Frame.A0 }

// SetSyscallReturn implements Context.SetSyscallReturn.
func (c *riscv64Context) SetSyscallReturn(v uint64) { c.Frame.A0 = v }

// User implements Context.User.
func (c *riscv64Context) User() bool { return c.Frame.Status&StatusSPP == 0 }

// FPUDirty implements Context.FPUDirty.
func (c *riscv64Context) FPUDirty() bool { return c.Frame.Status&StatusFS != 0 }

// SetFPUDirty implements Context.SetFPUDirty.
func (c *riscv64Context) SetFPUDirty(dirty bool) {
	if dirty {
		c.Frame.Status |= StatusFS
	} else {
		c.Frame.Status &^= StatusFS
	}
}

// FrameSize implements Context.FrameSize.
func (c *riscv64Context) FrameSize() int { return frameSizeRISCV64 }

func (c *riscv64Context) marshal() []byte {
	b := make([]byte, frameSizeRISCV64)
	binary.LittleEndian.PutUint64(b[0:], c.Frame.KernelResumePC)
	binary.LittleEndian.PutUint64(b[8:], c.Frame.PC)
	binary.LittleEndian.PutUint64(b[16:], c.Frame.RA)
	binary.LittleEndian.PutUint64(b[24:], c.Frame.SP)
	binary.LittleEndian.PutUint64(b[32:], c.Frame.UserSP)
	binary.LittleEndian.PutUint64(b[40:], c.Frame.A0)
	binary.LittleEndian.PutUint64(b[48:], c.Frame.Status)
	return b
}

func (c *riscv64Context) unmarshal(b []byte) {
	c.Frame.KernelResumePC = binary.LittleEndian.Uint64(b[0:])
	c.Frame.PC = binary.LittleEndian.Uint64(b[8:])
	c.Frame.RA = binary.LittleEndian.Uint64(b[16:])
	c.Frame.SP = binary.LittleEndian.Uint64(b[24:])
	c.Frame.UserSP = binary.LittleEndian.Uint64(b[32:])
	c.Frame.A0 = binary.LittleEndian.Uint64(b[40:])
	c.Frame.Status = binary.LittleEndian.Uint64(b[48:])
}

// SaveTo implements Context.SaveTo.
func (c *riscv64Context) SaveTo(st *Stack) (usermem.Addr, error) {
	return st.Push(c.marshal())
}

// RestoreFrom implements Context.RestoreFrom.
func (c *riscv64Context) RestoreFrom(st *Stack) error {
	b := make([]byte, frameSizeRISCV64)
	if err := st.Pop(b); err != nil {
		return err
	}
	c.unmarshal(b)
	return nil
}

// InstallHandlerFrame implements Context.InstallHandlerFrame. The riscv64
// calling convention passes the return address in ra, so no stack write is
// needed; the stack pointer is only realigned after reserving a redzone-sized
// slot.
func (c *riscv64Context) InstallHandlerFrame(handler uint64, sig int, ret uint64) {
	c.Frame.PC = handler
	c.Frame.UserSP = (c.Frame.UserSP - 8) &^ uint64(HandlerStackAlign-1)
	c.Frame.A0 = uint64(sig)
	c.Frame.RA = ret
}

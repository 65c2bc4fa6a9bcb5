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

// Segment selectors.
const (
	// KernelCS is the kernel code segment selector.
	KernelCS = uint64(0x10)

	// UserCS is the user code segment selector (RPL 3).
	UserCS = uint64(0x33)
)

// RFLAGS bits relevant to context switching.
const (
	// FlagIF is the interrupt-enable flag.
	FlagIF = uint64(1) << 9

	// FlagReserved is always set in a valid RFLAGS image.
	FlagReserved = uint64(1) << 1
)

// FrameAMD64 is the x86-64 trap frame, version 1. RetAddr models the return
// slot at the top of the stack that the call convention would otherwise keep
// in memory.
type FrameAMD64 struct {
	// RIP is the instruction the context resumes at.
	RIP uint64

	// RDI is the first argument register.
	RDI uint64

	// RAX is the return value / syscall result register.
	RAX uint64

	// RSP is the kernel stack pointer.
	RSP uint64

	// UserRSP is the saved user stack pointer.
	UserRSP uint64

	// RFLAGS is the saved flags register.
	RFLAGS uint64

	// CS is the saved code segment selector; its RPL distinguishes user
	// from kernel frames.
	CS uint64

	// RetAddr is the return address slot.
	RetAddr uint64
}

// frameSizeAMD64 is the size of the serialized FrameAMD64.
const frameSizeAMD64 = 8 * 8

type amd64Context struct {
	Frame FrameAMD64

	// fpuDirty tracks live x87/SSE state. On this architecture the flag
	// lives outside the frame image (CR0.TS in hardware).
	fpuDirty bool
}

func newKernelFrameAMD64(entry, arg, ret uint64) *amd64Context {
	return &amd64Context{
		Frame: FrameAMD64{
			RIP:     entry,
			RDI:     arg,
			RetAddr: ret,
			RFLAGS:  FlagReserved | FlagIF,
			CS:      KernelCS,
		},
	}
}

func newUserFrameAMD64(entry, userStack uint64) *amd64Context {
	return &amd64Context{
		Frame: FrameAMD64{
			RIP:     entry,
			UserRSP: userStack,
			RFLAGS:  FlagReserved | FlagIF,
			CS:      UserCS,
		},
	}
}

// Arch implements Context.Arch.
func (c *amd64Context) Arch() Arch { return AMD64 }

// IP implements Context.IP.
func (c *amd64Context) IP() uint64 { return c.Frame.RIP }

// SetIP implements Context.SetIP.
func (c *amd64Context) SetIP(v uint64) { c.Frame.RIP = v }

// UserStack implements Context.UserStack.
func (c *amd64Context) UserStack() uint64 { return c.Frame.UserRSP }

// SetUserStack implements Context.SetUserStack.
func (c *amd64Context) SetUserStack(v uint64) { c.Frame.UserRSP = v }

// KernelStack implements Context.KernelStack.
func (c *amd64Context) KernelStack() uint64 { return c.Frame.RSP }

// SetKernelStack implements Context.SetKernelStack.
func (c *amd64Context) SetKernelStack(v uint64) { c.Frame.RSP = v }

// Arg0 implements Context.Arg0.
func (c *amd64Context) Arg0() uint64 { return c.Frame.RDI }

// SetArg0 implements Context.SetArg0.
func (c *amd64Context) SetArg0(v uint64) { c.Frame.RDI = v }

// ReturnAddr implements Context.ReturnAddr.
func (c *amd64Context) ReturnAddr() uint64 { return c.Frame.RetAddr }

// SetReturnAddr implements Context.SetReturnAddr.
func (c *amd64Context) SetReturnAddr(v uint64) { c.Frame.RetAddr = v }

// SyscallReturn implements Context.SyscallReturn.
func (c *amd64Context) SyscallReturn() uint64 { return c.Frame.RAX }

// SetSyscallReturn implements Context.SetSyscallReturn.
func (c *amd64Context) SetSyscallReturn(v uint64) { c.Frame.RAX = v }

// User implements Context.User.
func (c *amd64Context) User() bool { return c.Frame.CS&3 == 3 }

// FPUDirty implements Context.FPUDirty.
func (c *amd64Context) FPUDirty() bool { return c.fpuDirty }

// SetFPUDirty implements Context.SetFPUDirty.
func (c *amd64Context) SetFPUDirty(dirty bool) { c.fpuDirty = dirty }

// FrameSize implements Context.FrameSize.
func (c *amd64Context) FrameSize() int { return frameSizeAMD64 }

func (c *amd64Context) marshal() []byte {
	b := make([]byte, frameSizeAMD64)
	binary.LittleEndian.PutUint64(b[0:], c.Frame.RIP)
	binary.LittleEndian.PutUint64(b[8:], c.Frame.RDI)
	binary.LittleEndian.PutUint64(b[16:], c.Frame.RAX)
	binary.LittleEndian.PutUint64(b[24:], c.Frame.RSP)
	binary.LittleEndian.PutUint64(b[32:], c.Frame.UserRSP)
	binary.LittleEndian.PutUint64(b[40:], c.Frame.RFLAGS)
	binary.LittleEndian.PutUint64(b[48:], c.Frame.CS)
	binary.LittleEndian.PutUint64(b[56:], c.Frame.RetAddr)
	return b
}

func (c *amd64Context) unmarshal(b []byte) {
	c.Frame.RIP = binary.LittleEndian.Uint64(b[0:])
	c.Frame.RDI = binary.LittleEndian.Uint64(b[8:])
	c.Frame.RAX = binary.LittleEndian.Uint64(b[16:])
	c.Frame.RSP = binary.LittleEndian.Uint64(b[24:])
	c.Frame.UserRSP = binary.LittleEndian.Uint64(b[32:])
	c.Frame.RFLAGS = binary.LittleEndian.Uint64(b[40:])
	c.Frame.CS = binary.LittleEndian.Uint64(b[48:])
	c.Frame.RetAddr = binary.LittleEndian.Uint64(b[56:])
}

// SaveTo implements Context.SaveTo.
func (c *amd64Context) SaveTo(st *Stack) (usermem.Addr, error) {
	return st.Push(c.marshal())
}

// RestoreFrom implements Context.RestoreFrom.
func (c *amd64Context) RestoreFrom(st *Stack) error {
	b := make([]byte, frameSizeAMD64)
	if err := st.Pop(b); err != nil {
		return err
	}
	c.unmarshal(b)
	return nil
}

// InstallHandlerFrame implements Context.InstallHandlerFrame. The SysV ABI
// wants rsp%16 == 8 at function entry, i.e. 16-byte aligned before the
// call-pushed return address.
func (c *amd64Context) InstallHandlerFrame(handler uint64, sig int, ret uint64) {
	c.Frame.RIP = handler
	c.Frame.UserRSP = (c.Frame.UserRSP &^ uint64(HandlerStackAlign-1)) - 8
	c.Frame.RDI = uint64(sig)
	c.Frame.RetAddr = ret
}

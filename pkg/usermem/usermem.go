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

// Package usermem governs access to user memory. Every crossing of the
// user/kernel boundary goes through the IO interface; a failed access
// surfaces as an EFAULT-class error, never a partial kernel-state mutation.
package usermem

import (
	"nucleus.dev/nucleus/pkg/errors/linuxerr"
)

// Addr represents a generic virtual address in user space.
type Addr uint64

// AddLength returns the end of the range starting at addr and running for
// length bytes, and whether that computation overflowed.
func (v Addr) AddLength(length uint64) (end Addr, ok bool) {
	end = v + Addr(length)
	ok = end >= v
	return
}

// RoundDown returns the address rounded down to the nearest multiple of
// align, which must be a power of 2.
func (v Addr) RoundDown(align uint64) Addr {
	return v & ^Addr(align-1)
}

// IO provides access to a task's user memory image.
type IO interface {
	// CopyOut copies len(src) bytes from src to the user address addr. It
	// returns the number of bytes copied; if that is less than len(src),
	// the error is non-nil and EFAULT-class.
	CopyOut(addr Addr, src []byte) (int, error)

	// CopyIn copies len(dst) bytes from the user address addr to dst. It
	// returns the number of bytes copied; if that is less than len(dst),
	// the error is non-nil and EFAULT-class.
	CopyIn(addr Addr, dst []byte) (int, error)
}

// BytesIO implements IO over a contiguous byte slice mapped at a base
// address. Accesses outside the mapped range fault.
type BytesIO struct {
	// Base is the lowest mapped address.
	Base Addr

	// Bytes backs [Base, Base+len(Bytes)).
	Bytes []byte
}

// NewBytesIO maps size bytes of zeroed memory at base.
func NewBytesIO(base Addr, size int) *BytesIO {
	return &BytesIO{
		Base:  base,
		Bytes: make([]byte, size),
	}
}

func (b *BytesIO) rangeCheck(addr Addr, length int) (int, error) {
	if length == 0 {
		return 0, nil
	}
	if length < 0 {
		return 0, linuxerr.EINVAL
	}
	end, ok := addr.AddLength(uint64(length))
	if !ok {
		return 0, linuxerr.EFAULT
	}
	if addr < b.Base || end > b.Base+Addr(len(b.Bytes)) {
		return 0, linuxerr.EFAULT
	}
	return length, nil
}

// CopyOut implements IO.CopyOut.
func (b *BytesIO) CopyOut(addr Addr, src []byte) (int, error) {
	n, err := b.rangeCheck(addr, len(src))
	if err != nil || n == 0 {
		// Zero-length copies succeed without validating addr.
		return n, err
	}
	copy(b.Bytes[addr-b.Base:], src[:n])
	return n, nil
}

// CopyIn implements IO.CopyIn.
func (b *BytesIO) CopyIn(addr Addr, dst []byte) (int, error) {
	n, err := b.rangeCheck(addr, len(dst))
	if err != nil || n == 0 {
		return n, err
	}
	copy(dst[:n], b.Bytes[addr-b.Base:])
	return n, nil
}

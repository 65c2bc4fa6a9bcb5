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

// Package linuxerr contains the guest errno values used by the kernel core,
// exported as error interface pointers for fast identity comparison.
package linuxerr

import (
	"nucleus.dev/nucleus/pkg/errors"
)

// Errno values from include/uapi/asm-generic/errno-base.h and errno.h,
// restricted to what the scheduling and signal core reports.
var (
	EPERM  = errors.New(1, "operation not permitted")
	ESRCH  = errors.New(3, "no such process")
	EINTR  = errors.New(4, "interrupted system call")
	EAGAIN = errors.New(11, "try again")
	ENOMEM = errors.New(12, "out of memory")
	EFAULT = errors.New(14, "bad address")
	EINVAL = errors.New(22, "invalid argument")
	ENOSYS = errors.New(38, "invalid system call number")
)

// Equals compares a linuxerr to any error value, matching by identity or by
// errno.
func Equals(e *errors.Error, err error) bool {
	if err == nil {
		return e == nil
	}
	if e == err {
		return true
	}
	other, ok := err.(*errors.Error)
	return ok && other.Errno() == e.Errno()
}

// ErrnoOf returns the errno for err, or 0 for a nil error. Errors that do not
// carry an errno report EINVAL's.
func ErrnoOf(err error) int32 {
	if err == nil {
		return 0
	}
	if e, ok := err.(*errors.Error); ok {
		return e.Errno()
	}
	return EINVAL.Errno()
}

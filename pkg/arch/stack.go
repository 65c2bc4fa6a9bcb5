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
	"nucleus.dev/nucleus/pkg/errors/linuxerr"
	"nucleus.dev/nucleus/pkg/usermem"
)

// Stack is a simple wrapper around a user stack: pushes move Bottom down and
// write through IO.
type Stack struct {
	// IO is the user memory the stack lives in.
	IO usermem.IO

	// Bottom is the current lowest in-use address. The next push writes
	// below it.
	Bottom usermem.Addr
}

// Push writes b to the stack, moving Bottom down by len(b). It returns the
// address b was written at.
func (s *Stack) Push(b []byte) (usermem.Addr, error) {
	if len(b) == 0 {
		return s.Bottom, nil
	}
	addr := s.Bottom - usermem.Addr(len(b))
	if addr > s.Bottom {
		return 0, linuxerr.EFAULT
	}
	if _, err := s.IO.CopyOut(addr, b); err != nil {
		return 0, err
	}
	s.Bottom = addr
	return addr, nil
}

// Pop reads len(b) bytes from the stack bottom into b, moving Bottom up.
func (s *Stack) Pop(b []byte) error {
	if _, err := s.IO.CopyIn(s.Bottom, b); err != nil {
		return err
	}
	s.Bottom += usermem.Addr(len(b))
	return nil
}

// Align rounds Bottom down to a multiple of align, which must be a power of
// 2.
func (s *Stack) Align(align uint64) {
	s.Bottom = s.Bottom.RoundDown(align)
}

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

// Package fpu provides basic floating point helpers.
package fpu

// State represents floating point state.
//
// This is a simple byte slice, but may have architecture-specific
// constraints.
type State []byte

// Saved floating-point state sizes per architecture.
const (
	// StateSizeRISCV64 is 32*8 f-registers plus the 8-byte fcsr word.
	StateSizeRISCV64 = 32*8 + 8

	// StateSizeAMD64 is the fxsave area size.
	StateSizeAMD64 = 512
)

// NewState returns a zeroed state buffer of the given size.
func NewState(size int) State {
	return make(State, size)
}

// Reset zeroes the buffer in place so it can be reused across a task's
// lifetime without reallocation.
func (s State) Reset() {
	for i := range s {
		s[i] = 0
	}
}

// SaveFrom copies the live register file into s.
func (s State) SaveFrom(regs []byte) {
	copy(s, regs)
}

// RestoreTo copies s back into the live register file.
func (s State) RestoreTo(regs []byte) {
	copy(regs, s)
}

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

package linux

import (
	"encoding/binary"
)

// Special handler values for SignalAct.Handler.
const (
	// SignalActDefault is SIG_DFL: take the default action for the signal.
	SignalActDefault = 0

	// SignalActIgnore is SIG_IGN: ignore the signal.
	SignalActIgnore = 1
)

// Sigaction flags, bit-compatible with Linux SA_* values.
const (
	SignalFlagNoCldStop    = 0x00000001
	SignalFlagNoCldWait    = 0x00000002
	SignalFlagSigInfo      = 0x00000004
	SignalFlagRestorer     = 0x04000000
	SignalFlagOnStack      = 0x08000000
	SignalFlagRestart      = 0x10000000
	SignalFlagNoDefer      = 0x40000000
	SignalFlagResetHandler = 0x80000000
)

// SignalAct is the guest-ABI struct sigaction used by rt_sigaction(2).
type SignalAct struct {
	Handler  uint64
	Flags    uint64
	Restorer uint64
	Mask     SignalSet
}

// SignalActSize is the size in bytes of the serialized SignalAct.
const SignalActSize = 24 + SignalSetSize

// IsDefault returns true iff this action is SIG_DFL.
func (s SignalAct) IsDefault() bool {
	return s.Handler == SignalActDefault
}

// IsIgnore returns true iff this action is SIG_IGN.
func (s SignalAct) IsIgnore() bool {
	return s.Handler == SignalActIgnore
}

// IsSigInfo returns true iff this action expects siginfo delivery.
func (s SignalAct) IsSigInfo() bool {
	return s.Flags&SignalFlagSigInfo != 0
}

// IsOnStack returns true iff this action requests the alternate signal stack.
func (s SignalAct) IsOnStack() bool {
	return s.Flags&SignalFlagOnStack != 0
}

// IsNoCldStop returns true iff this action suppresses SIGCHLD on child stop.
func (s SignalAct) IsNoCldStop() bool {
	return s.Flags&SignalFlagNoCldStop != 0
}

// IsNoCldWait returns true iff this action requests no-child-wait semantics.
func (s SignalAct) IsNoCldWait() bool {
	return s.Flags&SignalFlagNoCldWait != 0
}

// MarshalBytes serializes s into the first SignalActSize bytes of b in the
// guest byte order.
func (s *SignalAct) MarshalBytes(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], s.Handler)
	binary.LittleEndian.PutUint64(b[8:16], s.Flags)
	binary.LittleEndian.PutUint64(b[16:24], s.Restorer)
	for i := 0; i < SignalSetWords; i++ {
		binary.LittleEndian.PutUint64(b[24+8*i:32+8*i], s.Mask[i])
	}
}

// UnmarshalBytes deserializes s from the first SignalActSize bytes of b.
func (s *SignalAct) UnmarshalBytes(b []byte) {
	s.Handler = binary.LittleEndian.Uint64(b[0:8])
	s.Flags = binary.LittleEndian.Uint64(b[8:16])
	s.Restorer = binary.LittleEndian.Uint64(b[16:24])
	for i := 0; i < SignalSetWords; i++ {
		s.Mask[i] = binary.LittleEndian.Uint64(b[24+8*i : 32+8*i])
	}
}

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
	"fmt"
	"math/bits"
)

const (
	// SignalMaximum is the highest valid signal number.
	SignalMaximum = 64

	// FirstStdSignal is the lowest standard signal number.
	FirstStdSignal = 1

	// LastStdSignal is the highest standard signal number.
	LastStdSignal = 31

	// FirstRTSignal is the lowest real-time signal number. Real-time
	// signals are recognized but not queued; senders degrade to a plain
	// drop.
	FirstRTSignal = 32

	// LastRTSignal is the highest real-time signal number.
	LastRTSignal = 64
)

// Signal is a signal number.
type Signal int

// IsValid returns true if s is a valid standard or realtime signal. (0 is not
// considered valid; interfaces special-casing signal number 0 should check for
// 0 first before asserting validity.)
func (s Signal) IsValid() bool {
	return s > 0 && s <= SignalMaximum
}

// IsStandard returns true if s is a standard signal.
//
// Preconditions: s.IsValid().
func (s Signal) IsStandard() bool {
	return s <= LastStdSignal
}

// IsRealtime returns true if s is a realtime signal.
//
// Preconditions: s.IsValid().
func (s Signal) IsRealtime() bool {
	return s >= FirstRTSignal
}

// Index returns the index for signal s into arrays of both standard and
// realtime signals (e.g. signal masks).
//
// Preconditions: s.IsValid().
func (s Signal) Index() int {
	return int(s - 1)
}

// Signals.
const (
	SIGABRT   = Signal(6)
	SIGALRM   = Signal(14)
	SIGBUS    = Signal(7)
	SIGCHLD   = Signal(17)
	SIGCONT   = Signal(18)
	SIGFPE    = Signal(8)
	SIGHUP    = Signal(1)
	SIGILL    = Signal(4)
	SIGINT    = Signal(2)
	SIGIO     = Signal(29)
	SIGKILL   = Signal(9)
	SIGPIPE   = Signal(13)
	SIGPOLL   = Signal(29)
	SIGPROF   = Signal(27)
	SIGPWR    = Signal(30)
	SIGQUIT   = Signal(3)
	SIGSEGV   = Signal(11)
	SIGSTKFLT = Signal(16)
	SIGSTOP   = Signal(19)
	SIGSYS    = Signal(31)
	SIGTERM   = Signal(15)
	SIGTRAP   = Signal(5)
	SIGTSTP   = Signal(20)
	SIGTTIN   = Signal(21)
	SIGTTOU   = Signal(22)
	SIGURG    = Signal(23)
	SIGUSR1   = Signal(10)
	SIGUSR2   = Signal(12)
	SIGVTALRM = Signal(26)
	SIGWINCH  = Signal(28)
	SIGXCPU   = Signal(24)
	SIGXFSZ   = Signal(25)
)

// signalNames maps standard signal numbers to their conventional names, for
// diagnostics only.
var signalNames = map[Signal]string{
	SIGHUP:    "SIGHUP",
	SIGINT:    "SIGINT",
	SIGQUIT:   "SIGQUIT",
	SIGILL:    "SIGILL",
	SIGTRAP:   "SIGTRAP",
	SIGABRT:   "SIGABRT",
	SIGBUS:    "SIGBUS",
	SIGFPE:    "SIGFPE",
	SIGKILL:   "SIGKILL",
	SIGUSR1:   "SIGUSR1",
	SIGSEGV:   "SIGSEGV",
	SIGUSR2:   "SIGUSR2",
	SIGPIPE:   "SIGPIPE",
	SIGALRM:   "SIGALRM",
	SIGTERM:   "SIGTERM",
	SIGSTKFLT: "SIGSTKFLT",
	SIGCHLD:   "SIGCHLD",
	SIGCONT:   "SIGCONT",
	SIGSTOP:   "SIGSTOP",
	SIGTSTP:   "SIGTSTP",
	SIGTTIN:   "SIGTTIN",
	SIGTTOU:   "SIGTTOU",
	SIGURG:    "SIGURG",
	SIGXCPU:   "SIGXCPU",
	SIGXFSZ:   "SIGXFSZ",
	SIGVTALRM: "SIGVTALRM",
	SIGPROF:   "SIGPROF",
	SIGWINCH:  "SIGWINCH",
	SIGIO:     "SIGIO",
	SIGPWR:    "SIGPWR",
	SIGSYS:    "SIGSYS",
}

// String implements fmt.Stringer.String.
func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	if s.IsValid() && s.IsRealtime() {
		return fmt.Sprintf("SIGRT%d", s-FirstRTSignal)
	}
	return fmt.Sprintf("signal %d", int(s))
}

const (
	// SignalSetWords is the number of 64-bit words in a SignalSet. Signals
	// whose bit falls beyond the last word are unsupported and silently
	// dropped.
	SignalSetWords = SignalMaximum / 64

	// SignalSetSize is the size in bytes of a SignalSet.
	SignalSetSize = SignalSetWords * 8
)

// SignalSet is a signal mask with a bit corresponding to each signal: signal
// N maps to bit N-1, so bit 0 of word 0 is signal 1. The set grows in whole
// 64-bit words.
type SignalSet [SignalSetWords]uint64

// MakeSignalSet returns a SignalSet with the bit corresponding to each of the
// given signals set.
func MakeSignalSet(sigs ...Signal) SignalSet {
	var s SignalSet
	for _, sig := range sigs {
		s.Add(sig)
	}
	return s
}

// Add sets the bit for sig. Signals beyond the supported range are silently
// dropped.
//
// Preconditions: sig > 0.
func (s *SignalSet) Add(sig Signal) {
	word, bit := sig.Index()/64, sig.Index()%64
	if word >= SignalSetWords {
		return
	}
	s[word] |= uint64(1) << bit
}

// Remove clears the bit for sig. Signals beyond the supported range are
// silently ignored.
//
// Preconditions: sig > 0.
func (s *SignalSet) Remove(sig Signal) {
	word, bit := sig.Index()/64, sig.Index()%64
	if word >= SignalSetWords {
		return
	}
	s[word] &^= uint64(1) << bit
}

// Contains returns whether the bit for sig is set.
//
// Preconditions: sig > 0.
func (s SignalSet) Contains(sig Signal) bool {
	word, bit := sig.Index()/64, sig.Index()%64
	if word >= SignalSetWords {
		return false
	}
	return s[word]&(uint64(1)<<bit) != 0
}

// IsEmpty returns whether no bits are set.
func (s SignalSet) IsEmpty() bool {
	for _, w := range s {
		if w != 0 {
			return false
		}
	}
	return true
}

// First returns the lowest-numbered signal in the set, or 0 if the set is
// empty.
func (s SignalSet) First() Signal {
	for i, w := range s {
		if w != 0 {
			return Signal(i*64 + bits.TrailingZeros64(w) + 1)
		}
	}
	return 0
}

// Word returns word i of the set, or 0 if i is out of range.
func (s SignalSet) Word(i int) uint64 {
	if i < 0 || i >= SignalSetWords {
		return 0
	}
	return s[i]
}

// ApplyWord combines w into word i of the set according to how, which must be
// one of SIG_BLOCK, SIG_UNBLOCK or SIG_SETMASK. Out-of-range words are
// dropped. The result is false iff how is invalid; in that case the set is
// unchanged.
func (s *SignalSet) ApplyWord(how int32, i int, w uint64) bool {
	if i < 0 || i >= SignalSetWords {
		return how == SIG_BLOCK || how == SIG_UNBLOCK || how == SIG_SETMASK
	}
	switch how {
	case SIG_BLOCK:
		s[i] |= w
	case SIG_UNBLOCK:
		s[i] &^= w
	case SIG_SETMASK:
		s[i] = w
	default:
		return false
	}
	return true
}

// Sigprocmask how values, bit-compatible with Linux.
const (
	SIG_BLOCK   = int32(0)
	SIG_UNBLOCK = int32(1)
	SIG_SETMASK = int32(2)
)

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

import "fmt"

// WaitStatus is a wait status as encoded in the wstatus word reported by
// wait4(2) and friends.
type WaitStatus uint32

// WaitStatusContinued is the wait status of a task resumed by SIGCONT.
const WaitStatusContinued = WaitStatus(0xffff)

// WaitStatusStop returns the wait status of a task stopped by sig.
func WaitStatusStop(sig Signal) WaitStatus {
	return WaitStatus(uint32(sig)<<8 | 0x7f)
}

// WaitStatusTerminationSignal returns the wait status of a task terminated by
// sig.
func WaitStatusTerminationSignal(sig Signal) WaitStatus {
	return WaitStatus(uint32(sig) & 0x7f)
}

// WaitStatusExit returns the wait status of a task that exited normally with
// the given code.
func WaitStatusExit(code int) WaitStatus {
	return WaitStatus(uint32(code&0xff) << 8)
}

// Stopped returns whether ws encodes a job-control stop.
func (ws WaitStatus) Stopped() bool {
	return ws&0xff == 0x7f && ws != 0x7f
}

// Continued returns whether ws encodes a SIGCONT resumption.
func (ws WaitStatus) Continued() bool {
	return ws == WaitStatusContinued
}

// Exited returns whether ws encodes a normal exit.
func (ws WaitStatus) Exited() bool {
	return !ws.Stopped() && !ws.Continued() && ws&0x7f == 0
}

// Signaled returns whether ws encodes termination by a signal.
func (ws WaitStatus) Signaled() bool {
	return !ws.Stopped() && !ws.Continued() && ws&0x7f != 0
}

// StopSignal returns the stopping signal.
//
// Preconditions: ws.Stopped().
func (ws WaitStatus) StopSignal() Signal {
	return Signal(ws >> 8 & 0xff)
}

// TerminationSignal returns the terminating signal.
//
// Preconditions: ws.Signaled().
func (ws WaitStatus) TerminationSignal() Signal {
	return Signal(ws & 0x7f)
}

// ExitStatus returns the exit code.
//
// Preconditions: ws encodes a normal exit.
func (ws WaitStatus) ExitStatus() int {
	return int(ws >> 8 & 0xff)
}

// String implements fmt.Stringer.String.
func (ws WaitStatus) String() string {
	switch {
	case ws.Continued():
		return "continued"
	case ws.Stopped():
		return fmt.Sprintf("stopped by %v", ws.StopSignal())
	case ws.Signaled():
		return fmt.Sprintf("terminated by %v", ws.TerminationSignal())
	default:
		return fmt.Sprintf("exited with code %d", ws.ExitStatus())
	}
}

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

package kernel

import (
	"nucleus.dev/nucleus/pkg/abi/linux"
	"nucleus.dev/nucleus/pkg/waiter"
)

// Exit terminates the calling task with the given exit code. It never
// returns.
func (k *Kernel) Exit(code int) Never {
	return k.exitCurrent(code)
}

// exitCurrent marks the current task a zombie with an exit status and
// switches away for the last time.
func (k *Kernel) exitCurrent(code int) Never {
	k.DisablePreemption()
	t := k.cpu.current
	if t == nil || t == k.idle {
		panic("exit from the idle context")
	}
	t.Infof("exiting with code %d", code)
	k.makeZombie(t, linux.WaitStatusExit(code))
	k.schedule()
	panic("unreachable")
}

// terminateCurrent kills the current task as if by an unhandled fatal
// signal. It never returns.
func (k *Kernel) terminateCurrent(sig linux.Signal) Never {
	k.DisablePreemption()
	t := k.cpu.current
	if t == nil || t == k.idle {
		panic("terminate from the idle context")
	}
	t.Infof("terminated by signal %s", sig)
	k.makeZombie(t, linux.WaitStatusTerminationSignal(sig))
	k.schedule()
	panic("unreachable")
}

// makeZombie completes the state transition shared by all exit paths.
// Preemption must be disabled.
func (k *Kernel) makeZombie(t *Task, ws linux.WaitStatus) {
	t.state = TaskZombie
	t.wobj = WaitObject{}
	delete(k.sleepers, t)
	t.wstatus = ws
	t.stopped = false
	t.vforkStopped = false
	t.pending = linux.SignalSet{}
	t.statusWaiters.Notify(waiter.EventExit)
}

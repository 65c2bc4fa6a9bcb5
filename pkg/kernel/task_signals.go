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
	"fmt"

	"nucleus.dev/nucleus/pkg/abi/linux"
	"nucleus.dev/nucleus/pkg/arch"
	"nucleus.dev/nucleus/pkg/errors/linuxerr"
	"nucleus.dev/nucleus/pkg/usermem"
	"nucleus.dev/nucleus/pkg/waiter"
)

// SignalAction is the built-in default action of a signal.
type SignalAction int

const (
	// SignalActionTerminate kills the target.
	SignalActionTerminate SignalAction = iota

	// SignalActionIgnore discards the signal.
	SignalActionIgnore

	// SignalActionStop suspends the target (job control).
	SignalActionStop

	// SignalActionContinue resumes a stopped target.
	SignalActionContinue
)

// String implements fmt.Stringer.String.
func (a SignalAction) String() string {
	switch a {
	case SignalActionTerminate:
		return "terminate"
	case SignalActionIgnore:
		return "ignore"
	case SignalActionStop:
		return "stop"
	case SignalActionContinue:
		return "continue"
	default:
		return fmt.Sprintf("SignalAction(%d)", int(a))
	}
}

// defaultAction returns the built-in default action for sig, which must be a
// valid signal.
func defaultAction(sig linux.Signal) SignalAction {
	switch sig {
	case linux.SIGCHLD, linux.SIGURG:
		return SignalActionIgnore
	case linux.SIGSTOP, linux.SIGTSTP, linux.SIGTTIN, linux.SIGTTOU:
		return SignalActionStop
	case linux.SIGCONT:
		return SignalActionContinue
	default:
		// Everything else, realtime signals included, terminates.
		return SignalActionTerminate
	}
}

// SendSignal raises sig against the task identified by (pid, tid). When
// wholeProcess is set, tid must be the process's main thread and the signal
// is addressed to the process as a whole.
//
// Signal 0 performs only the existence checks. Raising a signal against a
// zombie succeeds as a no-op. If the resolved action is to terminate the
// calling task itself, SendSignal does not return.
func (k *Kernel) SendSignal(pid ProcessID, tid ThreadID, sig linux.Signal, wholeProcess bool) error {
	if sig != 0 && !sig.IsValid() {
		return linuxerr.EINVAL
	}

	k.DisablePreemption()

	t := k.ts.taskWithID(tid)
	if t == nil {
		k.EnablePreemption()
		return linuxerr.ESRCH
	}
	if t.kernelThread {
		// Kernel threads are not signallable.
		k.EnablePreemption()
		return linuxerr.ESRCH
	}
	if wholeProcess && ProcessID(tid) != t.p.pid {
		k.EnablePreemption()
		return linuxerr.ESRCH
	}
	if t.p.pid != pid {
		k.EnablePreemption()
		return linuxerr.ESRCH
	}

	if sig == 0 || t.state == TaskZombie {
		k.EnablePreemption()
		return nil
	}

	k.sendSignalLocked(t, sig)
	k.EnablePreemption()
	return nil
}

// sendSignalLocked resolves sig's disposition for t and applies the
// resulting action. Preemption must be disabled. Does not return if the
// action terminates the calling task.
func (k *Kernel) sendSignalLocked(t *Task, sig linux.Signal) {
	act := t.p.SignalAct(sig)

	if act.IsIgnore() {
		k.actionIgnore(t, sig)
		return
	}
	if !act.IsDefault() {
		// Custom handlers are not dispatched from here yet; treat them
		// as ignore. Handler frames are only injected explicitly via
		// PrepareHandlerEntry.
		return
	}

	switch defaultAction(sig) {
	case SignalActionTerminate:
		k.actionTerminate(t, sig)
	case SignalActionIgnore:
		k.actionIgnore(t, sig)
	case SignalActionStop:
		k.actionStop(t, sig)
	case SignalActionContinue:
		k.actionContinue(t, sig)
	}
}

// actionTerminate applies the terminate action: immediate death for the
// caller itself, otherwise pending-bit bookkeeping plus a conditional wake.
// Preemption must be disabled; consumed only on the self path.
func (k *Kernel) actionTerminate(t *Task, sig linux.Signal) {
	if t.kernelThread {
		panic("terminate action on a kernel thread")
	}

	if t == k.cpu.current {
		k.EnablePreemption()
		k.terminateCurrent(sig)
		panic("unreachable")
	}

	t.pending.Add(sig)

	if t.vforkStopped {
		// Cannot be made runnable or killed while its vfork child still
		// holds the address space. The pending bit is enough: the
		// signal is delivered as soon as the task resumes.
		return
	}

	if t.state == TaskSleeping {
		// Tasks waiting on a mutex or semaphore must not be woken
		// spuriously; they leave SLEEPING only through their own
		// primitive. Condition and sleep waits have to be woken so the
		// signal can be delivered.
		if !t.wobj.signalImmune() {
			t.wake()
		}
	}
	t.stopped = false
}

func (k *Kernel) actionIgnore(t *Task, sig linux.Signal) {
	if t.id == InitTID {
		t.Warningf("ignoring signal %s sent to init (pid 1)", sig)
	}
}

// actionStop applies the job-control stop action. Preemption must be
// disabled; if t is the caller, the CPU is yielded immediately and
// actionStop returns only when the task is continued.
func (k *Kernel) actionStop(t *Task, sig linux.Signal) {
	if t.kernelThread {
		panic("stop action on a kernel thread")
	}

	t.Debugf("stopped by signal %s", sig)
	t.stopped = true
	t.wstatus = linux.WaitStatusStop(sig)
	t.statusWaiters.Notify(waiter.EventStopped)

	if t == k.cpu.current {
		k.yieldStopped()
	}
}

// actionContinue applies the continue action. Preemption must be disabled.
func (k *Kernel) actionContinue(t *Task, sig linux.Signal) {
	if t.kernelThread {
		panic("continue action on a kernel thread")
	}

	if t.vforkStopped {
		return
	}

	t.Debugf("continued by signal %s", sig)
	t.stopped = false
	t.wstatus = linux.WaitStatusContinued
	t.statusWaiters.Notify(waiter.EventContinued)

	if t.state == TaskRunnable {
		k.enqueue(t)
	}
}

// deliverPending scans the calling task's pending mask, lowest signal number
// first, and delivers the first signal found. The only delivery wired here
// is termination, so a hit never returns. Preemption must be disabled;
// reports whether a delivery occurred.
func (k *Kernel) deliverPending() bool {
	if k.PreemptionEnabled() {
		panic("deliverPending with preemption enabled")
	}
	t := k.cpu.current

	sig := t.pending.First()
	if sig == 0 {
		return false
	}

	t.Debugf("delivering pending signal %s", sig)
	k.EnablePreemption()
	k.terminateCurrent(sig)
	panic("unreachable")
}

// HandlerTrigger describes the kernel-entry path a handler injection
// interrupts, which decides whether an in-progress system call must be
// failed with EINTR.
type HandlerTrigger int

const (
	// TriggerInterrupt means the task trapped for an interrupt.
	TriggerInterrupt HandlerTrigger = iota

	// TriggerPreSyscall means a system call was in progress and has not
	// completed; its return value is forced to EINTR.
	TriggerPreSyscall

	// TriggerFault means the task trapped for a CPU fault.
	TriggerFault
)

// PrepareHandlerEntry rewrites frame so that t resumes in the user handler
// at handlerAddr with sig as its argument and the post-handler trampoline as
// its return address.
//
// On first entry (no handler already in flight) the pre-signal register
// state is saved on the user stack so the trampoline can restore it; a fault
// while writing the user stack is returned and leaves the nesting counter
// untouched. Nested injections reuse the already-saved state.
func (k *Kernel) PrepareHandlerEntry(t *Task, trigger HandlerTrigger, frame arch.Context, handlerAddr uint64, sig linux.Signal) error {
	if !sig.IsValid() {
		return linuxerr.EINVAL
	}

	if t.nestedSignalHandlers == 0 {
		if trigger == TriggerPreSyscall {
			frame.SetSyscallReturn(uint64(-int64(linuxerr.EINTR.Errno())))
		}

		st := arch.Stack{IO: t.p.mem, Bottom: usermem.Addr(frame.UserStack())}
		bottom, err := frame.SaveTo(&st)
		if err != nil {
			return err
		}
		frame.SetUserStack(uint64(bottom))
	}

	frame.InstallHandlerFrame(handlerAddr, int(sig), postHandlerTrampoline)
	t.nestedSignalHandlers++
	return nil
}

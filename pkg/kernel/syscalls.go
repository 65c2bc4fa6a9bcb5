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
	"encoding/binary"

	"nucleus.dev/nucleus/pkg/abi/linux"
	"nucleus.dev/nucleus/pkg/errors/linuxerr"
	"nucleus.dev/nucleus/pkg/usermem"
)

// Signal syscalls, bit-compatible with the Linux ABI. Each executes on
// behalf of a task; the acting task is the method receiver.

// maxSigsetSize bounds the sigsetsize argument of the rt_* syscalls; user
// words beyond the supported mask are accepted and dropped.
const maxSigsetSize = 128

// syscallEnter marks the task as executing kernel code for the duration of
// a system call.
func (t *Task) syscallEnter() {
	if !t.kernelThread {
		t.runningInKernel = true
	}
}

// syscallExit completes a system call: pending signals are delivered before
// the task can resume user code. Does not return if a delivery terminates
// the task.
func (t *Task) syscallExit() {
	if t.kernelThread {
		return
	}
	t.runningInKernel = false
	if t != t.k.cpu.current {
		return
	}
	t.k.DisablePreemption()
	if !t.k.deliverPending() {
		t.k.enablePreemptionNoSched()
	}
}

// SysKill implements kill(2): sig is addressed to the whole process pid.
func (t *Task) SysKill(pid ProcessID, sig linux.Signal) error {
	t.syscallEnter()
	err := t.k.SendSignal(pid, ThreadID(pid), sig, true)
	t.syscallExit()
	return err
}

// SysTgkill implements tgkill(2): sig is addressed to thread tid of process
// pid.
func (t *Task) SysTgkill(pid ProcessID, tid ThreadID, sig linux.Signal) error {
	t.syscallEnter()
	err := t.k.SendSignal(pid, tid, sig, false)
	t.syscallExit()
	return err
}

// SysRtSigaction implements rt_sigaction(2).
//
// actAddr and oldactAddr are user addresses of serialized SignalAct values;
// either may be null. The dispositions of SIGKILL and SIGSTOP can never be
// changed. Flags requesting siginfo delivery, an alternate signal stack, or
// the no-child-stop/no-child-wait behaviors are unsupported and rejected.
func (t *Task) SysRtSigaction(sig linux.Signal, actAddr, oldactAddr usermem.Addr, sigsetsize uint) error {
	t.syscallEnter()
	err := t.rtSigaction(sig, actAddr, oldactAddr, sigsetsize)
	t.syscallExit()
	return err
}

func (t *Task) rtSigaction(sig linux.Signal, actAddr, oldactAddr usermem.Addr, sigsetsize uint) error {
	if !sig.IsValid() {
		return linuxerr.EINVAL
	}
	if sig == linux.SIGKILL || sig == linux.SIGSTOP {
		return linuxerr.EINVAL
	}
	if sigsetsize != linux.SignalSetSize {
		return linuxerr.EINVAL
	}

	p := t.p
	var oldact linux.SignalAct

	t.k.DisablePreemption()
	if oldactAddr != 0 {
		oldact = p.actions[sig.Index()]
	}
	if actAddr != 0 {
		buf := make([]byte, linux.SignalActSize)
		if _, err := p.mem.CopyIn(actAddr, buf); err != nil {
			t.k.EnablePreemption()
			return linuxerr.EFAULT
		}
		var act linux.SignalAct
		act.UnmarshalBytes(buf)

		if act.IsSigInfo() || act.IsOnStack() || act.IsNoCldStop() || act.IsNoCldWait() {
			t.k.EnablePreemption()
			return linuxerr.EINVAL
		}
		// SA_RESTART, SA_NODEFER and SA_RESETHAND are accepted but not
		// honored yet.

		p.actions[sig.Index()] = act
	}
	t.k.EnablePreemption()

	if oldactAddr != 0 {
		buf := make([]byte, linux.SignalActSize)
		oldact.MarshalBytes(buf)
		if _, err := p.mem.CopyOut(oldactAddr, buf); err != nil {
			return linuxerr.EFAULT
		}
	}
	return nil
}

// SysRtSigprocmask implements rt_sigprocmask(2) over the process-wide block
// mask.
//
// The new mask is validated word by word as it is copied from the caller
// and applied to a staged copy; the process mask mutates only if every word
// copied cleanly and how was valid throughout.
func (t *Task) SysRtSigprocmask(how int32, setAddr, oldsetAddr usermem.Addr, sigsetsize uint) error {
	t.syscallEnter()
	err := t.rtSigprocmask(how, setAddr, oldsetAddr, sigsetsize)
	t.syscallExit()
	return err
}

func (t *Task) rtSigprocmask(how int32, setAddr, oldsetAddr usermem.Addr, sigsetsize uint) error {
	if sigsetsize < linux.SignalSetSize || sigsetsize > maxSigsetSize || sigsetsize%8 != 0 {
		return linuxerr.EINVAL
	}

	p := t.p

	if oldsetAddr != 0 {
		buf := make([]byte, sigsetsize)
		t.k.DisablePreemption()
		old := p.blocked
		t.k.EnablePreemption()
		for i := 0; i < linux.SignalSetWords; i++ {
			binary.LittleEndian.PutUint64(buf[i*8:], old.Word(i))
		}
		// Words beyond the supported mask read back as zero.
		if _, err := p.mem.CopyOut(oldsetAddr, buf); err != nil {
			return linuxerr.EFAULT
		}
	}

	if setAddr != 0 {
		words := int(sigsetsize / 8)
		staged := p.blocked
		buf := make([]byte, 8)
		for i := 0; i < words; i++ {
			if _, err := p.mem.CopyIn(setAddr+usermem.Addr(i*8), buf); err != nil {
				return linuxerr.EFAULT
			}
			w := binary.LittleEndian.Uint64(buf)
			if !staged.ApplyWord(how, i, w) {
				return linuxerr.EINVAL
			}
		}
		// SIGKILL and SIGSTOP can never be blocked; attempts are silently
		// dropped from the mask.
		staged.Remove(linux.SIGKILL)
		staged.Remove(linux.SIGSTOP)
		t.k.DisablePreemption()
		p.blocked = staged
		t.k.EnablePreemption()
	}
	return nil
}

// SysSignal implements the legacy signal(2) entry point, which this kernel
// does not provide.
func (t *Task) SysSignal(sig linux.Signal, handler uint64) error {
	return linuxerr.ENOSYS
}

// SysSigaction implements the legacy sigaction(2) entry point, which this
// kernel does not provide.
func (t *Task) SysSigaction(sig linux.Signal, actAddr, oldactAddr usermem.Addr) error {
	return linuxerr.ENOSYS
}

// SysSigprocmask implements the legacy sigprocmask(2) entry point, which
// this kernel does not provide.
func (t *Task) SysSigprocmask(how int32, setAddr, oldsetAddr usermem.Addr) error {
	return linuxerr.ENOSYS
}

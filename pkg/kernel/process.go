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
	"nucleus.dev/nucleus/pkg/platform"
	"nucleus.dev/nucleus/pkg/usermem"
)

// User memory layout for processes. Each process owns a modest flat image;
// task user stacks are carved off its top, growing down.
const (
	userMemBase = usermem.Addr(0x40000000)
	userMemSize = 1 << 20
	userStackSz = 64 << 10
)

// Process is the per-process control block shared by all threads of a
// process: signal dispositions, the signal block mask, and the address-space
// handle. It is owned by the process table and referenced (not owned) by each
// of its tasks.
type Process struct {
	k *Kernel

	// pid is the process id. Immutable.
	pid ProcessID

	// name is a diagnostic label. Immutable.
	name string

	// actions maps signal number to disposition; index is Signal.Index().
	actions [linux.SignalMaximum]linux.SignalAct

	// blocked is the process-wide signal block mask (single-threaded
	// signal model).
	blocked linux.SignalSet

	// as is the process's address space handle.
	as platform.AddressSpace

	// mem is the process's user memory image.
	mem usermem.IO

	// tasks are the process's threads.
	tasks []*Task

	// nextStack is the top of the next user stack to carve out.
	nextStack usermem.Addr
}

// NewProcess creates a process with default signal dispositions and a fresh
// address space.
func (k *Kernel) NewProcess(name string) *Process {
	p := &Process{
		k:         k,
		pid:       k.nextPID,
		name:      name,
		as:        platform.NewAddressSpace(name),
		mem:       usermem.NewBytesIO(userMemBase, userMemSize),
		nextStack: userMemBase + userMemSize,
	}
	k.nextPID++
	k.processes[p.pid] = p
	return p
}

// ID returns the process id.
func (p *Process) ID() ProcessID { return p.pid }

// Name returns the process's diagnostic name.
func (p *Process) Name() string { return p.name }

// AddressSpace returns the process's address-space handle.
func (p *Process) AddressSpace() platform.AddressSpace { return p.as }

// Memory returns the process's user memory image.
func (p *Process) Memory() usermem.IO { return p.mem }

// BlockedSignals returns the process's signal block mask.
func (p *Process) BlockedSignals() linux.SignalSet { return p.blocked }

// SignalAct returns the disposition for sig.
//
// Preconditions: sig.IsValid().
func (p *Process) SignalAct(sig linux.Signal) linux.SignalAct {
	return p.actions[sig.Index()]
}

// allocStackTop carves the next user stack region out of the process image
// and returns its top.
func (p *Process) allocStackTop() usermem.Addr {
	top := p.nextStack
	p.nextStack -= userStackSz
	return top
}

// addTask attaches t to the process.
//
// Preconditions: preemption disabled.
func (p *Process) addTask(t *Task) {
	p.tasks = append(p.tasks, t)
}

// removeTask detaches t; when the last task goes, the process is torn out of
// the process table.
//
// Preconditions: preemption disabled.
func (p *Process) removeTask(t *Task) {
	for i, other := range p.tasks {
		if other == t {
			p.tasks = append(p.tasks[:i], p.tasks[i+1:]...)
			break
		}
	}
	if len(p.tasks) == 0 && p != p.k.kernelProc {
		delete(p.k.processes, p.pid)
	}
}

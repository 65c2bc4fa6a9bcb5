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
	"nucleus.dev/nucleus/pkg/platform"
)

// CPU models the single logical CPU core: the current task, the two
// independent disable-nesting counters, the active address space, and the
// live floating-point register file. The reentrancy rule is simple: each
// event class (preemption, interrupts) is actually re-enabled only when its
// counter returns to zero.
type CPU struct {
	// current is the task owning the CPU.
	current *Task

	// preemptCount is the preemption-disable nesting depth.
	preemptCount int32

	// intrCount is the interrupt-disable/interrupt-nesting depth.
	intrCount int32

	// intrForced is set across the final frame-commit step, where
	// interrupts are disabled unconditionally.
	intrForced bool

	// needResched latches a timer-driven preemption request until
	// preemption is next enabled.
	needResched bool

	// addressSpace is the active translation context.
	addressSpace platform.AddressSpace

	// fpuRegs is the live floating-point register file.
	fpuRegs []byte
}

// DisablePreemption enters a preemption-disabled critical section. Sections
// nest; preemption is re-enabled only when every section has exited.
//
// Disabling preemption is reserved for short, bounded critical sections: a
// task must never hold it across a boundary that can block indefinitely.
func (k *Kernel) DisablePreemption() {
	k.cpu.preemptCount++
}

// EnablePreemption exits a preemption-disabled critical section. If this was
// the outermost section and a timer tick requested rescheduling in the
// meantime, the current task yields here.
func (k *Kernel) EnablePreemption() {
	k.enablePreemptionNoSched()
	if k.cpu.preemptCount == 0 && k.cpu.needResched && k.cpu.current != k.idle {
		k.cpu.needResched = false
		k.Yield()
	}
}

// enablePreemptionNoSched decrements the preemption-disable counter without
// honoring a pending reschedule request. The switch path uses it: preemption
// must read as enabled for the incoming task, but the scheduling decision has
// already been made.
func (k *Kernel) enablePreemptionNoSched() {
	if k.cpu.preemptCount <= 0 {
		panic("preemption enabled while already enabled")
	}
	k.cpu.preemptCount--
}

// PreemptionEnabled returns whether preemption is currently enabled.
func (k *Kernel) PreemptionEnabled() bool {
	return k.cpu.preemptCount == 0
}

// DisableInterrupts enters an interrupt-disabled section. Sections nest
// independently of preemption sections.
func (k *Kernel) DisableInterrupts() {
	k.cpu.intrCount++
}

// EnableInterrupts exits an interrupt-disabled section.
func (k *Kernel) EnableInterrupts() {
	if k.cpu.intrCount <= 0 {
		panic("interrupts enabled while already enabled")
	}
	k.cpu.intrCount--
}

// InterruptsEnabled returns whether interrupts are currently enabled.
func (k *Kernel) InterruptsEnabled() bool {
	return k.cpu.intrCount == 0 && !k.cpu.intrForced
}

// disableInterruptsForced disables interrupts unconditionally for the final
// frame-commit step, regardless of the nesting depth.
func (k *Kernel) disableInterruptsForced() {
	k.cpu.intrForced = true
}

// popNestedInterrupts drops the interrupt-nesting bookkeeping back to the
// base level on the way out of a switch.
func (k *Kernel) popNestedInterrupts() {
	k.cpu.intrCount = 0
}

// adjustNestedInterrupts restores the interrupt-nesting depth a
// kernel-context task was suspended at.
func (k *Kernel) adjustNestedInterrupts(t *Task) {
	k.cpu.intrCount = t.savedIntrDepth
}

// Tick is the periodic timer-interrupt entry point. It runs in interrupt
// context: due sleepers are woken and a reschedule request is latched; the
// actual switch happens at the next point preemption is fully enabled.
func (k *Kernel) Tick() {
	k.cpu.intrCount++
	k.ticks++
	for t, deadline := range k.sleepers {
		if k.ticks >= deadline {
			t.wake()
		}
	}
	k.cpu.needResched = true
	k.cpu.intrCount--
}

// PreemptionPoint models the return-from-interrupt boundary at which a timer
// tick may force a context switch. Task bodies call it at safe points; it is
// a no-op unless a tick arrived and preemption is enabled.
func (k *Kernel) PreemptionPoint() {
	if k.PreemptionEnabled() && k.cpu.needResched && k.cpu.current != k.idle {
		k.cpu.needResched = false
		k.Yield()
	}
}

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

// Blocking primitives. Blocking is the only suspension point in the system:
// a task leaves the CPU solely by setting its wait object and passing
// through the context-switch engine. Because a single task runs at a time,
// the primitives need no internal locking beyond the preemption-disable
// discipline.

// blockOn suspends the current task on the given wait object and hands the
// CPU away. It returns when the task is next scheduled, with the wait object
// cleared.
//
// Preconditions: preemption disabled exactly once by the caller; blockOn
// consumes that disable and returns with preemption enabled.
func (k *Kernel) blockOn(kind WaitObjectKind, obj any) {
	cur := k.cpu.current
	if cur == k.idle {
		panic("blocking from the idle context")
	}
	cur.wobj = WaitObject{Kind: kind, Obj: obj}
	cur.setState(TaskSleeping)
	k.schedule()
	// Scheduled again.
	k.DisablePreemption()
	cur.wobj = WaitObject{}
	k.EnablePreemption()
}

// Mutex is a blocking mutual-exclusion lock with ownership handoff: Unlock
// transfers the lock directly to the oldest waiter. Waiters are immune to
// signal-driven wake-up; they leave their sleep only through Unlock.
type Mutex struct {
	k       *Kernel
	owner   *Task
	waiters []*Task
}

// NewMutex returns an unlocked mutex.
func (k *Kernel) NewMutex() *Mutex {
	return &Mutex{k: k}
}

// Lock acquires m, blocking while another task holds it. Recursive locking
// is a programming error and aborts.
func (m *Mutex) Lock() {
	k := m.k
	k.DisablePreemption()
	cur := k.cpu.current
	if m.owner == cur {
		panic("recursive mutex lock")
	}
	if m.owner == nil {
		m.owner = cur
		k.EnablePreemption()
		return
	}
	m.waiters = append(m.waiters, cur)
	for m.owner != cur {
		k.blockOn(WaitMutex, m)
		k.DisablePreemption()
	}
	k.EnablePreemption()
}

// TryLock acquires m without blocking, reporting whether it succeeded.
func (m *Mutex) TryLock() bool {
	k := m.k
	k.DisablePreemption()
	defer k.EnablePreemption()
	if m.owner != nil {
		return false
	}
	m.owner = k.cpu.current
	return true
}

// Unlock releases m, handing ownership to the oldest waiter if any.
func (m *Mutex) Unlock() {
	k := m.k
	k.DisablePreemption()
	defer k.EnablePreemption()
	if m.owner != k.cpu.current {
		panic("unlock of mutex not held by the current task")
	}
	if len(m.waiters) == 0 {
		m.owner = nil
		return
	}
	next := m.waiters[0]
	m.waiters = m.waiters[1:]
	m.owner = next
	next.wake()
}

// Holder returns the task currently owning m, or nil.
func (m *Mutex) Holder() *Task {
	return m.owner
}

// Semaphore is a counting semaphore. Like mutex waiters, semaphore waiters
// are immune to signal-driven wake-up.
type Semaphore struct {
	k       *Kernel
	counter int
	waiters []*Task
}

// NewSemaphore returns a semaphore with the given initial count.
func (k *Kernel) NewSemaphore(count int) *Semaphore {
	return &Semaphore{k: k, counter: count}
}

// Wait decrements the semaphore, blocking while the count is zero.
func (s *Semaphore) Wait() {
	k := s.k
	k.DisablePreemption()
	cur := k.cpu.current
	for s.counter == 0 {
		s.waiters = append(s.waiters, cur)
		k.blockOn(WaitSemaphore, s)
		k.DisablePreemption()
	}
	s.counter--
	k.EnablePreemption()
}

// Post increments the semaphore and wakes one waiter if any.
func (s *Semaphore) Post() {
	k := s.k
	k.DisablePreemption()
	defer k.EnablePreemption()
	s.counter++
	if len(s.waiters) > 0 {
		t := s.waiters[0]
		s.waiters = s.waiters[1:]
		t.wake()
	}
}

// Count returns the semaphore's current count.
func (s *Semaphore) Count() int {
	return s.counter
}

// CondVar is a condition variable. Unlike mutex and semaphore waits,
// condition waits may be woken spuriously by a terminating signal, so Wait
// gives no guarantee about the condition on return; callers re-check under
// the mutex.
type CondVar struct {
	k       *Kernel
	waiters []*Task
}

// NewCondVar returns a condition variable.
func (k *Kernel) NewCondVar() *CondVar {
	return &CondVar{k: k}
}

// Wait atomically releases m and blocks the current task until signalled
// (or spuriously woken), then reacquires m before returning.
func (c *CondVar) Wait(m *Mutex) {
	k := c.k
	k.DisablePreemption()
	cur := k.cpu.current
	c.waiters = append(c.waiters, cur)
	m.Unlock()
	k.blockOn(WaitCondition, c)
	// Woken by Signal/Broadcast or spuriously by a signal; in the latter
	// case we are still on the waiter list.
	k.DisablePreemption()
	c.remove(cur)
	k.EnablePreemption()
	m.Lock()
}

// Signal wakes the oldest waiter, if any.
func (c *CondVar) Signal() {
	k := c.k
	k.DisablePreemption()
	defer k.EnablePreemption()
	if len(c.waiters) > 0 {
		t := c.waiters[0]
		c.waiters = c.waiters[1:]
		t.wake()
	}
}

// Broadcast wakes all waiters.
func (c *CondVar) Broadcast() {
	k := c.k
	k.DisablePreemption()
	defer k.EnablePreemption()
	for _, t := range c.waiters {
		t.wake()
	}
	c.waiters = nil
}

func (c *CondVar) remove(t *Task) {
	for i, w := range c.waiters {
		if w == t {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// Sleep blocks the current task for the given number of timer ticks. Like a
// condition wait, a sleeping task may be woken early by a terminating
// signal.
func (k *Kernel) Sleep(ticks uint64) {
	k.DisablePreemption()
	cur := k.cpu.current
	k.sleepers[cur] = k.ticks + ticks
	k.blockOn(WaitSleep, nil)
	k.DisablePreemption()
	delete(k.sleepers, cur)
	k.EnablePreemption()
}

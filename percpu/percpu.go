// Package percpu holds the fixed per-core state array, grounded on the
// original implementation's arch::common::core (one CoreTrait instance
// per hart/core reached through current_core()) and the teacher's
// per-CPU bookkeeping in vm.Tlbshoot.
package percpu

import (
	"sync"

	"polykernel/arch"
	"polykernel/sched"
)

// MaxCores bounds the fixed per-core array. The spec's board contract
// never needs more than this on either supported architecture.
const MaxCores = 64

// Core is one logical CPU's kernel-private state: its architecture
// primitives, its round-robin scheduler, its idle thread, and the
// currently running thread, each behind the mutex spec §5 calls for
// ("the running thread slot has its own mutex").
type Core struct {
	ID        int
	Ops       arch.Ops
	Scheduler sched.Scheduler

	mu      sync.Mutex
	running sched.Runnable
	idle    sched.Runnable
}

var (
	coresMu sync.Mutex
	cores   [MaxCores]*Core
)

// Register installs c at its own ID in the global core table, so
// Current can find it again from just an arch.Ops.CoreID() value.
func Register(c *Core) {
	coresMu.Lock()
	defer coresMu.Unlock()
	cores[c.ID] = c
}

// Current returns the Core registered for ops's reported core id.
func Current(ops arch.Ops) *Core {
	coresMu.Lock()
	defer coresMu.Unlock()
	return cores[ops.CoreID()]
}

// SetIdle installs the thread this core falls back to when nothing else
// is runnable. Every core must have one before Schedule is ever called.
func (c *Core) SetIdle(t sched.Runnable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idle = t
}

// Running returns the thread currently installed on this core, or nil
// if none has run yet.
func (c *Core) Running() sched.Runnable {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetRunning records t as the thread now executing on this core.
func (c *Core) SetRunning(t sched.Runnable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = t
}

// Schedule picks the next thread to run from list via this core's
// round-robin scheduler, falling back to the idle thread.
func (c *Core) Schedule(list []sched.Runnable) {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	if idle == nil {
		panic("percpu: Schedule called before SetIdle")
	}
	c.Scheduler.Schedule(list, idle, c.ID)
}

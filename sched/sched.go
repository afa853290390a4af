// Package sched implements the round-robin scheduler, grounded almost
// verbatim on the original implementation's RoundRobinScheduler
// (original_source/src/lib/scheduler.rs): advance a counter, scan the
// thread list starting from the counter's position for a runnable
// thread, fall back to a full second scan from the beginning, and run
// the core's idle thread if nothing was found.
package sched

// Runnable is anything the scheduler can consider switching to. proc.Thread
// satisfies this through the adapter Thread.Bind returns; keeping the interface here (rather than importing proc)
// keeps the scheduler ignorant of what a thread actually is, matching how
// little original_source's SchedulerTrait::schedule needs to know about
// Thread beyond .runnable() and .run().
//
// Affinity/BindAffinity implement spec §4.4's "may take" rule: a thread
// with a bound affinity core may only be run by that core; an unbound
// thread may be taken by any core, which then becomes its affinity.
type Runnable interface {
	Runnable() bool
	Run() bool
	// Affinity reports the core this thread is pinned to. ok is false if
	// the thread has never been run (any core may take it).
	Affinity() (core int, ok bool)
	// BindAffinity pins the thread to core. Called only the first time an
	// unpinned thread is taken.
	BindAffinity(core int)
}

// Scheduler is a per-core round-robin scheduler instance.
type Scheduler struct {
	counter int
}

// Schedule advances the round-robin counter and runs the first runnable
// thread found starting from the counter's position, wrapping around,
// that this core (coreID) may take per its affinity slot. If no thread in
// list is eligible, it runs idle.
func (s *Scheduler) Schedule(list []Runnable, idle Runnable, coreID int) {
	s.counter++
	n := len(list)
	take := func(i int) bool {
		r := list[i]
		if !r.Runnable() {
			return false
		}
		if core, pinned := r.Affinity(); pinned && core != coreID {
			return false
		}
		if !r.Run() {
			return false
		}
		if _, pinned := r.Affinity(); !pinned {
			r.BindAffinity(coreID)
		}
		return true
	}
	if n > 0 {
		start := s.counter % n
		for i := start; i < n; i++ {
			if take(i) {
				return
			}
		}
		// Second pass mirrors the original's full second scan rather
		// than just the [0, start) remainder: harmless, since a
		// thread already rejected in the first pass simply fails the
		// same checks again.
		for i := 0; i < n; i++ {
			if take(i) {
				return
			}
		}
	}
	if !idle.Run() {
		panic("sched: idle thread refused to run")
	}
}

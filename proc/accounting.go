package proc

import (
	"sync"
	"sync/atomic"
)

// Accounting accumulates per-process nanosecond counters, grounded on
// the teacher's Accnt_t (biscuit/src/accnt/accnt.go), trimmed to the
// user/system counters and the merge-on-destroy operation the spec
// actually asks for (no rusage byte-buffer export: there is no user-mode
// ABI in scope to copy it to).
type Accounting struct {
	Userns int64
	Sysns  int64
	mu     sync.Mutex
}

// AddUser adds delta nanoseconds of user time.
func (a *Accounting) AddUser(delta int64) {
	atomic.AddInt64(&a.Userns, delta)
}

// AddSystem adds delta nanoseconds of system time.
func (a *Accounting) AddSystem(delta int64) {
	atomic.AddInt64(&a.Sysns, delta)
}

// MergeInto folds a's counters into parent's, the bookkeeping step
// process destruction performs so a dying child's usage is not lost.
func (a *Accounting) MergeInto(parent *Accounting) {
	parent.mu.Lock()
	defer parent.mu.Unlock()
	parent.Userns += atomic.LoadInt64(&a.Userns)
	parent.Sysns += atomic.LoadInt64(&a.Sysns)
}

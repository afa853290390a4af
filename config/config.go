// Package config holds the constants that describe the board and the
// user-address-space layout. Every other package reads its architectural
// and policy constants from here rather than hard-coding them, following
// the teacher's single-constants-module convention (config.rs/mm/config.rs
// in the original implementation, board/*.go in the teacher).
package config

import "sync/atomic"

const (
	// PageShift is the base-2 exponent of the page size on both
	// supported architectures (4 KiB pages).
	PageShift = 12
	// PageSize is the size in bytes of a single page.
	PageSize = 1 << PageShift
	// PageMask masks the in-page offset bits of an address.
	PageMask = PageSize - 1

	// USERLimit is the first virtual address that user code may not map.
	// Addresses at or above this are reserved for the kernel and, below
	// USERStackTop, for per-process kernel-installed furniture.
	USERLimit = 0x0000_7f00_0000_0000

	// USERStackTop is the address one past the top of the main thread's
	// user stack. The stack occupies the single page just below it.
	USERStackTop = USERLimit

	// USERExceptionHandlerStackTop is the top of the one-page region
	// reserved for a process's page-fault upcall stack, immediately below
	// the main stack. The kernel does not map this page itself; a process
	// registers its handler stack through set_exception_handler.
	USERExceptionHandlerStackTop = USERStackTop - PageSize

	// RecursivePTBase is the virtual address of the recursive-mapping
	// window through which user code may introspect its own page table
	// (see the "Recursive mapping" design note).
	RecursivePTBase = 0x0000_7e00_0000_0000
)

// Limits mirrors the teacher's limits.Syslimit_t: a small set of system
// wide ceilings checked before a resource is granted.
type Limits struct {
	MaxProcesses Atomic
	MaxThreads   Atomic
}

// NewLimits returns the default resource limits for one kernel instance.
func NewLimits() *Limits {
	l := &Limits{}
	l.MaxProcesses.Set(1 << 12)
	l.MaxThreads.Set(1 << 14)
	return l
}

// Atomic is a ceiling that can be atomically taken from and given back to,
// grounded on the teacher's limits.Sysatomic_t.
type Atomic struct {
	v int64
}

// Set initializes the ceiling to n.
func (a *Atomic) Set(n int64) {
	atomic.StoreInt64(&a.v, n)
}

// Take decrements the ceiling by one and reports whether it was positive.
func (a *Atomic) Take() bool {
	if atomic.AddInt64(&a.v, -1) >= 0 {
		return true
	}
	atomic.AddInt64(&a.v, 1)
	return false
}

// Give returns one unit to the ceiling.
func (a *Atomic) Give() {
	atomic.AddInt64(&a.v, 1)
}

// Package board defines the contract a concrete target board must
// satisfy to bring the kernel up, grounded on the original
// implementation's per-architecture board/mod.rs (physical memory range,
// core count, console device) and, for the supplemented IRQ vector
// allocator, the teacher's msi.Msivecs_t
// (biscuit/src/msi/msi.go).
package board

import (
	"errors"
	"sync"
)

// Board describes everything the kernel needs from the platform it is
// booting on.
type Board interface {
	// Name identifies the board for diagnostics.
	Name() string
	// MemoryStart and MemoryPages describe the page-aligned physical
	// range available to the frame pool.
	MemoryStart() uintptr
	MemoryPages() int
	// KernelBase is the fixed linear offset added to a physical
	// address to get its kernel-virtual alias.
	KernelBase() uintptr
	// NumCores reports how many logical cores are available.
	NumCores() int
}

// ErrIRQExhausted is returned when every IRQ vector this board exposes
// is already allocated.
var ErrIRQExhausted = errors.New("board: no IRQ vectors available")

// IRQAllocator hands out a small fixed set of interrupt vectors,
// grounded on the teacher's Msi_alloc/Msi_free.
type IRQAllocator struct {
	mu    sync.Mutex
	avail map[int]bool
}

// NewIRQAllocator returns an allocator covering vectors [low, high].
func NewIRQAllocator(low, high int) *IRQAllocator {
	a := &IRQAllocator{avail: make(map[int]bool)}
	for v := low; v <= high; v++ {
		a.avail[v] = true
	}
	return a
}

// Alloc reserves and returns one available vector.
func (a *IRQAllocator) Alloc() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for v := range a.avail {
		delete(a.avail, v)
		return v, nil
	}
	return 0, ErrIRQExhausted
}

// Free releases a vector previously returned by Alloc. It panics on a
// double free, matching the teacher's Msi_free.
func (a *IRQAllocator) Free(vector int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.avail[vector] {
		panic("board: double free of IRQ vector")
	}
	a.avail[vector] = true
}

package mem

import (
	"errors"
	"sync"
)

// ErrHeapExhausted is returned when the kernel heap has no space left for
// a requested allocation.
var ErrHeapExhausted = errors.New("mem: heap exhausted")

// Heap backs small kernel allocations from a dedicated non-paged region,
// grounded on the original implementation's mm::heap (a buddy-system
// allocator laid over a fixed physical range handed to it once at boot).
// This port keeps the same "one fixed range, freelist of blocks" shape
// without pulling in a buddy-allocator dependency: nothing in the
// retrieval pack ships a Go buddy allocator, and a kernel heap's own
// invariant (never freeing partial blocks, no external fragmentation
// pressure from user code) is simple enough that a size-class freelist
// is the idiomatic Go stand-in, matching the teacher's own preference for
// small, explicit free lists (mem.Physmem_t's nexti chains) over a
// dependency.
type Heap struct {
	mu     sync.Mutex
	base   uintptr
	size   uintptr
	offset uintptr
	// free holds blocks released by Free, indexed by size class
	// (power-of-two byte sizes starting at 16).
	free map[uintptr][]uintptr
}

// NewHeap initializes a heap over the half-open byte range
// [base, base+size).
func NewHeap(base, size uintptr) *Heap {
	return &Heap{base: base, size: size, free: make(map[uintptr][]uintptr)}
}

func sizeClass(n uintptr) uintptr {
	c := uintptr(16)
	for c < n {
		c <<= 1
	}
	return c
}

// Alloc returns the address of a block of at least n bytes, or
// ErrHeapExhausted if the heap has no room.
func (h *Heap) Alloc(n uintptr) (uintptr, error) {
	if n == 0 {
		n = 1
	}
	cls := sizeClass(n)
	h.mu.Lock()
	defer h.mu.Unlock()
	if blocks := h.free[cls]; len(blocks) > 0 {
		addr := blocks[len(blocks)-1]
		h.free[cls] = blocks[:len(blocks)-1]
		return addr, nil
	}
	if h.offset+cls > h.size {
		return 0, ErrHeapExhausted
	}
	addr := h.base + h.offset
	h.offset += cls
	return addr, nil
}

// Free releases a block previously returned by Alloc for a request of
// the same size n. The caller must free with the size it allocated;
// the heap does not track per-allocation metadata, matching the
// teacher's preference for explicit, caller-tracked sizes over a header
// word on every block.
func (h *Heap) Free(addr, n uintptr) {
	if n == 0 {
		n = 1
	}
	cls := sizeClass(n)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.free[cls] = append(h.free[cls], addr)
}

// Used reports how many bytes have been carved out of the arena so far
// (ignoring recycled free blocks), for diagnostics.
func (h *Heap) Used() uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.offset
}

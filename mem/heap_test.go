package mem

import "testing"

func TestHeapAllocFreeRecycle(t *testing.T) {
	h := NewHeap(0x2000_0000, 4096)
	a, err := h.Alloc(32)
	if err != nil {
		t.Fatal(err)
	}
	h.Free(a, 32)
	b, err := h.Alloc(32)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("expected recycled address %#x, got %#x", a, b)
	}
}

func TestHeapExhaustion(t *testing.T) {
	h := NewHeap(0x2000_0000, 64)
	if _, err := h.Alloc(32); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Alloc(32); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Alloc(32); err != ErrHeapExhausted {
		t.Fatalf("expected ErrHeapExhausted, got %v", err)
	}
}

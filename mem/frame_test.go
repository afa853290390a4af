package mem

import "testing"

func newTestPool(n int) *Pool {
	return NewPool(0x1000, n, 0xffff_ff80_0000_0000)
}

func TestAllocateFreePartition(t *testing.T) {
	p := newTestPool(4)
	var got []Frame
	for i := 0; i < 4; i++ {
		f, err := p.Allocate()
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		got = append(got, f)
	}
	if _, err := p.Allocate(); err != ErrOutOfFrames {
		t.Fatalf("expected ErrOutOfFrames, got %v", err)
	}
	if err := p.Free(got[0]); err != nil {
		t.Fatalf("free: %v", err)
	}
	if f, err := p.Allocate(); err != nil || f != got[0] {
		t.Fatalf("expected to reallocate freed frame %#x, got %#x/%v", got[0], f, err)
	}
}

func TestRefCountGatesFree(t *testing.T) {
	p := newTestPool(1)
	f, _ := p.Allocate()
	if _, err := p.IncRC(f); err != nil {
		t.Fatal(err)
	}
	if err := p.Free(f); err != ErrStillReferenced {
		t.Fatalf("expected ErrStillReferenced, got %v", err)
	}
	if rc, err := p.DecRC(f); err != nil || rc != 0 {
		t.Fatalf("DecRC: rc=%d err=%v", rc, err)
	}
	// DecRC to zero already returned it to the free set.
	if err := p.Free(f); err != ErrNotAllocated {
		t.Fatalf("expected ErrNotAllocated after auto-recycle, got %v", err)
	}
}

func TestRefCountRecycleScenario(t *testing.T) {
	// Spec §8 scenario 3: map F at V1 and V2, remove V1 (rc 1), remove
	// V2 (rc 0, back in free set). Modeled directly against the pool.
	p := newTestPool(1)
	f, _ := p.Allocate()
	p.IncRC(f) // V1
	p.IncRC(f) // V2
	if rc, _ := p.DecRC(f); rc != 1 {
		t.Fatalf("after first decrement rc = %d, want 1", rc)
	}
	before := p.FreeCount()
	if rc, _ := p.DecRC(f); rc != 0 {
		t.Fatalf("after second decrement rc = %d, want 0", rc)
	}
	if p.FreeCount() != before+1 {
		t.Fatalf("frame not returned to free set")
	}
}

func TestUnmanagedFrame(t *testing.T) {
	p := newTestPool(1)
	if _, err := p.RC(0xdead0000); err != ErrUnmanaged {
		t.Fatalf("expected ErrUnmanaged, got %v", err)
	}
	if !p.InPool(p.start) {
		t.Fatal("expected start frame to be in pool")
	}
}

func TestIncRCOverflow(t *testing.T) {
	p := newTestPool(1)
	f, _ := p.Allocate()
	for i := 0; i < 255; i++ {
		if _, err := p.IncRC(f); err != nil {
			t.Fatalf("unexpected error at %d: %v", i, err)
		}
	}
	if _, err := p.IncRC(f); err != ErrOverflow {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestDecRCOfZeroPanics(t *testing.T) {
	p := newTestPool(1)
	f, _ := p.Allocate()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on decrement of zero refcount")
		}
	}()
	p.DecRC(f)
}

package percpu

import (
	"testing"

	"polykernel/arch/arm64"
	"polykernel/sched"
)

type stubThread struct {
	runnable bool
	ran      bool
	affinity int
}

func (s *stubThread) Runnable() bool { return s.runnable }
func (s *stubThread) Run() bool      { s.ran = true; return true }
func (s *stubThread) Affinity() (int, bool) {
	if s.affinity < 0 {
		return 0, false
	}
	return s.affinity, true
}
func (s *stubThread) BindAffinity(core int) {
	if s.affinity < 0 {
		s.affinity = core
	}
}

func TestRegisterAndCurrent(t *testing.T) {
	core := &Core{ID: 3, Ops: arm64.NewCore(3)}
	Register(core)
	if Current(core.Ops) != core {
		t.Fatal("Current did not return the registered core")
	}
}

func TestScheduleUsesRegisteredIdle(t *testing.T) {
	core := &Core{ID: 5, Ops: arm64.NewCore(5)}
	idle := &stubThread{runnable: true, affinity: -1}
	core.SetIdle(idle)
	core.Schedule(nil)
	if !idle.ran {
		t.Fatal("idle thread was not run")
	}
}

func TestScheduleWithoutIdlePanics(t *testing.T) {
	core := &Core{ID: 6, Ops: arm64.NewCore(6)}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when scheduling before SetIdle")
		}
	}()
	core.Schedule(nil)
}

func TestScheduleSkipsThreadPinnedToAnotherCore(t *testing.T) {
	core := &Core{ID: 9, Ops: arm64.NewCore(9)}
	idle := &stubThread{runnable: true, affinity: -1}
	core.SetIdle(idle)
	pinned := &stubThread{runnable: true, affinity: 1}
	core.Schedule([]sched.Runnable{pinned})
	if pinned.ran {
		t.Fatal("core 9 should not have run a thread pinned to core 1")
	}
	if !idle.ran {
		t.Fatal("expected idle to run when the only candidate is pinned elsewhere")
	}
}

func TestRunningTrack(t *testing.T) {
	core := &Core{ID: 7, Ops: arm64.NewCore(7)}
	if core.Running() != nil {
		t.Fatal("expected nil running thread initially")
	}
	th := &stubThread{runnable: true, affinity: -1}
	core.SetRunning(th)
	if core.Running() != th {
		t.Fatal("SetRunning/Running mismatch")
	}
}

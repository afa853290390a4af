package syscall

import (
	"testing"

	"polykernel/arch/arm64"
	"polykernel/config"
	"polykernel/console"
	"polykernel/mem"
	"polykernel/percpu"
	"polykernel/proc"
	"polykernel/vm"
	vmarm64 "polykernel/vm/arm64"
)

func newEnv(t *testing.T) (*Env, *mem.Pool) {
	t.Helper()
	pool := mem.NewPool(0x2000_0000, 64, 0xffff_ff80_0000_0000)
	core := &percpu.Core{ID: 0, Ops: arm64.NewCore(0)}
	core.SetIdle(idleStub{})
	return &Env{Pool: pool, Codec: vmarm64.Codec{}, Console: console.New(256, nil), Core: core}, pool
}

type idleStub struct{}

func (idleStub) Runnable() bool        { return true }
func (idleStub) Run() bool             { return true }
func (idleStub) Affinity() (int, bool) { return 0, false }
func (idleStub) BindAffinity(core int) {}

func newCallerThread(t *testing.T, pool *mem.Pool) (*proc.Process, *proc.Thread) {
	t.Helper()
	p, err := proc.Create(nil, pool, vmarm64.Codec{})
	if err != nil {
		t.Fatal(err)
	}
	cf := arm64.NewContextFrame(0x1000, config.USERStackTop, 0, false)
	th, err := proc.NewThread(p, cf)
	if err != nil {
		t.Fatal(err)
	}
	th.SetStatus(proc.StatusRunnable)
	return p, th
}

func TestEncodeDecodeAttrRoundTrip(t *testing.T) {
	a := vm.Attribute{Writable: true, UserWritable: true, UserExecutable: true, Shared: true}
	got := DecodeAttr(EncodeAttr(a))
	if got != a {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, a)
	}
}

func TestGetPidReturnsCallerPID(t *testing.T) {
	env, pool := newEnv(t)
	_ = pool
	p, th := newCallerThread(t, env.Pool)
	defer proc.Destroy(p)

	got := Dispatch(env, p, th, GetPid, [6]uintptr{})
	if got != int64(p.PID) {
		t.Fatalf("get_pid = %d, want %d", got, p.PID)
	}
}

func TestProcessAllocCreatesChildSharingNoCOWOnStack(t *testing.T) {
	env, _ := newEnv(t)
	parent, parentThread := newCallerThread(t, env.Pool)
	defer proc.Destroy(parent)

	stackVA := uintptr(config.USERStackTop - config.PageSize)
	if _, err := parent.AS.Map(stackVA, vm.Attribute{Writable: true, UserReadable: true, UserWritable: true}); err != nil {
		t.Fatal(err)
	}
	pa, _, err := parent.AS.LookupPage(stackVA)
	if err != nil {
		t.Fatal(err)
	}

	// process_alloc itself must share the parent's already-mapped stack
	// page into the child; nothing here touches the child's address
	// space by hand.
	childPID := Dispatch(env, parent, parentThread, ProcessAlloc, [6]uintptr{})
	if childPID < 0 {
		t.Fatalf("process_alloc failed: %d", childPID)
	}
	child, ok := proc.Lookup(uint16(childPID))
	if !ok {
		t.Fatal("child process not registered")
	}
	defer proc.Destroy(child)

	if child.Parent != parent {
		t.Fatal("child's parent not set to caller")
	}

	childPA, childAttr, err := child.AS.LookupPage(stackVA)
	if err != nil {
		t.Fatalf("child does not observe the parent's stack mapping: %v", err)
	}
	if childPA != pa {
		t.Fatalf("child stack frame = %#x, want shared frame %#x", childPA, pa)
	}
	if !childAttr.Shared {
		t.Fatal("expected the shared attribute bit to be set on the child's mapping")
	}
	if childAttr.CopyOnWrite {
		t.Fatal("expected copy-on-write to be cleared on a shared mapping")
	}
	if rc, _ := env.Pool.RC(pa); rc != 2 {
		t.Fatalf("stack frame refcount = %d, want 2 (parent + child)", rc)
	}
}

func TestProcessDestroyRejectsNonChild(t *testing.T) {
	env, _ := newEnv(t)
	unrelatedParent, _ := newCallerThread(t, env.Pool)
	defer proc.Destroy(unrelatedParent)
	caller, callerThread := newCallerThread(t, env.Pool)
	defer proc.Destroy(caller)

	other, err := proc.Create(unrelatedParent, env.Pool, vmarm64.Codec{})
	if err != nil {
		t.Fatal(err)
	}
	defer proc.Destroy(other)

	got := Dispatch(env, caller, callerThread, ProcessDestroy, [6]uintptr{uintptr(other.PID)})
	if got != ErrParentMismatch {
		t.Fatalf("process_destroy on a non-child = %d, want %d", got, ErrParentMismatch)
	}
}

func TestMemAllocThenUnmapRecyclesFrame(t *testing.T) {
	env, _ := newEnv(t)
	p, th := newCallerThread(t, env.Pool)
	defer proc.Destroy(p)

	before := env.Pool.FreeCount()
	va := uintptr(0x4000_0000)
	attrWord := EncodeAttr(vm.Attribute{Writable: true})
	if got := Dispatch(env, p, th, MemAlloc, [6]uintptr{0, va, attrWord}); got != 0 {
		t.Fatalf("mem_alloc = %d, want 0", got)
	}
	// One data frame plus the three inner tables arm64's 4-level walk
	// creates on the first mapping into an empty address space.
	afterAlloc := env.Pool.FreeCount()
	if afterAlloc != before-4 {
		t.Fatalf("free count after mem_alloc = %d, want %d", afterAlloc, before-4)
	}
	if got := Dispatch(env, p, th, MemUnmap, [6]uintptr{0, va}); got != 0 {
		t.Fatalf("mem_unmap = %d, want 0", got)
	}
	// Unmapping recycles the data frame; the inner tables stay in place.
	if env.Pool.FreeCount() != afterAlloc+1 {
		t.Fatalf("free count after mem_unmap = %d, want %d (data frame recycled)", env.Pool.FreeCount(), afterAlloc+1)
	}
}

func TestMemAllocOutOfProcessLimit(t *testing.T) {
	env, _ := newEnv(t)
	p, th := newCallerThread(t, env.Pool)
	defer proc.Destroy(p)

	got := Dispatch(env, p, th, MemAlloc, [6]uintptr{0, config.USERLimit, 0})
	if got != ErrMemoryLimit {
		t.Fatalf("mem_alloc above USERLimit = %d, want %d", got, ErrMemoryLimit)
	}
}

func TestIpcSendWithoutReceiverFails(t *testing.T) {
	env, _ := newEnv(t)
	sender, senderThread := newCallerThread(t, env.Pool)
	defer proc.Destroy(sender)
	receiver, _ := newCallerThread(t, env.Pool)
	defer proc.Destroy(receiver)

	got := Dispatch(env, sender, senderThread, IpcSend, [6]uintptr{uintptr(receiver.PID), 42, 0, 0})
	if got != ErrIpcNotReceiving {
		t.Fatalf("ipc_send to a non-receiving process = %d, want %d", got, ErrIpcNotReceiving)
	}
}

func TestIpcReceiveThenSendDeliversValue(t *testing.T) {
	env, _ := newEnv(t)
	receiver, receiverThread := newCallerThread(t, env.Pool)
	defer proc.Destroy(receiver)
	sender, senderThread := newCallerThread(t, env.Pool)
	defer proc.Destroy(sender)

	if got := Dispatch(env, receiver, receiverThread, IpcReceive, [6]uintptr{0}); got != 0 {
		t.Fatalf("ipc_receive = %d, want 0", got)
	}
	if receiverThread.Runnable() {
		t.Fatal("receiving thread should have been parked")
	}

	if got := Dispatch(env, sender, senderThread, IpcSend, [6]uintptr{uintptr(receiver.PID), 99, 0, 0}); got != 0 {
		t.Fatalf("ipc_send = %d, want 0", got)
	}
	value, from := receiver.ReceivedValue()
	if value != 99 || from != sender.PID {
		t.Fatalf("received (%d, %d), want (99, %d)", value, from, sender.PID)
	}
	if !receiverThread.Runnable() {
		t.Fatal("receiver's thread should be runnable again after delivery")
	}
}

func TestSetExceptionHandlerRejectsUnalignedStack(t *testing.T) {
	env, _ := newEnv(t)
	p, th := newCallerThread(t, env.Pool)
	defer proc.Destroy(p)

	got := Dispatch(env, p, th, SetExceptionHandler, [6]uintptr{0, 0x1000, 0x2001})
	if got != ErrInvalidArgument {
		t.Fatalf("set_exception_handler with unaligned sp = %d, want %d", got, ErrInvalidArgument)
	}
}

func TestUnknownSyscallNumberIsInvalidArgument(t *testing.T) {
	env, _ := newEnv(t)
	p, th := newCallerThread(t, env.Pool)
	defer proc.Destroy(p)

	got := Dispatch(env, p, th, 99, [6]uintptr{})
	if got != ErrInvalidArgument {
		t.Fatalf("unknown syscall = %d, want %d", got, ErrInvalidArgument)
	}
}

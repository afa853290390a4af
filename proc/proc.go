// Package proc implements processes and threads, grounded on the
// original implementation's ControlBlock/Thread pair
// (original_source/src/lib/thread.rs) and process pool
// (original_source/src/lib/process.rs), adapted to the spec's model
// where a process owns an address space and a thread owns a context and
// schedulable state, plus the supplemented per-process Accounting
// (biscuit/src/accnt/accnt.go).
package proc

import (
	"errors"
	"sync"

	"polykernel/arch"
	"polykernel/config"
	"polykernel/ids"
	"polykernel/mem"
	"polykernel/percpu"
	"polykernel/sched"
	"polykernel/vm"
)

var (
	ErrProcessLimit = errors.New("proc: process limit reached")
	ErrThreadLimit  = errors.New("proc: thread limit reached")
)

// Status is a thread's schedulability, grounded on original_source's
// thread::Status (TsRunnable / TsNotRunnable).
type Status int

const (
	StatusNotRunnable Status = iota
	StatusRunnable
)

// Process is the owner of one address space and the threads running
// inside it.
type Process struct {
	PID    uint16
	AS     *vm.AddressSpace
	Parent *Process

	Accounting Accounting

	mu                 sync.Mutex
	threads            []*Thread
	exceptionHandlerPC uintptr
	exceptionHandlerSP uintptr
	hasHandler         bool

	// IPC gift state (spec §4.7 syscalls 11/12), grounded on
	// original_source's ipc_receiving/ipc_dst_attr/ipc_from/ipc_value
	// fields on its process control block.
	ipcReceiving bool
	ipcDstVA     uintptr
	ipcValue     int
	ipcFrom      uint16
}

// Thread is one schedulable flow of control, optionally owned by a
// Process (kernel threads have Owner == nil).
type Thread struct {
	TID   uint16
	Owner *Process

	statusMu sync.Mutex
	status   Status

	contextMu sync.Mutex
	context   arch.ContextFrame

	// affinityMu guards affinity, grounded on spec §5's "per-thread
	// affinity behind its own small mutex". affinity is -1 until some
	// core first takes the thread (spec §4.4 "may take").
	affinityMu sync.Mutex
	affinity   int
}

var (
	processIDs   ids.Space
	processTable = ids.NewTable[*Process]()
	threadIDs    ids.Space
	threadTable  = ids.NewTable[*Thread]()
	limits       = config.NewLimits()
)

// Create allocates a new process with a fresh, empty address space built
// from pool using codec, optionally attributing it to parent (spec §4.5:
// process_alloc's child carries its creator as Parent).
func Create(parent *Process, pool *mem.Pool, codec vm.Codec) (*Process, error) {
	if !limits.MaxProcesses.Take() {
		return nil, ErrProcessLimit
	}
	pid, err := processIDs.Alloc()
	if err != nil {
		limits.MaxProcesses.Give()
		return nil, err
	}
	as, err := vm.New(pool, codec)
	if err != nil {
		processIDs.Free(pid)
		limits.MaxProcesses.Give()
		return nil, err
	}
	p := &Process{PID: pid, AS: as, Parent: parent}
	processTable.Insert(pid, p)
	return p, nil
}

// Lookup returns the process registered under pid.
func Lookup(pid uint16) (*Process, bool) { return processTable.Lookup(pid) }

// SetExceptionHandler records the user-mode page-fault upcall entry
// point and handler-stack top (spec §4.7 syscall 5 /
// set_exception_handler).
func (p *Process) SetExceptionHandler(pc, sp uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exceptionHandlerPC = pc
	p.exceptionHandlerSP = sp
	p.hasHandler = true
}

// ExceptionHandler returns the registered upcall entry and stack, and
// whether one has been registered at all.
func (p *Process) ExceptionHandler() (pc, sp uintptr, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exceptionHandlerPC, p.exceptionHandlerSP, p.hasHandler
}

// Threads returns a snapshot of the process's thread list.
func (p *Process) Threads() []*Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Thread(nil), p.threads...)
}

func (p *Process) addThread(t *Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threads = append(p.threads, t)
}

func (p *Process) removeThread(t *Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, th := range p.threads {
		if th == t {
			p.threads = append(p.threads[:i], p.threads[i+1:]...)
			return
		}
	}
}

// Destroy tears down every thread of p, releases its address space, and
// (per the supplemented Accounting model) merges its usage counters into
// its parent's before freeing its pid.
func Destroy(p *Process) {
	for _, t := range p.Threads() {
		t.Destroy()
	}
	p.AS.Destroy()
	if p.Parent != nil {
		p.Accounting.MergeInto(&p.Parent.Accounting)
	}
	processTable.Remove(p.PID)
	processIDs.Free(p.PID)
	limits.MaxProcesses.Give()
}

// NewThread allocates a thread running cf, owned by owner (nil for a
// kernel thread).
func NewThread(owner *Process, cf arch.ContextFrame) (*Thread, error) {
	if !limits.MaxThreads.Take() {
		return nil, ErrThreadLimit
	}
	tid, err := threadIDs.Alloc()
	if err != nil {
		limits.MaxThreads.Give()
		return nil, err
	}
	t := &Thread{TID: tid, Owner: owner, context: cf, status: StatusNotRunnable, affinity: -1}
	threadTable.Insert(tid, t)
	if owner != nil {
		owner.addThread(t)
	}
	return t, nil
}

// LookupThread returns the thread registered under tid.
func LookupThread(tid uint16) (*Thread, bool) { return threadTable.Lookup(tid) }

func (t *Thread) SetStatus(s Status) {
	t.statusMu.Lock()
	t.status = s
	t.statusMu.Unlock()
}

// Runnable reports whether t's status is StatusRunnable; Bind's adapter
// forwards sched.Runnable's Runnable method to it.
func (t *Thread) Runnable() bool {
	t.statusMu.Lock()
	defer t.statusMu.Unlock()
	return t.status == StatusRunnable
}

// Context returns the thread's saved register frame itself, not a copy.
func (t *Thread) Context() arch.ContextFrame {
	t.contextMu.Lock()
	defer t.contextMu.Unlock()
	return t.context
}

// SetContext replaces the thread's saved register frame.
func (t *Thread) SetContext(cf arch.ContextFrame) {
	t.contextMu.Lock()
	t.context = cf
	t.contextMu.Unlock()
}

// Affinity reports the core t is pinned to, satisfying sched.Runnable.
// ok is false until some core first takes t.
func (t *Thread) Affinity() (core int, ok bool) {
	t.affinityMu.Lock()
	defer t.affinityMu.Unlock()
	if t.affinity < 0 {
		return 0, false
	}
	return t.affinity, true
}

// BindAffinity pins t to core. A no-op once t is already pinned, since
// only the first core to take an unpinned thread may claim it.
func (t *Thread) BindAffinity(core int) {
	t.affinityMu.Lock()
	defer t.affinityMu.Unlock()
	if t.affinity < 0 {
		t.affinity = core
	}
}

// Run installs t as the running thread on core, grounded on Thread::run
// (original_source/src/lib/thread.rs): record it in the core's running
// slot and, if it belongs to a process, switch the address space and
// invalidate the TLB. Context state lives on the thread itself rather
// than being copied through the core, so there is no separate "save the
// outgoing context" step the way the original's core.context() round
// trip needs — the outgoing thread's Context was already kept current by
// whoever last wrote to it (the trap dispatcher, on the way out of a
// syscall or fault).
func (t *Thread) Run(core *percpu.Core) bool {
	core.SetRunning(t.Bind(core))
	if t.Owner != nil {
		core.Ops.InvalidateTLB(0, 0)
	}
	return true
}

// Destroy removes t from the global thread table and its owning
// process, if any.
func (t *Thread) Destroy() {
	t.SetStatus(StatusNotRunnable)
	threadTable.Remove(t.TID)
	threadIDs.Free(t.TID)
	limits.MaxThreads.Give()
	if t.Owner != nil {
		t.Owner.removeThread(t)
	}
}

// boundThread adapts a Thread plus the core it would run on to
// sched.Runnable, whose Run method takes no arguments.
type boundThread struct {
	t    *Thread
	core *percpu.Core
}

func (b boundThread) Runnable() bool                { return b.t.Runnable() }
func (b boundThread) Run() bool                     { return b.t.Run(b.core) }
func (b boundThread) Affinity() (core int, ok bool) { return b.t.Affinity() }
func (b boundThread) BindAffinity(core int)         { b.t.BindAffinity(core) }

// Bind returns t adapted for core's scheduler.
func (t *Thread) Bind(core *percpu.Core) sched.Runnable {
	return boundThread{t: t, core: core}
}

// All returns a snapshot of every thread currently registered, the
// global pool the scheduler draws its candidate list from.
func All() []*Thread { return threadTable.Values() }

// BeginReceive marks p as waiting to receive a value at dstVA (syscall
// 11, ipc_receive).
func (p *Process) BeginReceive(dstVA uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ipcReceiving = true
	p.ipcDstVA = dstVA
}

// Receiving reports whether p is currently waiting to receive, and
// where.
func (p *Process) Receiving() (dstVA uintptr, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ipcDstVA, p.ipcReceiving
}

// CompleteReceive delivers value from sender, clearing the receiving
// flag (syscall 12, ipc_send).
func (p *Process) CompleteReceive(value int, from uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ipcReceiving = false
	p.ipcValue = value
	p.ipcFrom = from
}

// ReceivedValue returns the value and sender most recently delivered by
// CompleteReceive.
func (p *Process) ReceivedValue() (value int, from uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ipcValue, p.ipcFrom
}

// Package trap classifies and dispatches traps taken on a core,
// grounded on the spec's trap model and on the teacher's fault-cause
// branching in vm.Sys_pgfault (biscuit/src/vm/as.go): decide what kind
// of trap this is before doing anything architecture-specific with it.
// The page-fault upcall path (forward the fault to a process's
// registered user-mode handler) follows original_source's
// process_set_exception_handler contract
// (src/lib/syscall.rs::process_set_exception_handler) rather than the
// teacher's in-kernel copy-on-write resolution, since the spec's address
// spaces have no file-backed or lazily-allocated mappings to resolve in
// the kernel.
package trap

import (
	"errors"

	"polykernel/arch"
	"polykernel/config"
	"polykernel/kdebug"
	"polykernel/proc"
)

// Cause classifies one trap entry.
type Cause int

const (
	CauseSyscall Cause = iota
	CausePageFault
	CauseInterrupt
	CauseOther
)

var (
	ErrNoHandler           = errors.New("trap: process has no exception handler registered")
	ErrFaultInKernelRange  = errors.New("trap: fault address is at or above the user limit")
	ErrHandlerStackFault   = errors.New("trap: exception handler stack is not mapped")
	ErrFaultOnHandlerStack = errors.New("trap: fault occurred on the handler stack itself")
)

// SyscallFunc dispatches one syscall trap and writes its result into cf.
type SyscallFunc func(p *proc.Process, th *proc.Thread, cf arch.ContextFrame)

// IRQFunc handles one interrupt vector.
type IRQFunc func(vector int)

// Dispatcher routes a classified trap to the right handler.
type Dispatcher struct {
	Syscall SyscallFunc
	IRQ     IRQFunc
}

// Dispatch handles one trap taken while th was running on ops. fromKernel
// reports whether the trapped context was kernel-privileged, used to
// decide whether an unrecognized synchronous trap is fatal.
func (d *Dispatcher) Dispatch(ops arch.Ops, th *proc.Thread, cause Cause, vector int, fromKernel bool) {
	switch cause {
	case CauseSyscall:
		if d.Syscall == nil {
			panic("trap: syscall trap with no handler installed")
		}
		cf := th.Context()
		d.Syscall(th.Owner, th, cf)
		th.SetContext(cf)
	case CausePageFault:
		if err := d.handlePageFault(ops, th); err != nil {
			// Spec §4.3: a fault the process cannot handle destroys
			// the process rather than crashing the kernel.
			if th.Owner != nil {
				proc.Destroy(th.Owner)
			}
		}
	case CauseInterrupt:
		if d.IRQ != nil {
			d.IRQ(vector)
		}
	default:
		if fromKernel {
			trace := kdebug.Callerdump(2)
			panic("trap: unhandled synchronous trap from kernel mode\n" + trace)
		}
		if th.Owner != nil {
			proc.Destroy(th.Owner)
		}
	}
}

// handlePageFault implements the upcall described in spec §4.3/§8 scenario
// 2: verify the fault is in range and the process has a registered
// handler whose stack page is mapped and not itself the faulting page,
// copy the saved frame verbatim onto the handler stack, then rewrite the
// faulting thread's context to enter the handler on its own stack with
// the faulting address as its first argument.
func (d *Dispatcher) handlePageFault(ops arch.Ops, th *proc.Thread) error {
	p := th.Owner
	if p == nil {
		panic("trap: page fault in a kernel thread")
	}
	fault := ops.FaultAddress()
	if fault >= config.USERLimit {
		return ErrFaultInKernelRange
	}
	pc, sp, ok := p.ExceptionHandler()
	if !ok {
		return ErrNoHandler
	}
	// The handler's stack pointer is the exclusive top of its stack
	// page; the mapped page is the one containing the byte just below
	// it.
	handlerPage := (sp - 1) &^ uintptr(config.PageMask)
	pa, _, err := p.AS.LookupPage(handlerPage)
	if err != nil {
		return ErrHandlerStackFault
	}
	if fault&^uintptr(config.PageMask) == handlerPage {
		return ErrFaultOnHandlerStack
	}

	saved := th.Context()
	frame := saved.Bytes()
	newSP := sp - uintptr(len(frame))
	if newSP < handlerPage {
		return ErrHandlerStackFault
	}
	page := p.AS.Pool().TableView(pa)
	writeBytes(page, int(newSP-handlerPage), frame)

	cf := saved.Clone()
	cf.SetExceptionPC(pc)
	cf.SetStackPointer(newSP)
	cf.SetFirstArgument(fault)
	th.SetContext(cf)
	return nil
}

// writeBytes copies src into page starting at the given byte offset,
// matching elfload's in-place word-shifting approach for writing raw
// bytes into the simulated backing storage a frame's TableView exposes.
func writeBytes(page *[512]uint64, offset int, src []byte) {
	for i, b := range src {
		pos := offset + i
		word := pos / 8
		shift := uint(pos%8) * 8
		page[word] = page[word]&^(0xff<<shift) | uint64(b)<<shift
	}
}

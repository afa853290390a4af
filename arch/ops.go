// Package arch defines the capability set that hides architecture-specific
// encoding from the rest of the kernel (§9 design note: "hide all
// architecture-specific encoding behind a small capability set"),
// grounded on the original implementation's arch::traits (ArchTrait,
// ContextFrameTrait, CoreTrait) and the teacher's per-architecture
// register access in vm.Tlbshoot/runtime.Condflush.
package arch

// Ops is the set of architecture primitives the core consumes (spec §6).
// Two concrete implementations exist: arm64 and riscv64.
type Ops interface {
	// CoreID returns the logical id of the calling core.
	CoreID() int
	// WaitForEvent parks the calling core until the next interrupt.
	WaitForEvent()
	// Nop executes one architectural no-op instruction.
	Nop()
	// FaultAddress returns the address that caused the most recent
	// synchronous data/instruction abort on this core.
	FaultAddress() uintptr
	// InvalidateTLB broadcasts a TLB invalidate for npages pages
	// starting at va, inner-shareable (spec §5: "TLB invalidation is
	// broadcast after every page-table mutation").
	InvalidateTLB(va uintptr, npages int)
}

// ContextFrame is the portable view of a saved trap/register frame,
// grounded on the original's ContextFrameTrait and the teacher's
// trapframe accessors referenced from vm.Vm_t/proc.
type ContextFrame interface {
	// ExceptionPC / SetExceptionPC access the saved return address.
	ExceptionPC() uintptr
	SetExceptionPC(pc uintptr)
	// StackPointer / SetStackPointer access the saved stack pointer.
	StackPointer() uintptr
	SetStackPointer(sp uintptr)
	// SyscallNumber reads the register carrying the syscall number.
	SyscallNumber() uintptr
	// SyscallArgument reads the i'th (0-based) syscall argument
	// register.
	SyscallArgument(i int) uintptr
	// SetSyscallReturnValue writes the syscall return-value register.
	SetSyscallReturnValue(v int64)
	// FirstArgument / SetFirstArgument access the first
	// general-purpose argument register, used both for syscall
	// argument 0 and for the page-fault upcall's faulting address
	// parameter.
	FirstArgument() uintptr
	SetFirstArgument(v uintptr)
	// Clone returns a deep copy of the frame, used when a parent's
	// register state is copied into a freshly allocated child thread
	// (process_alloc, spec §4.7 syscall 9).
	Clone() ContextFrame
	// Bytes returns the frame's fixed-size wire encoding, used by the
	// page-fault upcall to copy the saved frame verbatim onto the
	// handler stack (spec §4.3 step 2).
	Bytes() []byte
}

// ContextFrameFactory constructs a fresh context for a thread about to
// run for the first time (arm64.NewContextFrame, riscv64.NewContextFrame), grounded on ContextFrameTrait::new(pc, sp, arg,
// privileged).
type ContextFrameFactory func(pc, sp, arg uintptr, privileged bool) ContextFrame

// Package arm64 implements arch.Ops and arch.ContextFrame for ARM64,
// grounded on original_source's Aarch64ContextFrame
// (src/arch/aarch64/context_frame.rs): 31 general-purpose registers plus
// SPSR_EL1, ELR_EL1 and SP_EL0.
package arm64

import (
	"bytes"
	"encoding/binary"

	"polykernel/arch"
)

// ContextFrame is the saved register state of one ARM64 exception entry.
type ContextFrame struct {
	GPR  [31]uint64
	SPSR uint64
	ELR  uint64
	SP   uint64
}

var _ arch.ContextFrame = (*ContextFrame)(nil)

// spsrEL0t is SPSR_EL1.M = EL0t with interrupts unmasked, the reset value
// original_source's Default impl constructs for a fresh user thread.
const spsrEL0t = 0b0000

// NewContextFrame builds the initial frame for a thread about to run for
// the first time, grounded on ContextFrameTrait::new / Default.
func NewContextFrame(pc, sp, arg uintptr, privileged bool) arch.ContextFrame {
	cf := &ContextFrame{SPSR: spsrEL0t, ELR: uint64(pc), SP: uint64(sp)}
	cf.GPR[0] = uint64(arg)
	if privileged {
		// EL1h (SPSR_EL1.M = 0b0101); the DAIF mask bits stay clear.
		cf.SPSR = 0b0101
	}
	return cf
}

func (cf *ContextFrame) ExceptionPC() uintptr     { return uintptr(cf.ELR) }
func (cf *ContextFrame) SetExceptionPC(pc uintptr) { cf.ELR = uint64(pc) }
func (cf *ContextFrame) StackPointer() uintptr     { return uintptr(cf.SP) }
func (cf *ContextFrame) SetStackPointer(sp uintptr) { cf.SP = uint64(sp) }

// SyscallNumber reads x8, matching the AAPCS64 syscall-number register
// original_source's syscall_number() reads.
func (cf *ContextFrame) SyscallNumber() uintptr { return uintptr(cf.GPR[8]) }

// SyscallArgument reads x0..x7.
func (cf *ContextFrame) SyscallArgument(i int) uintptr {
	if i < 0 || i > 7 {
		panic("arm64: syscall argument index out of range")
	}
	return uintptr(cf.GPR[i])
}

func (cf *ContextFrame) SetSyscallReturnValue(v int64) { cf.GPR[0] = uint64(v) }
func (cf *ContextFrame) FirstArgument() uintptr        { return uintptr(cf.GPR[0]) }
func (cf *ContextFrame) SetFirstArgument(v uintptr)    { cf.GPR[0] = uint64(v) }

func (cf *ContextFrame) Clone() arch.ContextFrame {
	dup := *cf
	return &dup
}

// Bytes serializes the frame verbatim, fixed fields only (no interface
// values), so binary.Write encodes it correctly unlike debug/elf's
// ByteOrder-carrying FileHeader.
func (cf *ContextFrame) Bytes() []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, cf); err != nil {
		panic("arm64: context frame encoding failed: " + err.Error())
	}
	return buf.Bytes()
}

// Core implements arch.Ops for one ARM64 logical core.
type Core struct {
	id int
	// fault is the address the simulated core reports for the next
	// FaultAddress call; tests and the fault-injection path in the
	// trap dispatcher set it directly since there is no MMU here to
	// report FAR_EL1 for real.
	fault uintptr
}

var _ arch.Ops = (*Core)(nil)

func NewCore(id int) *Core { return &Core{id: id} }

func (c *Core) CoreID() int              { return c.id }
func (c *Core) WaitForEvent()            {}
func (c *Core) Nop()                     {}
func (c *Core) FaultAddress() uintptr    { return c.fault }
func (c *Core) SetFaultAddress(a uintptr) { c.fault = a }

// InvalidateTLB is a no-op here: without real hardware there is no TLB to
// shoot down, but the call site in vm still goes through this interface
// so a hosted build that does have a TLB can plug in the real
// instruction without touching vm.
func (c *Core) InvalidateTLB(va uintptr, npages int) {}

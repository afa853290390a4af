// Package riscv64 implements arch.Ops and arch.ContextFrame for RISC-V,
// grounded on original_source's Riscv64ContextFrame
// (src/arch/riscv64/context_frame.rs): 32 general-purpose registers plus
// sstatus and sepc.
package riscv64

import (
	"bytes"
	"encoding/binary"

	"polykernel/arch"
)

// ContextFrame is the saved register state of one RISC-V trap entry.
type ContextFrame struct {
	GPR     [32]uint64
	SStatus uint64
	SEPC    uint64
}

var _ arch.ContextFrame = (*ContextFrame)(nil)

// sstatusUser sets SPP=User, SPIE=1, SIE=0, matching the reset value
// original_source's Default impl builds for a fresh user thread.
const sstatusUser = uint64(1) << 5 // SPIE

// NewContextFrame builds the initial frame for a thread about to run for
// the first time, grounded on ContextFrameTrait::new / Default.
func NewContextFrame(pc, sp, arg uintptr, privileged bool) arch.ContextFrame {
	cf := &ContextFrame{SStatus: sstatusUser, SEPC: uint64(pc)}
	cf.GPR[2] = uint64(sp) // x2 = sp
	cf.GPR[10] = uint64(arg) // x10 = a0
	if privileged {
		cf.SStatus |= 1 << 8 // SPP = Supervisor
	}
	return cf
}

func (cf *ContextFrame) ExceptionPC() uintptr      { return uintptr(cf.SEPC) }
func (cf *ContextFrame) SetExceptionPC(pc uintptr) { cf.SEPC = uint64(pc) }
func (cf *ContextFrame) StackPointer() uintptr     { return uintptr(cf.GPR[2]) }
func (cf *ContextFrame) SetStackPointer(sp uintptr) { cf.GPR[2] = uint64(sp) }

// SyscallNumber reads a7 (x17), matching original_source's
// syscall_number().
func (cf *ContextFrame) SyscallNumber() uintptr { return uintptr(cf.GPR[17]) }

// SyscallArgument reads a0..a5 (x10..x15).
func (cf *ContextFrame) SyscallArgument(i int) uintptr {
	if i < 0 || i > 5 {
		panic("riscv64: syscall argument index out of range")
	}
	return uintptr(cf.GPR[i+10])
}

func (cf *ContextFrame) SetSyscallReturnValue(v int64) { cf.GPR[10] = uint64(v) }
func (cf *ContextFrame) FirstArgument() uintptr        { return uintptr(cf.GPR[10]) }
func (cf *ContextFrame) SetFirstArgument(v uintptr)    { cf.GPR[10] = uint64(v) }

func (cf *ContextFrame) Clone() arch.ContextFrame {
	dup := *cf
	return &dup
}

// Bytes serializes the frame verbatim, fixed fields only.
func (cf *ContextFrame) Bytes() []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, cf); err != nil {
		panic("riscv64: context frame encoding failed: " + err.Error())
	}
	return buf.Bytes()
}

// Core implements arch.Ops for one RISC-V hart.
type Core struct {
	id    int
	fault uintptr
}

var _ arch.Ops = (*Core)(nil)

func NewCore(id int) *Core { return &Core{id: id} }

func (c *Core) CoreID() int               { return c.id }
func (c *Core) WaitForEvent()             {}
func (c *Core) Nop()                      {}
func (c *Core) FaultAddress() uintptr     { return c.fault }
func (c *Core) SetFaultAddress(a uintptr) { c.fault = a }
func (c *Core) InvalidateTLB(va uintptr, npages int) {}

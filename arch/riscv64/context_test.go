package riscv64

import "testing"

func TestNewContextFrameSeedsRegisters(t *testing.T) {
	cf := NewContextFrame(0x4000, 0x7f00_0000_0000, 0xabc, false)
	if cf.ExceptionPC() != 0x4000 {
		t.Fatalf("pc = %#x", cf.ExceptionPC())
	}
	if cf.StackPointer() != 0x7f00_0000_0000 {
		t.Fatalf("sp = %#x", cf.StackPointer())
	}
	if cf.FirstArgument() != 0xabc {
		t.Fatalf("arg0 = %#x", cf.FirstArgument())
	}
}

func TestSyscallRegisterLayout(t *testing.T) {
	cf := &ContextFrame{}
	cf.GPR[17] = 9
	cf.GPR[10] = 111
	cf.GPR[11] = 222
	if cf.SyscallNumber() != 9 {
		t.Fatalf("syscall number = %d, want 9", cf.SyscallNumber())
	}
	if cf.SyscallArgument(0) != 111 || cf.SyscallArgument(1) != 222 {
		t.Fatal("syscall arguments misread")
	}
	ret := int64(-5)
	cf.SetSyscallReturnValue(ret)
	if cf.GPR[10] != uint64(ret) {
		t.Fatalf("return value not written to a0: %d", cf.GPR[10])
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cf := NewContextFrame(1, 2, 3, false).(*ContextFrame)
	clone := cf.Clone().(*ContextFrame)
	clone.SetExceptionPC(0x9999)
	if cf.ExceptionPC() == 0x9999 {
		t.Fatal("clone aliases the original frame")
	}
}

func TestBytesLengthIsFixed(t *testing.T) {
	cf := NewContextFrame(1, 2, 3, false).(*ContextFrame)
	b := cf.Bytes()
	want := 32*8 + 8 + 8 // GPR + SStatus + SEPC
	if len(b) != want {
		t.Fatalf("len(Bytes()) = %d, want %d", len(b), want)
	}
}

package arm64

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
	cf.GPR[8] = 7
	cf.GPR[0] = 111
	cf.GPR[1] = 222
	if cf.SyscallNumber() != 7 {
		t.Fatalf("syscall number = %d, want 7", cf.SyscallNumber())
	}
	if cf.SyscallArgument(0) != 111 || cf.SyscallArgument(1) != 222 {
		t.Fatal("syscall arguments misread")
	}
	ret := int64(-12)
	cf.SetSyscallReturnValue(ret)
	if cf.GPR[0] != uint64(ret) {
		t.Fatalf("return value not written to x0: %d", cf.GPR[0])
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
	want := 31*8 + 8 + 8 + 8 // GPR + SPSR + ELR + SP
	if len(b) != want {
		t.Fatalf("len(Bytes()) = %d, want %d", len(b), want)
	}
}

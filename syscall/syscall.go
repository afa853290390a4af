// Package syscall implements the twelve numbered kernel entry points
// (spec §4.7), grounded almost verbatim on the original implementation's
// SystemCallImpl (original_source/src/lib/syscall.rs): a lookup_pid
// helper that resolves target 0 to the caller and otherwise enforces the
// parent relationship, one function per call number, and a fixed
// negative-integer error taxonomy (spec §6 "system-call calling
// convention").
//
// mem_alloc/mem_map/ipc_send take their attribute argument as a portable
// bitmask over vm.Attribute's eight fields (EncodeAttr/DecodeAttr below)
// rather than a raw architecture PTE word: the original's
// ArchPageTableEntry::new(attr as u64) passthrough only works because
// that kernel targets one architecture at a time, but this kernel's
// whole point is running the same syscall surface unmodified over both
// arm64 and riscv64, so the wire format for a user-supplied attribute
// has to be architecture-neutral too.
package syscall

import (
	"polykernel/config"
	"polykernel/kutil"
	"polykernel/mem"
	"polykernel/percpu"
	"polykernel/proc"
	"polykernel/sched"
	"polykernel/vm"
)

// Call numbers, spec §4.7.
const (
	Putc                = 1
	GetPid              = 2
	Yield               = 3
	ProcessDestroy      = 4
	SetExceptionHandler = 5
	MemAlloc            = 6
	MemMap              = 7
	MemUnmap            = 8
	ProcessAlloc        = 9
	ThreadSetStatus     = 10
	IpcReceive          = 11
	IpcSend             = 12
)

// Error codes, spec §6.
const (
	ErrInvalidArgument = -1
	ErrOutOfProcess    = -2
	ErrOutOfMemory     = -3
	ErrPidNotFound     = -4
	ErrParentNotFound  = -5
	ErrParentMismatch  = -6
	ErrMemoryLimit     = -7
	ErrMemoryNotMapped = -8
	ErrIpcNotReceiving = -9
	ErrInternal        = -10
)

// Attribute bit positions for the portable mem_*/ipc_send attribute
// word.
const (
	attrWritable = 1 << iota
	attrUserReadable
	attrUserWritable
	attrUserExecutable
	attrKernelExecutable
	attrCopyOnWrite
	attrShared
	attrDevice
)

// EncodeAttr packs a into the portable syscall attribute word.
func EncodeAttr(a vm.Attribute) uintptr {
	var w uintptr
	if a.Writable {
		w |= attrWritable
	}
	if a.UserReadable {
		w |= attrUserReadable
	}
	if a.UserWritable {
		w |= attrUserWritable
	}
	if a.UserExecutable {
		w |= attrUserExecutable
	}
	if a.KernelExecutable {
		w |= attrKernelExecutable
	}
	if a.CopyOnWrite {
		w |= attrCopyOnWrite
	}
	if a.Shared {
		w |= attrShared
	}
	if a.Device {
		w |= attrDevice
	}
	return w
}

// DecodeAttr unpacks a portable syscall attribute word.
func DecodeAttr(w uintptr) vm.Attribute {
	return vm.Attribute{
		Writable:         w&attrWritable != 0,
		UserReadable:     w&attrUserReadable != 0,
		UserWritable:     w&attrUserWritable != 0,
		UserExecutable:   w&attrUserExecutable != 0,
		KernelExecutable: w&attrKernelExecutable != 0,
		CopyOnWrite:      w&attrCopyOnWrite != 0,
		Shared:           w&attrShared != 0,
		Device:           w&attrDevice != 0,
	}
}

// Sink is the console this kernel's putc writes to.
type Sink interface {
	Print(string)
}

// Env bundles the collaborators a syscall needs to reach: the frame
// pool and codec backing every address space, the console sink, and the
// core whose scheduler yield/ipc_receive reenter.
type Env struct {
	Pool    *mem.Pool
	Codec   vm.Codec
	Console Sink
	Core    *percpu.Core
}

func resolve(caller *proc.Process, target uintptr, checkParent bool) (*proc.Process, int64) {
	if target == 0 {
		return caller, 0
	}
	p, ok := proc.Lookup(uint16(target))
	if !ok {
		return nil, ErrPidNotFound
	}
	if checkParent {
		if p.Parent == nil {
			return nil, ErrParentNotFound
		}
		if p.Parent.PID != caller.PID {
			return nil, ErrParentMismatch
		}
	}
	return p, 0
}

func reschedule(env *Env) {
	list := make([]sched.Runnable, 0)
	for _, t := range proc.All() {
		list = append(list, t.Bind(env.Core))
	}
	env.Core.Schedule(list)
}

// Dispatch executes syscall number num with the six natural-sized
// arguments in arg, on behalf of caller/callerThread, and returns the
// natural-signed result (negative values are the error codes above).
func Dispatch(env *Env, caller *proc.Process, callerThread *proc.Thread, num uintptr, arg [6]uintptr) int64 {
	switch num {
	case Putc:
		env.Console.Print(string(rune(byte(arg[0]))))
		return 0

	case GetPid:
		return int64(caller.PID)

	case Yield:
		reschedule(env)
		return 0

	case ProcessDestroy:
		p, errc := resolve(caller, arg[0], true)
		if errc != 0 {
			return errc
		}
		proc.Destroy(p)
		return 0

	case SetExceptionHandler:
		p, errc := resolve(caller, arg[0], true)
		if errc != 0 {
			return errc
		}
		entry, sp := arg[1], arg[2]
		if entry >= config.USERLimit || sp >= config.USERLimit {
			return ErrInvalidArgument
		}
		if sp&uintptr(config.PageMask) != 0 {
			return ErrInvalidArgument
		}
		p.SetExceptionHandler(entry, sp)
		return 0

	case MemAlloc:
		p, errc := resolve(caller, arg[0], true)
		if errc != 0 {
			return errc
		}
		va := arg[1]
		if va >= config.USERLimit {
			return ErrMemoryLimit
		}
		attr := DecodeAttr(arg[2]).Filter()
		if _, err := p.AS.Map(va, attr); err != nil {
			return mapVMErr(err)
		}
		return 0

	case MemMap:
		src, errc := resolve(caller, arg[0], true)
		if errc != 0 {
			return errc
		}
		dst, errc := resolve(caller, arg[2], true)
		if errc != 0 {
			return errc
		}
		srcVA := kutil.Rounddown(arg[1], uintptr(config.PageSize))
		dstVA := kutil.Rounddown(arg[3], uintptr(config.PageSize))
		if dstVA >= config.USERLimit {
			return ErrMemoryLimit
		}
		pa, _, err := src.AS.LookupPage(srcVA)
		if err != nil {
			return ErrMemoryNotMapped
		}
		attr := DecodeAttr(arg[4]).Filter()
		if err := dst.AS.InsertPage(dstVA, pa, attr); err != nil {
			return mapVMErr(err)
		}
		return 0

	case MemUnmap:
		p, errc := resolve(caller, arg[0], true)
		if errc != 0 {
			return errc
		}
		if err := p.AS.RemovePage(arg[1]); err != nil {
			return mapVMErr(err)
		}
		return 0

	case ProcessAlloc:
		child, err := proc.Create(caller, env.Pool, env.Codec)
		if err != nil {
			return ErrOutOfProcess
		}
		// Share, don't copy-on-write: every page the parent has mapped at
		// the moment of the call is shared into the child at the same
		// address (spec §9 Open Question), leaving any actual
		// copy-on-write behavior to a subsequent user-mode fault handler.
		shareErr := caller.AS.ForEachMapped(func(va uintptr, pa mem.PhysAddr, attr vm.Attribute) error {
			attr.CopyOnWrite = false
			attr.Shared = true
			return child.AS.InsertPage(va, pa, attr)
		})
		if shareErr != nil {
			proc.Destroy(child)
			return ErrOutOfMemory
		}
		cf := callerThread.Context().Clone()
		cf.SetSyscallReturnValue(0)
		th, err := proc.NewThread(child, cf)
		if err != nil {
			proc.Destroy(child)
			return ErrOutOfProcess
		}
		th.SetStatus(proc.StatusNotRunnable)
		return int64(child.PID)

	case ThreadSetStatus:
		p, errc := resolve(caller, arg[0], true)
		if errc != 0 {
			return errc
		}
		threads := p.Threads()
		if len(threads) == 0 {
			return ErrInternal
		}
		if arg[1] != 0 {
			threads[0].SetStatus(proc.StatusRunnable)
		} else {
			threads[0].SetStatus(proc.StatusNotRunnable)
		}
		return 0

	case IpcReceive:
		caller.BeginReceive(arg[0])
		callerThread.SetStatus(proc.StatusNotRunnable)
		reschedule(env)
		return 0

	case IpcSend:
		target, errc := resolve(caller, arg[0], false)
		if errc != 0 {
			return errc
		}
		dstVA, receiving := target.Receiving()
		if !receiving {
			return ErrIpcNotReceiving
		}
		if srcVA := arg[2]; srcVA != 0 {
			pa, _, err := caller.AS.LookupPage(srcVA)
			if err != nil {
				return ErrMemoryNotMapped
			}
			attr := DecodeAttr(arg[3]).Filter()
			if err := target.AS.InsertPage(dstVA, pa, attr); err != nil {
				return mapVMErr(err)
			}
		}
		target.CompleteReceive(int(arg[1]), caller.PID)
		if threads := target.Threads(); len(threads) > 0 {
			threads[0].SetStatus(proc.StatusRunnable)
		}
		return 0

	default:
		return ErrInvalidArgument
	}
}

func mapVMErr(err error) int64 {
	switch err {
	case vm.ErrNotMapped:
		return ErrMemoryNotMapped
	case vm.ErrAlreadyMapped, vm.ErrBadAlignment:
		return ErrInvalidArgument
	case vm.ErrOutOfFrames:
		return ErrOutOfMemory
	default:
		return ErrInternal
	}
}

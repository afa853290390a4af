// Package arm64 implements vm.Codec for the ARM64 4-level, 4KiB-granule
// translation table format, grounded on original_source's
// arch/aarch64/page_table.rs (the From<PageTableEntry> for
// TableDescriptor / From<TableDescriptor> for PageTableEntry conversions)
// re-expressed as a stateless Go codec.
package arm64

import (
	"polykernel/mem"
	"polykernel/vm"
)

const (
	entriesPerTable = 512

	bitValid  = 1 << 0
	bitTable  = 1 << 1 // set on every descriptor this codec produces (table or 4K page)
	bitAF     = 1 << 10
	bitAP1    = 1 << 6  // 1: accessible from EL0 (user) as well as EL1
	bitAP2    = 1 << 7  // 1: read-only at the permitted levels
	bitPXN    = 1 << 53 // privileged execute-never
	bitUXN    = 1 << 54 // unprivileged execute-never
	bitCOW    = 1 << 55 // software-defined: copy-on-write
	bitShared = 1 << 56 // software-defined: shared mapping

	attrIdxShift = 2
	attrIdxMask  = 0x7 << attrIdxShift
	attrNormal   = 0 << attrIdxShift
	attrDevice   = 1 << attrIdxShift

	shShift       = 8
	shMask        = 0x3 << shShift
	shOuter       = 2 << shShift
	shInner       = 3 << shShift
	addressMask   = 0x0000_ffff_ffff_f000
)

// Codec is the stateless vm.Codec implementation for ARM64.
type Codec struct{}

var _ vm.Codec = Codec{}

func (Codec) Levels() int           { return 4 }
func (Codec) EntriesPerTable() int  { return entriesPerTable }
func (Codec) ShiftForLevel(level int) uint {
	return uint(39 - 9*level)
}

func (Codec) EncodeTable(pa mem.PhysAddr) uint64 {
	return uint64(pa)&addressMask | bitValid | bitTable
}

func (Codec) DecodeTable(raw uint64) (mem.PhysAddr, bool) {
	if raw&bitValid == 0 {
		return 0, false
	}
	return mem.PhysAddr(raw & addressMask), true
}

func (Codec) EncodeLeaf(attr vm.Attribute, pa mem.PhysAddr) uint64 {
	raw := uint64(pa)&addressMask | bitValid | bitTable | bitAF

	switch {
	case attr.Writable && attr.UserReadable:
		raw |= bitAP1 // user-and-kernel read/write (AP[2:1] = 01)
	case attr.Writable:
		// kernel-only read/write: AP[2:1] = 00, already the default.
	case attr.UserReadable:
		raw |= bitAP1 | bitAP2 // user read-only, both levels read-only
	default:
		raw |= bitAP2 // kernel-only read-only
	}

	if !attr.KernelExecutable {
		raw |= bitPXN
	}
	if !attr.UserExecutable {
		raw |= bitUXN
	}

	if attr.Device {
		raw |= attrDevice | shOuter
	} else {
		raw |= attrNormal | shInner
	}

	if attr.CopyOnWrite {
		raw |= bitCOW
	}
	if attr.Shared {
		raw |= bitShared
	}
	return raw
}

func (Codec) DecodeLeaf(raw uint64) (vm.Attribute, mem.PhysAddr, bool) {
	if raw&bitValid == 0 {
		return vm.Attribute{}, 0, false
	}
	ap1 := raw&bitAP1 != 0
	ap2 := raw&bitAP2 != 0

	attr := vm.Attribute{
		KernelExecutable: raw&bitPXN == 0,
		UserExecutable:   raw&bitUXN == 0,
		Device:           raw&attrIdxMask == attrDevice,
		CopyOnWrite:      raw&bitCOW != 0,
		Shared:           raw&bitShared != 0,
	}
	switch {
	case ap1 && !ap2:
		attr.Writable, attr.UserReadable, attr.UserWritable = true, true, true
	case !ap1 && !ap2:
		attr.Writable = true
	case ap1 && ap2:
		attr.UserReadable = true
	default:
		// kernel-only read-only: no bits to set.
	}
	return attr, mem.PhysAddr(raw & addressMask), true
}

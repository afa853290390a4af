// Package elfload builds a process's initial address space from an ELF
// executable image, grounded on the original implementation's load_elf
// (original_source/src/lib/elf.rs) for the per-segment page-at-a-time
// copy-and-zero-fill algorithm, using Go's debug/elf in place of the
// original's xmas_elf crate the way the teacher's chentry command
// (biscuit/src/kernel/chentry.go) reaches for debug/elf rather than a
// hand-rolled header parser.
package elfload

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"

	"polykernel/arch"
	"polykernel/arch/arm64"
	"polykernel/arch/riscv64"
	"polykernel/config"
	"polykernel/mem"
	"polykernel/proc"
	"polykernel/vm"
	vmarm64 "polykernel/vm/arm64"
	vmriscv64 "polykernel/vm/riscv64"
)

var (
	// ErrUnsupportedMachine is returned when the image's e_machine does
	// not match either supported architecture.
	ErrUnsupportedMachine = errors.New("elfload: unsupported machine type")
	// ErrNotExecutable is returned for an ELF file that is not ET_EXEC.
	ErrNotExecutable = errors.New("elfload: not an executable ELF")
	// ErrUnalignedSegment is returned when a LOAD segment's virtual
	// address is not page aligned, which load_elf's original assert
	// treats as a fatal image-format violation.
	ErrUnalignedSegment = errors.New("elfload: LOAD segment not page aligned")
)

// Machine identifies which architecture an image targets and supplies
// the vm.Codec and context-frame constructor its process should use.
type Machine struct {
	Name       string
	ELF        elf.Machine
	NewCodec   func() vm.Codec
	NewContext arch.ContextFrameFactory
}

// ARM64 and RISCV64 are the two machines the spec requires a kernel
// instance to support.
var (
	ARM64 = Machine{
		Name:       "arm64",
		ELF:        elf.EM_AARCH64,
		NewCodec:   func() vm.Codec { return vmarm64.Codec{} },
		NewContext: arm64.NewContextFrame,
	}
	RISCV64 = Machine{
		Name:       "riscv64",
		ELF:        elf.EM_RISCV,
		NewCodec:   func() vm.Codec { return vmriscv64.Codec{} },
		NewContext: riscv64.NewContextFrame,
	}
)

// Image is what Load returns: the image's entry point.
type Image struct {
	Entry uintptr
}

// Load validates img against want, walks its LOAD segments, and installs
// one mapping per page into as, grounded on load_elf's segment loop: full
// pages within file_size are copied whole, a segment's last partial page
// is copied byte-for-byte and the remainder zeroed, and any page entirely
// past file_size (but still within mem_size, i.e. .bss) is a fresh
// zeroed frame.
func Load(img []byte, want Machine, as *vm.AddressSpace) (Image, error) {
	f, err := elf.NewFile(bytes.NewReader(img))
	if err != nil {
		return Image{}, fmt.Errorf("elfload: %w", err)
	}
	if f.Type != elf.ET_EXEC {
		return Image{}, ErrNotExecutable
	}
	if f.Machine != want.ELF {
		return Image{}, ErrUnsupportedMachine
	}

	for _, ph := range f.Progs {
		if ph.Type != elf.PT_LOAD {
			continue
		}
		if err := loadSegment(img, ph, as); err != nil {
			return Image{}, err
		}
	}
	return Image{Entry: uintptr(f.Entry)}, nil
}

func loadSegment(img []byte, ph *elf.Prog, as *vm.AddressSpace) error {
	va := uintptr(ph.Vaddr)
	if va&uintptr(config.PageMask) != 0 {
		return ErrUnalignedSegment
	}
	fileSize := ph.Filesz
	memSize := ph.Memsz
	offset := ph.Off

	// Unlike load_elf's own PteAttribute::user_default() (which grants
	// every LOAD segment the same fixed permissions), this loader
	// carries PF_W/PF_X through per the program header so a read-only
	// .text segment is not left writable.
	attr := vm.Attribute{
		UserReadable:   true,
		UserWritable:   ph.Flags&elf.PF_W != 0,
		UserExecutable: ph.Flags&elf.PF_X != 0,
	}

	for i := uintptr(0); i < uintptr(memSize); i += config.PageSize {
		pageVA := va + i
		pa, err := as.Map(pageVA, attr)
		if err != nil {
			return err
		}
		page := as.Pool().TableView(pa)

		switch {
		case i >= uintptr(fileSize):
			// Entirely past the file-backed region: .bss, already
			// zeroed by a freshly allocated frame.
		case i+config.PageSize <= uintptr(fileSize):
			writePageBytes(page, img[uintptr(offset)+i:uintptr(offset)+i+config.PageSize])
		default:
			n := uintptr(fileSize) - i
			writePageBytes(page, img[uintptr(offset)+i:uintptr(offset)+i+n])
		}
	}
	return nil
}

// writePageBytes copies src into the start of page, the Go-native
// equivalent of the original's `*((dest.kva() + i) as *mut u8) =
// src[...]` raw write against its simulated little-endian word storage.
func writePageBytes(page *[512]uint64, src []byte) {
	for i, b := range src {
		word := i / 8
		shift := uint(i%8) * 8
		page[word] = page[word]&^(0xff<<shift) | uint64(b)<<shift
	}
}

// CreateFromELF implements the spec's process-creation entry point
// (§4.5 create(elf_image, arg)): allocate a fresh process and address
// space, load img into it, install a stack page below USERStackTop, and
// allocate its main thread with pc set to the image's entry point,
// sp at the stack's top, and arg carried in the first argument register,
// marked runnable.
func CreateFromELF(parent *proc.Process, pool *mem.Pool, machine Machine, img []byte, arg uintptr) (*proc.Process, error) {
	p, err := proc.Create(parent, pool, machine.NewCodec())
	if err != nil {
		return nil, err
	}
	image, err := Load(img, machine, p.AS)
	if err != nil {
		proc.Destroy(p)
		return nil, err
	}
	stackVA := uintptr(config.USERStackTop - config.PageSize)
	stackAttr := vm.Attribute{Writable: true, UserReadable: true, UserWritable: true}
	if _, err := p.AS.Map(stackVA, stackAttr); err != nil {
		proc.Destroy(p)
		return nil, err
	}
	cf := machine.NewContext(image.Entry, config.USERStackTop, arg, false)
	th, err := proc.NewThread(p, cf)
	if err != nil {
		proc.Destroy(p)
		return nil, err
	}
	th.SetStatus(proc.StatusRunnable)
	return p, nil
}

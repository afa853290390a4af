// Package vm implements the address-space layer: a per-process page-table
// tree, walked generically over whichever architecture's Codec is plugged
// in. It is grounded on the teacher's vm.Vm_t/Pmap_t (biscuit/src/vm/as.go)
// for the walk-and-install shape, and on the original implementation's
// mm::page_table::GenericPageTable (original_source/src/mm/page_table.rs)
// for the attribute/permission contract this port actually implements.
package vm

import (
	"errors"

	"polykernel/config"
	"polykernel/mem"
)

var (
	ErrNotMapped     = errors.New("vm: address not mapped")
	ErrAlreadyMapped = errors.New("vm: address already mapped")
	ErrBadAlignment  = errors.New("vm: address not page aligned")
	ErrOutOfFrames   = mem.ErrOutOfFrames
)

// Attribute is the architecture-neutral permission set carried by one
// mapping. Two bits (CopyOnWrite, Shared) have no hardware meaning and
// exist purely for the software bookkeeping original_source's
// page_table.rs keeps in its own software-defined PTE bits.
type Attribute struct {
	Writable         bool // kernel may write
	KernelExecutable bool
	UserReadable     bool
	UserWritable     bool
	UserExecutable   bool
	CopyOnWrite      bool
	Shared           bool
	Device           bool
}

// Filter strips attributes a user-mode request is never allowed to claim
// (spec §4.7: mem_map/mem_alloc force user-accessible, non-device,
// non-kernel-executable mappings), grounded on the original's
// SystemCallImpl::sys_mem_map attribute sanitation.
func (a Attribute) Filter() Attribute {
	a.Device = false
	a.KernelExecutable = false
	a.UserReadable = true
	return a
}

// Codec translates between the architecture-neutral Attribute and the
// raw bit pattern a concrete architecture's table entries use. One Codec
// exists per architecture (vm/arm64, vm/riscv64).
type Codec interface {
	// Levels returns how many page-table levels separate the root table
	// from a leaf entry (4 on arm64, 3 on riscv64 Sv39).
	Levels() int
	// EntriesPerTable returns how many entries make up one table (512
	// on both supported architectures, but kept explicit rather than
	// assumed).
	EntriesPerTable() int
	// ShiftForLevel returns the bit shift used to extract the index
	// into the table at the given level (0 = root) from a virtual
	// address.
	ShiftForLevel(level int) uint

	// EncodeTable returns the raw entry that makes a table at pa the
	// next level down from an inner (non-leaf) slot.
	EncodeTable(pa mem.PhysAddr) uint64
	// DecodeTable reports whether raw is a valid inner-table descriptor
	// and, if so, the physical address of the table it points at.
	DecodeTable(raw uint64) (pa mem.PhysAddr, ok bool)

	// EncodeLeaf returns the raw entry for a present leaf mapping of pa
	// with the given attributes.
	EncodeLeaf(attr Attribute, pa mem.PhysAddr) uint64
	// DecodeLeaf reports whether raw is a valid leaf mapping and, if so,
	// its attributes and physical address.
	DecodeLeaf(raw uint64) (attr Attribute, pa mem.PhysAddr, ok bool)
}

func pageIndex(va uintptr, codec Codec, level int) int {
	shift := codec.ShiftForLevel(level)
	mask := uintptr(codec.EntriesPerTable() - 1)
	return int((va >> shift) & mask)
}

// AddressSpace is one process's page-table tree plus the frame pool it
// draws table pages from, grounded on vm.Vm_t in the teacher.
type AddressSpace struct {
	pool  *mem.Pool
	codec Codec
	root  mem.Frame
}

// New allocates a fresh, empty top-level table and returns the address
// space that owns it.
func New(pool *mem.Pool, codec Codec) (*AddressSpace, error) {
	root, err := pool.Allocate()
	if err != nil {
		return nil, err
	}
	return &AddressSpace{pool: pool, codec: codec, root: root}, nil
}

// Root returns the physical address of the top-level table, for
// installing into the architecture's page-table base register.
func (as *AddressSpace) Root() mem.PhysAddr { return as.root }

// Pool returns the frame pool this address space draws its pages from,
// for callers (the ELF loader) that need to write a freshly mapped
// page's content directly rather than through another InsertPage.
func (as *AddressSpace) Pool() *mem.Pool { return as.pool }

func aligned(va uintptr) bool { return va&uintptr(config.PageMask) == 0 }

// walk descends the table tree for va, allocating intermediate tables
// along the way when create is true. It returns the leaf table's backing
// storage and the index into it that va addresses.
func (as *AddressSpace) walk(va uintptr, create bool) (*[512]uint64, int, error) {
	if !aligned(va) {
		return nil, 0, ErrBadAlignment
	}
	cur := as.root
	levels := as.codec.Levels()
	for level := 0; level < levels-1; level++ {
		table := as.pool.TableView(cur)
		idx := pageIndex(va, as.codec, level)
		raw := table[idx]
		next, ok := as.codec.DecodeTable(raw)
		if !ok {
			if !create {
				return nil, 0, ErrNotMapped
			}
			frame, err := as.pool.Allocate()
			if err != nil {
				return nil, 0, err
			}
			table[idx] = as.codec.EncodeTable(frame)
			next = frame
		}
		cur = next
	}
	leaf := as.pool.TableView(cur)
	idx := pageIndex(va, as.codec, levels-1)
	return leaf, idx, nil
}

// InsertPage installs a mapping from va to pa with the given attributes,
// taking a reference on pa. If va already maps pa, the attribute is
// updated in place and no new reference is taken. If va maps a different
// frame, that mapping is removed (dropping its reference) before pa is
// installed, per spec §4.2's insert_page contract.
func (as *AddressSpace) InsertPage(va uintptr, pa mem.PhysAddr, attr Attribute) error {
	leaf, idx, err := as.walk(va, true)
	if err != nil {
		return err
	}
	if _, existing, ok := as.codec.DecodeLeaf(leaf[idx]); ok {
		if existing == pa {
			leaf[idx] = as.codec.EncodeLeaf(attr, pa)
			return nil
		}
		leaf[idx] = 0
		if _, err := as.pool.DecRC(existing); err != nil {
			return err
		}
	}
	if _, err := as.pool.IncRC(pa); err != nil {
		return err
	}
	leaf[idx] = as.codec.EncodeLeaf(attr, pa)
	return nil
}

// LookupPage returns the physical address and attributes currently
// mapped at va.
func (as *AddressSpace) LookupPage(va uintptr) (mem.PhysAddr, Attribute, error) {
	leaf, idx, err := as.walk(va, false)
	if err != nil {
		return 0, Attribute{}, err
	}
	attr, pa, ok := as.codec.DecodeLeaf(leaf[idx])
	if !ok {
		return 0, Attribute{}, ErrNotMapped
	}
	return pa, attr, nil
}

// RemovePage clears the mapping at va and drops the reference it held on
// the underlying frame, freeing the frame if that was the last reference
// (spec §8 scenario 3).
func (as *AddressSpace) RemovePage(va uintptr) error {
	leaf, idx, err := as.walk(va, false)
	if err != nil {
		return err
	}
	_, pa, ok := as.codec.DecodeLeaf(leaf[idx])
	if !ok {
		return ErrNotMapped
	}
	leaf[idx] = 0
	_, err = as.pool.DecRC(pa)
	return err
}

// Map is a convenience wrapper that allocates a fresh frame and installs
// it at va in one step (used by mem_alloc and stack/handler setup).
func (as *AddressSpace) Map(va uintptr, attr Attribute) (mem.PhysAddr, error) {
	pa, err := as.pool.Allocate()
	if err != nil {
		return 0, err
	}
	if err := as.InsertPage(va, pa, attr); err != nil {
		as.pool.Free(pa)
		return 0, err
	}
	return pa, nil
}

// Unmap removes the mapping at va and, if that was the last reference to
// the underlying frame, returns it to the pool.
func (as *AddressSpace) Unmap(va uintptr) error {
	return as.RemovePage(va)
}

// RecursiveMap installs a self-referential mapping of the root table at
// the reserved recursive slot, the window through which user code may
// read its own page table (config.RecursivePTBase); the kernel's own walk
// reads tables through Pool.TableView instead, and nothing in this
// repository calls RecursiveMap. Grounded on
// original_source's RECURSIVE_MAPPING_PTE installation in
// mm::page_table::PageTableWrapper::new.
func (as *AddressSpace) RecursiveMap() error {
	leaf, idx, err := as.walk(config.RecursivePTBase, true)
	if err != nil {
		return err
	}
	leaf[idx] = as.codec.EncodeTable(as.root)
	return nil
}

// ForEachMapped walks every present leaf mapping in this address space in
// virtual-address order, calling fn with the page's address, backing
// frame, and attribute. Used by process_alloc to share the parent's
// existing mappings into a freshly created child (spec §9 Open Question:
// share, not copy-on-write). Stops and returns fn's error at the first
// failure.
func (as *AddressSpace) ForEachMapped(fn func(va uintptr, pa mem.PhysAddr, attr Attribute) error) error {
	return as.walkMapped(as.root, 0, 0, fn)
}

func (as *AddressSpace) walkMapped(frame mem.Frame, level int, vaPrefix uintptr, fn func(uintptr, mem.PhysAddr, Attribute) error) error {
	table := as.pool.TableView(frame)
	levels := as.codec.Levels()
	shift := as.codec.ShiftForLevel(level)
	if level < levels-1 {
		for idx, raw := range table {
			next, ok := as.codec.DecodeTable(raw)
			if !ok {
				continue
			}
			if err := as.walkMapped(next, level+1, vaPrefix|(uintptr(idx)<<shift), fn); err != nil {
				return err
			}
		}
		return nil
	}
	for idx, raw := range table {
		attr, pa, ok := as.codec.DecodeLeaf(raw)
		if !ok {
			continue
		}
		if err := fn(vaPrefix|(uintptr(idx)<<shift), pa, attr); err != nil {
			return err
		}
	}
	return nil
}

// Destroy releases every frame this address space still references,
// including its own table pages, grounded on vm.Vm_t.Dispose in the
// teacher.
func (as *AddressSpace) Destroy() {
	as.destroyLevel(as.root, 0)
}

func (as *AddressSpace) destroyLevel(frame mem.Frame, level int) {
	table := as.pool.TableView(frame)
	levels := as.codec.Levels()
	if level < levels-1 {
		for _, raw := range table {
			if next, ok := as.codec.DecodeTable(raw); ok {
				as.destroyLevel(next, level+1)
			}
		}
	} else {
		for _, raw := range table {
			if _, pa, ok := as.codec.DecodeLeaf(raw); ok {
				as.pool.DecRC(pa)
			}
		}
	}
	// Table pages are never shared between address spaces, so unlike
	// leaf data frames they carry no reference count: Allocate leaves
	// them at refcnt 0 and Free is the matching release.
	as.pool.Free(frame)
}

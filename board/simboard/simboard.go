// Package simboard is a deterministic software stand-in for board.Board,
// in place of real hardware discovery. The package tests in this
// repository build their frame pools with mem.NewPool directly and do not
// use it.
package simboard

import "polykernel/board"

// Board is a fixed, in-memory board.Board implementation.
type Board struct {
	MemStart uintptr
	MemPages int
	KBase    uintptr
	Cores    int
}

var _ board.Board = Board{}

// New returns a board with a modest default memory range and one core,
// enough for any single-package unit test.
func New() Board {
	return Board{
		MemStart: 0x4000_0000,
		MemPages: 4096,
		KBase:    0xffff_ff80_0000_0000,
		Cores:    1,
	}
}

func (b Board) Name() string          { return "simboard" }
func (b Board) MemoryStart() uintptr  { return b.MemStart }
func (b Board) MemoryPages() int      { return b.MemPages }
func (b Board) KernelBase() uintptr   { return b.KBase }
func (b Board) NumCores() int         { return b.Cores }

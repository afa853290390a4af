// Command ptedump disassembles the bytes captured around a faulting
// program counter, the host-side counterpart to the teacher's
// kernel/chentry.go: a small cmd/ tool that inspects a kernel build
// artifact from the host and is never linked into the kernel image
// itself. Where chentry patches an ELF entry point, ptedump reads a raw
// memory dump taken around a ContextFrame's saved PC (written by a
// debugging hook, not part of this module) and prints each instruction
// ARM64 would decode starting from that dump's base address.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"golang.org/x/arch/arm64/arm64asm"
)

func usage(me string) {
	fmt.Printf("%s <dump-file> <base-addr>\n\nDisassemble a raw memory dump taken around a faulting PC.\n", me)
	os.Exit(1)
}

func main() {
	if len(os.Args) != 3 {
		usage(os.Args[0])
	}
	base, err := strconv.ParseUint(os.Args[2], 0, 64)
	if err != nil {
		log.Fatalf("invalid base address %q: %v", os.Args[2], err)
	}

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}

	const instWidth = 4 // every ARM64 instruction is one 32-bit word.
	for off := 0; off+instWidth <= len(raw); off += instWidth {
		inst, err := arm64asm.Decode(raw[off : off+instWidth])
		if err != nil {
			fmt.Printf("%#016x\t(bad: %v)\n", base+uint64(off), err)
			continue
		}
		fmt.Printf("%#016x\t%s\n", base+uint64(off), inst.String())
	}
}

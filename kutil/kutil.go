// Package kutil holds the handful of generic integer helpers shared by
// address-space and syscall arithmetic, adapted from the teacher's
// util.Int/util.Rounddown/util.Roundup (biscuit/src/util/util.go) — kept
// as the teacher's own generic constraint rather than reintroduced as
// interface{} since both predate and postdate this module target
// go1.24. The teacher's Readn/Writen unsafe byte-buffer accessors have
// no counterpart here: every wire format this kernel parses (ELF
// headers, page-table words) already goes through debug/elf or explicit
// shift-and-mask code, so there is no raw device-register buffer left to
// read through them.
package kutil

// Int is satisfied by every built-in integer type.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Min returns the smaller of a and b.
func Min[T Int](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Rounddown aligns v down to the nearest multiple of b.
func Rounddown[T Int](v, b T) T {
	return v - (v % b)
}

// Roundup aligns v up to the nearest multiple of b.
func Roundup[T Int](v, b T) T {
	return Rounddown(v+b-1, b)
}

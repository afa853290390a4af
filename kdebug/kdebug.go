// Package kdebug holds kernel-panic diagnostics, grounded on the
// teacher's caller.Callerdump (biscuit/src/caller/caller.go).
package kdebug

import (
	"fmt"
	"runtime"
)

// Callerdump returns the call stack starting at the given skip depth as a
// string, one frame per line, invoked from the trap dispatcher's
// kernel-synchronous-fault panic path (spec §4.3: a synchronous trap
// taken while already in the kernel is fatal).
func Callerdump(skip int) string {
	s := ""
	for i := skip; ; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", file, line)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", file, line)
		}
	}
	return s
}

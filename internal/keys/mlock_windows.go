//go:build windows

package keys

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// lockMemory pins buf in the working set so key material is not paged out.
func lockMemory(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	return windows.VirtualLock(uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf))) == nil
}

func unlockMemory(buf []byte) {
	if len(buf) > 0 {
		_ = windows.VirtualUnlock(uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	}
}

//go:build !windows

package keys

import "golang.org/x/sys/unix"

// lockMemory pins buf so key material is not swapped to disk.
// It reports false when the OS refuses (RLIMIT_MEMLOCK, containers).
func lockMemory(buf []byte) bool {
	return len(buf) > 0 && unix.Mlock(buf) == nil
}

func unlockMemory(buf []byte) {
	if len(buf) > 0 {
		_ = unix.Munlock(buf)
	}
}

//go:build linux

package constellation

import "golang.org/x/sys/unix"

// directIOFlag returns unix.O_DIRECT when direct I/O was requested, grounded
// on dsmmcken-dh-cli's raw unix-syscall-flag pattern for Linux-specific I/O
// behavior.
func directIOFlag(enabled bool) int {
	if !enabled {
		return 0
	}
	return unix.O_DIRECT
}

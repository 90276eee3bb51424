//go:build !linux

package aio

import "fmt"

// newAIOEngine is unavailable outside Linux: the AIO syscalls this engine
// wraps (io_setup/io_submit/io_getevents/io_destroy) are Linux-specific.
func newAIOEngine(queueDepth uint32) (Engine, error) {
	return nil, fmt.Errorf("aio: kernel AIO engine is only available on linux")
}

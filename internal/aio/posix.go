package aio

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// posixEngine issues every request as an ordinary blocking pread/pwrite/
// fsync syscall, completing synchronously inside Submit; Wait is then a
// no-op that drains whatever Submit already buffered. This is the baseline
// engine and the one every platform supports.
//
// Requests operate on the caller's raw fd directly via golang.org/x/sys/unix
// rather than wrapping it in an *os.File: os.NewFile would hand back a
// second *os.File over the same descriptor, and that wrapper's finalizer
// could close the underlying fd out from under the caller's own *os.File
// once it's garbage collected.
type posixEngine struct {
	mu      sync.Mutex
	pending []Event
}

func newPosixEngine() *posixEngine {
	return &posixEngine{}
}

func (e *posixEngine) Submit(reqs []Request) (int, error) {
	done := make([]Event, 0, len(reqs))
	for _, r := range reqs {
		var n int
		var err error
		switch r.opcode {
		case CmdPread:
			n, err = unix.Pread(r.fd, r.buffer, r.offset)
		case CmdPwrite:
			n, err = unix.Pwrite(r.fd, r.buffer, r.offset)
		case CmdFsync, CmdFdsync:
			err = unix.Fsync(r.fd)
		case CmdNoop, CmdPoll:
			// no-op: nothing to complete synchronously
		}
		result := int64(n)
		if err != nil {
			result = -1
		}
		done = append(done, Event{Tag: r.tag, Result: result})
	}

	e.mu.Lock()
	e.pending = append(e.pending, done...)
	e.mu.Unlock()
	return len(reqs), nil
}

func (e *posixEngine) Wait(max int) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if max > len(e.pending) {
		max = len(e.pending)
	}
	out := e.pending[:max]
	e.pending = e.pending[max:]
	return out, nil
}

// Cancel always fails: Submit completes every request synchronously before
// returning, so by the time a caller could name a request to cancel it has
// already run to completion.
func (e *posixEngine) Cancel(req Request) (Request, error) {
	return req, fmt.Errorf("aio: request with tag %d already completed", req.tag)
}

func (e *posixEngine) Close() error { return nil }

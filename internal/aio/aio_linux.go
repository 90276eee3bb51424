//go:build linux

package aio

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// iocbCmd values, matching Linux's include/uapi/linux/aio_abi.h.
const (
	iocbCmdPread   = 0
	iocbCmdPwrite  = 1
	iocbCmdFsync   = 2
	iocbCmdFdsync  = 3
	iocbCmdPoll    = 5
	iocbCmdNoop    = 6
	iocbFlagResfd  = 1 << 0
)

// iocb mirrors struct iocb from aio_abi.h (64-bit layout).
type iocb struct {
	data       uint64
	key        uint32
	rwFlags    int32
	lioOpcode  uint16
	reqPrio    int16
	fd         int32
	buf        uint64
	nbytes     uint64
	offset     int64
	reserved2  uint64
	flags      uint32
	resfd      uint32
}

// ioEvent mirrors struct io_event from aio_abi.h.
type ioEvent struct {
	data uint64
	obj  uint64
	res  int64
	res2 int64
}

// aioContextT is the opaque kernel AIO context handle (aio_context_t).
type aioContextT uint64

// aioEngine drives kernel AIO via raw syscalls, grounded on
// original_source/aio-rs/src/lib.rs's aio_setup/aio_submit/aio_getevents/
// aio_destroy wrapper functions, translated from the Rust FFI bindings to
// direct unix.Syscall6 calls in the style of
// dsmmcken-dh-cli/src/internal/vm/uffd_linux.go.
type aioEngine struct {
	ctx        aioContextT
	maxEvents  uint32
	bufPointer map[uint64][]byte // keeps Go buffers alive while in flight
	pendingCB  map[uint64]*iocb  // the iocb io_cancel needs to identify a request
}

func newAIOEngine(queueDepth uint32) (*aioEngine, error) {
	var ctx aioContextT
	r1, _, errno := unix.Syscall(unix.SYS_IO_SETUP, uintptr(queueDepth), uintptr(unsafe.Pointer(&ctx)), 0)
	if errno != 0 {
		return nil, fmt.Errorf("aio: io_setup: %w", errno)
	}
	_ = r1
	return &aioEngine{
		ctx:        ctx,
		maxEvents:  queueDepth,
		bufPointer: make(map[uint64][]byte),
		pendingCB:  make(map[uint64]*iocb),
	}, nil
}

func (e *aioEngine) Submit(reqs []Request) (int, error) {
	if len(reqs) == 0 {
		return 0, nil
	}
	cbs := make([]*iocb, len(reqs))
	for i, r := range reqs {
		cb := &iocb{
			data:      r.tag,
			lioOpcode: opcodeToIOCB(r.opcode),
			fd:        int32(r.fd),
			offset:    r.offset,
		}
		if len(r.buffer) > 0 {
			cb.buf = uint64(uintptr(unsafe.Pointer(&r.buffer[0])))
			cb.nbytes = uint64(len(r.buffer))
			e.bufPointer[r.tag] = r.buffer
		}
		e.pendingCB[r.tag] = cb
		cbs[i] = cb
	}

	pointers := make([]uintptr, len(cbs))
	for i, cb := range cbs {
		pointers[i] = uintptr(unsafe.Pointer(cb))
	}

	n, _, errno := unix.Syscall(unix.SYS_IO_SUBMIT, uintptr(e.ctx), uintptr(len(pointers)), uintptr(unsafe.Pointer(&pointers[0])))
	if errno != 0 {
		return 0, fmt.Errorf("aio: io_submit: %w", errno)
	}
	return int(n), nil
}

func (e *aioEngine) Wait(max int) ([]Event, error) {
	if max <= 0 {
		return nil, nil
	}
	events := make([]ioEvent, max)
	n, _, errno := unix.Syscall6(unix.SYS_IO_GETEVENTS, uintptr(e.ctx), uintptr(1), uintptr(max),
		uintptr(unsafe.Pointer(&events[0])), 0, 0)
	if errno != 0 {
		return nil, fmt.Errorf("aio: io_getevents: %w", errno)
	}

	out := make([]Event, 0, n)
	for i := 0; i < int(n); i++ {
		out = append(out, Event{Tag: events[i].data, Result: events[i].res})
		delete(e.bufPointer, events[i].data)
		delete(e.pendingCB, events[i].data)
	}
	return out, nil
}

// Cancel issues io_cancel against the iocb submitted under req.tag. Per
// io_cancel(2), success here means the request was cancelled and will not
// generate a completion event via Wait; EINPROGRESS means the kernel
// could not stop it in time and its event should still be reaped normally.
func (e *aioEngine) Cancel(req Request) (Request, error) {
	cb, ok := e.pendingCB[req.tag]
	if !ok {
		return req, fmt.Errorf("aio: no in-flight request with tag %d", req.tag)
	}

	var res ioEvent
	_, _, errno := unix.Syscall(unix.SYS_IO_CANCEL, uintptr(e.ctx),
		uintptr(unsafe.Pointer(cb)), uintptr(unsafe.Pointer(&res)))
	if errno != 0 {
		return req, fmt.Errorf("aio: io_cancel: %w", errno)
	}

	delete(e.pendingCB, req.tag)
	delete(e.bufPointer, req.tag)
	return req, nil
}

func (e *aioEngine) Close() error {
	_, _, errno := unix.Syscall(unix.SYS_IO_DESTROY, uintptr(e.ctx), 0, 0)
	if errno != 0 {
		return fmt.Errorf("aio: io_destroy: %w", errno)
	}
	return nil
}

func opcodeToIOCB(c Cmd) uint16 {
	switch c {
	case CmdPread:
		return iocbCmdPread
	case CmdPwrite:
		return iocbCmdPwrite
	case CmdFsync:
		return iocbCmdFsync
	case CmdFdsync:
		return iocbCmdFdsync
	case CmdPoll:
		return iocbCmdPoll
	default:
		return iocbCmdNoop
	}
}

// Package inspector collects per-worker throughput counters during a write
// or verify phase and consolidates them into a single global view, using
// the same atomic-counter idiom as tinySQL's ConcurrencyStats generalized
// from read/write/queue counters to per-worker page/byte/failure counters.
package inspector

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/defghij/diskxerciser/internal/xerr"
)

// WorkerStats is one worker goroutine's running totals. Every field is an
// independent atomic counter, but each slot also carries its own spin lock
// so a caller can serialize a read-modify-write across a field (or ask for
// one without blocking) rather than relying on the plain Add being
// race-free by itself.
type WorkerStats struct {
	PagesWritten  atomic.Uint64
	PagesVerified atomic.Uint64
	PagesFailed   atomic.Uint64
	BytesMoved    atomic.Uint64

	lock spinLock
}

// spinLock is a minimal test-and-set lock: Lock spins until it acquires,
// TryLock fails immediately if already held. It exists to give WorkerStats a
// blocking and a non-blocking update path without pulling in sync.Mutex's
// heavier, OS-assisted contention handling for what is at most a handful of
// colliding goroutines per slot.
type spinLock struct {
	held atomic.Bool
}

func (l *spinLock) Lock() {
	for !l.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (l *spinLock) TryLock() bool {
	return l.held.CompareAndSwap(false, true)
}

func (l *spinLock) Unlock() {
	l.held.Store(false)
}

// Update blocks, spinning if necessary, until it can add delta to field and
// then does so. field must be one of w's own counters.
func (w *WorkerStats) Update(field *atomic.Uint64, delta uint64) {
	w.lock.Lock()
	field.Add(delta)
	w.lock.Unlock()
}

// TryUpdate is Update's non-blocking counterpart: if another update on this
// slot is already in flight it returns a Busy-classified error instead of
// spinning for it.
func (w *WorkerStats) TryUpdate(field *atomic.Uint64, delta uint64) error {
	if !w.lock.TryLock() {
		return xerr.New("inspector.TryUpdate", xerr.KindBusy, nil)
	}
	defer w.lock.Unlock()
	field.Add(delta)
	return nil
}

// Snapshot is an immutable, consolidated view at one point in time.
type Snapshot struct {
	PagesWritten  uint64
	PagesVerified uint64
	PagesFailed   uint64
	BytesMoved    uint64
}

// Inspector holds one WorkerStats slot per worker plus a consolidated
// global slot, and serializes consolidation so concurrent Flush calls don't
// race each other.
type Inspector struct {
	mu      sync.Mutex
	workers []*WorkerStats
	global  Snapshot
	printer *message.Printer
}

// New allocates an Inspector sized for n workers.
func New(n int) *Inspector {
	workers := make([]*WorkerStats, n)
	for i := range workers {
		workers[i] = &WorkerStats{}
	}
	return &Inspector{
		workers: workers,
		printer: message.NewPrinter(language.English),
	}
}

// Worker returns the counter slot for worker index i. Callers update it
// directly with atomic adds as they process work, with no further
// synchronization required.
func (ins *Inspector) Worker(i int) *WorkerStats { return ins.workers[i] }

// Flush blocks until it can fold every worker's current counters into the
// global snapshot, then returns the result. Safe for concurrent callers.
func (ins *Inspector) Flush() Snapshot {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	var s Snapshot
	for _, w := range ins.workers {
		s.PagesWritten += w.PagesWritten.Load()
		s.PagesVerified += w.PagesVerified.Load()
		s.PagesFailed += w.PagesFailed.Load()
		s.BytesMoved += w.BytesMoved.Load()
	}
	ins.global = s
	return s
}

// TryFlush is the non-blocking variant: it returns an empty Snapshot and
// false if another Flush/TryFlush is already in progress, instead of
// waiting.
func (ins *Inspector) TryFlush() (Snapshot, bool) {
	if !ins.mu.TryLock() {
		return Snapshot{}, false
	}
	defer ins.mu.Unlock()

	var s Snapshot
	for _, w := range ins.workers {
		s.PagesWritten += w.PagesWritten.Load()
		s.PagesVerified += w.PagesVerified.Load()
		s.PagesFailed += w.PagesFailed.Load()
		s.BytesMoved += w.BytesMoved.Load()
	}
	ins.global = s
	return s, true
}

// FormatBytes renders a byte count with locale-aware thousands separators,
// e.g. "1,048,576 bytes".
func (ins *Inspector) FormatBytes(n uint64) string {
	return ins.printer.Sprintf("%d bytes", n)
}

// String renders a human-readable one-line summary of a Snapshot.
func (s Snapshot) String() string {
	return fmt.Sprintf("written=%d verified=%d failed=%d bytes=%d",
		s.PagesWritten, s.PagesVerified, s.PagesFailed, s.BytesMoved)
}

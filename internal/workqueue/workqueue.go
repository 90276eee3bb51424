// Package workqueue implements the two work-distribution disciplines worker
// goroutines pull units of work from: a plain fetch-and-add cursor over a
// fixed (file, page-within-file) grid, and a compare-and-swap cursor
// driven by an arbitrary successor function for strided or non-contiguous
// traversal.
//
// Both are lock-free: every take_work call resolves with at most one atomic
// RMW (fetch-add) or a bounded CAS retry loop, never a mutex.
package workqueue

import "sync/atomic"

// Queue is the work distribution used for the write/verify phases: a
// monotonic counter over [0, capacity), each TakeWork call reserving the next
// `step` units and reinterpreting the reservation as a (page, book) pair.
type Queue struct {
	current  atomic.Uint64
	capacity uint64
	window   uint64
	step     uint64
	fcount   uint64
}

// New builds a Queue over capacity total units, handing out step units per
// take_work call, reinterpreted modulo window. capacity must equal
// fcount*window for some file count fcount; New derives fcount from that
// relationship since callers always construct capacity that way.
func New(capacity, step, window uint64) *Queue {
	var fcount uint64
	if window != 0 {
		fcount = capacity / window
	}
	return &Queue{capacity: capacity, window: window, step: step, fcount: fcount}
}

// Capacity returns the total number of units this queue distributes.
func (q *Queue) Capacity() uint64 { return q.capacity }

// Step returns the number of units reserved per TakeWork call.
func (q *Queue) Step() uint64 { return q.step }

// TakeWork reserves the next `step` units and returns (pageInChapter,
// fileIndex) derived from the reservation, where pageInChapter is the page
// index within file fileIndex, plus ok=false once the queue is
// exhausted. Matches original_source/src/main.rs's WorkQueue::take_work
// exactly: work = fetch_add(step); (work % window, work / window), stopping
// at the first of its three exhaustion checks (page*book >= capacity,
// book >= fcount, page >= pcount) to hold.
func (q *Queue) TakeWork() (pageInChapter, fileIndex uint64, ok bool) {
	work := q.current.Add(q.step) - q.step
	pageInChapter, fileIndex = work%q.window, work/q.window
	if pageInChapter*fileIndex >= q.capacity {
		return 0, 0, false
	}
	if fileIndex >= q.fcount {
		return 0, 0, false
	}
	if pageInChapter >= q.window {
		return 0, 0, false
	}
	return pageInChapter, fileIndex, true
}

// SuccessorFunc computes the next cursor value given the current one, or
// reports false when no further work exists (e.g. strided/non-contiguous
// traversal orders).
type SuccessorFunc func(current uint64) (next uint64, ok bool)

// CASQueue is a monotonic cursor whose advance rule is an arbitrary
// successor function, applied via compare-and-swap rather than fetch-add —
// grounded on original_source/src/queue.rs's Queue, generalized beyond a
// fixed step so callers can express arbitrary traversal orders (every-other
// page, reverse, etc.) without a new queue type per order.
type CASQueue struct {
	current    atomic.Uint64
	lowerBound uint64
	upperBound uint64
	next       SuccessorFunc
}

// NewCAS builds a CASQueue starting at lowerBound (inclusive), bounded above
// by upperBound (exclusive), advancing via next.
func NewCAS(lowerBound, upperBound uint64, next SuccessorFunc) *CASQueue {
	q := &CASQueue{lowerBound: lowerBound, upperBound: upperBound, next: next}
	q.current.Store(lowerBound)
	return q
}

// TakeWork reserves and returns the current cursor value, then attempts to
// advance it via the successor function under CAS; retries on contention.
// Returns ok=false once the successor function or bounds are exhausted.
func (q *CASQueue) TakeWork() (work uint64, ok bool) {
	for {
		current := q.current.Load()
		if q.upperBound <= current {
			return 0, false
		}
		next, more := q.next(current)
		if !more {
			return 0, false
		}
		if next <= q.lowerBound {
			return 0, false
		}
		if q.current.CompareAndSwap(current, next) {
			return current, true
		}
	}
}

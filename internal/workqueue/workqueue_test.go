package workqueue

import (
	"sync"
	"testing"
)

func TestQueueTakeWorkPartitionsWindow(t *testing.T) {
	const window, step, fileCount = 4, 1, 3
	q := New(window*fileCount, step, window)

	seen := make(map[[2]uint64]bool)
	for {
		page, file, ok := q.TakeWork()
		if !ok {
			break
		}
		key := [2]uint64{page, file}
		if seen[key] {
			t.Fatalf("unit (page=%d file=%d) handed out twice", page, file)
		}
		seen[key] = true
	}
	if len(seen) == 0 {
		t.Fatal("expected at least one unit of work")
	}
}

func TestQueueStopsExactlyAtCapacityBoundary(t *testing.T) {
	// fcount=4, window=8, step=2, capacity=32: the fetch-add sequence lands
	// exactly on work=32 (page=0, file=4), which is out of range for file
	// even though page*file==0 < capacity — the fileIndex>=fcount guard
	// must catch this, not just the page*file product check.
	const fcount, window, step = 4, 8, 2
	q := New(fcount*window, step, window)

	count := 0
	for {
		page, file, ok := q.TakeWork()
		if !ok {
			break
		}
		if file >= fcount || page >= window {
			t.Fatalf("TakeWork returned out-of-range unit page=%d file=%d", page, file)
		}
		count++
	}
	want := fcount * window / step
	if count != want {
		t.Fatalf("handed out %d units, want %d", count, want)
	}
}

func TestQueueConcurrentNoDuplicates(t *testing.T) {
	const window, step, fileCount = 16, 1, 16
	q := New(window*fileCount, step, window)

	var mu sync.Mutex
	seen := make(map[[2]uint64]int)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				page, file, ok := q.TakeWork()
				if !ok {
					return
				}
				mu.Lock()
				seen[[2]uint64{page, file}]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for k, n := range seen {
		if n != 1 {
			t.Fatalf("unit %v handed out %d times, want 1", k, n)
		}
	}
}

func TestCASQueueMonotonicSuccessor(t *testing.T) {
	q := NewCAS(0, 10, func(cur uint64) (uint64, bool) { return cur + 2, true })

	var got []uint64
	for {
		w, ok := q.TakeWork()
		if !ok {
			break
		}
		got = append(got, w)
	}
	want := []uint64{0, 2, 4, 6, 8}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCASQueueExhaustedSuccessorStops(t *testing.T) {
	calls := 0
	q := NewCAS(0, 100, func(cur uint64) (uint64, bool) {
		calls++
		if calls > 3 {
			return 0, false
		}
		return cur + 1, true
	})

	n := 0
	for {
		if _, ok := q.TakeWork(); !ok {
			break
		}
		n++
	}
	if n != 3 {
		t.Fatalf("took %d units, want 3", n)
	}
}

func TestCASQueueConcurrentNoDuplicates(t *testing.T) {
	q := NewCAS(0, 1000, func(cur uint64) (uint64, bool) { return cur + 1, true })

	var mu sync.Mutex
	seen := make(map[uint64]int)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				w, ok := q.TakeWork()
				if !ok {
					return
				}
				mu.Lock()
				seen[w]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for k, n := range seen {
		if n != 1 {
			t.Fatalf("unit %d handed out %d times, want 1", k, n)
		}
	}
}

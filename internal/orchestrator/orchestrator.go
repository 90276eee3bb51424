// Package orchestrator sequences one exerciser run: build the constellation,
// instantiate it, spawn worker goroutines for the write phase, join them,
// run the optional supplemental phases (mutation workload, fault injection),
// do the same spawn/join for the verify phase, then the optional destroy.
//
// The phase structure is grounded on original_source/src/main.rs's
// single_threaded_write/multi_threaded_write/multi_threaded_read functions;
// the worker-pool spawn/join style follows
// internal/storage/concurrency.go's WorkerPool goroutine-per-worker loop.
package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/defghij/diskxerciser/internal/aio"
	"github.com/defghij/diskxerciser/internal/config"
	"github.com/defghij/diskxerciser/internal/constellation"
	"github.com/defghij/diskxerciser/internal/inspector"
	"github.com/defghij/diskxerciser/internal/workqueue"
	"github.com/defghij/diskxerciser/internal/xchapter"
	"github.com/defghij/diskxerciser/internal/xerr"
	"github.com/defghij/diskxerciser/internal/xlog"
	"github.com/defghij/diskxerciser/internal/xpage"
)

// Result summarizes one completed run, returned to the CLI for exit-code
// mapping and to internal/history for persistence.
type Result struct {
	PagesWritten  uint64
	PagesVerified uint64
	PagesFailed   uint64
	BytesMoved    uint64
	Failures      []xerr.ValidationFailure
	Duration      time.Duration
}

// Orchestrator drives a single Constellation through its full phase
// sequence for one run.
type Orchestrator struct {
	cfg        config.Config
	cs         *constellation.Constellation
	log        *xlog.Logger
	engineKind aio.EngineKind
	queueDepth uint32
}

// New builds an Orchestrator. It validates cfg, constructs the
// Constellation descriptor (no filesystem I/O yet), and resolves the I/O
// engine kind the worker loops will use.
func New(cfg config.Config, log *xlog.Logger) (*Orchestrator, error) {
	if log == nil {
		log = xlog.New(xlog.ParseLevel(""))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w, err := xpage.WordsForPageSize(cfg.PageSize)
	if err != nil {
		return nil, err
	}

	cs, err := constellation.New(constellation.Config{
		Roots:         cfg.Roots,
		DirPrefix:     cfg.DirPrefix,
		DirCount:      cfg.DirCount,
		FilePrefix:    cfg.FilePrefix,
		FilesPerDir:   cfg.FilesPerDir,
		PageSize:      cfg.PageSize,
		PageCount:     cfg.PageCount,
		Options:       constellation.Options{DirectIO: cfg.DirectIO},
		DropOnRelease: cfg.DestroyOnExit,
	}, log)
	if err != nil {
		return nil, err
	}

	engineKind, err := aio.ParseEngineKind(cfg.Engine)
	if err != nil {
		return nil, xerr.New("orchestrator.New", xerr.KindInvalidArgument, err)
	}

	const queueDepth = 4 // each worker only ever has one request in flight at a time

	// Probe-construct the engine once so a bad -engine value (or a kernel
	// that rejects io_setup) is caught at startup, not mid-run; the probe
	// is closed immediately since the worker loops each open their own
	// engine instance per goroutine — sharing one engine across concurrent
	// workers would race on its internal completion bookkeeping.
	probe, err := aio.NewEngine(engineKind, queueDepth)
	if err != nil {
		return nil, err
	}
	if err := probe.Close(); err != nil {
		return nil, err
	}

	_ = w // W is re-derived per worker chapter below; validated here for an early error.

	return &Orchestrator{cfg: cfg, cs: cs, log: log, engineKind: engineKind, queueDepth: queueDepth}, nil
}

// Run executes the full phase sequence once and returns its summary.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	start := time.Now()

	if err := o.cs.Instantiate(); err != nil {
		return Result{}, err
	}

	ins := inspector.New(o.cfg.Workers)

	if err := o.runPhase(ctx, ins, phaseWrite); err != nil {
		return Result{}, err
	}

	// Mutation and fault-injection, when enabled, run between the write and
	// verify phases: the verify phase is what's meant to observe their
	// effect (a genuine mutation should still validate; an injected fault
	// should not).
	if o.cfg.MutateFraction > 0 {
		if err := o.runMutatePhase(ctx); err != nil {
			return Result{}, err
		}
	}
	if o.cfg.InjectFaults > 0 {
		if err := o.injectFaults(o.cfg.InjectFaults); err != nil {
			return Result{}, err
		}
	}

	var failures []xerr.ValidationFailure
	if err := o.runVerifyPhase(ctx, ins, &failures); err != nil {
		return Result{}, err
	}

	o.cs.Release()

	snap := ins.Flush()
	snap.PagesFailed = uint64(len(failures))
	return Result{
		PagesWritten:  snap.PagesWritten,
		PagesVerified: snap.PagesVerified,
		PagesFailed:   snap.PagesFailed,
		BytesMoved:    snap.BytesMoved,
		Failures:      failures,
		Duration:      time.Since(start),
	}, nil
}

type phaseKind int

const (
	phaseWrite phaseKind = iota
	phaseVerify
)

// runPhase spawns cfg.Workers goroutines pulling from a shared Queue
// covering the whole constellation's page space, each writing its assigned
// pages through a reusable Chapter.
func (o *Orchestrator) runPhase(ctx context.Context, ins *inspector.Inspector, kind phaseKind) error {
	fcount := o.cs.Count()
	pcount := o.cs.PagesPerFile()
	w, err := xpage.WordsForPageSize(o.cfg.PageSize)
	if err != nil {
		return err
	}

	q := workqueue.New(fcount*pcount, uint64(o.cfg.ChapterSize), pcount)

	var wg sync.WaitGroup
	errs := make(chan error, o.cfg.Workers)

	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			chapter := xchapter.New(o.cfg.ChapterSize, w)
			stats := ins.Worker(worker)

			engine, err := aio.NewEngine(o.engineKind, o.queueDepth)
			if err != nil {
				errs <- err
				return
			}
			defer engine.Close()

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				page, file, ok := q.TakeWork()
				if !ok {
					return
				}

				f, err := o.cs.Open(file, false, true)
				if err != nil {
					errs <- err
					return
				}

				start := page
				end := start + uint64(o.cfg.ChapterSize)
				if end > pcount {
					f.Close()
					continue
				}

				chapter.Zeroize()
				for p := start; p < end; p++ {
					np := xpage.New(o.cfg.Seed, file, p, w)
					chapter.SetPage(int(p-start), np)
				}

				if err := submitAndWait(ctx, engine, int(f.Fd()), aio.CmdPwrite,
					int64(start)*int64(chapter.PageBytes()), chapter.BytesAll()); err != nil {
					f.Close()
					errs <- xerr.New("orchestrator.runPhase", xerr.KindIOError, err)
					return
				}
				if err := submitAndWait(ctx, engine, int(f.Fd()), aio.CmdFsync, 0, nil); err != nil {
					f.Close()
					errs <- xerr.New("orchestrator.runPhase", xerr.KindIOError, err)
					return
				}
				f.Close()

				stats.Update(&stats.PagesWritten, uint64(o.cfg.ChapterSize))
				stats.Update(&stats.BytesMoved, uint64(chapter.ByteCount()))
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runVerifyPhase mirrors runPhase's traversal but reads pages back and
// self-validates each one, collecting failures rather than aborting — a
// verification failure is counted, not fatal.
func (o *Orchestrator) runVerifyPhase(ctx context.Context, ins *inspector.Inspector, failures *[]xerr.ValidationFailure) error {
	fcount := o.cs.Count()
	pcount := o.cs.PagesPerFile()
	w, err := xpage.WordsForPageSize(o.cfg.PageSize)
	if err != nil {
		return err
	}

	q := workqueue.New(fcount*pcount, uint64(o.cfg.ChapterSize), pcount)

	var wg sync.WaitGroup
	var mu sync.Mutex
	errs := make(chan error, o.cfg.Workers)

	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			chapter := xchapter.New(o.cfg.ChapterSize, w)
			stats := ins.Worker(worker)

			engine, err := aio.NewEngine(o.engineKind, o.queueDepth)
			if err != nil {
				errs <- err
				return
			}
			defer engine.Close()

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				page, file, ok := q.TakeWork()
				if !ok {
					return
				}

				start := page
				end := start + uint64(o.cfg.ChapterSize)
				if end > pcount {
					continue
				}

				f, err := o.cs.Open(file, true, false)
				if err != nil {
					errs <- err
					return
				}

				buf := chapter.MutableBytesAll()
				err = submitAndWait(ctx, engine, int(f.Fd()), aio.CmdPread, int64(start)*int64(chapter.PageBytes()), buf)
				f.Close()
				if err != nil {
					errs <- xerr.New("orchestrator.runVerifyPhase", xerr.KindIOError, fmt.Errorf("short read on file %d page %d: %w", file, page, err))
					return
				}

				for p := start; p < end; p++ {
					pg := chapter.Page(int(p - start))
					if pg.IsValid() {
						stats.Update(&stats.PagesVerified, 1)
						continue
					}
					s, fid, pid, m := pg.GetMetadata()
					mu.Lock()
					*failures = append(*failures, xerr.ValidationFailure{
						File: file, Page: p,
						ExpectedSeed: o.cfg.Seed, ExpectedFile: file, ExpectedPage: p,
						ActualSeed: s, ActualFile: fid, ActualPage: pid, ActualMutation: m,
					})
					mu.Unlock()
				}
				stats.Update(&stats.BytesMoved, uint64(chapter.ByteCount()))
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runMutatePhase implements the opt-in mutation-workload phase: a random
// MutateFraction of pages are mutated in place after the write phase, so a
// subsequent verify pass can observe mutation-driven payload changes still
// validating correctly.
func (o *Orchestrator) runMutatePhase(ctx context.Context) error {
	fcount := o.cs.Count()
	pcount := o.cs.PagesPerFile()
	w, err := xpage.WordsForPageSize(o.cfg.PageSize)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(int64(o.cfg.Seed)))
	for file := uint64(0); file < fcount; file++ {
		f, err := o.cs.Open(file, true, true)
		if err != nil {
			return err
		}
		for page := uint64(0); page < pcount; page++ {
			if rng.Float64() > o.cfg.MutateFraction {
				continue
			}
			buf := make([]byte, xpage.Bytes(w))
			if _, err := f.ReadAt(buf, int64(page)*int64(len(buf))); err != nil {
				f.Close()
				return xerr.New("orchestrator.runMutatePhase", xerr.KindIOError, err)
			}
			pg, err := xpage.Unmarshal(buf, w)
			if err != nil {
				f.Close()
				return err
			}
			pg.Mutate()
			if err := pg.MarshalTo(buf); err != nil {
				f.Close()
				return err
			}
			if _, err := f.WriteAt(buf, int64(page)*int64(len(buf))); err != nil {
				f.Close()
				return xerr.New("orchestrator.runMutatePhase", xerr.KindIOError, err)
			}
		}
		f.Close()
	}
	_ = ctx
	return nil
}

// injectFaults corrupts n randomly-chosen pages' mutation fields, a
// deliberate self-test path exercising the verify phase's
// failure-detection and -reporting path end to end.
func (o *Orchestrator) injectFaults(n int) error {
	fcount := o.cs.Count()
	pcount := o.cs.PagesPerFile()
	w, err := xpage.WordsForPageSize(o.cfg.PageSize)
	if err != nil {
		return err
	}
	if fcount == 0 || pcount == 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(int64(o.cfg.Seed) + 1))
	for i := 0; i < n; i++ {
		file := uint64(rng.Int63n(int64(fcount)))
		page := uint64(rng.Int63n(int64(pcount)))

		f, err := o.cs.Open(file, true, true)
		if err != nil {
			return err
		}
		buf := make([]byte, xpage.Bytes(w))
		off := int64(page) * int64(len(buf))
		if _, err := f.ReadAt(buf, off); err != nil {
			f.Close()
			return xerr.New("orchestrator.injectFaults", xerr.KindIOError, err)
		}
		buf[24] ^= 0xFF // corrupt the mutations field's low byte
		if _, err := f.WriteAt(buf, off); err != nil {
			f.Close()
			return xerr.New("orchestrator.injectFaults", xerr.KindIOError, err)
		}
		f.Close()
	}
	return nil
}

// Close is a no-op: the orchestrator holds no persistent I/O engine of its
// own — each worker goroutine opens and closes its own engine instance for
// the duration of a single phase.
func (o *Orchestrator) Close() error { return nil }

// submitAndWait issues one request through engine and blocks for its single
// completion, translating a negative Result or a short transfer into an
// error. Worker cancellation is cooperative between whole work units, but an
// in-flight request that is still outstanding when ctx is cancelled is
// actively cancelled via the engine rather than left to finish unobserved.
func submitAndWait(ctx context.Context, engine aio.Engine, fd int, op aio.Cmd, offset int64, buf []byte) error {
	req := aio.NewRequest().AddFD(fd).AddOpcode(op).AddOffset(offset).AddBuffer(buf).AddTag(0)
	if _, err := engine.Submit([]aio.Request{req}); err != nil {
		return err
	}

	type outcome struct {
		evs []aio.Event
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		evs, err := engine.Wait(1)
		done <- outcome{evs, err}
	}()

	var evs []aio.Event
	select {
	case <-ctx.Done():
		if _, cerr := engine.Cancel(req); cerr != nil {
			// Already completed or already reaped elsewhere: fall through
			// and take whatever Wait eventually returns.
			res := <-done
			if res.err != nil {
				return res.err
			}
			evs = res.evs
			break
		}
		return xerr.New("orchestrator.submitAndWait", xerr.KindCancelled, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return res.err
		}
		evs = res.evs
	}

	if len(evs) == 0 {
		return fmt.Errorf("engine: no completion event returned")
	}
	if evs[0].Result < 0 {
		return fmt.Errorf("engine: request failed with result %d", evs[0].Result)
	}
	if buf != nil && int(evs[0].Result) != len(buf) {
		return fmt.Errorf("engine: short transfer: got %d, want %d", evs[0].Result, len(buf))
	}
	return nil
}

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/defghij/diskxerciser/internal/config"
	"github.com/defghij/diskxerciser/internal/control"
	"github.com/defghij/diskxerciser/internal/history"
	"github.com/defghij/diskxerciser/internal/xlog"
)

// Service wraps a Config into a runnable unit that can execute once or on a
// cron schedule, optionally publishing progress over a gRPC status service
// and persisting each run to a history.Store — grounded on
// internal/storage/scheduler.go's Scheduler (cron.Cron lifecycle) and
// cmd/server/main.go's grpc.NewServer wiring.
type Service struct {
	cfg     config.Config
	log     *xlog.Logger
	tracker *control.Tracker
	ctl     *control.Server
	hist    *history.Store
	cron    *cron.Cron
}

// NewService builds a Service. If cfg.GRPCAddr is set, it starts a status
// listener immediately; if cfg.HistoryDSN is set, it opens the history
// store.
func NewService(cfg config.Config, log *xlog.Logger) (*Service, error) {
	if log == nil {
		log = xlog.New(xlog.ParseLevel(""))
	}
	s := &Service{cfg: cfg, log: log}

	if cfg.GRPCAddr != "" {
		s.tracker = control.NewTracker("")
		ctl, err := control.Listen(cfg.GRPCAddr, s.tracker)
		if err != nil {
			return nil, err
		}
		s.ctl = ctl
		go func() {
			if err := ctl.Serve(); err != nil {
				log.Warningf("control service stopped: %v", err)
			}
		}()
	}

	if cfg.HistoryDSN != "" {
		h, err := history.Open(cfg.HistoryDSN)
		if err != nil {
			return nil, err
		}
		s.hist = h
	}

	return s, nil
}

// RunOnce executes exactly one Orchestrator run, publishing progress and
// recording history as configured.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	start := time.Now()

	if s.tracker != nil {
		s.tracker.Update(control.StatusResponse{RunID: runID, Phase: "writing", StartedAt: start})
	}

	o, err := New(s.cfg, s.log)
	if err != nil {
		return Result{}, err
	}
	defer o.Close()

	res, err := o.Run(ctx)
	finish := time.Now()

	if s.tracker != nil {
		phase := "done"
		if err != nil {
			phase = "failed"
		}
		s.tracker.Update(control.StatusResponse{
			RunID: runID, Phase: phase, Done: true, StartedAt: start,
			PagesWritten: res.PagesWritten, PagesVerified: res.PagesVerified,
			PagesFailed: res.PagesFailed, BytesMoved: res.BytesMoved,
		})
	}

	if s.hist != nil && err == nil {
		if recErr := s.hist.Record(ctx, history.Run{
			RunID: runID, StartedAt: start, FinishedAt: finish,
			ConfigSummary: fmt.Sprintf("dirs=%d files=%d pages=%d page_size=%d",
				s.cfg.DirCount, s.cfg.FilesPerDir, s.cfg.PageCount, s.cfg.PageSize),
			PagesWritten: res.PagesWritten, PagesVerified: res.PagesVerified,
			PagesFailed: res.PagesFailed, BytesMoved: res.BytesMoved, Duration: res.Duration,
		}); recErr != nil {
			s.log.Warningf("failed to record run history: %v", recErr)
		}
	}

	return res, err
}

// RunRepeating starts a cron-driven repeat mode: one RunOnce per match of
// cfg.CronSpec, until the returned stop function is called. Errors from
// individual runs are logged, not propagated — a scheduled job outliving
// any single failed run matches scheduler.go's own "log and continue" style.
func (s *Service) RunRepeating(ctx context.Context) (stop func(), err error) {
	if s.cfg.CronSpec == "" {
		return nil, fmt.Errorf("orchestrator: RunRepeating requires a non-empty cron spec")
	}
	c := cron.New(cron.WithSeconds())
	_, err = c.AddFunc(s.cfg.CronSpec, func() {
		if _, runErr := s.RunOnce(ctx); runErr != nil {
			s.log.Errorf("scheduled run failed: %v", runErr)
		}
	})
	if err != nil {
		return nil, err
	}
	s.cron = c
	c.Start()
	return func() { c.Stop() }, nil
}

// Close releases the service's control listener and history store, if any.
func (s *Service) Close() error {
	if s.ctl != nil {
		s.ctl.Stop()
	}
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.hist != nil {
		return s.hist.Close()
	}
	return nil
}

// Command diskxerciser drives one (or, with -cron, repeated) disk I/O
// exerciser runs: build a constellation of directories and files, write
// self-describing pages across it, then read them back and validate every
// one, following tinySQL's cmd/tinysql/main.go flag-driven CLI idiom.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/defghij/diskxerciser/internal/config"
	"github.com/defghij/diskxerciser/internal/orchestrator"
	"github.com/defghij/diskxerciser/internal/xerr"
	"github.com/defghij/diskxerciser/internal/xlog"
)

// Exit codes per the configuration record's documented CLI contract: 0
// success; 1 critical (bad configuration or layout); 10 major (unrecoverable
// I/O error mid-phase); 11 minor (one or more pages failed validation).
const (
	exitSuccess      = 0
	exitCritical     = 1
	exitMajorIOError = 10
	exitMinorFailure = 11
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.FromFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "diskxerciser: %v\n", err)
		return exitCritical
	}

	log := xlog.New(xlog.ParseLevel(levelString(cfg.Verbose)))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := orchestrator.NewService(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "diskxerciser: %v\n", err)
		return exitCritical
	}
	defer svc.Close()

	if cfg.CronSpec != "" {
		stop, err := svc.RunRepeating(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "diskxerciser: %v\n", err)
			return exitCritical
		}
		<-ctx.Done()
		stop()
		return exitSuccess
	}

	res, err := svc.RunOnce(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "diskxerciser: %v\n", err)
		if xerr.KindOf(err) == xerr.KindInvalidLayout || xerr.KindOf(err) == xerr.KindInvalidArgument {
			return exitCritical
		}
		return exitMajorIOError
	}

	log.Infof("run complete: written=%d verified=%d failed=%d bytes=%d duration=%s",
		res.PagesWritten, res.PagesVerified, res.PagesFailed, res.BytesMoved, res.Duration)

	if res.PagesFailed > 0 {
		for _, f := range res.Failures {
			fmt.Fprintf(os.Stderr, "validation failure: %s\n", f.Error())
		}
		return exitMinorFailure
	}
	return exitSuccess
}

func levelString(verbose bool) string {
	if verbose {
		return "debug"
	}
	return "none"
}

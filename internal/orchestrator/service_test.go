package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
)

func TestServiceRunOnceBare(t *testing.T) {
	cfg := smallConfig(t)
	s, err := NewService(cfg, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer s.Close()

	res, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.PagesFailed != 0 {
		t.Fatalf("PagesFailed = %d, want 0", res.PagesFailed)
	}
}

func TestServiceRunOnceWithHistory(t *testing.T) {
	cfg := smallConfig(t)
	cfg.HistoryDSN = filepath.Join(t.TempDir(), "history.db")
	s, err := NewService(cfg, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer s.Close()

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	runs, err := s.hist.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d history rows, want 1", len(runs))
	}
}

func TestRunRepeatingRejectsEmptyCronSpec(t *testing.T) {
	cfg := smallConfig(t)
	s, err := NewService(cfg, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer s.Close()

	if _, err := s.RunRepeating(context.Background()); err == nil {
		t.Fatal("expected error for empty cron spec")
	}
}

package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndRecent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		r := Run{
			RunID:         fmt.Sprintf("run-%d", i),
			StartedAt:     base.Add(time.Duration(i) * time.Hour),
			FinishedAt:    base.Add(time.Duration(i)*time.Hour + time.Minute),
			ConfigSummary: "test config",
			PagesWritten:  100,
			PagesVerified: 100,
			PagesFailed:   0,
			BytesMoved:    4096,
			Duration:      time.Minute,
		}
		if err := s.Record(ctx, r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	runs, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].RunID != "run-2" {
		t.Fatalf("expected newest-first ordering, got %q first", runs[0].RunID)
	}
}

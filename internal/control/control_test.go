package control

import (
	"context"
	"testing"
)

func TestTrackerUpdateAndStatus(t *testing.T) {
	tr := NewTracker("run-1")
	if s, err := tr.Status(context.Background(), &StatusRequest{}); err != nil || s.Phase != "starting" {
		t.Fatalf("initial status = %+v, err=%v", s, err)
	}

	tr.Update(StatusResponse{RunID: "run-1", Phase: "writing", PagesWritten: 42})
	s, err := tr.Status(context.Background(), &StatusRequest{})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if s.Phase != "writing" || s.PagesWritten != 42 {
		t.Fatalf("unexpected status after update: %+v", s)
	}
}

func TestListenAndServe(t *testing.T) {
	tr := NewTracker("run-2")
	srv, err := Listen("127.0.0.1:0", tr)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve()
	defer srv.Stop()
}

package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenEmptyPathDisablesTrail(t *testing.T) {
	trail, err := Open("", nil)
	if err != nil || trail != nil {
		t.Fatalf("Open(\"\") = %v, %v, want nil, nil", trail, err)
	}
	trail.Record("h", "j", true, 0, time.Now(), time.Now()) // must not panic on a nil *Trail
	if err := trail.Close(); err != nil {
		t.Errorf("Close on nil trail: %v", err)
	}
}

func TestRecordAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	trail, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer trail.Close()

	started := time.Now().Add(-time.Second)
	finished := time.Now()
	trail.Record("deploy", "job-1", true, 0, started, finished)
	trail.Record("deploy", "job-2", false, 1, started, finished)

	records, err := trail.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	// newest first
	if records[0].JobID != "job-2" {
		t.Errorf("records[0].JobID = %q, want job-2", records[0].JobID)
	}
	if records[0].Success {
		t.Error("records[0].Success should be false")
	}
	if records[1].JobID != "job-1" || !records[1].Success {
		t.Errorf("records[1] = %+v", records[1])
	}
}

func TestRecentRespectsLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	trail, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer trail.Close()

	for i := 0; i < 5; i++ {
		trail.Record("h", "j", true, 0, time.Now(), time.Now())
	}
	records, err := trail.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
}

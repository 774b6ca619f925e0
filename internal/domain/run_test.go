package domain

import (
	"errors"
	"testing"
	"time"
)

// TestRunTerminalTransitions verifies that a run reaches a terminal status
// exactly once
func TestRunTerminalTransitions(t *testing.T) {
	now := time.Now().UTC()

	testCases := []struct {
		name   string
		first  func(r *ExtractionRun) error
		status RunStatus
	}{
		{
			name:   "complete",
			first:  func(r *ExtractionRun) error { return r.Complete(now) },
			status: RunStatusCompleted,
		},
		{
			name:   "fail",
			first:  func(r *ExtractionRun) error { return r.Fail(now, "extractor unreachable") },
			status: RunStatusFailed,
		},
		{
			name:   "cancel",
			first:  func(r *ExtractionRun) error { return r.Cancel(now) },
			status: RunStatusCancelled,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			run := &ExtractionRun{ID: "r1", Status: RunStatusRunning, StartedAt: now.Add(-time.Minute)}

			if err := tc.first(run); err != nil {
				t.Fatalf("first transition returned error: %v", err)
			}
			if run.Status != tc.status {
				t.Errorf("status = %q, want %q", run.Status, tc.status)
			}
			if run.CompletedAt == nil {
				t.Error("terminal run must carry a completion time")
			}

			// Any further terminal transition is a caller defect.
			if err := run.Complete(now); !errors.Is(err, ErrRunTerminal) {
				t.Errorf("second Complete err = %v, want ErrRunTerminal", err)
			}
			if err := run.Cancel(now); !errors.Is(err, ErrRunTerminal) {
				t.Errorf("Cancel after terminal err = %v, want ErrRunTerminal", err)
			}
			if run.Status != tc.status {
				t.Errorf("status changed after rejected transition: %q", run.Status)
			}
		})
	}
}

func TestFailKeepsErrorSummary(t *testing.T) {
	now := time.Now().UTC()
	run := &ExtractionRun{ID: "r1", Status: RunStatusRunning}

	if err := run.Fail(now, "database is locked"); err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	if run.ErrorSummary != "database is locked" {
		t.Errorf("summary = %q", run.ErrorSummary)
	}
}

func TestMergeFileStatusCounters(t *testing.T) {
	run := &ExtractionRun{ID: "r1", Status: RunStatusRunning}

	run.MergeFileStatus("a.xlsx", FileStatus{Status: FileStatusCompleted}, &FileMetadata{ValueCount: 12})
	run.MergeFileStatus("b.xlsx", FileStatus{Status: FileStatusFailed, Error: "parse_error: bad sheet"}, nil)
	run.MergeFileStatus("c.xlsx", FileStatus{Status: FileStatusSkipped}, nil)
	run.MergeFileStatus("d.xlsx", FileStatus{Status: FileStatusCompleted}, nil)

	if run.FilesProcessed != 2 || run.FilesFailed != 1 || run.FilesSkipped != 1 {
		t.Errorf("counters = %d/%d/%d, want 2/1/1",
			run.FilesProcessed, run.FilesFailed, run.FilesSkipped)
	}
	if run.FileStatuses["b.xlsx"].Error == "" {
		t.Error("failed file should keep its error text")
	}
	if run.FileMetadata["a.xlsx"].ValueCount != 12 {
		t.Error("file metadata was not recorded")
	}
}

func TestSuccessRate(t *testing.T) {
	run := &ExtractionRun{FilesProcessed: 9, FilesFailed: 1, FilesSkipped: 5}
	if got := run.SuccessRate(); got != 0.9 {
		t.Errorf("SuccessRate() = %v, want 0.9", got)
	}

	empty := &ExtractionRun{FilesSkipped: 3}
	if got := empty.SuccessRate(); got != 0 {
		t.Errorf("SuccessRate() with nothing attempted = %v, want 0", got)
	}
}

func TestFileStatusMapRoundTrip(t *testing.T) {
	m := FileStatusMap{
		"a.xlsx": {Status: FileStatusCompleted},
		"b.xlsx": {Status: FileStatusFailed, Error: "download_error: timeout"},
	}

	raw, err := m.Value()
	if err != nil {
		t.Fatalf("Value returned error: %v", err)
	}

	var decoded FileStatusMap
	if err := decoded.Scan(raw); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if decoded["b.xlsx"].Error != "download_error: timeout" {
		t.Errorf("round trip lost data: %+v", decoded)
	}
}

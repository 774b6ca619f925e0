package service

import (
	"sync"
	"testing"
	"time"
)

func TestRunMetricsConcurrentRecording(t *testing.T) {
	m := NewRunMetrics("run-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0, 1:
				m.RecordCompleted(time.Millisecond, 5, map[string]int{"invalid_value": 1})
			case 2:
				m.RecordFailed(time.Millisecond, "download_error")
			case 3:
				m.RecordSkipped()
			}
		}(i)
	}
	wg.Wait()
	m.Finish()

	snap := m.Snapshot()
	if snap.FilesProcessed != 10 || snap.FilesFailed != 5 || snap.FilesSkipped != 5 {
		t.Errorf("counters = %d/%d/%d, want 10/5/5",
			snap.FilesProcessed, snap.FilesFailed, snap.FilesSkipped)
	}
	if snap.ValuesWritten != 50 {
		t.Errorf("values = %d, want 50", snap.ValuesWritten)
	}
	if snap.ErrorCategories["invalid_value"] != 10 || snap.ErrorCategories["download_error"] != 5 {
		t.Errorf("categories = %v", snap.ErrorCategories)
	}
}

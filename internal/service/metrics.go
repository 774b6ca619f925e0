package service

import (
	"sync"
	"time"
)

// RunMetrics accumulates per-file outcomes for one extraction run. Safe for
// concurrent use by the worker pool.
type RunMetrics struct {
	mu sync.Mutex

	RunID           string
	StartTime       time.Time
	EndTime         time.Time
	FilesProcessed  int
	FilesFailed     int
	FilesSkipped    int
	ValuesWritten   int
	TotalDuration   time.Duration
	ErrorCategories map[string]int
}

// NewRunMetrics creates a metrics accumulator for a run.
func NewRunMetrics(runID string) *RunMetrics {
	return &RunMetrics{
		RunID:           runID,
		StartTime:       time.Now(),
		ErrorCategories: make(map[string]int),
	}
}

// RecordCompleted records a successfully extracted file.
func (m *RunMetrics) RecordCompleted(duration time.Duration, valueCount int, errorCategories map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesProcessed++
	m.ValuesWritten += valueCount
	m.TotalDuration += duration
	for cat, n := range errorCategories {
		m.ErrorCategories[cat] += n
	}
}

// RecordFailed records an unrecoverable per-file failure.
func (m *RunMetrics) RecordFailed(duration time.Duration, category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesFailed++
	m.TotalDuration += duration
	if category != "" {
		m.ErrorCategories[category]++
	}
}

// RecordSkipped records a file whose entity data was unchanged.
func (m *RunMetrics) RecordSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesSkipped++
}

// Finish stamps the end time.
func (m *RunMetrics) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
}

// Snapshot returns a copy safe to serialize.
func (m *RunMetrics) Snapshot() RunMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	cats := make(map[string]int, len(m.ErrorCategories))
	for k, v := range m.ErrorCategories {
		cats[k] = v
	}
	snap := RunMetricsSnapshot{
		RunID:           m.RunID,
		FilesProcessed:  m.FilesProcessed,
		FilesFailed:     m.FilesFailed,
		FilesSkipped:    m.FilesSkipped,
		ValuesWritten:   m.ValuesWritten,
		ErrorCategories: cats,
	}
	if !m.EndTime.IsZero() {
		snap.DurationMs = m.EndTime.Sub(m.StartTime).Milliseconds()
	}
	return snap
}

// RunMetricsSnapshot is an immutable view of RunMetrics.
type RunMetricsSnapshot struct {
	RunID           string         `json:"run_id"`
	FilesProcessed  int            `json:"files_processed"`
	FilesFailed     int            `json:"files_failed"`
	FilesSkipped    int            `json:"files_skipped"`
	ValuesWritten   int            `json:"values_written"`
	DurationMs      int64          `json:"duration_ms"`
	ErrorCategories map[string]int `json:"error_categories"`
}

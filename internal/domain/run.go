package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// RunStatus represents the lifecycle status of an extraction run.
// Values include RunStatusRunning, RunStatusCompleted, RunStatusFailed,
// and RunStatusCancelled. Only RunStatusRunning is non-terminal.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// TriggerType represents how an extraction run was started.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
)

// File-level statuses recorded in the per-file status map.
const (
	FileStatusPending   = "pending"
	FileStatusCompleted = "completed"
	FileStatusFailed    = "failed"
	FileStatusSkipped   = "skipped"
)

// ErrRunTerminal is returned when a terminal transition is attempted on a run
// that has already left the running state. This signals a logic defect in the
// caller, not an environmental failure.
var ErrRunTerminal = errors.New("extraction run is already terminal")

// FileStatus records the outcome of one file within a run.
type FileStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// FileStatusMap is a custom type for storing the per-file status map as JSON.
type FileStatusMap map[string]FileStatus

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the map.
//   - error: non-nil if marshaling fails.
func (m FileStatusMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (m *FileStatusMap) Scan(value interface{}) error {
	if value == nil {
		*m = FileStatusMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan FileStatusMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// FileMetadata records extraction statistics for one file within a run.
type FileMetadata struct {
	DurationMs int64 `json:"duration_ms"`
	ValueCount int   `json:"value_count"`
	ErrorCount int   `json:"error_count"`
}

// FileMetadataMap is a custom type for storing per-file statistics as JSON.
type FileMetadataMap map[string]FileMetadata

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the map.
//   - error: non-nil if marshaling fails.
func (m FileMetadataMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (m *FileMetadataMap) Scan(value interface{}) error {
	if value == nil {
		*m = FileMetadataMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan FileMetadataMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// ExtractionRun represents one batch execution of the extraction pipeline.
// The per-file status map is persisted incrementally so an interrupted run
// can be resumed by reprocessing only the unfinished subset.
type ExtractionRun struct {
	ID              string          `gorm:"type:text;primaryKey" json:"id"`
	Status          RunStatus       `gorm:"type:text;default:running;index:idx_extraction_runs_status" json:"status"`
	TriggerType     TriggerType     `gorm:"type:text;not null" json:"trigger_type"`
	Scope           string          `gorm:"type:text" json:"scope,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	FilesDiscovered int             `gorm:"default:0" json:"files_discovered"`
	FilesProcessed  int             `gorm:"default:0" json:"files_processed"`
	FilesFailed     int             `gorm:"default:0" json:"files_failed"`
	FilesSkipped    int             `gorm:"default:0" json:"files_skipped"`
	ErrorSummary    string          `gorm:"type:text" json:"error_summary,omitempty"`
	FileStatuses    FileStatusMap   `gorm:"type:text" json:"file_statuses"`
	FileMetadata    FileMetadataMap `gorm:"type:text" json:"file_metadata"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName returns the database table name for ExtractionRun.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (ExtractionRun) TableName() string {
	return "extraction_runs"
}

// IsTerminal reports whether the run has left the running state.
func (r *ExtractionRun) IsTerminal() bool {
	return r.Status != RunStatusRunning
}

// MergeFileStatus records the outcome of one file and bumps the matching
// aggregate counter. Callable repeatedly from the single active writer.
func (r *ExtractionRun) MergeFileStatus(path string, status FileStatus, meta *FileMetadata) {
	if r.FileStatuses == nil {
		r.FileStatuses = FileStatusMap{}
	}
	r.FileStatuses[path] = status
	if meta != nil {
		if r.FileMetadata == nil {
			r.FileMetadata = FileMetadataMap{}
		}
		r.FileMetadata[path] = *meta
	}
	switch status.Status {
	case FileStatusCompleted:
		r.FilesProcessed++
	case FileStatusFailed:
		r.FilesFailed++
	case FileStatusSkipped:
		r.FilesSkipped++
	}
}

// Complete marks the run completed. Returns ErrRunTerminal if the run has
// already reached a terminal status.
func (r *ExtractionRun) Complete(now time.Time) error {
	return r.finish(RunStatusCompleted, now, "")
}

// Fail marks the run failed with an error summary. Returns ErrRunTerminal
// if the run has already reached a terminal status.
func (r *ExtractionRun) Fail(now time.Time, summary string) error {
	return r.finish(RunStatusFailed, now, summary)
}

// Cancel marks the run cancelled. Returns ErrRunTerminal if the run has
// already reached a terminal status.
func (r *ExtractionRun) Cancel(now time.Time) error {
	return r.finish(RunStatusCancelled, now, "")
}

func (r *ExtractionRun) finish(status RunStatus, now time.Time, summary string) error {
	if r.IsTerminal() {
		return ErrRunTerminal
	}
	r.Status = status
	r.CompletedAt = &now
	if summary != "" {
		r.ErrorSummary = summary
	}
	return nil
}

// SuccessRate returns the fraction of non-skipped files that completed,
// or zero when nothing was attempted.
func (r *ExtractionRun) SuccessRate() float64 {
	attempted := r.FilesProcessed + r.FilesFailed
	if attempted == 0 {
		return 0
	}
	return float64(r.FilesProcessed) / float64(attempted)
}

// DurationSeconds returns the run duration, using now for a run still in flight.
func (r *ExtractionRun) DurationSeconds(now time.Time) float64 {
	end := now
	if r.CompletedAt != nil {
		end = *r.CompletedAt
	}
	return end.Sub(r.StartedAt).Seconds()
}

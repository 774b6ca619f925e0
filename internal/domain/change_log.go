package domain

import "time"

// ChangeType represents the kind of change detected for a monitored file.
// Values include ChangeTypeAdded, ChangeTypeModified, and ChangeTypeDeleted.
type ChangeType string

const (
	ChangeTypeAdded    ChangeType = "added"
	ChangeTypeModified ChangeType = "modified"
	ChangeTypeDeleted  ChangeType = "deleted"
)

// FileChangeLog is an immutable audit row for one detected file change.
// Rows are created by the file monitor and never mutated afterwards.
type FileChangeLog struct {
	ID                  string     `gorm:"type:text;primaryKey" json:"id"`
	FilePath            string     `gorm:"type:text;not null;index:idx_change_logs_path" json:"file_path"`
	ChangeType          ChangeType `gorm:"type:text;not null;index:idx_change_logs_type" json:"change_type"`
	OldSizeBytes        *int64     `json:"old_size_bytes,omitempty"`
	NewSizeBytes        *int64     `json:"new_size_bytes,omitempty"`
	OldModifiedAt       *time.Time `json:"old_modified_at,omitempty"`
	NewModifiedAt       *time.Time `json:"new_modified_at,omitempty"`
	DetectedAt          time.Time  `gorm:"index:idx_change_logs_detected" json:"detected_at"`
	ExtractionTriggered bool       `gorm:"default:false" json:"extraction_triggered"`
}

// TableName returns the database table name for FileChangeLog.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (FileChangeLog) TableName() string {
	return "file_change_logs"
}

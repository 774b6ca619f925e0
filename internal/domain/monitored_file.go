package domain

import "time"

// MonitoredFile represents one tracked underwriting-model file in the remote store.
// Each path owns exactly one row for its whole lifecycle: the record is
// deactivated, never deleted, when the remote file disappears, and the same
// row is reactivated if the path re-appears.
type MonitoredFile struct {
	ID                string     `gorm:"type:text;primaryKey" json:"id"`
	Path              string     `gorm:"type:text;not null;uniqueIndex:idx_monitored_files_path" json:"path"`
	Name              string     `gorm:"type:text;not null" json:"name"`
	EntityName        string     `gorm:"type:text;index:idx_monitored_files_entity" json:"entity_name"`
	SizeBytes         int64      `json:"size_bytes"`
	ModifiedAt        time.Time  `json:"modified_at"`
	ContentHash       string     `gorm:"type:text" json:"content_hash,omitempty"`
	FirstSeenAt       time.Time  `json:"first_seen_at"`
	LastCheckedAt     time.Time  `json:"last_checked_at"`
	LastExtractedAt   *time.Time `json:"last_extracted_at,omitempty"`
	IsActive          bool       `gorm:"default:true;index:idx_monitored_files_active" json:"is_active"`
	ExtractionPending bool       `gorm:"default:false" json:"extraction_pending"`
	LastRunID         string     `gorm:"type:text" json:"last_run_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName returns the database table name for MonitoredFile.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (MonitoredFile) TableName() string {
	return "monitored_files"
}

package domain

import "time"

// ExtractedValue is one entity-attribute-value row produced by an extraction
// run. Rows are written in bulk per file, never updated in place, and are
// superseded by a later run's rows rather than overwritten. The composite
// index enforces at most one row per (run, entity, field).
type ExtractedValue struct {
	ID            string     `gorm:"type:text;primaryKey" json:"id"`
	RunID         string     `gorm:"type:text;not null;uniqueIndex:idx_values_run_entity_field;index:idx_values_run" json:"run_id"`
	EntityName    string     `gorm:"type:text;not null;uniqueIndex:idx_values_run_entity_field;index:idx_values_entity" json:"entity_name"`
	DealID        string     `gorm:"type:text;index:idx_values_deal" json:"deal_id,omitempty"`
	FieldName     string     `gorm:"type:text;not null;uniqueIndex:idx_values_run_entity_field" json:"field_name"`
	Category      string     `gorm:"type:text" json:"category,omitempty"`
	SheetName     string     `gorm:"type:text" json:"sheet_name,omitempty"`
	CellRef       string     `gorm:"type:text" json:"cell_ref,omitempty"`
	ValueText     string     `gorm:"type:text" json:"value_text"`
	ValueNumeric  *float64   `json:"value_numeric,omitempty"`
	ValueDate     *time.Time `json:"value_date,omitempty"`
	IsError       bool       `gorm:"default:false" json:"is_error"`
	ErrorCategory string     `gorm:"type:text" json:"error_category,omitempty"`
	SourcePath    string     `gorm:"type:text" json:"source_path"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TableName returns the database table name for ExtractedValue.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (ExtractedValue) TableName() string {
	return "extracted_values"
}

// Deal is a minimal business-entity lookup record used by the optional
// entity resolver to join extracted values to an existing deal.
type Deal struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	EntityName string    `gorm:"type:text;not null;uniqueIndex:idx_deals_entity" json:"entity_name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Deal.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Deal) TableName() string {
	return "deals"
}

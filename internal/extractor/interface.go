package extractor

import (
	"context"
	"io"
)

// Error categories recorded on per-field and per-file failures.
const (
	CategoryParseError      = "parse_error"
	CategoryMissingSheet    = "missing_sheet"
	CategoryInvalidValue    = "invalid_value"
	CategoryDownloadError   = "download_error"
	CategoryExtractionError = "extraction_error"
	CategoryDuplicateEntity = "duplicate_entity"
)

// FieldValue is one extracted field with its cell-level provenance.
type FieldValue struct {
	Value    interface{} `json:"value"`
	Category string      `json:"category,omitempty"`
	Sheet    string      `json:"sheet,omitempty"`
	Cell     string      `json:"cell,omitempty"`
}

// Result is the output of extracting one underwriting-model file.
// Fields holds successfully parsed values; Errors maps field names that
// could not be parsed to an error category. Field names beginning with
// an underscore are extractor metadata (e.g. _entity_name) and are not
// persisted as values.
type Result struct {
	Fields map[string]FieldValue `json:"fields"`
	Errors map[string]string     `json:"errors"`
}

// EntityName returns the entity name reported by the extractor via the
// _entity_name metadata field, or empty if absent.
func (r *Result) EntityName() string {
	if fv, ok := r.Fields["_entity_name"]; ok {
		if s, ok := fv.Value.(string); ok {
			return s
		}
	}
	return ""
}

// Extractor parses an underwriting-model workbook into named fields.
// Implementations must be read-only with respect to the remote store.
type Extractor interface {
	Extract(ctx context.Context, path string, data io.Reader) (*Result, error)
}

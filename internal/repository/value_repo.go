package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/halvard/modelwatch/internal/domain"
	"gorm.io/gorm"
)

// ErrDuplicateValue is returned when a bulk insert would write the same
// (run, entity, field) key twice. This indicates a programming error in the
// caller, not a recoverable condition.
var ErrDuplicateValue = errors.New("duplicate extracted value for run/entity/field")

// ValueRepository is the persistence layer for extracted EAV rows.
type ValueRepository struct {
	db *gorm.DB
}

// NewValueRepository creates a new ValueRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ValueRepository: repository instance bound to db.
func NewValueRepository(db *gorm.DB) *ValueRepository {
	return &ValueRepository{db: db}
}

// BulkInsert writes all rows in a single transaction. Duplicate keys within
// the batch, or against rows already written for the same run, fail the whole
// insert with ErrDuplicateValue; the unique index is the backstop.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - values: EAV rows to persist; all must share run and entity.
// Returns:
//   - error: non-nil if validation or the insert fails.
func (r *ValueRepository) BulkInsert(ctx context.Context, values []domain.ExtractedValue) error {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	fieldNames := make([]string, 0, len(values))
	for _, v := range values {
		key := v.RunID + "\x00" + v.EntityName + "\x00" + v.FieldName
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s/%s field %q", ErrDuplicateValue, v.RunID, v.EntityName, v.FieldName)
		}
		seen[key] = struct{}{}
		fieldNames = append(fieldNames, v.FieldName)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&domain.ExtractedValue{}).
			Where("run_id = ? AND entity_name = ? AND field_name IN ?",
				values[0].RunID, values[0].EntityName, fieldNames).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check existing values: %w", err)
		}
		if existing > 0 {
			return fmt.Errorf("%w: %s/%s already has %d of these fields",
				ErrDuplicateValue, values[0].RunID, values[0].EntityName, existing)
		}
		if err := tx.CreateInBatches(&values, 200).Error; err != nil {
			return fmt.Errorf("failed to bulk insert values: %w", err)
		}
		return nil
	})
}

// GetLatestCompletedValues returns the EAV rows for an entity from the most
// recent run with status completed, ordered by field name. Rows from running,
// failed, or cancelled runs are never returned, regardless of recency.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entityName: business entity to look up.
// Returns:
//   - []domain.ExtractedValue: rows from the latest completed run; nil when
//     no completed run has values for this entity.
//   - error: non-nil if the query fails.
func (r *ValueRepository) GetLatestCompletedValues(ctx context.Context, entityName string) ([]domain.ExtractedValue, error) {
	var runID string
	err := r.db.WithContext(ctx).
		Model(&domain.ExtractedValue{}).
		Select("extracted_values.run_id").
		Joins("JOIN extraction_runs ON extraction_runs.id = extracted_values.run_id").
		Where("extracted_values.entity_name = ? AND extraction_runs.status = ?",
			entityName, domain.RunStatusCompleted).
		Order("extraction_runs.started_at DESC").
		Limit(1).
		Pluck("extracted_values.run_id", &runID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find latest completed run: %w", err)
	}
	if runID == "" {
		return nil, nil
	}

	var values []domain.ExtractedValue
	if err := r.db.WithContext(ctx).
		Where("run_id = ? AND entity_name = ?", runID, entityName).
		Order("field_name").
		Find(&values).Error; err != nil {
		return nil, fmt.Errorf("failed to load values: %w", err)
	}
	return values, nil
}

// GetByRun retrieves all rows written by one run, ordered by entity and field.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - runID: run identifier.
// Returns:
//   - []domain.ExtractedValue: rows for the run.
//   - error: non-nil if the query fails.
func (r *ValueRepository) GetByRun(ctx context.Context, runID string) ([]domain.ExtractedValue, error) {
	var values []domain.ExtractedValue
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("entity_name, field_name").
		Find(&values).Error; err != nil {
		return nil, err
	}
	return values, nil
}

// CountByRun counts rows written by one run.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - runID: run identifier.
// Returns:
//   - int64: number of rows.
//   - error: non-nil if the query fails.
func (r *ValueRepository) CountByRun(ctx context.Context, runID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.ExtractedValue{}).
		Where("run_id = ?", runID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

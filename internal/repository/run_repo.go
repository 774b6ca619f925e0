package repository

import (
	"context"
	"errors"

	"github.com/halvard/modelwatch/internal/domain"
	"gorm.io/gorm"
)

// RunRepository handles extraction-run data operations.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *RunRepository: repository instance bound to db.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new extraction-run record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *RunRepository) Create(ctx context.Context, run *domain.ExtractionRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Update persists the full run record, including the per-file status and
// metadata maps. Called incrementally by the owning orchestrator so an
// interrupted run remains resumable.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *RunRepository) Update(ctx context.Context, run *domain.ExtractionRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// GetByID retrieves a run by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: run ID.
// Returns:
//   - *domain.ExtractionRun: run record if found.
//   - error: non-nil if lookup fails.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.ExtractionRun, error) {
	var run domain.ExtractionRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// GetActive retrieves the currently running run for a scope, if any.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - scope: run scope; empty matches the default scope.
// Returns:
//   - *domain.ExtractionRun: running run, or nil when none is active.
//   - error: non-nil if the query fails.
func (r *RunRepository) GetActive(ctx context.Context, scope string) (*domain.ExtractionRun, error) {
	var run domain.ExtractionRun
	err := r.db.WithContext(ctx).
		Where("status = ? AND scope = ?", domain.RunStatusRunning, scope).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// ListHistory retrieves the most recent runs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of runs to return.
// Returns:
//   - []domain.ExtractionRun: runs ordered by start time, newest first.
//   - error: non-nil if the query fails.
func (r *RunRepository) ListHistory(ctx context.Context, limit int) ([]domain.ExtractionRun, error) {
	var runs []domain.ExtractionRun
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

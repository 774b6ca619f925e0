package repository

import (
	"context"

	"github.com/halvard/modelwatch/internal/domain"
	"gorm.io/gorm"
)

// ChangeLogRepository handles file-change audit rows. Rows are insert-only.
type ChangeLogRepository struct {
	db *gorm.DB
}

// NewChangeLogRepository creates a new ChangeLogRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ChangeLogRepository: repository instance bound to db.
func NewChangeLogRepository(db *gorm.DB) *ChangeLogRepository {
	return &ChangeLogRepository{db: db}
}

// Create inserts a new change-log row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: change-log row to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ChangeLogRepository) Create(ctx context.Context, entry *domain.FileChangeLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// CreateBatch inserts multiple change-log rows in one statement.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entries: change-log rows to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ChangeLogRepository) CreateBatch(ctx context.Context, entries []domain.FileChangeLog) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

// ListRecent retrieves the most recent change-log rows.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of rows to return.
// Returns:
//   - []domain.FileChangeLog: rows ordered by detection time, newest first.
//   - error: non-nil if the query fails.
func (r *ChangeLogRepository) ListRecent(ctx context.Context, limit int) ([]domain.FileChangeLog, error) {
	var entries []domain.FileChangeLog
	if err := r.db.WithContext(ctx).
		Order("detected_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListByPath retrieves change-log rows for one file.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: remote file path.
//   - limit: maximum number of rows to return.
// Returns:
//   - []domain.FileChangeLog: matching rows, newest first.
//   - error: non-nil if the query fails.
func (r *ChangeLogRepository) ListByPath(ctx context.Context, path string, limit int) ([]domain.FileChangeLog, error) {
	var entries []domain.FileChangeLog
	if err := r.db.WithContext(ctx).
		Where("file_path = ?", path).
		Order("detected_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

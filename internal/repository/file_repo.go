package repository

import (
	"context"
	"errors"
	"time"

	"github.com/halvard/modelwatch/internal/domain"
	"gorm.io/gorm"
)

// FileRepository handles monitored-file data operations.
type FileRepository struct {
	db *gorm.DB
}

// NewFileRepository creates a new FileRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *FileRepository: repository instance bound to db.
func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create inserts a new monitored-file record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - file: file record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *FileRepository) Create(ctx context.Context, file *domain.MonitoredFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

// Update updates an existing monitored-file record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - file: file record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *FileRepository) Update(ctx context.Context, file *domain.MonitoredFile) error {
	return r.db.WithContext(ctx).Save(file).Error
}

// GetByPath retrieves a monitored file by its remote path, active or not.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: remote file path.
// Returns:
//   - *domain.MonitoredFile: file record, or nil when the path is unknown.
//   - error: non-nil only on a query failure.
func (r *FileRepository) GetByPath(ctx context.Context, path string) (*domain.MonitoredFile, error) {
	var file domain.MonitoredFile
	err := r.db.WithContext(ctx).First(&file, "path = ?", path).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &file, nil
}

// ListActive retrieves all active monitored files.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.MonitoredFile: active file records.
//   - error: non-nil if the query fails.
func (r *FileRepository) ListActive(ctx context.Context) ([]domain.MonitoredFile, error) {
	var files []domain.MonitoredFile
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("path").
		Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// ListPending retrieves active files flagged for extraction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.MonitoredFile: files awaiting extraction.
//   - error: non-nil if the query fails.
func (r *FileRepository) ListPending(ctx context.Context) ([]domain.MonitoredFile, error) {
	var files []domain.MonitoredFile
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND extraction_pending = ?", true, true).
		Order("path").
		Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// ListByPaths retrieves monitored files by a list of paths.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - paths: remote file paths.
// Returns:
//   - []domain.MonitoredFile: matching file records.
//   - error: non-nil if the query fails.
func (r *FileRepository) ListByPaths(ctx context.Context, paths []string) ([]domain.MonitoredFile, error) {
	if len(paths) == 0 {
		return []domain.MonitoredFile{}, nil
	}
	var files []domain.MonitoredFile
	if err := r.db.WithContext(ctx).Where("path IN ?", paths).Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// MarkExtracted clears the pending flag and records the extraction time and run.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: remote file path.
//   - runID: run that extracted the file.
//   - at: extraction timestamp.
// Returns:
//   - error: non-nil if the update fails.
func (r *FileRepository) MarkExtracted(ctx context.Context, path, runID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.MonitoredFile{}).
		Where("path = ?", path).
		Updates(map[string]interface{}{
			"extraction_pending": false,
			"last_extracted_at":  at,
			"last_run_id":        runID,
		}).Error
}

// Deactivate soft-deletes a monitored file that disappeared from the remote listing.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: remote file path.
// Returns:
//   - error: non-nil if the update fails.
func (r *FileRepository) Deactivate(ctx context.Context, path string) error {
	return r.db.WithContext(ctx).
		Model(&domain.MonitoredFile{}).
		Where("path = ?", path).
		Updates(map[string]interface{}{
			"is_active":          false,
			"extraction_pending": false,
		}).Error
}

package service

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/halvard/modelwatch/internal/domain"
	"github.com/halvard/modelwatch/internal/logger"
	"github.com/halvard/modelwatch/internal/storage"
)

// FileLister is the listing boundary of the remote model store.
// Implemented by storage.S3Store and storage.LocalStore.
type FileLister interface {
	List(ctx context.Context, root string) ([]storage.RemoteFile, error)
}

// FileInventory is the persistence surface the monitor and orchestrator
// need for monitored files. Implemented by repository.FileRepository.
type FileInventory interface {
	ListActive(ctx context.Context) ([]domain.MonitoredFile, error)
	ListPending(ctx context.Context) ([]domain.MonitoredFile, error)
	ListByPaths(ctx context.Context, paths []string) ([]domain.MonitoredFile, error)
	GetByPath(ctx context.Context, path string) (*domain.MonitoredFile, error)
	Create(ctx context.Context, file *domain.MonitoredFile) error
	Update(ctx context.Context, file *domain.MonitoredFile) error
	Deactivate(ctx context.Context, path string) error
	MarkExtracted(ctx context.Context, path, runID string, at time.Time) error
}

// ChangeJournal is the insert-only audit log of detected changes.
// Implemented by repository.ChangeLogRepository.
type ChangeJournal interface {
	CreateBatch(ctx context.Context, entries []domain.FileChangeLog) error
	ListRecent(ctx context.Context, limit int) ([]domain.FileChangeLog, error)
}

// RunStarter launches an extraction run for pending files. Implemented by
// ExtractionService; optional so the monitor can run standalone.
type RunStarter interface {
	StartRun(ctx context.Context, trigger domain.TriggerType, scope string) (*domain.ExtractionRun, error)
}

// MonitorCheckResult summarizes one checkForChanges invocation.
type MonitorCheckResult struct {
	TotalChanges   int                    `json:"total_changes"`
	FilesAdded     int                    `json:"files_added"`
	FilesModified  int                    `json:"files_modified"`
	FilesDeleted   int                    `json:"files_deleted"`
	Changes        []domain.FileChangeLog `json:"changes"`
	Duration       time.Duration          `json:"duration"`
	TriggeredRunID string                 `json:"triggered_run_id,omitempty"`
}

// MonitorConfig holds configuration for the file monitor.
type MonitorConfig struct {
	RootPrefix  string
	AutoExtract bool
}

// FileMonitor polls the remote model store, diffs the listing against the
// persisted per-file state, and records typed change events. Size and
// modified-time are the cheap filters; no content hashing happens at
// listing time since that would require a download.
type FileMonitor struct {
	store   FileLister
	files   FileInventory
	journal ChangeJournal
	starter RunStarter
	logger  *logger.Logger
	cfg     MonitorConfig
}

// NewFileMonitor creates a new file monitor.
func NewFileMonitor(store FileLister, files FileInventory, journal ChangeJournal, log *logger.Logger, cfg MonitorConfig) *FileMonitor {
	return &FileMonitor{
		store:   store,
		files:   files,
		journal: journal,
		logger:  log,
		cfg:     cfg,
	}
}

// SetRunStarter attaches an extraction trigger invoked after a check that
// left files pending. Optional.
func (m *FileMonitor) SetRunStarter(starter RunStarter) {
	m.starter = starter
}

func (m *FileMonitor) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, m.logger)
}

// CheckForChanges fetches the remote listing, classifies added, modified,
// and deleted files, persists one change-log row per change, and updates
// each monitored file's tracked state. A listing failure aborts before any
// write, so a failed check is safely retryable; a check that observes no
// changes writes no change-log rows.
func (m *FileMonitor) CheckForChanges(ctx context.Context) (*MonitorCheckResult, error) {
	start := time.Now()

	listing, err := m.store.List(ctx, m.cfg.RootPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote files: %w", err)
	}

	known, err := m.files.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load monitored files: %w", err)
	}
	knownByPath := make(map[string]*domain.MonitoredFile, len(known))
	for i := range known {
		knownByPath[known[i].Path] = &known[i]
	}

	now := time.Now().UTC()
	result := &MonitorCheckResult{}
	var changes []domain.FileChangeLog

	seen := make(map[string]struct{}, len(listing))
	for _, remote := range listing {
		seen[remote.Path] = struct{}{}

		existing, ok := knownByPath[remote.Path]
		if !ok {
			// A path missing from the active set may still own a
			// deactivated row from an earlier delete; re-appearance
			// reactivates that row rather than inserting a second one.
			prior, err := m.files.GetByPath(ctx, remote.Path)
			if err != nil {
				return nil, fmt.Errorf("failed to look up monitored file %s: %w", remote.Path, err)
			}
			if prior != nil {
				prior.Name = remote.Name
				prior.EntityName = DeriveEntityName(remote.Name)
				prior.SizeBytes = remote.SizeBytes
				prior.ModifiedAt = remote.ModifiedAt
				prior.LastCheckedAt = now
				prior.IsActive = true
				prior.ExtractionPending = true
				if err := m.files.Update(ctx, prior); err != nil {
					return nil, fmt.Errorf("failed to reactivate monitored file %s: %w", remote.Path, err)
				}
			} else {
				file := &domain.MonitoredFile{
					ID:                uuid.New().String(),
					Path:              remote.Path,
					Name:              remote.Name,
					EntityName:        DeriveEntityName(remote.Name),
					SizeBytes:         remote.SizeBytes,
					ModifiedAt:        remote.ModifiedAt,
					FirstSeenAt:       now,
					LastCheckedAt:     now,
					IsActive:          true,
					ExtractionPending: true,
				}
				if err := m.files.Create(ctx, file); err != nil {
					return nil, fmt.Errorf("failed to create monitored file %s: %w", remote.Path, err)
				}
			}
			size := remote.SizeBytes
			modified := remote.ModifiedAt
			changes = append(changes, domain.FileChangeLog{
				ID:                  uuid.New().String(),
				FilePath:            remote.Path,
				ChangeType:          domain.ChangeTypeAdded,
				NewSizeBytes:        &size,
				NewModifiedAt:       &modified,
				DetectedAt:          now,
				ExtractionTriggered: m.cfg.AutoExtract,
			})
			result.FilesAdded++
			continue
		}

		if existing.SizeBytes != remote.SizeBytes || !existing.ModifiedAt.Equal(remote.ModifiedAt) {
			oldSize, newSize := existing.SizeBytes, remote.SizeBytes
			oldMod, newMod := existing.ModifiedAt, remote.ModifiedAt
			changes = append(changes, domain.FileChangeLog{
				ID:                  uuid.New().String(),
				FilePath:            remote.Path,
				ChangeType:          domain.ChangeTypeModified,
				OldSizeBytes:        &oldSize,
				NewSizeBytes:        &newSize,
				OldModifiedAt:       &oldMod,
				NewModifiedAt:       &newMod,
				DetectedAt:          now,
				ExtractionTriggered: m.cfg.AutoExtract,
			})
			existing.SizeBytes = remote.SizeBytes
			existing.ModifiedAt = remote.ModifiedAt
			existing.ExtractionPending = true
			result.FilesModified++
		}
		existing.LastCheckedAt = now
		if err := m.files.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to update monitored file %s: %w", remote.Path, err)
		}
	}

	// Active files absent from the listing are deactivated, never deleted.
	for _, file := range known {
		if _, ok := seen[file.Path]; ok {
			continue
		}
		oldSize := file.SizeBytes
		oldMod := file.ModifiedAt
		changes = append(changes, domain.FileChangeLog{
			ID:            uuid.New().String(),
			FilePath:      file.Path,
			ChangeType:    domain.ChangeTypeDeleted,
			OldSizeBytes:  &oldSize,
			OldModifiedAt: &oldMod,
			DetectedAt:    now,
		})
		if err := m.files.Deactivate(ctx, file.Path); err != nil {
			return nil, fmt.Errorf("failed to deactivate monitored file %s: %w", file.Path, err)
		}
		result.FilesDeleted++
	}

	if err := m.journal.CreateBatch(ctx, changes); err != nil {
		return nil, fmt.Errorf("failed to persist change log: %w", err)
	}

	result.TotalChanges = len(changes)
	result.Changes = changes
	result.Duration = time.Since(start)

	m.log(ctx).WithFields(logger.Fields{
		"added":    result.FilesAdded,
		"modified": result.FilesModified,
		"deleted":  result.FilesDeleted,
		"duration": result.Duration.String(),
	}).Info("Monitor check completed")

	if m.starter != nil && m.cfg.AutoExtract && result.FilesAdded+result.FilesModified > 0 {
		run, err := m.starter.StartRun(ctx, domain.TriggerScheduled, "")
		if err != nil {
			// A concurrent run already covering the pending files is not a
			// monitor failure; the next poll picks them up.
			m.log(ctx).WithError(err).Warn("Could not trigger extraction run")
		} else {
			result.TriggeredRunID = run.ID
		}
	}

	return result, nil
}

// RecentChanges returns the newest change-log rows.
func (m *FileMonitor) RecentChanges(ctx context.Context, limit int) ([]domain.FileChangeLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return m.journal.ListRecent(ctx, limit)
}

var versionSuffix = regexp.MustCompile(`(?i)[ _-]v?\d+(\.\d+)*$`)

// DeriveEntityName maps a workbook file name to the business entity it
// models: extension stripped, version suffix dropped, underscores spaced.
func DeriveEntityName(fileName string) string {
	name := strings.TrimSuffix(fileName, path.Ext(fileName))
	name = versionSuffix.ReplaceAllString(name, "")
	name = strings.ReplaceAll(name, "_", " ")
	return strings.TrimSpace(name)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/halvard/modelwatch/internal/domain"
	"github.com/halvard/modelwatch/internal/extractor"
	"github.com/halvard/modelwatch/internal/logger"
	"golang.org/x/sync/errgroup"
)

// ErrRunActive is returned when a run start is attempted while another run
// is active for the same scope.
var ErrRunActive = errors.New("an extraction run is already active for this scope")

// ErrRunInFlight is returned when resume is attempted on a run this process
// is still working on.
var ErrRunInFlight = errors.New("extraction run is currently in flight")

// RunStore is the persistence surface for extraction runs.
// Implemented by repository.RunRepository.
type RunStore interface {
	Create(ctx context.Context, run *domain.ExtractionRun) error
	Update(ctx context.Context, run *domain.ExtractionRun) error
	GetByID(ctx context.Context, id string) (*domain.ExtractionRun, error)
	GetActive(ctx context.Context, scope string) (*domain.ExtractionRun, error)
	ListHistory(ctx context.Context, limit int) ([]domain.ExtractionRun, error)
}

// ValueWriter is the write side of the EAV store.
// Implemented by repository.ValueRepository.
type ValueWriter interface {
	BulkInsert(ctx context.Context, values []domain.ExtractedValue) error
}

// BlobStore is the download boundary of the remote model store.
type BlobStore interface {
	Download(ctx context.Context, path string) (io.ReadCloser, error)
}

// ExtractionService coordinates the extraction pipeline: it downloads each
// changed file, invokes the external extractor, applies the change detector's
// skip decision, writes EAV rows, and tracks per-file outcomes on the run
// record. All mutation of a run's row goes through the orchestrator instance
// that owns it.
type ExtractionService struct {
	runs      RunStore
	values    ValueWriter
	files     FileInventory
	store     BlobStore
	extractor extractor.Extractor
	detector  *ChangeDetector
	resolver  EntityResolver
	logger    *logger.Logger
	workers   int

	mu     sync.Mutex
	active map[string]*runHandle
}

// runHandle carries the live cancellation flag for an in-flight run.
// The flag is the only authoritative in-memory state.
type runHandle struct {
	cancelled atomic.Bool
}

// ExtractionOptions holds configuration for the extraction service.
type ExtractionOptions struct {
	Workers int
}

// NewExtractionService creates a new extraction orchestrator.
func NewExtractionService(
	runs RunStore,
	values ValueWriter,
	files FileInventory,
	store BlobStore,
	ext extractor.Extractor,
	detector *ChangeDetector,
	resolver EntityResolver,
	log *logger.Logger,
	opts *ExtractionOptions,
) *ExtractionService {
	workers := 4
	if opts != nil && opts.Workers > 0 {
		workers = opts.Workers
	}
	if resolver == nil {
		resolver = NoopResolver{}
	}
	return &ExtractionService{
		runs:      runs,
		values:    values,
		files:     files,
		store:     store,
		extractor: ext,
		detector:  detector,
		resolver:  resolver,
		logger:    log,
		workers:   workers,
		active:    make(map[string]*runHandle),
	}
}

func (s *ExtractionService) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

// StartRun creates a run over the currently pending files and processes it
// out-of-band. Returns ErrRunActive when a run is already running for the
// scope; concurrent triggers are serialized, never silently duplicated.
func (s *ExtractionService) StartRun(ctx context.Context, trigger domain.TriggerType, scope string) (*domain.ExtractionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.runs.GetActive(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to check for active run: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: run %s", ErrRunActive, existing.ID)
	}

	files, err := s.files.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending files: %w", err)
	}

	run := &domain.ExtractionRun{
		ID:              uuid.New().String(),
		Status:          domain.RunStatusRunning,
		TriggerType:     trigger,
		Scope:           scope,
		StartedAt:       time.Now().UTC(),
		FilesDiscovered: len(files),
		FileStatuses:    domain.FileStatusMap{},
		FileMetadata:    domain.FileMetadataMap{},
	}
	// Seed every discovered file as pending so an interrupted run exposes
	// its unfinished subset for resume.
	for _, f := range files {
		run.FileStatuses[f.Path] = domain.FileStatus{Status: domain.FileStatusPending}
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.active[run.ID] = &runHandle{}

	go func() {
		bg := logger.SetRunID(context.Background(), run.ID)
		if _, err := s.RunExtraction(bg, run, files); err != nil {
			s.log(bg).WithError(err).Error("Extraction run ended with run-level fault")
		}
	}()

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldRunID: run.ID,
		"files":           len(files),
		"trigger":         string(trigger),
	}).Info("Extraction run started")

	return run, nil
}

// RunExtraction processes the given files under the run with bounded
// concurrency. A single file's failure never aborts the run; the run fails
// only on a run-level fault (database unavailable, invariant violation).
func (s *ExtractionService) RunExtraction(ctx context.Context, run *domain.ExtractionRun, files []domain.MonitoredFile) (*RunMetrics, error) {
	handle := s.ensureHandle(run.ID)
	defer s.releaseHandle(run.ID)

	metrics := NewRunMetrics(run.ID)

	// Single-writer merge of the run row: workers finish out of order but
	// counter and status-map updates are applied atomically per file.
	var stateMu sync.Mutex

	// Entities already written in this run. A second file mapping to the
	// same entity fails with duplicate_entity instead of racing the unique
	// index or silently overwriting.
	written := make(map[string]string)
	var writtenMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i := range files {
		if handle.cancelled.Load() {
			break // stop dispatching; started files run to completion
		}
		file := files[i]
		g.Go(func() error {
			out := s.processFile(gctx, run.ID, &file, written, &writtenMu, metrics)
			if out.fatal != nil {
				return out.fatal
			}
			stateMu.Lock()
			run.MergeFileStatus(file.Path, out.status, out.meta)
			err := s.runs.Update(gctx, run)
			stateMu.Unlock()
			if err != nil {
				return fmt.Errorf("failed to persist run progress: %w", err)
			}
			return nil
		})
	}

	waitErr := g.Wait()
	metrics.Finish()
	now := time.Now().UTC()

	if waitErr != nil {
		if err := run.Fail(now, waitErr.Error()); err != nil {
			return metrics, err
		}
		if err := s.runs.Update(ctx, run); err != nil {
			s.log(ctx).WithError(err).Error("Failed to persist failed run state")
		}
		s.emitMetrics(ctx, run, metrics)
		return metrics, waitErr
	}

	var transitionErr error
	if handle.cancelled.Load() {
		transitionErr = run.Cancel(now)
	} else {
		transitionErr = run.Complete(now)
	}
	if transitionErr != nil {
		return metrics, transitionErr
	}
	if err := s.runs.Update(ctx, run); err != nil {
		return metrics, fmt.Errorf("failed to persist run completion: %w", err)
	}

	s.emitMetrics(ctx, run, metrics)
	return metrics, nil
}

// fileOutcome is the result of processing one file. fatal is set only for
// run-level faults that must abort the whole run.
type fileOutcome struct {
	status domain.FileStatus
	meta   *domain.FileMetadata
	fatal  error
}

func failedOutcome(category, msg string, duration time.Duration) fileOutcome {
	return fileOutcome{
		status: domain.FileStatus{Status: domain.FileStatusFailed, Error: category + ": " + msg},
		meta:   &domain.FileMetadata{DurationMs: duration.Milliseconds()},
	}
}

func (s *ExtractionService) processFile(ctx context.Context, runID string, file *domain.MonitoredFile, written map[string]string, writtenMu *sync.Mutex, metrics *RunMetrics) fileOutcome {
	start := time.Now()
	log := s.log(ctx).WithField(logger.FieldFilePath, file.Path)

	reader, err := s.store.Download(ctx, file.Path)
	if err != nil {
		log.WithError(err).Error("Failed to download file")
		metrics.RecordFailed(time.Since(start), extractor.CategoryDownloadError)
		return failedOutcome(extractor.CategoryDownloadError, err.Error(), time.Since(start))
	}

	result, err := s.extractor.Extract(ctx, file.Path, reader)
	reader.Close()
	if err != nil {
		log.WithError(err).Error("Failed to extract file")
		metrics.RecordFailed(time.Since(start), extractor.CategoryExtractionError)
		return failedOutcome(extractor.CategoryExtractionError, err.Error(), time.Since(start))
	}

	entity := result.EntityName()
	if entity == "" {
		entity = file.EntityName
	}
	if entity == "" {
		entity = DeriveEntityName(file.Name)
	}
	log = log.WithField(logger.FieldEntity, entity)

	fields := make(map[string]interface{}, len(result.Fields))
	for name, fv := range result.Fields {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		fields[name] = fv.Value
	}

	decision, err := s.detector.Decide(ctx, entity, fields)
	if err != nil {
		// A read failure here means the database is unhealthy; that is a
		// run-level fault, not a property of this file.
		return fileOutcome{fatal: fmt.Errorf("change detection for %s: %w", file.Path, err)}
	}
	if !decision.Extract {
		log.Debug("Entity unchanged, skipping")
		metrics.RecordSkipped()
		return fileOutcome{
			status: domain.FileStatus{Status: domain.FileStatusSkipped},
			meta:   &domain.FileMetadata{DurationMs: time.Since(start).Milliseconds()},
		}
	}

	// Reserved only once the file is actually going to write, so a file
	// skipped as unchanged never blocks a later file for the same entity.
	writtenMu.Lock()
	if prev, dup := written[entity]; dup {
		writtenMu.Unlock()
		log.WithField("previous_file", prev).Warn("Entity already written by another file in this run")
		metrics.RecordFailed(time.Since(start), extractor.CategoryDuplicateEntity)
		return failedOutcome(extractor.CategoryDuplicateEntity,
			fmt.Sprintf("entity %q already written by %s", entity, prev), time.Since(start))
	}
	written[entity] = file.Path
	writtenMu.Unlock()

	dealID, err := s.resolver.ResolveEntity(ctx, entity)
	if err != nil {
		log.WithError(err).Warn("Entity resolution failed, continuing without deal link")
		dealID = ""
	}

	rows := buildValueRows(runID, entity, dealID, file.Path, result)
	if err := s.values.BulkInsert(ctx, rows); err != nil {
		// Duplicate keys signal a logic defect and any other insert failure
		// means the store is unhealthy; both abort the run.
		return fileOutcome{fatal: fmt.Errorf("bulk insert for %s: %w", file.Path, err)}
	}

	now := time.Now().UTC()
	if err := s.files.MarkExtracted(ctx, file.Path, runID, now); err != nil {
		log.WithError(err).Warn("Failed to clear extraction-pending flag")
	}

	duration := time.Since(start)
	errCats := make(map[string]int, len(result.Errors))
	for _, cat := range result.Errors {
		errCats[cat]++
	}
	metrics.RecordCompleted(duration, len(rows), errCats)

	log.WithFields(logger.Fields{
		"reason":      decision.Reason,
		"values":      len(rows),
		"field_errs":  len(result.Errors),
		"duration_ms": duration.Milliseconds(),
	}).Info("File extracted")

	return fileOutcome{
		status: domain.FileStatus{Status: domain.FileStatusCompleted},
		meta: &domain.FileMetadata{
			DurationMs: duration.Milliseconds(),
			ValueCount: len(rows),
			ErrorCount: len(result.Errors),
		},
	}
}

// buildValueRows converts an extractor result into EAV rows. Field-level
// errors become rows with is_error set so provenance is preserved per field.
func buildValueRows(runID, entity, dealID, sourcePath string, result *extractor.Result) []domain.ExtractedValue {
	rows := make([]domain.ExtractedValue, 0, len(result.Fields)+len(result.Errors))
	now := time.Now().UTC()

	for name, fv := range result.Fields {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		row := domain.ExtractedValue{
			ID:         uuid.New().String(),
			RunID:      runID,
			EntityName: entity,
			DealID:     dealID,
			FieldName:  name,
			Category:   fv.Category,
			SheetName:  fv.Sheet,
			CellRef:    fv.Cell,
			ValueText:  NormalizeValue(fv.Value),
			SourcePath: sourcePath,
			CreatedAt:  now,
		}
		switch v := fv.Value.(type) {
		case float64:
			n := RoundNumeric(v)
			row.ValueNumeric = &n
		case float32:
			n := RoundNumeric(float64(v))
			row.ValueNumeric = &n
		case int:
			n := float64(v)
			row.ValueNumeric = &n
		case int64:
			n := float64(v)
			row.ValueNumeric = &n
		case time.Time:
			t := v.UTC()
			row.ValueDate = &t
		}
		rows = append(rows, row)
	}

	for name, category := range result.Errors {
		rows = append(rows, domain.ExtractedValue{
			ID:            uuid.New().String(),
			RunID:         runID,
			EntityName:    entity,
			DealID:        dealID,
			FieldName:     name,
			ValueText:     "",
			IsError:       true,
			ErrorCategory: category,
			SourcePath:    sourcePath,
			CreatedAt:     now,
		})
	}

	return rows
}

// Cancel flags an in-flight run for cancellation; work already started
// finishes, no new files are dispatched. For an orphaned running run (e.g.
// after a crash) the row is transitioned directly.
func (s *ExtractionService) Cancel(ctx context.Context, runID string) error {
	s.mu.Lock()
	handle, inFlight := s.active[runID]
	s.mu.Unlock()

	if inFlight {
		handle.cancelled.Store(true)
		s.log(ctx).WithField(logger.FieldRunID, runID).Info("Extraction run flagged for cancellation")
		return nil
	}

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}
	if err := run.Cancel(time.Now().UTC()); err != nil {
		return err
	}
	return s.runs.Update(ctx, run)
}

// Resume reprocesses the unfinished subset of a run that was interrupted
// before reaching a terminal status. Completed, skipped, and failed files
// are not reprocessed.
func (s *ExtractionService) Resume(ctx context.Context, runID string) (*domain.ExtractionRun, error) {
	s.mu.Lock()
	_, inFlight := s.active[runID]
	s.mu.Unlock()
	if inFlight {
		return nil, ErrRunInFlight
	}

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot resume %s run", domain.ErrRunTerminal, run.Status)
	}

	var pending []string
	for path, st := range run.FileStatuses {
		if st.Status == domain.FileStatusPending {
			pending = append(pending, path)
		}
	}
	files, err := s.files.ListByPaths(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending files: %w", err)
	}

	s.mu.Lock()
	s.active[run.ID] = &runHandle{}
	s.mu.Unlock()

	go func() {
		bg := logger.SetRunID(context.Background(), run.ID)
		if _, err := s.RunExtraction(bg, run, files); err != nil {
			s.log(bg).WithError(err).Error("Resumed extraction run ended with run-level fault")
		}
	}()

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldRunID: run.ID,
		"resumed_files":   len(files),
	}).Info("Extraction run resumed")

	return run, nil
}

// RunStatusInfo is the externally visible view of a run.
type RunStatusInfo struct {
	RunID           string                 `json:"run_id"`
	Status          domain.RunStatus       `json:"status"`
	TriggerType     domain.TriggerType     `json:"trigger_type"`
	FilesDiscovered int                    `json:"files_discovered"`
	FilesProcessed  int                    `json:"files_processed"`
	FilesFailed     int                    `json:"files_failed"`
	FilesSkipped    int                    `json:"files_skipped"`
	SuccessRate     float64                `json:"success_rate"`
	DurationSeconds float64                `json:"duration_seconds"`
	ErrorSummary    string                 `json:"error_summary,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	FileStatuses    domain.FileStatusMap   `json:"file_statuses,omitempty"`
	FileMetadata    domain.FileMetadataMap `json:"file_metadata,omitempty"`
}

// GetStatus returns the true current state of a run, including partial
// progress on a run still in flight.
func (s *ExtractionService) GetStatus(ctx context.Context, runID string) (*RunStatusInfo, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	return statusInfo(run), nil
}

// ListHistory returns recent runs, newest first.
func (s *ExtractionService) ListHistory(ctx context.Context, limit int) ([]RunStatusInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	runs, err := s.runs.ListHistory(ctx, limit)
	if err != nil {
		return nil, err
	}
	infos := make([]RunStatusInfo, 0, len(runs))
	for i := range runs {
		info := statusInfo(&runs[i])
		info.FileStatuses = nil // keep history payloads small
		info.FileMetadata = nil
		infos = append(infos, *info)
	}
	return infos, nil
}

func statusInfo(run *domain.ExtractionRun) *RunStatusInfo {
	return &RunStatusInfo{
		RunID:           run.ID,
		Status:          run.Status,
		TriggerType:     run.TriggerType,
		FilesDiscovered: run.FilesDiscovered,
		FilesProcessed:  run.FilesProcessed,
		FilesFailed:     run.FilesFailed,
		FilesSkipped:    run.FilesSkipped,
		SuccessRate:     run.SuccessRate(),
		DurationSeconds: run.DurationSeconds(time.Now().UTC()),
		ErrorSummary:    run.ErrorSummary,
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
		FileStatuses:    run.FileStatuses,
		FileMetadata:    run.FileMetadata,
	}
}

func (s *ExtractionService) ensureHandle(runID string) *runHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.active[runID]; ok {
		return h
	}
	h := &runHandle{}
	s.active[runID] = h
	return h
}

func (s *ExtractionService) releaseHandle(runID string) {
	s.mu.Lock()
	delete(s.active, runID)
	s.mu.Unlock()
}

func (s *ExtractionService) emitMetrics(ctx context.Context, run *domain.ExtractionRun, metrics *RunMetrics) {
	snap := metrics.Snapshot()
	logger.With(logger.Fields{
		logger.FieldRunID:      run.ID,
		logger.FieldStatus:     string(run.Status),
		logger.FieldDurationMs: snap.DurationMs,
	}).Info(ctx, "Extraction run finished: processed=%d, failed=%d, skipped=%d, values=%d",
		snap.FilesProcessed, snap.FilesFailed, snap.FilesSkipped, snap.ValuesWritten)
}

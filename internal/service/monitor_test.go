package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/halvard/modelwatch/internal/domain"
	"github.com/halvard/modelwatch/internal/logger"
	"github.com/halvard/modelwatch/internal/repository"
	"github.com/halvard/modelwatch/internal/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeLister serves a fixed remote listing.
type fakeLister struct {
	files []storage.RemoteFile
	err   error
}

func (f *fakeLister) List(_ context.Context, _ string) ([]storage.RemoteFile, error) {
	return f.files, f.err
}

// fakeInventory is an in-memory FileInventory.
type fakeInventory struct {
	mu    sync.Mutex
	files map[string]*domain.MonitoredFile
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{files: make(map[string]*domain.MonitoredFile)}
}

func (f *fakeInventory) ListActive(_ context.Context) ([]domain.MonitoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.MonitoredFile
	for _, file := range f.files {
		if file.IsActive {
			out = append(out, *file)
		}
	}
	return out, nil
}

func (f *fakeInventory) ListPending(_ context.Context) ([]domain.MonitoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.MonitoredFile
	for _, file := range f.files {
		if file.IsActive && file.ExtractionPending {
			out = append(out, *file)
		}
	}
	return out, nil
}

func (f *fakeInventory) ListByPaths(_ context.Context, paths []string) ([]domain.MonitoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.MonitoredFile
	for _, p := range paths {
		if file, ok := f.files[p]; ok {
			out = append(out, *file)
		}
	}
	return out, nil
}

func (f *fakeInventory) GetByPath(_ context.Context, path string) (*domain.MonitoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[path]
	if !ok {
		return nil, nil
	}
	clone := *file
	return &clone, nil
}

func (f *fakeInventory) Create(_ context.Context, file *domain.MonitoredFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[file.Path]; ok {
		return fmt.Errorf("UNIQUE constraint failed: monitored_files.path (%s)", file.Path)
	}
	clone := *file
	f.files[file.Path] = &clone
	return nil
}

func (f *fakeInventory) Update(_ context.Context, file *domain.MonitoredFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *file
	f.files[file.Path] = &clone
	return nil
}

func (f *fakeInventory) Deactivate(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[path]; ok {
		file.IsActive = false
		file.ExtractionPending = false
	}
	return nil
}

func (f *fakeInventory) MarkExtracted(_ context.Context, path, runID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[path]; ok {
		file.ExtractionPending = false
		file.LastRunID = runID
		file.LastExtractedAt = &at
	}
	return nil
}

func (f *fakeInventory) get(path string) *domain.MonitoredFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[path]
}

// fakeJournal records change-log batches.
type fakeJournal struct {
	mu      sync.Mutex
	entries []domain.FileChangeLog
}

func (f *fakeJournal) CreateBatch(_ context.Context, entries []domain.FileChangeLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeJournal) ListRecent(_ context.Context, limit int) ([]domain.FileChangeLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.entries) {
		limit = len(f.entries)
	}
	out := make([]domain.FileChangeLog, limit)
	copy(out, f.entries[len(f.entries)-limit:])
	return out, nil
}

func newTestMonitor(lister *fakeLister, inv *fakeInventory, journal *fakeJournal) *FileMonitor {
	return NewFileMonitor(lister, inv, journal, logger.GetDefault(), MonitorConfig{RootPrefix: "models/"})
}

func TestCheckForChangesNewFiles(t *testing.T) {
	mod := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{files: []storage.RemoteFile{
		{Path: "models/main_street_plaza_v2.xlsx", Name: "main_street_plaza_v2.xlsx", SizeBytes: 1000, ModifiedAt: mod},
		{Path: "models/oak_ridge.xlsx", Name: "oak_ridge.xlsx", SizeBytes: 2000, ModifiedAt: mod},
	}}
	inv := newFakeInventory()
	journal := &fakeJournal{}
	m := newTestMonitor(lister, inv, journal)

	result, err := m.CheckForChanges(context.Background())
	if err != nil {
		t.Fatalf("CheckForChanges returned error: %v", err)
	}
	if result.FilesAdded != 2 || result.FilesModified != 0 || result.FilesDeleted != 0 {
		t.Errorf("got added=%d modified=%d deleted=%d, want 2/0/0",
			result.FilesAdded, result.FilesModified, result.FilesDeleted)
	}

	file := inv.get("models/main_street_plaza_v2.xlsx")
	if file == nil {
		t.Fatal("new file was not persisted")
	}
	if !file.ExtractionPending {
		t.Error("new file should be flagged extraction-pending")
	}
	if file.EntityName != "main street plaza" {
		t.Errorf("derived entity = %q, want %q", file.EntityName, "main street plaza")
	}
}

func TestCheckForChangesModified(t *testing.T) {
	oldMod := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	newMod := oldMod.Add(48 * time.Hour)
	lister := &fakeLister{files: []storage.RemoteFile{
		{Path: "models/oak_ridge.xlsx", Name: "oak_ridge.xlsx", SizeBytes: 1050, ModifiedAt: newMod},
	}}
	inv := newFakeInventory()
	inv.Create(context.Background(), &domain.MonitoredFile{
		ID: "f1", Path: "models/oak_ridge.xlsx", Name: "oak_ridge.xlsx",
		SizeBytes: 1000, ModifiedAt: oldMod, IsActive: true,
	})
	journal := &fakeJournal{}
	m := newTestMonitor(lister, inv, journal)

	result, err := m.CheckForChanges(context.Background())
	if err != nil {
		t.Fatalf("CheckForChanges returned error: %v", err)
	}
	if result.FilesModified != 1 {
		t.Fatalf("modified = %d, want 1", result.FilesModified)
	}

	change := result.Changes[0]
	if change.ChangeType != domain.ChangeTypeModified {
		t.Errorf("change type = %q, want %q", change.ChangeType, domain.ChangeTypeModified)
	}
	if change.OldSizeBytes == nil || *change.OldSizeBytes != 1000 {
		t.Errorf("old size = %v, want 1000", change.OldSizeBytes)
	}
	if change.NewSizeBytes == nil || *change.NewSizeBytes != 1050 {
		t.Errorf("new size = %v, want 1050", change.NewSizeBytes)
	}

	file := inv.get("models/oak_ridge.xlsx")
	if file.SizeBytes != 1050 || !file.ModifiedAt.Equal(newMod) {
		t.Error("tracked state was not advanced to the remote state")
	}
	if !file.ExtractionPending {
		t.Error("modified file should be flagged extraction-pending")
	}
}

func TestCheckForChangesDeleted(t *testing.T) {
	lister := &fakeLister{}
	inv := newFakeInventory()
	inv.Create(context.Background(), &domain.MonitoredFile{
		ID: "f1", Path: "models/gone.xlsx", Name: "gone.xlsx",
		SizeBytes: 500, ModifiedAt: time.Now().UTC(), IsActive: true,
	})
	journal := &fakeJournal{}
	m := newTestMonitor(lister, inv, journal)

	result, err := m.CheckForChanges(context.Background())
	if err != nil {
		t.Fatalf("CheckForChanges returned error: %v", err)
	}
	if result.FilesDeleted != 1 {
		t.Fatalf("deleted = %d, want 1", result.FilesDeleted)
	}

	// Deactivated, never removed: values extracted from it stay queryable.
	file := inv.get("models/gone.xlsx")
	if file == nil {
		t.Fatal("deleted file record was removed from the inventory")
	}
	if file.IsActive {
		t.Error("deleted file should be inactive")
	}
}

// TestCheckForChangesReappearingFile runs the monitor against the real
// sqlite-backed inventory across three checks: a file is added, disappears
// from the listing, then re-appears. The re-appearance must reactivate the
// existing row instead of tripping the path unique index with a second one.
func TestCheckForChangesReappearingFile(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	inv := repository.NewFileRepository(db)
	journal := repository.NewChangeLogRepository(db)

	mod := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	remote := storage.RemoteFile{Path: "models/oak_ridge.xlsx", Name: "oak_ridge.xlsx", SizeBytes: 2000, ModifiedAt: mod}
	lister := &fakeLister{files: []storage.RemoteFile{remote}}
	m := NewFileMonitor(lister, inv, journal, logger.GetDefault(), MonitorConfig{RootPrefix: "models/"})

	if _, err := m.CheckForChanges(context.Background()); err != nil {
		t.Fatalf("first check returned error: %v", err)
	}
	added, err := inv.GetByPath(context.Background(), remote.Path)
	if err != nil || added == nil {
		t.Fatalf("added file not persisted: file=%v err=%v", added, err)
	}

	lister.files = nil
	if _, err := m.CheckForChanges(context.Background()); err != nil {
		t.Fatalf("second check returned error: %v", err)
	}

	remote.SizeBytes = 2100
	remote.ModifiedAt = mod.Add(72 * time.Hour)
	lister.files = []storage.RemoteFile{remote}
	third, err := m.CheckForChanges(context.Background())
	if err != nil {
		t.Fatalf("third check returned error: %v", err)
	}
	if third.FilesAdded != 1 {
		t.Errorf("third check added = %d, want 1", third.FilesAdded)
	}

	file, err := inv.GetByPath(context.Background(), remote.Path)
	if err != nil || file == nil {
		t.Fatalf("re-appeared file not found: %v", err)
	}
	if file.ID != added.ID {
		t.Errorf("re-appearance created a new row %s, want reactivated %s", file.ID, added.ID)
	}
	if !file.IsActive || !file.ExtractionPending {
		t.Errorf("re-appeared file active=%v pending=%v, want true/true", file.IsActive, file.ExtractionPending)
	}
	if file.SizeBytes != 2100 || !file.ModifiedAt.Equal(remote.ModifiedAt) {
		t.Error("re-appeared file state was not refreshed from the listing")
	}

	var rowCount int64
	if err := db.Model(&domain.MonitoredFile{}).Count(&rowCount).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if rowCount != 1 {
		t.Errorf("monitored_files holds %d rows for one path, want 1", rowCount)
	}
}

// TestCheckForChangesIdempotent verifies that a second check over an
// unchanged listing writes no change rows
func TestCheckForChangesIdempotent(t *testing.T) {
	mod := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{files: []storage.RemoteFile{
		{Path: "models/oak_ridge.xlsx", Name: "oak_ridge.xlsx", SizeBytes: 1000, ModifiedAt: mod},
	}}
	inv := newFakeInventory()
	journal := &fakeJournal{}
	m := newTestMonitor(lister, inv, journal)

	if _, err := m.CheckForChanges(context.Background()); err != nil {
		t.Fatalf("first check returned error: %v", err)
	}
	second, err := m.CheckForChanges(context.Background())
	if err != nil {
		t.Fatalf("second check returned error: %v", err)
	}
	if second.TotalChanges != 0 {
		t.Errorf("second check recorded %d changes, want 0", second.TotalChanges)
	}
	if len(journal.entries) != 1 {
		t.Errorf("journal holds %d rows, want 1 (the initial add)", len(journal.entries))
	}
}

// TestCheckForChangesListingFailure verifies that a listing error aborts
// before any state is written
func TestCheckForChangesListingFailure(t *testing.T) {
	lister := &fakeLister{err: context.DeadlineExceeded}
	inv := newFakeInventory()
	inv.Create(context.Background(), &domain.MonitoredFile{
		ID: "f1", Path: "models/oak_ridge.xlsx", Name: "oak_ridge.xlsx",
		SizeBytes: 1000, ModifiedAt: time.Now().UTC(), IsActive: true,
	})
	journal := &fakeJournal{}
	m := newTestMonitor(lister, inv, journal)

	if _, err := m.CheckForChanges(context.Background()); err == nil {
		t.Fatal("expected error from failed listing")
	}
	if len(journal.entries) != 0 {
		t.Error("failed check must not write change rows")
	}
	if file := inv.get("models/oak_ridge.xlsx"); !file.IsActive {
		t.Error("failed check must not deactivate files")
	}
}

func TestDeriveEntityName(t *testing.T) {
	testCases := []struct {
		fileName string
		want     string
	}{
		{"main_street_plaza_v2.xlsx", "main street plaza"},
		{"oak_ridge.xlsx", "oak ridge"},
		{"Lakeview Apartments 2024.xlsx", "Lakeview Apartments"},
		{"tower-one-v1.2.xlsm", "tower-one"},
		{"plain", "plain"},
	}

	for _, tc := range testCases {
		t.Run(tc.fileName, func(t *testing.T) {
			if got := DeriveEntityName(tc.fileName); got != tc.want {
				t.Errorf("DeriveEntityName(%q) = %q, want %q", tc.fileName, got, tc.want)
			}
		})
	}
}

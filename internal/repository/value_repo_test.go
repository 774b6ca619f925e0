package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/halvard/modelwatch/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func seedRun(t *testing.T, db *gorm.DB, id string, status domain.RunStatus, startedAt time.Time) {
	t.Helper()
	run := &domain.ExtractionRun{
		ID:           id,
		Status:       status,
		TriggerType:  domain.TriggerManual,
		StartedAt:    startedAt,
		FileStatuses: domain.FileStatusMap{},
		FileMetadata: domain.FileMetadataMap{},
	}
	if err := NewRunRepository(db).Create(context.Background(), run); err != nil {
		t.Fatalf("failed to seed run %s: %v", id, err)
	}
}

func valueRow(id, runID, entity, field, text string) domain.ExtractedValue {
	return domain.ExtractedValue{
		ID:         id,
		RunID:      runID,
		EntityName: entity,
		FieldName:  field,
		ValueText:  text,
		SourcePath: "models/" + entity + ".xlsx",
		CreatedAt:  time.Now().UTC(),
	}
}

func TestBulkInsertAndReadBack(t *testing.T) {
	db := testDB(t)
	repo := NewValueRepository(db)
	ctx := context.Background()
	seedRun(t, db, "run-1", domain.RunStatusRunning, time.Now().UTC())

	rows := []domain.ExtractedValue{
		valueRow("v1", "run-1", "oak ridge", "noi", "1250000.0000"),
		valueRow("v2", "run-1", "oak ridge", "cap_rate", "0.0550"),
	}
	if err := repo.BulkInsert(ctx, rows); err != nil {
		t.Fatalf("BulkInsert returned error: %v", err)
	}

	count, err := repo.CountByRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("CountByRun returned error: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestBulkInsertRejectsDuplicateInBatch(t *testing.T) {
	db := testDB(t)
	repo := NewValueRepository(db)
	ctx := context.Background()
	seedRun(t, db, "run-1", domain.RunStatusRunning, time.Now().UTC())

	rows := []domain.ExtractedValue{
		valueRow("v1", "run-1", "oak ridge", "noi", "1250000.0000"),
		valueRow("v2", "run-1", "oak ridge", "noi", "9999999.0000"),
	}
	err := repo.BulkInsert(ctx, rows)
	if !errors.Is(err, ErrDuplicateValue) {
		t.Fatalf("err = %v, want ErrDuplicateValue", err)
	}

	// The whole batch must be rejected, not partially applied.
	count, _ := repo.CountByRun(ctx, "run-1")
	if count != 0 {
		t.Errorf("count = %d after rejected batch, want 0", count)
	}
}

func TestBulkInsertRejectsDuplicateAgainstExisting(t *testing.T) {
	db := testDB(t)
	repo := NewValueRepository(db)
	ctx := context.Background()
	seedRun(t, db, "run-1", domain.RunStatusRunning, time.Now().UTC())

	if err := repo.BulkInsert(ctx, []domain.ExtractedValue{
		valueRow("v1", "run-1", "oak ridge", "noi", "1250000.0000"),
	}); err != nil {
		t.Fatalf("first insert returned error: %v", err)
	}

	err := repo.BulkInsert(ctx, []domain.ExtractedValue{
		valueRow("v2", "run-1", "oak ridge", "noi", "1250000.0000"),
	})
	if !errors.Is(err, ErrDuplicateValue) {
		t.Fatalf("err = %v, want ErrDuplicateValue", err)
	}
}

func TestGetLatestCompletedValues(t *testing.T) {
	db := testDB(t)
	repo := NewValueRepository(db)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	// Older completed run, newer completed run, and a newest failed run.
	seedRun(t, db, "run-old", domain.RunStatusCompleted, base)
	seedRun(t, db, "run-new", domain.RunStatusCompleted, base.Add(time.Hour))
	seedRun(t, db, "run-bad", domain.RunStatusFailed, base.Add(2*time.Hour))

	inserts := []domain.ExtractedValue{
		valueRow("v1", "run-old", "oak ridge", "noi", "1000000.0000"),
		valueRow("v2", "run-new", "oak ridge", "noi", "1250000.0000"),
		valueRow("v3", "run-new", "oak ridge", "cap_rate", "0.0550"),
		valueRow("v4", "run-bad", "oak ridge", "noi", "9999999.0000"),
	}
	for _, row := range inserts {
		if err := repo.BulkInsert(ctx, []domain.ExtractedValue{row}); err != nil {
			t.Fatalf("seed insert failed: %v", err)
		}
	}

	values, err := repo.GetLatestCompletedValues(ctx, "oak ridge")
	if err != nil {
		t.Fatalf("GetLatestCompletedValues returned error: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("got %d rows, want 2", len(values))
	}
	// Rows from the failed run must never surface, regardless of recency.
	for _, v := range values {
		if v.RunID != "run-new" {
			t.Errorf("row %s came from run %s, want run-new", v.FieldName, v.RunID)
		}
	}
	// Ordered by field name for reproducible fingerprinting.
	if values[0].FieldName != "cap_rate" || values[1].FieldName != "noi" {
		t.Errorf("rows out of order: %s, %s", values[0].FieldName, values[1].FieldName)
	}
}

func TestGetLatestCompletedValuesNoCompletedRun(t *testing.T) {
	db := testDB(t)
	repo := NewValueRepository(db)
	ctx := context.Background()

	seedRun(t, db, "run-1", domain.RunStatusRunning, time.Now().UTC())
	if err := repo.BulkInsert(ctx, []domain.ExtractedValue{
		valueRow("v1", "run-1", "oak ridge", "noi", "1250000.0000"),
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	values, err := repo.GetLatestCompletedValues(ctx, "oak ridge")
	if err != nil {
		t.Fatalf("GetLatestCompletedValues returned error: %v", err)
	}
	if values != nil {
		t.Errorf("got %d rows from a running run, want none", len(values))
	}
}

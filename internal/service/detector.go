package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/halvard/modelwatch/internal/domain"
)

// Skip/extract decision reasons.
const (
	ReasonNewEntity   = "new_entity"
	ReasonDataChanged = "data_changed"
	ReasonUnchanged   = "unchanged"
)

// metadataPrefix marks extractor-internal field names excluded from
// fingerprints and persistence.
const metadataPrefix = "_"

// Decision is the outcome of comparing fresh fields against stored state.
type Decision struct {
	Extract bool   `json:"extract"`
	Reason  string `json:"reason"`
}

// StoredValueSource provides the persisted values used to recompute an
// entity's stored fingerprint. Implemented by repository.ValueRepository.
type StoredValueSource interface {
	GetLatestCompletedValues(ctx context.Context, entityName string) ([]domain.ExtractedValue, error)
}

// ChangeDetector decides whether an entity's freshly extracted record
// differs from the last persisted one, by comparing whole-record hashes.
// Comparing hashes makes the skip decision a single cheap read-and-compare
// and an all-or-nothing re-extract per entity.
type ChangeDetector struct {
	values StoredValueSource
}

// NewChangeDetector creates a detector backed by the given value source.
func NewChangeDetector(values StoredValueSource) *ChangeDetector {
	return &ChangeDetector{values: values}
}

// ComputeFingerprint hashes a field-value map into a SHA-256 hex digest.
// Metadata keys are dropped, values are normalized, and fields are sorted
// by name, so the same logical content always yields the same hash
// regardless of input ordering.
func ComputeFingerprint(fields map[string]interface{}) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		if strings.HasPrefix(name, metadataPrefix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(NormalizeValue(fields[name]))
		sb.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// StoredFingerprint recomputes the fingerprint for an entity from its most
// recent completed run, using the stored textual representation so the hash
// is reproducible purely from persisted state. The second return is false
// when no completed run has values for the entity.
func (d *ChangeDetector) StoredFingerprint(ctx context.Context, entityName string) (string, bool, error) {
	values, err := d.values.GetLatestCompletedValues(ctx, entityName)
	if err != nil {
		return "", false, fmt.Errorf("failed to load stored values: %w", err)
	}
	if len(values) == 0 {
		return "", false, nil
	}

	// Re-sorted here so the hash never depends on the database's ORDER BY
	// collation; sort.Slice compares byte-wise like the write path does.
	sort.Slice(values, func(i, j int) bool {
		return values[i].FieldName < values[j].FieldName
	})

	// Error rows carry no comparable value.
	var sb strings.Builder
	for _, v := range values {
		if v.IsError {
			continue
		}
		sb.WriteString(v.FieldName)
		sb.WriteByte('=')
		sb.WriteString(v.ValueText)
		sb.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:]), true, nil
}

// Decide compares the fresh fields' fingerprint against the stored one.
// No prior data means extract (new entity); a hash mismatch means extract
// (data changed); a match means skip.
func (d *ChangeDetector) Decide(ctx context.Context, entityName string, fields map[string]interface{}) (Decision, error) {
	stored, found, err := d.StoredFingerprint(ctx, entityName)
	if err != nil {
		return Decision{}, err
	}
	if !found {
		return Decision{Extract: true, Reason: ReasonNewEntity}, nil
	}
	if ComputeFingerprint(fields) != stored {
		return Decision{Extract: true, Reason: ReasonDataChanged}, nil
	}
	return Decision{Extract: false, Reason: ReasonUnchanged}, nil
}

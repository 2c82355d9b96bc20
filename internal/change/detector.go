// Package change classifies incoming records against the existing store as
// new, updated, unchanged, or deleted.
//
// Field equality is type-aware rather than naive: repeated exports of
// unchanged data routinely drift in representation (date formats, trailing
// zeros, casing, stray whitespace), and none of that should register as a
// change. Two paths are provided: a field-level detector that reports
// old/new values per changed field, and a content-fingerprint fast path
// (hash.go) for batch-scale classification.
package change

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/givemetry/importer/internal/schema"
)

// Type is the classification of one incoming record.
type Type string

const (
	New       Type = "new"
	Updated   Type = "updated"
	Unchanged Type = "unchanged"
	Deleted   Type = "deleted"
)

// DefaultEpsilon is the numeric comparison tolerance. Amounts round-trip
// through spreadsheets and pick up floating-point noise well below a cent.
const DefaultEpsilon = 1e-4

// FieldChange records one field-level difference.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// RecordChange is the classification of one record, with field detail when
// the field-level path produced it.
type RecordChange struct {
	ExternalID string
	Type       Type
	Fields     []FieldChange
}

// Summary aggregates a detection run.
type Summary struct {
	NewCount       int
	UpdatedCount   int
	UnchangedCount int
	DeletedCount   int
	Changes        []RecordChange
}

// Options controls a detection run.
type Options struct {
	// DetectDeletions reports persisted natural keys absent from the batch
	// as deleted. Off by default: it requires a full existing-key scan.
	DetectDeletions bool

	// Epsilon is the numeric equality tolerance. Zero means DefaultEpsilon.
	Epsilon float64
}

// Store is the read-only view of one entity kind's store the detector needs.
type Store interface {
	// FindByExternalIDs returns the entities whose natural key is in ids.
	FindByExternalIDs(ctx context.Context, tenantID uuid.UUID, ids []string) ([]schema.Entity, error)

	// AllExternalIDs returns every natural key persisted for the tenant.
	// Only called when deletion detection is on.
	AllExternalIDs(ctx context.Context, tenantID uuid.UUID) ([]string, error)
}

// Detector classifies incoming records for one entity kind.
type Detector struct {
	store Store
	kind  schema.EntityKind
	opts  Options
}

// NewDetector creates a Detector for the given entity kind.
func NewDetector(store Store, kind schema.EntityKind, opts Options) *Detector {
	if opts.Epsilon <= 0 {
		opts.Epsilon = DefaultEpsilon
	}
	return &Detector{store: store, kind: kind, opts: opts}
}

// DetectChanges classifies each incoming record at field granularity.
// The existing-key index is built once from the store, scoped to the keys
// present in the batch, and used read-only for the whole call.
func (d *Detector) DetectChanges(ctx context.Context, tenantID uuid.UUID, records []schema.Record) (*Summary, error) {
	existing, err := d.fetchExisting(ctx, tenantID, records)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		key := strings.TrimSpace(rec["externalId"])
		if key != "" {
			seen[key] = true
		}

		current, ok := existing[key]
		if key == "" || !ok {
			summary.NewCount++
			summary.Changes = append(summary.Changes, RecordChange{ExternalID: key, Type: New})
			continue
		}

		fields := d.diffFields(rec, current.Record)
		if len(fields) == 0 {
			summary.UnchangedCount++
			summary.Changes = append(summary.Changes, RecordChange{ExternalID: key, Type: Unchanged})
			continue
		}

		summary.UpdatedCount++
		summary.Changes = append(summary.Changes, RecordChange{ExternalID: key, Type: Updated, Fields: fields})
	}

	if d.opts.DetectDeletions {
		allKeys, err := d.store.AllExternalIDs(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("list existing keys: %w", err)
		}
		for _, key := range allKeys {
			if !seen[key] {
				summary.DeletedCount++
				summary.Changes = append(summary.Changes, RecordChange{ExternalID: key, Type: Deleted})
			}
		}
	}

	return summary, nil
}

// diffFields compares the incoming record's populated fields against the
// stored record. Fields the import does not carry, or carries as empty, are
// not differences: update payloads are sparse and an empty value means
// "leave unchanged".
func (d *Detector) diffFields(incoming schema.Record, current schema.Record) []FieldChange {
	var out []FieldChange
	for _, spec := range schema.Fields(d.kind) {
		newVal, ok := incoming[spec.Name]
		if !ok || strings.TrimSpace(newVal) == "" {
			continue
		}
		oldVal := current[spec.Name]
		if !ValuesEqual(spec.Type, oldVal, newVal, d.opts.Epsilon) {
			out = append(out, FieldChange{Field: spec.Name, Old: oldVal, New: newVal})
		}
	}
	return out
}

func (d *Detector) fetchExisting(ctx context.Context, tenantID uuid.UUID, records []schema.Record) (map[string]schema.Entity, error) {
	keySet := make(map[string]bool, len(records))
	var keys []string
	for _, rec := range records {
		if key := strings.TrimSpace(rec["externalId"]); key != "" && !keySet[key] {
			keySet[key] = true
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return map[string]schema.Entity{}, nil
	}

	entities, err := d.store.FindByExternalIDs(ctx, tenantID, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch existing records: %w", err)
	}

	out := make(map[string]schema.Entity, len(entities))
	for _, e := range entities {
		out[e.ExternalID] = e
	}
	return out, nil
}

// ValuesEqual reports type-aware equality of two raw field values:
//   - null/empty are mutually equivalent
//   - dates compare by instant regardless of representation
//   - numerics tolerate floating-point noise within epsilon
//   - booleans compare by parsed value
//   - strings compare case-insensitively after trimming
func ValuesEqual(ft schema.FieldType, a, b string, epsilon float64) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)

	if a == "" || b == "" {
		return a == "" && b == ""
	}

	switch ft {
	case schema.FieldDate:
		ta, okA := schema.ParseDate(a)
		tb, okB := schema.ParseDate(b)
		if okA && okB {
			return ta.Equal(tb)
		}
	case schema.FieldNumeric:
		fa, okA := schema.ParseAmount(a)
		fb, okB := schema.ParseAmount(b)
		if okA && okB {
			return math.Abs(fa-fb) < epsilon
		}
	case schema.FieldInt:
		na, okA := schema.ParseInt(a)
		nb, okB := schema.ParseInt(b)
		if okA && okB {
			return na == nb
		}
	case schema.FieldBool:
		ba, okA := schema.ParseBool(a)
		bb, okB := schema.ParseBool(b)
		if okA && okB {
			return ba == bb
		}
	}

	return strings.EqualFold(a, b)
}

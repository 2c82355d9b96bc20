package change

// hash.go implements the content-fingerprint fast path.
//
// RecordHash produces a stable hash over an entity's normalized canonical
// fields. Comparing stored and incoming hashes classifies a
// whole batch as create/update/skip without field-level diffing, trading
// diff detail for throughput on large imports.

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/givemetry/importer/internal/schema"
)

// RecordHash computes the content fingerprint of a record. It is invariant
// to field-order permutation and to case/whitespace-only edits, and changes
// whenever any canonical field's normalized value changes.
//
// The hash iterates the kind's full canonical field set, so a field carried
// with an empty value and the same field absent fingerprint identically: a
// re-export that drops an all-empty column must not reclassify unchanged
// rows. Keys outside the canonical set (storage ids, timestamps) never
// participate.
func RecordHash(kind schema.EntityKind, rec schema.Record) string {
	specs := schema.Fields(kind)
	names := make([]string, 0, len(specs))
	types := make(map[string]schema.FieldType, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
		types[spec.Name] = spec.Type
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(normalizeValue(types[name], rec[name]))
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// normalizeValue canonicalizes a raw value for hashing: dates become ISO
// instants, numerics lose formatting noise, strings are trimmed and
// lowercased, and anything unparseable falls back to the string rule.
func normalizeValue(ft schema.FieldType, v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}

	switch ft {
	case schema.FieldDate:
		if t, ok := schema.ParseDate(v); ok {
			return t.UTC().Format(time.RFC3339)
		}
	case schema.FieldNumeric:
		if f, ok := schema.ParseAmount(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	case schema.FieldInt:
		if n, ok := schema.ParseInt(v); ok {
			return strconv.Itoa(n)
		}
	case schema.FieldBool:
		if b, ok := schema.ParseBool(v); ok {
			return strconv.FormatBool(b)
		}
	}

	return strings.ToLower(v)
}

// HashClassification buckets a batch by fingerprint comparison.
type HashClassification struct {
	Creates []schema.Record // No existing record with the natural key
	Updates []schema.Record // Existing record with a different fingerprint
	Skips   int             // Existing record with an identical fingerprint
}

// ProcessIncrementalUpdates classifies a batch by comparing stored
// fingerprints against incoming ones. It replaces, rather than composes
// with, the field-level detector: at batch scale the per-field diff is not
// worth its cost, and the caller only needs create/update/skip buckets.
//
// Stored entities without a fingerprint get one computed from their stored
// record, so mixed-vintage stores classify correctly.
func (d *Detector) ProcessIncrementalUpdates(ctx context.Context, tenantID uuid.UUID, records []schema.Record) (*HashClassification, error) {
	existing, err := d.fetchExisting(ctx, tenantID, records)
	if err != nil {
		return nil, err
	}

	out := &HashClassification{}
	for _, rec := range records {
		key := strings.TrimSpace(rec["externalId"])
		current, ok := existing[key]
		if key == "" || !ok {
			out.Creates = append(out.Creates, rec)
			continue
		}

		currentHash := current.Hash
		if currentHash == "" {
			currentHash = RecordHash(d.kind, current.Record)
		}

		if RecordHash(d.kind, rec) == currentHash {
			out.Skips++
		} else {
			out.Updates = append(out.Updates, rec)
		}
	}

	return out, nil
}

// Package importer orchestrates batched imports of parsed, mapped rows into
// the persistence store for the three entity kinds.
//
// One pipeline shape serves constituents, gifts, and contacts: apply the
// confirmed field mapping, resolve references, validate, classify as create
// or update against a pre-fetched natural-key index, then write in batches
// with a fallback to individual writes so a single bad row cannot sink the
// rest of its batch. File-level structural problems abort before any write;
// everything else accumulates into the result.
package importer

import (
	"context"

	"github.com/google/uuid"

	"github.com/givemetry/importer/internal/schema"
)

// DefaultBatchSize is the number of rows processed per persistence batch.
const DefaultBatchSize = 100

// RowError is one row-addressable problem captured during an import.
// The import continues past it.
type RowError struct {
	Row        int    `json:"row"`                  // 1-based data row number
	Field      string `json:"field,omitempty"`      // Canonical field, when applicable
	ExternalID string `json:"externalId,omitempty"` // Natural key, when known
	Message    string `json:"message"`
}

// Result summarizes one import call.
type Result struct {
	ImportID uuid.UUID  `json:"importId"`
	Created  int        `json:"created"`
	Updated  int        `json:"updated"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors"`
}

// ProgressFunc is invoked after each batch with the number of rows processed
// so far and the total.
type ProgressFunc func(processed, total int)

// Options controls one importer instance.
type Options struct {
	// BatchSize is the number of rows per persistence batch. Zero means
	// DefaultBatchSize.
	BatchSize int

	// SkipUnchanged compares content fingerprints against the store and
	// counts identical re-imported rows as skipped instead of re-writing
	// them. Makes re-importing an unchanged file idempotent.
	SkipUnchanged bool

	// Progress, when set, receives (processed, total) after each batch.
	Progress ProgressFunc
}

// Update is a sparse update payload: only the canonical fields present and
// non-empty in the imported row. Fields absent from the payload are left
// unchanged, so a partial re-export never clobbers previously enriched data.
// ConstituentID carries the re-resolved owner for gift/contact rows; the
// zero UUID means "owner unchanged".
type Update struct {
	ID            uuid.UUID
	Fields        schema.Record
	ConstituentID uuid.UUID
}

// Store is the persistence surface one entity kind's importer writes to.
// Every operation is scoped by tenant id.
type Store interface {
	// FindByExternalIDs returns existing entities whose natural key is in
	// ids, including stored content fingerprints when available.
	FindByExternalIDs(ctx context.Context, tenantID uuid.UUID, ids []string) ([]schema.Entity, error)

	// BatchInsert inserts records in one statement, skipping conflicts on
	// the natural key.
	BatchInsert(ctx context.Context, tenantID uuid.UUID, payloads []Payload) error

	// Insert inserts a single record.
	Insert(ctx context.Context, tenantID uuid.UUID, payload Payload) error

	// BatchUpdate applies sparse updates as one transactional group.
	BatchUpdate(ctx context.Context, tenantID uuid.UUID, updates []Update) error

	// Update applies a single sparse update.
	Update(ctx context.Context, tenantID uuid.UUID, update Update) error
}

// ConstituentResolver resolves constituent natural keys to internal ids.
// Gift and contact imports use it to resolve the owning constituent for a
// whole batch in one call.
type ConstituentResolver interface {
	ResolveExternalIDs(ctx context.Context, tenantID uuid.UUID, externalIDs []string) (map[string]uuid.UUID, error)
}

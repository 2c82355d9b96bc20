package importer

// importer.go is the shared import engine. The per-kind constructors in
// kinds.go are thin instantiations of this one pipeline.

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/givemetry/importer/internal/change"
	"github.com/givemetry/importer/internal/mapping"
	"github.com/givemetry/importer/internal/parser"
	"github.com/givemetry/importer/internal/schema"
)

// Payload is one record ready for persistence. ConstituentID carries the
// resolved owning constituent for gift and contact rows; it is the zero
// UUID for constituent rows.
type Payload struct {
	Record        schema.Record
	ConstituentID uuid.UUID
}

// Importer runs batched imports for one entity kind.
type Importer struct {
	kind     schema.EntityKind
	store    Store
	resolver ConstituentResolver // nil for the constituent kind
	opts     Options
	log      *slog.Logger
}

func newImporter(kind schema.EntityKind, store Store, resolver ConstituentResolver, opts Options) *Importer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Importer{
		kind:     kind,
		store:    store,
		resolver: resolver,
		opts:     opts,
		log:      slog.Default().With("component", "importer", "kind", string(kind)),
	}
}

// workRow pairs a mapped record with everything the write phase needs.
type workRow struct {
	num           int // 1-based source data row
	rec           schema.Record
	externalID    string
	constituentID uuid.UUID
	existingID    uuid.UUID // set when classified as update
}

// Process imports parsed rows using a confirmed field mapping.
//
// An invalid mapping is fatal and aborts before any write. All row-level
// problems (validation failures, unresolved references, individual write
// failures) are accumulated on the result; the call itself fails only on
// infrastructure errors such as the pre-fetch queries failing.
func (im *Importer) Process(ctx context.Context, tenantID uuid.UUID, rows []parser.Row, fm mapping.FieldMapping) (*Result, error) {
	if v := mapping.Validate(fm, im.kind); !v.Valid {
		msgs := make([]string, 0, len(v.Errors))
		for _, issue := range v.Errors {
			msgs = append(msgs, issue.Field+": "+issue.Message)
		}
		return nil, fmt.Errorf("invalid field mapping: %s", strings.Join(msgs, "; "))
	}

	result := &Result{ImportID: uuid.New()}
	log := im.log.With("import_id", result.ImportID, "tenant_id", tenantID)
	log.Info("import started", "rows", len(rows))

	// The first occurrence of a natural key wins; later rows carrying the
	// same key would otherwise race it through the create/update writes and
	// inflate the counts.
	work := make([]workRow, 0, len(rows))
	firstRow := make(map[string]int)
	for _, row := range rows {
		rec := mapping.Apply(row.Values, fm)
		externalID := strings.TrimSpace(rec["externalId"])

		if externalID != "" {
			if first, dup := firstRow[externalID]; dup {
				result.Skipped++
				result.Errors = append(result.Errors, RowError{
					Row:        row.Number,
					Field:      "externalId",
					ExternalID: externalID,
					Message:    fmt.Sprintf("duplicate natural key, first seen on row %d", first),
				})
				continue
			}
			firstRow[externalID] = row.Number
		}

		work = append(work, workRow{
			num:        row.Number,
			rec:        rec,
			externalID: externalID,
		})
	}

	// Both indexes are built once per import call, used read-only
	// throughout, and discarded at the end.
	resolved, err := im.resolveReferences(ctx, tenantID, work)
	if err != nil {
		return nil, err
	}
	existing, err := im.fetchExisting(ctx, tenantID, work)
	if err != nil {
		return nil, err
	}

	total := len(work)
	processed := 0

	for start := 0; start < total; start += im.opts.BatchSize {
		end := start + im.opts.BatchSize
		if end > total {
			end = total
		}

		im.processBatch(ctx, tenantID, work[start:end], resolved, existing, result)

		processed = end
		if im.opts.Progress != nil {
			im.opts.Progress(processed, total)
		}
	}

	log.Info("import finished",
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

// processBatch runs the per-row pipeline for one batch and persists its
// creates and updates.
func (im *Importer) processBatch(
	ctx context.Context,
	tenantID uuid.UUID,
	batch []workRow,
	resolved map[string]uuid.UUID,
	existing map[string]schema.Entity,
	result *Result,
) {
	var creates []workRow
	var updates []workRow

	for _, w := range batch {
		// Resolve the owning constituent for gift/contact rows. An empty
		// reference falls through to schema validation, which reports the
		// missing required field.
		if im.resolver != nil {
			ref := strings.TrimSpace(w.rec["constituentExternalId"])
			if ref != "" {
				id, ok := resolved[ref]
				if !ok {
					result.Skipped++
					result.Errors = append(result.Errors, RowError{
						Row:        w.num,
						Field:      "constituentExternalId",
						ExternalID: w.externalID,
						Message:    fmt.Sprintf("constituent %q not found in tenant", ref),
					})
					continue
				}
				w.constituentID = id
			}
		}

		if errs := schema.ValidateRecord(im.kind, w.rec); len(errs) > 0 {
			result.Skipped++
			for _, ve := range errs {
				result.Errors = append(result.Errors, RowError{
					Row:        w.num,
					Field:      ve.Field,
					ExternalID: w.externalID,
					Message:    ve.Message,
				})
			}
			continue
		}

		current, exists := schema.Entity{}, false
		if w.externalID != "" {
			current, exists = existing[w.externalID]
		}

		if !exists {
			creates = append(creates, w)
			continue
		}

		if im.opts.SkipUnchanged {
			currentHash := current.Hash
			if currentHash == "" {
				currentHash = change.RecordHash(im.kind, current.Record)
			}
			if change.RecordHash(im.kind, w.rec) == currentHash {
				result.Skipped++
				continue
			}
		}

		w.existingID = current.ID
		updates = append(updates, w)
	}

	result.Created += writeBulkhead(ctx, creates,
		func(ctx context.Context, items []workRow) error {
			return im.store.BatchInsert(ctx, tenantID, payloads(items))
		},
		func(ctx context.Context, item workRow) error {
			return im.store.Insert(ctx, tenantID, payload(item))
		},
		func(item workRow, err error) {
			result.Skipped++
			result.Errors = append(result.Errors, RowError{
				Row:        item.num,
				ExternalID: item.externalID,
				Message:    fmt.Sprintf("insert failed: %v", err),
			})
		},
	)

	result.Updated += writeBulkhead(ctx, updates,
		func(ctx context.Context, items []workRow) error {
			return im.store.BatchUpdate(ctx, tenantID, sparseUpdates(items))
		},
		func(ctx context.Context, item workRow) error {
			return im.store.Update(ctx, tenantID, sparseUpdate(item))
		},
		func(item workRow, err error) {
			result.Skipped++
			result.Errors = append(result.Errors, RowError{
				Row:        item.num,
				ExternalID: item.externalID,
				Message:    fmt.Sprintf("update failed: %v", err),
			})
		},
	)
}

// resolveReferences builds the external-id to internal-id index for the
// whole call with a single resolver round-trip. Constituent imports have no
// references to resolve.
func (im *Importer) resolveReferences(ctx context.Context, tenantID uuid.UUID, work []workRow) (map[string]uuid.UUID, error) {
	if im.resolver == nil {
		return nil, nil
	}

	refSet := make(map[string]bool)
	var refs []string
	for _, w := range work {
		if ref := strings.TrimSpace(w.rec["constituentExternalId"]); ref != "" && !refSet[ref] {
			refSet[ref] = true
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return map[string]uuid.UUID{}, nil
	}

	resolved, err := im.resolver.ResolveExternalIDs(ctx, tenantID, refs)
	if err != nil {
		return nil, fmt.Errorf("resolve constituent references: %w", err)
	}
	return resolved, nil
}

// fetchExisting builds the natural-key index for the whole call, scoped to
// the keys present in the batch rather than the whole store.
func (im *Importer) fetchExisting(ctx context.Context, tenantID uuid.UUID, work []workRow) (map[string]schema.Entity, error) {
	keySet := make(map[string]bool)
	var keys []string
	for _, w := range work {
		if w.externalID != "" && !keySet[w.externalID] {
			keySet[w.externalID] = true
			keys = append(keys, w.externalID)
		}
	}
	if len(keys) == 0 {
		return map[string]schema.Entity{}, nil
	}

	entities, err := im.store.FindByExternalIDs(ctx, tenantID, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch existing records: %w", err)
	}

	out := make(map[string]schema.Entity, len(entities))
	for _, e := range entities {
		out[e.ExternalID] = e
	}
	return out, nil
}

func payload(w workRow) Payload {
	return Payload{Record: w.rec, ConstituentID: w.constituentID}
}

func payloads(items []workRow) []Payload {
	out := make([]Payload, len(items))
	for i, w := range items {
		out[i] = payload(w)
	}
	return out
}

// sparseUpdate builds an update payload containing only the non-empty
// canonical fields of the imported row. An empty value means "leave
// unchanged", never "clear": partial re-exports must not overwrite fields
// enriched elsewhere (wealth screening, officer assignment).
func sparseUpdate(w workRow) Update {
	fields := make(schema.Record, len(w.rec))
	for name, v := range w.rec {
		if strings.TrimSpace(v) != "" {
			fields[name] = v
		}
	}
	return Update{ID: w.existingID, Fields: fields, ConstituentID: w.constituentID}
}

func sparseUpdates(items []workRow) []Update {
	out := make([]Update, len(items))
	for i, w := range items {
		out[i] = sparseUpdate(w)
	}
	return out
}

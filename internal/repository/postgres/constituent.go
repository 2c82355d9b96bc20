package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/givemetry/importer/internal/change"
	"github.com/givemetry/importer/internal/importer"
	"github.com/givemetry/importer/internal/schema"
)

const constituentColumns = `id, external_id, fields, record_hash, updated_at`

// ConstituentRepository persists constituent anchor records. It serves the
// importer's write path, the duplicate matcher's lookups, and the change
// detector's key scans.
type ConstituentRepository struct {
	db DBTX
}

// NewConstituentRepository creates a repository on the given connection.
func NewConstituentRepository(db DBTX) *ConstituentRepository {
	return &ConstituentRepository{db: db}
}

// FindByExternalID returns the constituent with the given natural key, or
// nil when absent.
func (r *ConstituentRepository) FindByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*schema.Entity, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+constituentColumns+` FROM constituents WHERE tenant_id = $1 AND external_id = $2`,
		tenantID, externalID)

	e, err := scanEntity(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find constituent by external id: %w", err)
	}
	return &e, nil
}

// FindByExternalIDs returns constituents whose natural key is in ids.
func (r *ConstituentRepository) FindByExternalIDs(ctx context.Context, tenantID uuid.UUID, ids []string) ([]schema.Entity, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+constituentColumns+` FROM constituents WHERE tenant_id = $1 AND external_id = ANY($2)`,
		tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("find constituents by external ids: %w", err)
	}
	return collectEntities(rows)
}

// FindByEmail returns all constituents sharing the email, case-insensitively.
func (r *ConstituentRepository) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) ([]schema.Entity, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+constituentColumns+` FROM constituents WHERE tenant_id = $1 AND email = $2`,
		tenantID, strings.ToLower(email))
	if err != nil {
		return nil, fmt.Errorf("find constituents by email: %w", err)
	}
	return collectEntities(rows)
}

// FindByEmails returns constituents whose email is in emails.
func (r *ConstituentRepository) FindByEmails(ctx context.Context, tenantID uuid.UUID, emails []string) ([]schema.Entity, error) {
	lowered := make([]string, len(emails))
	for i, e := range emails {
		lowered[i] = strings.ToLower(e)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+constituentColumns+` FROM constituents WHERE tenant_id = $1 AND email = ANY($2)`,
		tenantID, lowered)
	if err != nil {
		return nil, fmt.Errorf("find constituents by emails: %w", err)
	}
	return collectEntities(rows)
}

// FindByLastNamePrefix returns constituents whose last name starts with the
// prefix, case-insensitively. Bounds the matcher's fuzzy search. LIKE
// metacharacters in the prefix match themselves, not wildcards.
func (r *ConstituentRepository) FindByLastNamePrefix(ctx context.Context, tenantID uuid.UUID, prefix string) ([]schema.Entity, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+constituentColumns+` FROM constituents WHERE tenant_id = $1 AND last_name LIKE $2 || '%'`,
		tenantID, escapeLike(strings.ToLower(prefix)))
	if err != nil {
		return nil, fmt.Errorf("find constituents by last name prefix: %w", err)
	}
	return collectEntities(rows)
}

// AllExternalIDs returns every natural key persisted for the tenant.
func (r *ConstituentRepository) AllExternalIDs(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT external_id FROM constituents WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list constituent external ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ResolveExternalIDs maps natural keys to internal ids for reference
// resolution during gift and contact imports.
func (r *ConstituentRepository) ResolveExternalIDs(ctx context.Context, tenantID uuid.UUID, externalIDs []string) (map[string]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT external_id, id FROM constituents WHERE tenant_id = $1 AND external_id = ANY($2)`,
		tenantID, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve constituent external ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uuid.UUID, len(externalIDs))
	for rows.Next() {
		var externalID string
		var id uuid.UUID
		if err := rows.Scan(&externalID, &id); err != nil {
			return nil, err
		}
		out[externalID] = id
	}
	return out, rows.Err()
}

// BatchInsert inserts all payloads in one multi-row statement inside a
// transaction. A natural-key conflict rolls the whole batch back and
// surfaces as an error, so the caller can retry rows individually and
// count only the rows that actually landed.
func (r *ConstituentRepository) BatchInsert(ctx context.Context, tenantID uuid.UUID, payloads []importer.Payload) error {
	if len(payloads) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO constituents (id, tenant_id, external_id, last_name, email, fields, record_hash) VALUES `)

	args := make([]any, 0, len(payloads)*7)
	for i, p := range payloads {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 7
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)

		fieldsJSON, err := marshalFields(p.Record)
		if err != nil {
			return err
		}
		args = append(args,
			newID(), tenantID,
			strings.TrimSpace(p.Record["externalId"]),
			strings.ToLower(strings.TrimSpace(p.Record["lastName"])),
			strings.ToLower(strings.TrimSpace(p.Record["email"])),
			fieldsJSON,
			change.RecordHash(schema.Constituents, p.Record),
		)
	}
	sb.WriteString(` ON CONFLICT (tenant_id, external_id) DO NOTHING`)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("batch insert constituents: %w", err)
	}
	if tag.RowsAffected() != int64(len(payloads)) {
		return fmt.Errorf("batch insert constituents: %d of %d rows conflict on natural key",
			int64(len(payloads))-tag.RowsAffected(), len(payloads))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit inserts: %w", err)
	}
	return nil
}

// Insert inserts a single constituent.
func (r *ConstituentRepository) Insert(ctx context.Context, tenantID uuid.UUID, p importer.Payload) error {
	fieldsJSON, err := marshalFields(p.Record)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO constituents (id, tenant_id, external_id, last_name, email, fields, record_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		newID(), tenantID,
		strings.TrimSpace(p.Record["externalId"]),
		strings.ToLower(strings.TrimSpace(p.Record["lastName"])),
		strings.ToLower(strings.TrimSpace(p.Record["email"])),
		fieldsJSON,
		change.RecordHash(schema.Constituents, p.Record),
	)
	if err != nil {
		return fmt.Errorf("insert constituent: %w", err)
	}
	return nil
}

// BatchUpdate applies sparse updates as one transaction: either the whole
// group lands or none of it does, which is what lets the importer's
// bulkhead retry rows individually on failure.
func (r *ConstituentRepository) BatchUpdate(ctx context.Context, tenantID uuid.UUID, updates []importer.Update) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range updates {
		if err := r.applyUpdate(ctx, tx, tenantID, u); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit updates: %w", err)
	}
	return nil
}

// Update applies a single sparse update outside any transaction.
func (r *ConstituentRepository) Update(ctx context.Context, tenantID uuid.UUID, u importer.Update) error {
	return r.applyUpdate(ctx, r.db, tenantID, u)
}

// applyUpdate merges the sparse payload into the stored jsonb document and
// refreshes the extracted lookup columns. The stored fingerprint is cleared
// rather than recomputed: it depends on the merged document, and readers
// recompute missing fingerprints on demand.
func (r *ConstituentRepository) applyUpdate(ctx context.Context, db DBTX, tenantID uuid.UUID, u importer.Update) error {
	fieldsJSON, err := marshalFields(u.Fields)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx,
		`UPDATE constituents SET
			fields = fields || $3::jsonb,
			last_name = lower(COALESCE(NULLIF($4, ''), last_name)),
			email = lower(COALESCE(NULLIF($5, ''), email)),
			record_hash = NULL,
			updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, u.ID, fieldsJSON,
		strings.TrimSpace(u.Fields["lastName"]),
		strings.TrimSpace(u.Fields["email"]),
	)
	if err != nil {
		return fmt.Errorf("update constituent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("constituent %s not found in tenant", u.ID)
	}
	return nil
}

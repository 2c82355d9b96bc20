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

// typedColumn is one extracted, typed column kept alongside the jsonb
// document so downstream reporting can filter and aggregate without
// reparsing canonical string values. Unparseable or absent values store
// NULL.
type typedColumn struct {
	name  string
	value func(schema.Record) any
}

// ChildRepository persists records owned by a constituent. Gifts and
// contacts share the same storage shape, so one implementation serves both;
// only the table name, the entity kind, and the typed columns differ.
type ChildRepository struct {
	db    DBTX
	table string
	kind  schema.EntityKind
	typed []typedColumn
}

// NewGiftRepository creates the gift store.
func NewGiftRepository(db DBTX) *ChildRepository {
	return &ChildRepository{
		db:    db,
		table: "gifts",
		kind:  schema.Gifts,
		typed: giftTypedColumns,
	}
}

// NewContactRepository creates the contact-history store.
func NewContactRepository(db DBTX) *ChildRepository {
	return &ChildRepository{
		db:    db,
		table: "contacts",
		kind:  schema.Contacts,
		typed: contactTypedColumns,
	}
}

var giftTypedColumns = []typedColumn{
	{"amount", func(rec schema.Record) any { return schema.ToPgNumeric(rec["amount"]) }},
	{"gift_date", func(rec schema.Record) any { return schema.ToPgDate(rec["giftDate"]) }},
}

var contactTypedColumns = []typedColumn{
	{"contact_date", func(rec schema.Record) any { return schema.ToPgDate(rec["contactDate"]) }},
}

const childColumns = `id, external_id, fields, record_hash, updated_at`

// FindByExternalIDs returns records whose natural key is in ids. Rows
// imported without a natural key have a NULL external_id and are never
// returned here.
func (r *ChildRepository) FindByExternalIDs(ctx context.Context, tenantID uuid.UUID, ids []string) ([]schema.Entity, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+childColumns+` FROM `+r.table+` WHERE tenant_id = $1 AND external_id = ANY($2)`,
		tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("find %s by external ids: %w", r.table, err)
	}
	return collectEntities(rows)
}

// AllExternalIDs returns every non-null natural key persisted for the tenant.
func (r *ChildRepository) AllExternalIDs(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT external_id FROM `+r.table+` WHERE tenant_id = $1 AND external_id IS NOT NULL`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list %s external ids: %w", r.table, err)
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

// FindByConstituent returns all records owned by the given constituent.
func (r *ChildRepository) FindByConstituent(ctx context.Context, tenantID, constituentID uuid.UUID) ([]schema.Entity, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+childColumns+` FROM `+r.table+` WHERE tenant_id = $1 AND constituent_id = $2`,
		tenantID, constituentID)
	if err != nil {
		return nil, fmt.Errorf("find %s by constituent: %w", r.table, err)
	}
	return collectEntities(rows)
}

// insertColumns lists the insert column set: the shared shape plus this
// table's typed columns.
func (r *ChildRepository) insertColumns() string {
	cols := "id, tenant_id, constituent_id, external_id, fields, record_hash"
	for _, tc := range r.typed {
		cols += ", " + tc.name
	}
	return cols
}

func (r *ChildRepository) insertArgs(tenantID uuid.UUID, p importer.Payload) ([]any, error) {
	fieldsJSON, err := marshalFields(p.Record)
	if err != nil {
		return nil, err
	}

	args := make([]any, 0, 6+len(r.typed))
	args = append(args,
		newID(), tenantID, p.ConstituentID,
		nullableText(strings.TrimSpace(p.Record["externalId"])),
		fieldsJSON,
		change.RecordHash(r.kind, p.Record),
	)
	for _, tc := range r.typed {
		args = append(args, tc.value(p.Record))
	}
	return args, nil
}

// BatchInsert inserts all payloads in one multi-row statement inside a
// transaction. A natural-key conflict rolls the whole batch back and
// surfaces as an error, so the caller can retry rows individually and
// count only the rows that actually landed.
func (r *ChildRepository) BatchInsert(ctx context.Context, tenantID uuid.UUID, payloads []importer.Payload) error {
	if len(payloads) == 0 {
		return nil
	}

	width := 6 + len(r.typed)
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", r.table, r.insertColumns())

	args := make([]any, 0, len(payloads)*width)
	for i, p := range payloads {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := 0; j < width; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*width+j+1)
		}
		sb.WriteByte(')')

		rowArgs, err := r.insertArgs(tenantID, p)
		if err != nil {
			return err
		}
		args = append(args, rowArgs...)
	}
	sb.WriteString(` ON CONFLICT (tenant_id, external_id) DO NOTHING`)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("batch insert %s: %w", r.table, err)
	}
	if tag.RowsAffected() != int64(len(payloads)) {
		return fmt.Errorf("batch insert %s: %d of %d rows conflict on natural key",
			r.table, int64(len(payloads))-tag.RowsAffected(), len(payloads))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit inserts: %w", err)
	}
	return nil
}

// Insert inserts a single record. A natural-key conflict fails the insert.
func (r *ChildRepository) Insert(ctx context.Context, tenantID uuid.UUID, p importer.Payload) error {
	width := 6 + len(r.typed)
	placeholders := make([]string, width)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	args, err := r.insertArgs(tenantID, p)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			r.table, r.insertColumns(), strings.Join(placeholders, ", ")),
		args...)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", r.table, err)
	}
	return nil
}

// BatchUpdate applies sparse updates as one transaction.
func (r *ChildRepository) BatchUpdate(ctx context.Context, tenantID uuid.UUID, updates []importer.Update) error {
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
func (r *ChildRepository) Update(ctx context.Context, tenantID uuid.UUID, u importer.Update) error {
	return r.applyUpdate(ctx, r.db, tenantID, u)
}

func (r *ChildRepository) applyUpdate(ctx context.Context, db DBTX, tenantID uuid.UUID, u importer.Update) error {
	fieldsJSON, err := marshalFields(u.Fields)
	if err != nil {
		return err
	}

	// A zero ConstituentID means the update row carried no owner reference;
	// the stored owner is kept. Typed columns follow the sparse rule the
	// same way: a NULL extracted value keeps the stored one.
	var owner *uuid.UUID
	if u.ConstituentID != uuid.Nil {
		owner = &u.ConstituentID
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `UPDATE %s SET
		fields = fields || $3::jsonb,
		constituent_id = COALESCE($4, constituent_id),
		record_hash = NULL,
		updated_at = now()`, r.table)

	args := []any{tenantID, u.ID, fieldsJSON, owner}
	for _, tc := range r.typed {
		args = append(args, tc.value(u.Fields))
		fmt.Fprintf(&sb, ",\n\t\t%s = COALESCE($%d, %s)", tc.name, len(args), tc.name)
	}
	sb.WriteString("\n\t WHERE tenant_id = $1 AND id = $2")

	tag, err := db.Exec(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", r.table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s record %s not found in tenant", r.table, u.ID)
	}
	return nil
}

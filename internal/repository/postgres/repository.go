// Package postgres implements the persistence store on PostgreSQL via pgx.
//
// Canonical field values are stored as a jsonb document per record, with the
// columns the importer queries on (natural key, email, last name, owning
// constituent) extracted for indexing. Sparse updates use the jsonb merge
// operator, so fields absent from an update payload are left untouched at
// the storage level too.
//
// Every statement is scoped by tenant_id. Nothing in this package reads or
// writes across tenants.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/givemetry/importer/internal/schema"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Schema is the DDL for the record store. EnsureSchema applies it on
// startup; the statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS constituents (
	id          UUID PRIMARY KEY,
	tenant_id   UUID NOT NULL,
	external_id TEXT NOT NULL,
	last_name   TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL DEFAULT '',
	fields      JSONB NOT NULL DEFAULT '{}',
	record_hash TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS constituents_tenant_external_id
	ON constituents (tenant_id, external_id);
CREATE INDEX IF NOT EXISTS constituents_tenant_email
	ON constituents (tenant_id, email);
CREATE INDEX IF NOT EXISTS constituents_tenant_last_name
	ON constituents (tenant_id, last_name text_pattern_ops);

CREATE TABLE IF NOT EXISTS gifts (
	id             UUID PRIMARY KEY,
	tenant_id      UUID NOT NULL,
	constituent_id UUID NOT NULL REFERENCES constituents (id),
	external_id    TEXT,
	fields         JSONB NOT NULL DEFAULT '{}',
	record_hash    TEXT,
	amount         NUMERIC,
	gift_date      DATE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS gifts_tenant_external_id
	ON gifts (tenant_id, external_id);
CREATE INDEX IF NOT EXISTS gifts_tenant_constituent
	ON gifts (tenant_id, constituent_id);

CREATE TABLE IF NOT EXISTS contacts (
	id             UUID PRIMARY KEY,
	tenant_id      UUID NOT NULL,
	constituent_id UUID NOT NULL REFERENCES constituents (id),
	external_id    TEXT,
	fields         JSONB NOT NULL DEFAULT '{}',
	record_hash    TEXT,
	contact_date   DATE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS contacts_tenant_external_id
	ON contacts (tenant_id, external_id);
CREATE INDEX IF NOT EXISTS contacts_tenant_constituent
	ON contacts (tenant_id, constituent_id);
`

// EnsureSchema creates the record store tables and indexes if absent.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// marshalFields encodes a canonical record as jsonb input.
func marshalFields(rec schema.Record) ([]byte, error) {
	data, err := json.Marshal(map[string]string(rec))
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	return data, nil
}

// scanEntity reads one (id, external_id, fields, record_hash, updated_at)
// row into a schema.Entity.
func scanEntity(row pgx.Row) (schema.Entity, error) {
	var (
		e          schema.Entity
		externalID *string
		fieldsJSON []byte
		hash       *string
		updatedAt  time.Time
	)
	if err := row.Scan(&e.ID, &externalID, &fieldsJSON, &hash, &updatedAt); err != nil {
		return schema.Entity{}, err
	}

	if externalID != nil {
		e.ExternalID = *externalID
	}
	if hash != nil {
		e.Hash = *hash
	}
	e.UpdatedAt = updatedAt

	fields := make(map[string]string)
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
			return schema.Entity{}, fmt.Errorf("unmarshal fields: %w", err)
		}
	}
	e.Record = schema.Record(fields)

	return e, nil
}

// collectEntities drains a query result into entities.
func collectEntities(rows pgx.Rows) ([]schema.Entity, error) {
	defer rows.Close()

	var out []schema.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// escapeLike escapes the LIKE metacharacters %, _, and \ so user-derived
// text matches literally inside a pattern.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// nullableText returns nil for empty strings so the column stores NULL.
func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// newID generates an internal record id.
func newID() uuid.UUID { return uuid.New() }

// isNoRows reports whether a QueryRow scan found no matching row.
func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

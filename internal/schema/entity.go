package schema

import (
	"time"

	"github.com/google/uuid"
)

// Entity is a persisted canonical record as returned by the store.
//
// ExternalID is the tenant-scoped natural key that names the entity across
// repeated imports; ID is the internal storage id and never appears in
// source files. Record holds the canonical field values; Hash is the content
// fingerprint computed at write time, when available.
type Entity struct {
	ID         uuid.UUID
	ExternalID string
	Record     Record
	Hash       string
	UpdatedAt  time.Time
}

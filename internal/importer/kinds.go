package importer

// kinds.go instantiates the shared pipeline for the three entity kinds.
// Constituents are the anchor records; gifts and contacts reference their
// owning constituent by natural key and need a resolver.

import "github.com/givemetry/importer/internal/schema"

// NewConstituentImporter imports constituent anchor records.
func NewConstituentImporter(store Store, opts Options) *Importer {
	return newImporter(schema.Constituents, store, nil, opts)
}

// NewGiftImporter imports gift records. The resolver maps each row's
// constituentExternalId to the owning constituent's internal id; rows whose
// owner is not in the tenant are rejected as row errors.
func NewGiftImporter(store Store, resolver ConstituentResolver, opts Options) *Importer {
	return newImporter(schema.Gifts, store, resolver, opts)
}

// NewContactImporter imports contact-history records, resolved the same way
// as gifts.
func NewContactImporter(store Store, resolver ConstituentResolver, opts Options) *Importer {
	return newImporter(schema.Contacts, store, resolver, opts)
}

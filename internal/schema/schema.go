// Package schema defines the canonical record schemas for the three entity
// kinds the importer understands: constituents, gifts, and contacts.
//
// Source files arrive with arbitrary vendor column names; the mapping package
// projects them onto the fixed canonical field names defined here. Every
// canonical field carries a type and a required/recommended/optional rank
// that drives row validation before anything is written.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// EntityKind identifies one of the three importable record types.
type EntityKind string

const (
	Constituents EntityKind = "constituents"
	Gifts        EntityKind = "gifts"
	Contacts     EntityKind = "contacts"
)

// ParseEntityKind converts a string to an EntityKind.
func ParseEntityKind(s string) (EntityKind, error) {
	switch EntityKind(strings.ToLower(strings.TrimSpace(s))) {
	case Constituents:
		return Constituents, nil
	case Gifts:
		return Gifts, nil
	case Contacts:
		return Contacts, nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
}

// FieldType represents the expected data type for a canonical field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldDate
	FieldNumeric
	FieldBool
	FieldInt
)

// FieldSpec defines one canonical field of an entity kind.
type FieldSpec struct {
	Name        string    // Canonical field name, e.g. "externalId"
	Type        FieldType // Expected data type
	Required    bool      // Row is rejected when missing or empty
	Recommended bool      // Mapping validation warns when unmapped
}

// Record is a mapped canonical row: canonical field name -> raw string value.
// Values are still strings at this stage; typed conversion happens at
// validation and persistence time.
type Record map[string]string

// constituentFields follows the export layout of legacy advancement systems:
// identity, name parts, contact info, address, affiliation, and the
// wealth-screening fields that sparse updates must never clobber.
var constituentFields = []FieldSpec{
	{Name: "externalId", Type: FieldText, Required: true},
	{Name: "lastName", Type: FieldText, Required: true},
	{Name: "firstName", Type: FieldText, Recommended: true},
	{Name: "email", Type: FieldText, Recommended: true},
	{Name: "prefix", Type: FieldText},
	{Name: "middleName", Type: FieldText},
	{Name: "suffix", Type: FieldText},
	{Name: "phone", Type: FieldText},
	{Name: "addressLine1", Type: FieldText},
	{Name: "addressLine2", Type: FieldText},
	{Name: "city", Type: FieldText},
	{Name: "state", Type: FieldText},
	{Name: "postalCode", Type: FieldText},
	{Name: "country", Type: FieldText},
	{Name: "constituentType", Type: FieldText},
	{Name: "classYear", Type: FieldInt},
	{Name: "schoolCollege", Type: FieldText},
	{Name: "estimatedCapacity", Type: FieldNumeric},
	{Name: "capacitySource", Type: FieldText},
	{Name: "assignedOfficerId", Type: FieldText},
	{Name: "portfolioTier", Type: FieldText},
}

var giftFields = []FieldSpec{
	{Name: "constituentExternalId", Type: FieldText, Required: true},
	{Name: "amount", Type: FieldNumeric, Required: true},
	{Name: "giftDate", Type: FieldDate, Required: true},
	{Name: "externalId", Type: FieldText, Recommended: true},
	{Name: "giftType", Type: FieldText},
	{Name: "fundName", Type: FieldText},
	{Name: "fundCode", Type: FieldText},
	{Name: "campaign", Type: FieldText},
	{Name: "appeal", Type: FieldText},
	{Name: "recognitionAmount", Type: FieldNumeric},
	{Name: "isAnonymous", Type: FieldBool},
	{Name: "isMatching", Type: FieldBool},
	{Name: "matchingCompany", Type: FieldText},
	{Name: "tributeType", Type: FieldText},
	{Name: "tributeName", Type: FieldText},
}

var contactFields = []FieldSpec{
	{Name: "constituentExternalId", Type: FieldText, Required: true},
	{Name: "contactDate", Type: FieldDate, Required: true},
	{Name: "contactType", Type: FieldText, Required: true},
	{Name: "externalId", Type: FieldText, Recommended: true},
	{Name: "subject", Type: FieldText},
	{Name: "notes", Type: FieldText},
	{Name: "outcome", Type: FieldText},
	{Name: "nextAction", Type: FieldText},
	{Name: "nextActionDate", Type: FieldDate},
}

// Fields returns the canonical field specs for an entity kind.
// The returned slice must be treated as read-only.
func Fields(kind EntityKind) []FieldSpec {
	switch kind {
	case Constituents:
		return constituentFields
	case Gifts:
		return giftFields
	case Contacts:
		return contactFields
	default:
		return nil
	}
}

// Field looks up a single canonical field spec by name.
func Field(kind EntityKind, name string) (FieldSpec, bool) {
	for _, spec := range Fields(kind) {
		if spec.Name == name {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// RequiredFields returns the required canonical field names for a kind.
func RequiredFields(kind EntityKind) []string {
	var out []string
	for _, spec := range Fields(kind) {
		if spec.Required {
			out = append(out, spec.Name)
		}
	}
	return out
}

// OptionalFields returns the non-required canonical field names for a kind,
// sorted for stable presentation.
func OptionalFields(kind EntityKind) []string {
	var out []string
	for _, spec := range Fields(kind) {
		if !spec.Required {
			out = append(out, spec.Name)
		}
	}
	sort.Strings(out)
	return out
}

// RecommendedFields returns fields that mapping validation should warn about
// when left unmapped.
func RecommendedFields(kind EntityKind) []string {
	var out []string
	for _, spec := range Fields(kind) {
		if spec.Recommended {
			out = append(out, spec.Name)
		}
	}
	return out
}

// ValidationError describes one failed check on a mapped row.
type ValidationError struct {
	Field   string // Canonical field name
	Value   string // The offending value (empty for missing fields)
	Message string // Human-readable message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidateRecord checks a mapped record against the entity kind's schema and
// returns every violation, not just the first, so a rejected row can be fixed
// in one pass by the operator.
func ValidateRecord(kind EntityKind, rec Record) []ValidationError {
	var errs []ValidationError

	for _, spec := range Fields(kind) {
		raw := strings.TrimSpace(rec[spec.Name])

		if raw == "" {
			if spec.Required {
				errs = append(errs, ValidationError{
					Field:   spec.Name,
					Message: "required field is missing or empty",
				})
			}
			continue
		}

		switch spec.Type {
		case FieldDate:
			if _, ok := ParseDate(raw); !ok {
				errs = append(errs, ValidationError{
					Field:   spec.Name,
					Value:   raw,
					Message: "invalid date format (use YYYY-MM-DD or similar)",
				})
			}
		case FieldNumeric:
			if _, ok := ParseAmount(raw); !ok {
				errs = append(errs, ValidationError{
					Field:   spec.Name,
					Value:   raw,
					Message: "invalid number format",
				})
			}
		case FieldInt:
			if _, ok := ParseInt(raw); !ok {
				errs = append(errs, ValidationError{
					Field:   spec.Name,
					Value:   raw,
					Message: "invalid integer",
				})
			}
		case FieldBool:
			if _, ok := ParseBool(raw); !ok {
				errs = append(errs, ValidationError{
					Field:   spec.Name,
					Value:   raw,
					Message: "must be yes/no, true/false, or 1/0",
				})
			}
		}
	}

	return errs
}

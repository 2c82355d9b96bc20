// Package mapping infers, validates, and applies the projection from
// arbitrary source columns onto the canonical schema.
//
// Inference never asks the caller to eyeball raw scores: each (column,
// canonical field) pair gets a confidence from a fixed precedence of
// signals, and assignment is injective by construction via a sort-then-greedy
// pass over all scored pairs. Exact and near-exact matches always claim
// their target before weak token-overlap matches, regardless of column
// order in the file.
package mapping

import (
	"sort"
	"strings"
	"unicode"

	"github.com/givemetry/importer/internal/schema"
)

// Confidence levels per signal, in precedence order.
const (
	scoreExact     = 1.0
	scorePattern   = 0.95
	scoreSubstring = 0.7

	// Token-overlap scores scale into [tokenFloor, tokenCeil] by overlap ratio.
	tokenFloor = 0.3
	tokenCeil  = 0.6
)

// Default two-pass assignment thresholds. The first pass only assigns
// strong matches; the second mops up weak matches for still-unclaimed
// fields. Overridable via Config for callers that tune them.
const (
	DefaultStrongThreshold = 0.7
	DefaultWeakThreshold   = 0.3
)

// SkipField is the sentinel target meaning "deliberately not imported".
const SkipField = "skip"

// Config carries the overridable assignment thresholds.
type Config struct {
	StrongThreshold float64
	WeakThreshold   float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		StrongThreshold: DefaultStrongThreshold,
		WeakThreshold:   DefaultWeakThreshold,
	}
}

// FieldMapping maps source column names to canonical field names.
// A target of SkipField (or absence from the map) means the column is
// not imported.
type FieldMapping map[string]string

// Suggestion is the result of mapping inference for one header set.
type Suggestion struct {
	Mapping         FieldMapping       // Only confidently mapped columns
	Confidence      map[string]float64 // Per mapped column, in [0,1]
	UnmappedColumns []string           // Columns with no assigned field, in source order
	RequiredFields  []string           // Canonical required fields for the kind
	OptionalFields  []string           // Canonical optional fields for the kind
}

// Suggest infers a column-to-canonical-field mapping for the given entity
// kind. The returned mapping is injective: no two columns share a target.
func Suggest(columns []string, kind schema.EntityKind) Suggestion {
	return SuggestWithConfig(columns, kind, DefaultConfig())
}

type scoredPair struct {
	colIdx int
	column string
	field  string
	score  float64
}

// SuggestWithConfig is Suggest with caller-supplied thresholds.
func SuggestWithConfig(columns []string, kind schema.EntityKind, cfg Config) Suggestion {
	fields := schema.Fields(kind)

	// Score every (column, field) pair.
	var pairs []scoredPair
	for i, col := range columns {
		for _, spec := range fields {
			s := score(col, spec.Name)
			if s > 0 {
				pairs = append(pairs, scoredPair{colIdx: i, column: col, field: spec.Name, score: s})
			}
		}
	}

	// Sort by score descending; ties break by column order then field name
	// so assignment is deterministic.
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score > pairs[j].score
		}
		if pairs[i].colIdx != pairs[j].colIdx {
			return pairs[i].colIdx < pairs[j].colIdx
		}
		return pairs[i].field < pairs[j].field
	})

	mapping := make(FieldMapping)
	confidence := make(map[string]float64)
	claimedField := make(map[string]bool)
	assignedCol := make(map[string]bool)

	assign := func(threshold float64) {
		for _, p := range pairs {
			if p.score < threshold || assignedCol[p.column] || claimedField[p.field] {
				continue
			}
			mapping[p.column] = p.field
			confidence[p.column] = p.score
			assignedCol[p.column] = true
			claimedField[p.field] = true
		}
	}
	assign(cfg.StrongThreshold)
	assign(cfg.WeakThreshold)

	var unmapped []string
	for _, col := range columns {
		if !assignedCol[col] {
			unmapped = append(unmapped, col)
		}
	}

	return Suggestion{
		Mapping:         mapping,
		Confidence:      confidence,
		UnmappedColumns: unmapped,
		RequiredFields:  schema.RequiredFields(kind),
		OptionalFields:  schema.OptionalFields(kind),
	}
}

// score computes the confidence that a source column names a canonical field,
// using the strongest applicable signal.
func score(column, field string) float64 {
	normCol := Normalize(column)
	normField := Normalize(field)
	if normCol == "" {
		return 0
	}

	if normCol == normField {
		return scoreExact
	}

	if matchesPattern(field, normCol) {
		return scorePattern
	}

	if strings.Contains(normCol, normField) || strings.Contains(normField, normCol) {
		return scoreSubstring
	}

	if r := tokenOverlap(tokens(column), tokens(field)); r > 0 {
		return tokenFloor + (tokenCeil-tokenFloor)*r
	}

	return 0
}

// Normalize lowercases a name and strips everything that is not a letter or
// digit, collapsing snake_case, kebab-case, spaced, and camelCase variants
// to a single comparable form.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// tokens splits a name into lowercase words on punctuation, whitespace, and
// camelCase boundaries.
func tokens(name string) []string {
	var out []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r):
			if unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]) {
				flush()
			}
			cur.WriteRune(unicode.ToLower(r))
		case unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return out
}

// tokenOverlap returns the share of tokens the two names have in common,
// relative to the larger token set.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}

	common := 0
	for _, t := range b {
		if set[t] {
			common++
		}
	}
	if common == 0 {
		return 0
	}

	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	return float64(common) / float64(max)
}

// Issue is one problem found while validating a caller-supplied mapping.
type Issue struct {
	Field   string // Canonical field, when applicable
	Column  string // Source column, when applicable
	Message string
}

// ValidationResult reports mapping validation findings. Warnings do not
// block an import; errors do.
type ValidationResult struct {
	Valid    bool
	Errors   []Issue
	Warnings []Issue
}

// Validate checks a confirmed mapping for completeness and uniqueness
// against the entity kind's schema. Caller-supplied mappings can contain
// duplicates that inference never produces, so both are checked.
func Validate(mapping FieldMapping, kind schema.EntityKind) ValidationResult {
	result := ValidationResult{Valid: true}

	mappedTo := make(map[string][]string)
	for col, field := range mapping {
		if field == "" || field == SkipField {
			continue
		}
		if _, ok := schema.Field(kind, field); !ok {
			result.Valid = false
			result.Errors = append(result.Errors, Issue{
				Field:   field,
				Column:  col,
				Message: "unknown canonical field",
			})
			continue
		}
		mappedTo[field] = append(mappedTo[field], col)
	}

	for field, cols := range mappedTo {
		if len(cols) > 1 {
			sort.Strings(cols)
			result.Valid = false
			result.Errors = append(result.Errors, Issue{
				Field:   field,
				Message: "duplicate mapping: columns " + strings.Join(cols, ", ") + " all target this field",
			})
		}
	}

	for _, req := range schema.RequiredFields(kind) {
		if len(mappedTo[req]) == 0 {
			result.Valid = false
			result.Errors = append(result.Errors, Issue{
				Field:   req,
				Message: "missing required field",
			})
		}
	}

	for _, rec := range schema.RecommendedFields(kind) {
		if len(mappedTo[rec]) == 0 {
			result.Warnings = append(result.Warnings, Issue{
				Field:   rec,
				Message: "recommended field is not mapped",
			})
		}
	}

	return result
}

// Apply projects a source row onto canonical fields using a confirmed
// mapping. Columns mapped to SkipField, mapped to nothing, or absent from
// the row are omitted. Apply is a pure projection: no validation happens
// here.
func Apply(row map[string]string, mapping FieldMapping) schema.Record {
	rec := make(schema.Record, len(mapping))
	for col, field := range mapping {
		if field == "" || field == SkipField {
			continue
		}
		if v, ok := row[col]; ok {
			rec[field] = v
		}
	}
	return rec
}

// Package match resolves whether an incoming constituent record refers to a
// person already present in the tenant's store.
//
// Single-record checks run a short-circuiting cascade: an exact natural-key
// hit is decisive and returns immediately; an exact email hit is near
// decisive; otherwise a fuzzy name comparison runs against candidates
// sharing a short leading last-name substring, which bounds the search.
//
// Bulk checks intentionally perform only the exact natural-key and email
// stages (see CheckBulk). All scores are clamped to [0,1] and all lookups
// are scoped to one tenant.
package match

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/givemetry/importer/internal/schema"
)

// Match types reported on candidates.
const (
	MatchExact = "exact"
	MatchFuzzy = "fuzzy"
)

// Scores assigned by the exact stages of the cascade.
const (
	scoreExternalID = 1.0
	scoreEmail      = 0.95
)

// Name similarity weights. The last name dominates because first names vary
// far more across exports (nicknames, initials, blanks).
const (
	lastNameWeight  = 0.7
	firstNameWeight = 0.3
	nicknameBonus   = 0.2
)

// Config carries the overridable matching tunables.
type Config struct {
	// MinScore is the minimum similarity for a fuzzy candidate to be kept
	// and for IsDuplicate to be true. Default 0.7.
	MinScore float64

	// MaxCandidates bounds the returned candidate list. Default 5.
	MaxCandidates int

	// LastNamePrefixLen is the length of the leading last-name substring
	// used to bound the fuzzy search. Default 3.
	LastNamePrefixLen int
}

// DefaultConfig returns the standard matching tunables.
func DefaultConfig() Config {
	return Config{MinScore: 0.7, MaxCandidates: 5, LastNamePrefixLen: 3}
}

func (c Config) withDefaults() Config {
	if c.MinScore <= 0 {
		c.MinScore = 0.7
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 5
	}
	if c.LastNamePrefixLen <= 0 {
		c.LastNamePrefixLen = 3
	}
	return c
}

// Store is the read-only view of the constituent store the matcher needs.
// Every lookup is scoped by tenant id.
type Store interface {
	// FindByExternalID returns the constituent with the given natural key,
	// or nil when absent.
	FindByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*schema.Entity, error)

	// FindByEmail returns all constituents sharing the email,
	// case-insensitively.
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) ([]schema.Entity, error)

	// FindByLastNamePrefix returns constituents whose last name starts with
	// the prefix, case-insensitively.
	FindByLastNamePrefix(ctx context.Context, tenantID uuid.UUID, prefix string) ([]schema.Entity, error)

	// FindByExternalIDs returns constituents whose natural key is in ids.
	FindByExternalIDs(ctx context.Context, tenantID uuid.UUID, ids []string) ([]schema.Entity, error)

	// FindByEmails returns constituents whose email is in emails,
	// case-insensitively.
	FindByEmails(ctx context.Context, tenantID uuid.UUID, emails []string) ([]schema.Entity, error)
}

// Candidate is one plausible existing match for an incoming record.
type Candidate struct {
	ID            uuid.UUID
	ExternalID    string
	Score         float64  // Clamped to [0,1]
	MatchType     string   // MatchExact or MatchFuzzy
	MatchedFields []string // Fields that contributed to the match
}

// Result is the outcome of a duplicate check for one incoming record.
type Result struct {
	IsDuplicate bool
	Candidates  []Candidate // Sorted by score descending, bounded
	BestMatch   *Candidate  // Top candidate, nil when none
}

// Matcher runs duplicate checks against a tenant's constituent store.
type Matcher struct {
	store Store
	cfg   Config
}

// New creates a Matcher. Zero-valued config fields fall back to defaults.
func New(store Store, cfg Config) *Matcher {
	return &Matcher{store: store, cfg: cfg.withDefaults()}
}

// Check looks for existing constituents that plausibly are the same person
// as the incoming record. An exact natural-key hit short-circuits the
// cascade: it is returned alone with score 1.0 regardless of any name or
// email mismatch.
func (m *Matcher) Check(ctx context.Context, tenantID uuid.UUID, rec schema.Record) (*Result, error) {
	if externalID := strings.TrimSpace(rec["externalId"]); externalID != "" {
		existing, err := m.store.FindByExternalID(ctx, tenantID, externalID)
		if err != nil {
			return nil, fmt.Errorf("find by external id: %w", err)
		}
		if existing != nil {
			c := Candidate{
				ID:            existing.ID,
				ExternalID:    existing.ExternalID,
				Score:         scoreExternalID,
				MatchType:     MatchExact,
				MatchedFields: []string{"externalId"},
			}
			return &Result{IsDuplicate: true, Candidates: []Candidate{c}, BestMatch: &c}, nil
		}
	}

	var candidates []Candidate

	if email := strings.TrimSpace(rec["email"]); email != "" {
		hits, err := m.store.FindByEmail(ctx, tenantID, strings.ToLower(email))
		if err != nil {
			return nil, fmt.Errorf("find by email: %w", err)
		}
		for _, hit := range hits {
			candidates = append(candidates, Candidate{
				ID:            hit.ID,
				ExternalID:    hit.ExternalID,
				Score:         scoreEmail,
				MatchType:     MatchExact,
				MatchedFields: []string{"email"},
			})
		}
	}

	fuzzyCands, err := m.fuzzyNameCandidates(ctx, tenantID, rec)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, fuzzyCands...)

	return m.finish(candidates), nil
}

// fuzzyNameCandidates scores constituents sharing the incoming last name's
// leading substring. Candidates below the configured minimum are dropped.
func (m *Matcher) fuzzyNameCandidates(ctx context.Context, tenantID uuid.UUID, rec schema.Record) ([]Candidate, error) {
	lastName := strings.TrimSpace(rec["lastName"])
	if lastName == "" {
		return nil, nil
	}

	prefix := strings.ToLower(lastName)
	if runes := []rune(prefix); len(runes) > m.cfg.LastNamePrefixLen {
		prefix = string(runes[:m.cfg.LastNamePrefixLen])
	}

	pool, err := m.store.FindByLastNamePrefix(ctx, tenantID, prefix)
	if err != nil {
		return nil, fmt.Errorf("find by last name prefix: %w", err)
	}

	firstName := strings.TrimSpace(rec["firstName"])
	var out []Candidate
	for _, existing := range pool {
		s := NameSimilarity(
			firstName, lastName,
			existing.Record["firstName"], existing.Record["lastName"],
		)
		if s < m.cfg.MinScore {
			continue
		}
		out = append(out, Candidate{
			ID:            existing.ID,
			ExternalID:    existing.ExternalID,
			Score:         s,
			MatchType:     MatchFuzzy,
			MatchedFields: []string{"firstName", "lastName"},
		})
	}
	return out, nil
}

// finish deduplicates, ranks, and bounds a candidate list into a Result.
func (m *Matcher) finish(candidates []Candidate) *Result {
	// Keep the highest score per existing record.
	best := make(map[uuid.UUID]Candidate, len(candidates))
	for _, c := range candidates {
		if prev, ok := best[c.ID]; !ok || c.Score > prev.Score {
			best[c.ID] = c
		}
	}

	ranked := make([]Candidate, 0, len(best))
	for _, c := range best {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ExternalID < ranked[j].ExternalID
	})
	if len(ranked) > m.cfg.MaxCandidates {
		ranked = ranked[:m.cfg.MaxCandidates]
	}

	result := &Result{Candidates: ranked}
	if len(ranked) > 0 {
		top := ranked[0]
		result.BestMatch = &top
		result.IsDuplicate = top.Score >= m.cfg.MinScore
	}
	return result
}

// CheckBulk runs exact-only duplicate detection for a whole batch using at
// most two set-membership queries, keeping store round-trips sub-linear in
// batch size.
//
// Unlike Check, CheckBulk does not run the fuzzy name fallback: large
// imports can therefore admit near-duplicate persons that an interactive
// single check would flag. That asymmetry is a deliberate throughput
// trade-off; callers that need fuzzy coverage must check records
// individually.
func (m *Matcher) CheckBulk(ctx context.Context, tenantID uuid.UUID, recs []schema.Record) ([]Result, error) {
	idSet := make(map[string]bool)
	emailSet := make(map[string]bool)
	for _, rec := range recs {
		if id := strings.TrimSpace(rec["externalId"]); id != "" {
			idSet[id] = true
		}
		if email := strings.ToLower(strings.TrimSpace(rec["email"])); email != "" {
			emailSet[email] = true
		}
	}

	byID := make(map[string]schema.Entity)
	if len(idSet) > 0 {
		existing, err := m.store.FindByExternalIDs(ctx, tenantID, setToSlice(idSet))
		if err != nil {
			return nil, fmt.Errorf("find by external ids: %w", err)
		}
		for _, e := range existing {
			byID[e.ExternalID] = e
		}
	}

	byEmail := make(map[string][]schema.Entity)
	if len(emailSet) > 0 {
		existing, err := m.store.FindByEmails(ctx, tenantID, setToSlice(emailSet))
		if err != nil {
			return nil, fmt.Errorf("find by emails: %w", err)
		}
		for _, e := range existing {
			key := strings.ToLower(e.Record["email"])
			byEmail[key] = append(byEmail[key], e)
		}
	}

	results := make([]Result, len(recs))
	for i, rec := range recs {
		if id := strings.TrimSpace(rec["externalId"]); id != "" {
			if e, ok := byID[id]; ok {
				c := Candidate{
					ID:            e.ID,
					ExternalID:    e.ExternalID,
					Score:         scoreExternalID,
					MatchType:     MatchExact,
					MatchedFields: []string{"externalId"},
				}
				results[i] = Result{IsDuplicate: true, Candidates: []Candidate{c}, BestMatch: &c}
				continue
			}
		}

		var candidates []Candidate
		if email := strings.ToLower(strings.TrimSpace(rec["email"])); email != "" {
			for _, e := range byEmail[email] {
				candidates = append(candidates, Candidate{
					ID:            e.ID,
					ExternalID:    e.ExternalID,
					Score:         scoreEmail,
					MatchType:     MatchExact,
					MatchedFields: []string{"email"},
				})
			}
		}
		results[i] = *m.finish(candidates)
	}

	return results, nil
}

// NameSimilarity scores how likely two (first, last) name pairs name the
// same person, in [0,1]. An exact case-insensitive full-name match is 1.0.
// Otherwise the score is a weighted combination of per-component edit
// similarity, plus a bonus when the first names are a known
// formal-name/nickname pair.
func NameSimilarity(firstA, lastA, firstB, lastB string) float64 {
	fa := strings.ToLower(strings.TrimSpace(firstA))
	la := strings.ToLower(strings.TrimSpace(lastA))
	fb := strings.ToLower(strings.TrimSpace(firstB))
	lb := strings.ToLower(strings.TrimSpace(lastB))

	if fa == fb && la == lb {
		return 1.0
	}

	s := lastNameWeight*editSimilarity(la, lb) + firstNameWeight*editSimilarity(fa, fb)
	if isNicknamePair(fa, fb) {
		s += nicknameBonus
	}

	if s > 1 {
		s = 1
	}
	if s < 0 {
		s = 0
	}
	return s
}

// editSimilarity is 1 - editDistance/maxLen on already-lowercased input.
// Two empty strings are identical; one empty string matches nothing.
func editSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	d := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(d)/float64(maxLen)
}

func setToSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

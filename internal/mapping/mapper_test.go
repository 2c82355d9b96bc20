package mapping

import (
	"testing"

	"github.com/givemetry/importer/internal/schema"
)

// ----------------------------------------------------------------------------
// Normalize and tokens Tests
// ----------------------------------------------------------------------------

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"First Name", "firstname"},
		{"first_name", "firstname"},
		{"FIRST-NAME", "firstname"},
		{"firstName", "firstname"},
		{"  Email Address ", "emailaddress"},
		{"___", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTokens(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"giftDate", []string{"gift", "date"}},
		{"gift_date", []string{"gift", "date"}},
		{"Gift Date", []string{"gift", "date"}},
		{"DONORID", []string{"donorid"}},
	}

	for _, tt := range tests {
		got := tokens(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("tokens(%q) = %v, want %v", tt.input, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("tokens(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
			}
		}
	}
}

// ----------------------------------------------------------------------------
// Suggest Tests
// ----------------------------------------------------------------------------

func TestSuggest_ExactAndVariantHeaders(t *testing.T) {
	columns := []string{"External ID", "first_name", "LastName", "Email"}

	sug := Suggest(columns, schema.Constituents)

	want := map[string]string{
		"External ID": "externalId",
		"first_name":  "firstName",
		"LastName":    "lastName",
		"Email":       "email",
	}
	for col, field := range want {
		if got := sug.Mapping[col]; got != field {
			t.Errorf("Mapping[%q] = %q, want %q", col, got, field)
		}
		if sug.Confidence[col] < 0.9 {
			t.Errorf("Confidence[%q] = %g, want >= 0.9", col, sug.Confidence[col])
		}
	}
	if len(sug.UnmappedColumns) != 0 {
		t.Errorf("UnmappedColumns = %v, want none", sug.UnmappedColumns)
	}
}

func TestSuggest_AbbreviatedHeaders(t *testing.T) {
	// Vendor exports with terse headers still map via known abbreviation
	// patterns at near-exact confidence.
	columns := []string{"KEYID", "FIRSTNM", "LASTNM"}

	sug := Suggest(columns, schema.Constituents)

	want := map[string]string{
		"KEYID":   "externalId",
		"FIRSTNM": "firstName",
		"LASTNM":  "lastName",
	}
	for col, field := range want {
		if got := sug.Mapping[col]; got != field {
			t.Errorf("Mapping[%q] = %q, want %q", col, got, field)
		}
		if c := sug.Confidence[col]; c < 0.9 || c >= 1.0 {
			t.Errorf("Confidence[%q] = %g, want in [0.9, 1.0)", col, c)
		}
	}
}

func TestSuggest_Injective(t *testing.T) {
	// Two name-ish columns cannot claim the same canonical field.
	columns := []string{"Last Name", "Surname", "Family Name"}

	sug := Suggest(columns, schema.Constituents)

	targets := make(map[string]string)
	for col, field := range sug.Mapping {
		if prev, dup := targets[field]; dup {
			t.Errorf("field %q claimed by both %q and %q", field, prev, col)
		}
		targets[field] = col
	}
}

func TestSuggest_UnmappedColumnsInSourceOrder(t *testing.T) {
	columns := []string{"zzz_internal_code", "Email", "qqq_legacy_flag"}

	sug := Suggest(columns, schema.Constituents)

	if sug.Mapping["Email"] != "email" {
		t.Errorf("Email mapped to %q, want email", sug.Mapping["Email"])
	}
	if len(sug.UnmappedColumns) != 2 {
		t.Fatalf("UnmappedColumns = %v, want 2 entries", sug.UnmappedColumns)
	}
	if sug.UnmappedColumns[0] != "zzz_internal_code" || sug.UnmappedColumns[1] != "qqq_legacy_flag" {
		t.Errorf("UnmappedColumns = %v, want source order preserved", sug.UnmappedColumns)
	}
}

func TestSuggest_TwoPassPrefersStrongMatch(t *testing.T) {
	// "Donor Email Address" is a weaker match for email than the exact
	// "Email" column; the exact one must claim the field no matter the
	// column order.
	columns := []string{"Donor Email Address", "Email"}

	sug := Suggest(columns, schema.Constituents)

	if sug.Mapping["Email"] != "email" {
		t.Errorf("Mapping[Email] = %q, want email", sug.Mapping["Email"])
	}
	if sug.Confidence["Email"] != 1.0 {
		t.Errorf("Confidence[Email] = %g, want 1.0", sug.Confidence["Email"])
	}
}

func TestSuggest_GiftColumns(t *testing.T) {
	columns := []string{"Donor ID", "Gift Amount", "Gift Date", "Fund"}

	sug := Suggest(columns, schema.Gifts)

	want := map[string]string{
		"Donor ID":    "constituentExternalId",
		"Gift Amount": "amount",
		"Gift Date":   "giftDate",
		"Fund":        "fundName",
	}
	for col, field := range want {
		if got := sug.Mapping[col]; got != field {
			t.Errorf("Mapping[%q] = %q, want %q", col, got, field)
		}
	}
}

func TestSuggest_RequiredAndOptionalFieldsReported(t *testing.T) {
	sug := Suggest([]string{"Email"}, schema.Constituents)

	foundRequired := false
	for _, f := range sug.RequiredFields {
		if f == "externalId" {
			foundRequired = true
		}
	}
	if !foundRequired {
		t.Errorf("RequiredFields = %v, want externalId present", sug.RequiredFields)
	}
	if len(sug.OptionalFields) == 0 {
		t.Error("OptionalFields should not be empty for constituents")
	}
}

// ----------------------------------------------------------------------------
// Validate Tests
// ----------------------------------------------------------------------------

func TestValidate_Valid(t *testing.T) {
	fm := FieldMapping{
		"ID":        "externalId",
		"Last":      "lastName",
		"First":     "firstName",
		"Email":     "email",
		"Internal":  SkipField,
		"AlsoNoMap": "",
	}

	res := Validate(fm, schema.Constituents)
	if !res.Valid {
		t.Fatalf("Validate() = invalid, errors: %+v", res.Errors)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %+v, want none", res.Errors)
	}
}

func TestValidate_UnknownField(t *testing.T) {
	fm := FieldMapping{
		"ID":   "externalId",
		"Last": "lastName",
		"X":    "notAField",
	}

	res := Validate(fm, schema.Constituents)
	if res.Valid {
		t.Fatal("Validate() = valid, want invalid")
	}
	found := false
	for _, e := range res.Errors {
		if e.Field == "notAField" {
			found = true
		}
	}
	if !found {
		t.Errorf("Errors = %+v, want unknown field notAField reported", res.Errors)
	}
}

func TestValidate_DuplicateMapping(t *testing.T) {
	fm := FieldMapping{
		"ID":      "externalId",
		"Last":    "lastName",
		"Surname": "lastName",
	}

	res := Validate(fm, schema.Constituents)
	if res.Valid {
		t.Fatal("Validate() = valid, want invalid for duplicate mapping")
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	fm := FieldMapping{"Email": "email"}

	res := Validate(fm, schema.Constituents)
	if res.Valid {
		t.Fatal("Validate() = valid, want invalid for missing required fields")
	}

	missing := make(map[string]bool)
	for _, e := range res.Errors {
		missing[e.Field] = true
	}
	if !missing["externalId"] || !missing["lastName"] {
		t.Errorf("Errors = %+v, want externalId and lastName reported missing", res.Errors)
	}
}

func TestValidate_RecommendedWarnings(t *testing.T) {
	fm := FieldMapping{
		"ID":   "externalId",
		"Last": "lastName",
	}

	res := Validate(fm, schema.Constituents)
	if !res.Valid {
		t.Fatalf("Validate() = invalid, errors: %+v", res.Errors)
	}
	if len(res.Warnings) == 0 {
		t.Error("want warnings for unmapped recommended fields (firstName, email)")
	}
}

// ----------------------------------------------------------------------------
// Apply Tests
// ----------------------------------------------------------------------------

func TestApply(t *testing.T) {
	fm := FieldMapping{
		"ID":       "externalId",
		"Last":     "lastName",
		"Internal": SkipField,
		"Gone":     "email",
	}
	row := map[string]string{
		"ID":       "C-100",
		"Last":     "Smith",
		"Internal": "x",
		"Extra":    "ignored",
	}

	rec := Apply(row, fm)

	if rec["externalId"] != "C-100" {
		t.Errorf("externalId = %q, want C-100", rec["externalId"])
	}
	if rec["lastName"] != "Smith" {
		t.Errorf("lastName = %q, want Smith", rec["lastName"])
	}
	if _, ok := rec["email"]; ok {
		t.Error("email should be absent: source column missing from row")
	}
	if len(rec) != 2 {
		t.Errorf("record = %v, want exactly 2 fields", rec)
	}
}

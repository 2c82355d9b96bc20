package schema

import (
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// ParseDate Tests
// ----------------------------------------------------------------------------

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  string // YYYY-MM-DD, empty means unparseable
	}{
		{"2024-01-15", "2024-01-15"},
		{"2024/01/15", "2024-01-15"},
		{"01/15/2024", "2024-01-15"},
		{"1/5/2024", "2024-01-05"},
		{"01-15-2024", "2024-01-15"},
		{"01.15.2024", "2024-01-15"},
		{"Jan 15, 2024", "2024-01-15"},
		{"15 Jan 2024", "2024-01-15"},
		{"20240115", "2024-01-15"},
		{"2024-01-15T10:30:00Z", "2024-01-15"},
		{"  2024-01-15  ", "2024-01-15"},
		{"", ""},
		{"not a date", ""},
		{"13/45/2024", ""},
	}

	for _, tt := range tests {
		got, ok := ParseDate(tt.input)
		if tt.want == "" {
			if ok {
				t.Errorf("ParseDate(%q) = %v, want failure", tt.input, got)
			}
			continue
		}
		if !ok {
			t.Errorf("ParseDate(%q) failed, want %s", tt.input, tt.want)
			continue
		}
		if got.Format("2006-01-02") != tt.want {
			t.Errorf("ParseDate(%q) = %s, want %s", tt.input, got.Format("2006-01-02"), tt.want)
		}
		if got.Location() != time.UTC {
			t.Errorf("ParseDate(%q) location = %v, want UTC", tt.input, got.Location())
		}
	}
}

func TestParseDate_TwoDigitYearPivot(t *testing.T) {
	// A 2-digit year just past the pivot window lands a century back; one
	// inside the window stays in the current century.
	past, ok := ParseDate("3/15/99")
	if !ok {
		t.Fatal("ParseDate(3/15/99) failed")
	}
	if past.Year() != 1999 {
		t.Errorf("year = %d, want 1999", past.Year())
	}

	near, ok := ParseDate("3/15/24")
	if !ok {
		t.Fatal("ParseDate(3/15/24) failed")
	}
	if near.Year() != 2024 {
		t.Errorf("year = %d, want 2024", near.Year())
	}
}

// ----------------------------------------------------------------------------
// ParseAmount Tests
// ----------------------------------------------------------------------------

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input string
		want  float64
		ok    bool
	}{
		{"100", 100, true},
		{"100.50", 100.5, true},
		{"$1,234.56", 1234.56, true},
		{"€250", 250, true},
		{"£99.99", 99.99, true},
		{"(123.45)", -123.45, true},
		{"( $1,000 )", -1000, true},
		{"-42.5", -42.5, true},
		{"1.5e3", 1500, true},
		{"  100  ", 100, true},
		{"", 0, false},
		{"abc", 0, false},
		{"12.34.56", 0, false},
		{"$", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseAmount(tt.input)
		if ok != tt.ok {
			t.Errorf("ParseAmount(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("ParseAmount(%q) = %g, want %g", tt.input, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// ParseInt and ParseBool Tests
// ----------------------------------------------------------------------------

func TestParseInt(t *testing.T) {
	tests := []struct {
		input string
		want  int
		ok    bool
	}{
		{"1999", 1999, true},
		{" 42 ", 42, true},
		{"-7", -7, true},
		{"3.14", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseInt(tt.input)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseInt(%q) = (%d, %v), want (%d, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseBool(t *testing.T) {
	truthy := []string{"true", "TRUE", "t", "yes", "Y", "1", " yes "}
	for _, s := range truthy {
		if got, ok := ParseBool(s); !ok || !got {
			t.Errorf("ParseBool(%q) = (%v, %v), want (true, true)", s, got, ok)
		}
	}

	falsy := []string{"false", "f", "No", "n", "0"}
	for _, s := range falsy {
		if got, ok := ParseBool(s); !ok || got {
			t.Errorf("ParseBool(%q) = (%v, %v), want (false, true)", s, got, ok)
		}
	}

	for _, s := range []string{"", "maybe", "2"} {
		if _, ok := ParseBool(s); ok {
			t.Errorf("ParseBool(%q) ok = true, want false", s)
		}
	}
}

// ----------------------------------------------------------------------------
// CleanCell Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`="00123"`, "00123"},
		{`=SUM(A1)`, "SUM(A1)"},
		{`"quoted"`, "quoted"},
		{"'single'", "single"},
		{"  plain  ", "plain"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CleanCell(tt.input); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// Postgres wrapper Tests
// ----------------------------------------------------------------------------

func TestToPgText(t *testing.T) {
	if v := ToPgText("  "); v.Valid {
		t.Error("whitespace-only input should produce a NULL")
	}
	v := ToPgText(" Smith ")
	if !v.Valid || v.String != "Smith" {
		t.Errorf("ToPgText = %+v, want trimmed valid value", v)
	}
}

func TestToPgDate(t *testing.T) {
	if v := ToPgDate("bogus"); v.Valid {
		t.Error("unparseable date should produce a NULL")
	}
	v := ToPgDate("2024-06-01")
	if !v.Valid || v.Time.Format("2006-01-02") != "2024-06-01" {
		t.Errorf("ToPgDate = %+v, want valid 2024-06-01", v)
	}
}

func TestToPgNumeric(t *testing.T) {
	if v := ToPgNumeric("n/a"); v.Valid {
		t.Error("unparseable amount should produce a NULL")
	}
	if v := ToPgNumeric("$1,250.00"); !v.Valid {
		t.Errorf("ToPgNumeric = %+v, want valid", v)
	}
}

func TestToPgBool(t *testing.T) {
	if v := ToPgBool("perhaps"); v.Valid {
		t.Error("unparseable bool should produce a NULL")
	}
	v := ToPgBool("yes")
	if !v.Valid || !v.Bool {
		t.Errorf("ToPgBool = %+v, want valid true", v)
	}
}

func TestToPgInt4(t *testing.T) {
	if v := ToPgInt4("1.5"); v.Valid {
		t.Error("non-integer should produce a NULL")
	}
	v := ToPgInt4("1999")
	if !v.Valid || v.Int32 != 1999 {
		t.Errorf("ToPgInt4 = %+v, want valid 1999", v)
	}
}

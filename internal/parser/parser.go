// Package parser turns raw delimited text into row maps plus structural
// diagnostics.
//
// The parser is deliberately forgiving about row-level problems: legacy CRM
// exports routinely contain ragged rows, stray blank lines, and odd
// encodings, and rejecting the whole file for any of them would make large
// imports impossible. Only file-level problems (empty input, header-only
// input, a missing column the caller declared required) are fatal.
//
// Delimiters are auto-detected unless specified, quoted fields may contain
// delimiters and newlines, and duplicate header names are disambiguated by
// suffixing (Name, Name_2, ...).
package parser

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/givemetry/importer/internal/schema"
)

// candidateDelimiters are the delimiters considered by auto-detection.
var candidateDelimiters = []rune{',', '\t', ';', '|'}

// Options controls parsing behavior. The zero value parses comma-or-detected
// delimited text with a header row; DefaultOptions enables the trimming and
// empty-line skipping that interactive imports almost always want.
type Options struct {
	// Delimiter is the field separator. Zero means auto-detect.
	Delimiter rune

	// NoHeader indicates the first row is data, not column names.
	// Columns are then named column1, column2, ...
	NoHeader bool

	// TrimWhitespace trims surrounding whitespace from every cell and strips
	// spreadsheet export artifacts: ="..." formula prefixes and surrounding
	// quote characters.
	TrimWhitespace bool

	// SkipEmptyLines drops rows whose cells are all empty.
	SkipEmptyLines bool

	// RequiredColumns lists source column names that must be present in the
	// header (case-insensitive). A missing one is a fatal structural error.
	RequiredColumns []string

	// ColumnTypes declares expected types for source columns, keyed by column
	// name (case-insensitive). Cells that fail the spot-check produce warning
	// diagnostics only.
	ColumnTypes map[string]schema.FieldType
}

// DefaultOptions returns the options used for interactive imports.
func DefaultOptions() Options {
	return Options{TrimWhitespace: true, SkipEmptyLines: true}
}

// Row is one parsed data row: source column name -> cell value, plus the
// 1-based data row number for error reporting.
type Row struct {
	Number int
	Values map[string]string
}

// Diagnostic is a non-fatal, row-addressable parsing problem.
type Diagnostic struct {
	Row     int    // 1-based data row, 0 for file-level
	Column  string // Source column, when applicable
	Message string
	Warning bool // True for spot-check warnings, false for structural issues
}

// Result holds the parsed rows and any non-fatal diagnostics.
type Result struct {
	Columns     []string // Disambiguated header names in source order
	Rows        []Row
	Diagnostics []Diagnostic
}

// StructuralError is a fatal file-level problem. No rows are returned and
// nothing should be persisted when one occurs.
type StructuralError struct {
	Message string
}

func (e *StructuralError) Error() string { return e.Message }

// DetectDelimiter counts occurrences of comma, tab, semicolon, and pipe in
// the input and picks the most frequent. An ambiguous maximum (two
// candidates sharing the top count) and empty input both fall back to comma.
func DetectDelimiter(text string) rune {
	best := ','
	bestCount := 0
	ambiguous := false
	for _, d := range candidateDelimiters {
		n := strings.Count(text, string(d))
		if n > bestCount {
			best = d
			bestCount = n
			ambiguous = false
		} else if n == bestCount && n > 0 {
			ambiguous = true
		}
	}
	if ambiguous {
		return ','
	}
	return best
}

// Parse parses delimited text into row maps. File-level problems return a
// *StructuralError; row-level problems are reported as diagnostics on the
// result and never abort the parse.
func Parse(text string, opts Options) (*Result, error) {
	decoded, _, err := Decode([]byte(text))
	if err != nil {
		return nil, &StructuralError{Message: fmt.Sprintf("decode input: %v", err)}
	}
	decoded = normalizeLineEndings(decoded)

	if strings.TrimSpace(decoded) == "" {
		return nil, &StructuralError{Message: "input is empty"}
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = DetectDelimiter(decoded)
	}

	r := csv.NewReader(strings.NewReader(decoded))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, &StructuralError{Message: fmt.Sprintf("malformed input: %v", err)}
	}
	if len(records) == 0 {
		return nil, &StructuralError{Message: "input is empty"}
	}

	var columns []string
	var dataRecords [][]string
	if opts.NoHeader {
		columns = make([]string, len(records[0]))
		for i := range columns {
			columns[i] = fmt.Sprintf("column%d", i+1)
		}
		dataRecords = records
	} else {
		columns = disambiguateHeaders(records[0], opts.TrimWhitespace)
		dataRecords = records[1:]
	}

	if len(dataRecords) == 0 {
		return nil, &StructuralError{Message: "input contains a header but no data rows"}
	}

	if missing := missingColumns(columns, opts.RequiredColumns); len(missing) > 0 {
		return nil, &StructuralError{
			Message: fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
		}
	}

	result := &Result{Columns: columns}
	types := lowerKeyed(opts.ColumnTypes)

	rowNum := 0
	for _, record := range dataRecords {
		if opts.SkipEmptyLines && isEmptyRecord(record) {
			continue
		}
		rowNum++

		if len(record) != len(columns) {
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Row:     rowNum,
				Message: fmt.Sprintf("expected %d columns, got %d", len(columns), len(record)),
			})
		}

		values := make(map[string]string, len(columns))
		for i, col := range columns {
			v := ""
			if i < len(record) {
				v = record[i]
			}
			if opts.TrimWhitespace {
				v = schema.CleanCell(v)
			}
			values[col] = v

			if v == "" {
				continue
			}
			if ft, ok := types[strings.ToLower(col)]; ok {
				if msg := spotCheck(v, ft); msg != "" {
					result.Diagnostics = append(result.Diagnostics, Diagnostic{
						Row:     rowNum,
						Column:  col,
						Message: msg,
						Warning: true,
					})
				}
			}
		}

		result.Rows = append(result.Rows, Row{Number: rowNum, Values: values})
	}

	if len(result.Rows) == 0 {
		return nil, &StructuralError{Message: "input contains a header but no data rows"}
	}

	return result, nil
}

// disambiguateHeaders cleans header cells and suffixes duplicates so every
// column name is unique: Name, Name_2, Name_3, ...
func disambiguateHeaders(header []string, trim bool) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))

	for i, h := range header {
		if trim {
			h = schema.CleanCell(h)
		}
		if h == "" {
			h = fmt.Sprintf("column%d", i+1)
		}

		key := strings.ToLower(h)
		seen[key]++
		if n := seen[key]; n > 1 {
			h = fmt.Sprintf("%s_%d", h, n)
		}
		out[i] = h
	}

	return out
}

func missingColumns(columns, required []string) []string {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[strings.ToLower(c)] = true
	}

	var missing []string
	for _, req := range required {
		if !have[strings.ToLower(req)] {
			missing = append(missing, req)
		}
	}
	return missing
}

func lowerKeyed(m map[string]schema.FieldType) map[string]schema.FieldType {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]schema.FieldType, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

func spotCheck(value string, ft schema.FieldType) string {
	switch ft {
	case schema.FieldDate:
		if _, ok := schema.ParseDate(value); !ok {
			return fmt.Sprintf("value %q does not look like a date", value)
		}
	case schema.FieldNumeric:
		if _, ok := schema.ParseAmount(value); !ok {
			return fmt.Sprintf("value %q does not look like a number", value)
		}
	case schema.FieldInt:
		if _, ok := schema.ParseInt(value); !ok {
			return fmt.Sprintf("value %q does not look like an integer", value)
		}
	case schema.FieldBool:
		if _, ok := schema.ParseBool(value); !ok {
			return fmt.Sprintf("value %q does not look like a boolean", value)
		}
	}
	return ""
}

func isEmptyRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/givemetry/importer/internal/schema"
)

// ----------------------------------------------------------------------------
// DetectDelimiter Tests
// ----------------------------------------------------------------------------

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  rune
	}{
		{
			name:  "comma separated",
			input: "a,b,c\n1,2,3\n",
			want:  ',',
		},
		{
			name:  "tab separated",
			input: "a\tb\tc\n1\t2\t3\n",
			want:  '\t',
		},
		{
			name:  "semicolon separated",
			input: "a;b;c\n1;2;3\n",
			want:  ';',
		},
		{
			name:  "pipe separated",
			input: "a|b|c\n1|2|3\n",
			want:  '|',
		},
		{
			name:  "tie falls back to comma",
			input: "a,b;c\n1,2;3\n",
			want:  ',',
		},
		{
			name:  "tie without comma still falls back to comma",
			input: "a\tb;c\td;e",
			want:  ',',
		},
		{
			name:  "no delimiter at all",
			input: "justonecolumn\nvalue\n",
			want:  ',',
		},
		{
			name:  "empty input",
			input: "",
			want:  ',',
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectDelimiter(tt.input); got != tt.want {
				t.Errorf("DetectDelimiter(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Parse Tests
// ----------------------------------------------------------------------------

func TestParse_Basic(t *testing.T) {
	input := "Name,Email\nAlice,alice@example.org\nBob,bob@example.org\n"

	res, err := Parse(input, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(res.Columns) != 2 || res.Columns[0] != "Name" || res.Columns[1] != "Email" {
		t.Errorf("Columns = %v, want [Name Email]", res.Columns)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(res.Rows))
	}
	if res.Rows[0].Number != 1 || res.Rows[1].Number != 2 {
		t.Errorf("row numbers = %d, %d, want 1, 2", res.Rows[0].Number, res.Rows[1].Number)
	}
	if res.Rows[0].Values["Name"] != "Alice" {
		t.Errorf("row 1 Name = %q, want Alice", res.Rows[0].Values["Name"])
	}
	if res.Rows[1].Values["Email"] != "bob@example.org" {
		t.Errorf("row 2 Email = %q, want bob@example.org", res.Rows[1].Values["Email"])
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", res.Diagnostics)
	}
}

func TestParse_Idempotent(t *testing.T) {
	// Parsing the same input twice must yield identical results.
	input := "Name,Amount\nAlice,100\nBob,200\n"

	first, err := Parse(input, DefaultOptions())
	if err != nil {
		t.Fatalf("first Parse() error = %v", err)
	}
	second, err := Parse(input, DefaultOptions())
	if err != nil {
		t.Fatalf("second Parse() error = %v", err)
	}

	if len(first.Rows) != len(second.Rows) {
		t.Fatalf("row counts differ: %d vs %d", len(first.Rows), len(second.Rows))
	}
	for i := range first.Rows {
		for col, v := range first.Rows[i].Values {
			if second.Rows[i].Values[col] != v {
				t.Errorf("row %d column %q differs: %q vs %q", i+1, col, v, second.Rows[i].Values[col])
			}
		}
	}
}

func TestParse_QuotedFields(t *testing.T) {
	input := "Name,Notes\n\"Smith, Jane\",\"Likes \"\"blue\"\" things\nand newlines\"\n"

	res, err := Parse(input, Options{Delimiter: ','})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(res.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(res.Rows))
	}
	if got := res.Rows[0].Values["Name"]; got != "Smith, Jane" {
		t.Errorf("Name = %q, want %q", got, "Smith, Jane")
	}
	if got := res.Rows[0].Values["Notes"]; !strings.Contains(got, "\"blue\"") || !strings.Contains(got, "\n") {
		t.Errorf("Notes = %q, want embedded quotes and newline preserved", got)
	}
}

func TestParse_SpreadsheetArtifacts(t *testing.T) {
	// Excel exports wrap values it must not reinterpret in a ="..." formula;
	// the prefix is stripped so the canonical value keeps leading zeros
	// without the wrapper.
	input := "ID,Name\n=\"00123\",'Quoted'\n"

	res, err := Parse(input, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got := res.Rows[0].Values["ID"]; got != "00123" {
		t.Errorf("ID = %q, want formula prefix stripped", got)
	}
	if got := res.Rows[0].Values["Name"]; got != "Quoted" {
		t.Errorf("Name = %q, want surrounding quotes stripped", got)
	}
}

func TestParse_CRLFAndBOM(t *testing.T) {
	input := "\xef\xbb\xbfName,Email\r\nAlice,a@example.org\r\n"

	res, err := Parse(input, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Columns[0] != "Name" {
		t.Errorf("first column = %q, want Name (BOM stripped)", res.Columns[0])
	}
	if len(res.Rows) != 1 || res.Rows[0].Values["Email"] != "a@example.org" {
		t.Errorf("rows = %+v, want one row with Email", res.Rows)
	}
}

func TestParse_DuplicateHeaders(t *testing.T) {
	input := "Name,Name,name\nA,B,C\n"

	res, err := Parse(input, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []string{"Name", "Name_2", "name_3"}
	for i, col := range want {
		if res.Columns[i] != col {
			t.Errorf("Columns[%d] = %q, want %q", i, res.Columns[i], col)
		}
	}
	if res.Rows[0].Values["Name_2"] != "B" {
		t.Errorf("Name_2 = %q, want B", res.Rows[0].Values["Name_2"])
	}
}

func TestParse_EmptyHeaderCell(t *testing.T) {
	input := "Name,,Email\nA,B,C\n"

	res, err := Parse(input, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Columns[1] != "column2" {
		t.Errorf("Columns[1] = %q, want column2", res.Columns[1])
	}
}

func TestParse_NoHeader(t *testing.T) {
	input := "Alice,100\nBob,200\n"

	res, err := Parse(input, Options{NoHeader: true, Delimiter: ','})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Columns[0] != "column1" || res.Columns[1] != "column2" {
		t.Errorf("Columns = %v, want [column1 column2]", res.Columns)
	}
	if len(res.Rows) != 2 {
		t.Errorf("len(Rows) = %d, want 2", len(res.Rows))
	}
}

func TestParse_RaggedRows(t *testing.T) {
	input := "A,B,C\n1,2,3\n4,5\n6,7,8,9\n"

	res, err := Parse(input, Options{Delimiter: ','})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// All three rows survive; short rows are padded, long rows truncated.
	if len(res.Rows) != 3 {
		t.Fatalf("len(Rows) = %d, want 3", len(res.Rows))
	}
	if got := res.Rows[1].Values["C"]; got != "" {
		t.Errorf("short row C = %q, want empty", got)
	}
	if got := res.Rows[2].Values["C"]; got != "8" {
		t.Errorf("long row C = %q, want 8", got)
	}

	// Two diagnostics, one per ragged row.
	var structural int
	for _, d := range res.Diagnostics {
		if !d.Warning {
			structural++
		}
	}
	if structural != 2 {
		t.Errorf("structural diagnostics = %d, want 2 (%v)", structural, res.Diagnostics)
	}
}

func TestParse_SkipEmptyLines(t *testing.T) {
	input := "A,B\n1,2\n,\n\n3,4\n"

	res, err := Parse(input, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(res.Rows))
	}
	// Row numbers count data rows, not source lines.
	if res.Rows[1].Number != 2 {
		t.Errorf("second row number = %d, want 2", res.Rows[1].Number)
	}
}

func TestParse_StructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		opts    Options
		wantMsg string
	}{
		{
			name:    "empty input",
			input:   "",
			opts:    DefaultOptions(),
			wantMsg: "empty",
		},
		{
			name:    "whitespace only",
			input:   "   \n  \n",
			opts:    DefaultOptions(),
			wantMsg: "empty",
		},
		{
			name:    "header only",
			input:   "Name,Email\n",
			opts:    DefaultOptions(),
			wantMsg: "no data rows",
		},
		{
			name:    "header plus blank lines only",
			input:   "Name,Email\n,\n,\n",
			opts:    DefaultOptions(),
			wantMsg: "no data rows",
		},
		{
			name:    "missing required column",
			input:   "Name,Email\nA,B\n",
			opts:    Options{Delimiter: ',', RequiredColumns: []string{"DonorID"}},
			wantMsg: "DonorID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input, tt.opts)
			if err == nil {
				t.Fatal("Parse() expected structural error")
			}
			var se *StructuralError
			if !errors.As(err, &se) {
				t.Fatalf("error type = %T, want *StructuralError", err)
			}
			if !strings.Contains(se.Message, tt.wantMsg) {
				t.Errorf("error = %q, want substring %q", se.Message, tt.wantMsg)
			}
		})
	}
}

func TestParse_TypeSpotChecks(t *testing.T) {
	input := "GiftDate,Amount\n2024-01-15,100.50\nnot-a-date,abc\n"

	opts := Options{
		Delimiter: ',',
		ColumnTypes: map[string]schema.FieldType{
			"giftdate": schema.FieldDate,
			"amount":   schema.FieldNumeric,
		},
	}

	res, err := Parse(input, opts)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// Bad cells warn but the row is still returned.
	if len(res.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(res.Rows))
	}

	var warnings []Diagnostic
	for _, d := range res.Diagnostics {
		if d.Warning {
			warnings = append(warnings, d)
		}
	}
	if len(warnings) != 2 {
		t.Fatalf("warnings = %d, want 2 (%v)", len(warnings), res.Diagnostics)
	}
	for _, w := range warnings {
		if w.Row != 2 {
			t.Errorf("warning row = %d, want 2", w.Row)
		}
	}
}

func TestParse_SemicolonAutoDetect(t *testing.T) {
	input := "Name;Email\nAlice;a@example.org\n"

	res, err := Parse(input, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Rows[0].Values["Email"] != "a@example.org" {
		t.Errorf("Email = %q, want a@example.org", res.Rows[0].Values["Email"])
	}
}

// ----------------------------------------------------------------------------
// Stream Tests
// ----------------------------------------------------------------------------

func buildCSV(rows int) string {
	var sb strings.Builder
	sb.WriteString("ID,Name\n")
	for i := 1; i <= rows; i++ {
		sb.WriteString(strings.ReplaceAll("N,RowN\n", "N", itoa(i)))
	}
	return sb.String()
}

func itoa(i int) string {
	digits := "0123456789"
	if i == 0 {
		return "0"
	}
	var out []byte
	for i > 0 {
		out = append([]byte{digits[i%10]}, out...)
		i /= 10
	}
	return string(out)
}

func TestStream_ChunksAndProgress(t *testing.T) {
	input := buildCSV(25)

	var chunkSizes []int
	var progress []int
	res, err := Stream(input, DefaultOptions(), 10, func(c Chunk) {
		chunkSizes = append(chunkSizes, len(c.Rows))
		progress = append(progress, c.Progress)
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	wantSizes := []int{10, 10, 5}
	if len(chunkSizes) != len(wantSizes) {
		t.Fatalf("chunks = %v, want sizes %v", chunkSizes, wantSizes)
	}
	for i, want := range wantSizes {
		if chunkSizes[i] != want {
			t.Errorf("chunk %d size = %d, want %d", i, chunkSizes[i], want)
		}
	}

	wantProgress := []int{40, 80, 100}
	for i, want := range wantProgress {
		if progress[i] != want {
			t.Errorf("chunk %d progress = %d, want %d", i, progress[i], want)
		}
	}

	if len(res.Rows) != 25 {
		t.Errorf("result rows = %d, want 25", len(res.Rows))
	}
}

func TestStream_Abort(t *testing.T) {
	input := buildCSV(30)

	var delivered int
	_, err := Stream(input, DefaultOptions(), 10, func(c Chunk) {
		delivered += len(c.Rows)
		c.Abort()
	})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("Stream() error = %v, want ErrAborted", err)
	}
	// Abort is observed between chunks: exactly one chunk was delivered.
	if delivered != 10 {
		t.Errorf("delivered = %d, want 10", delivered)
	}
}

func TestStream_StructuralErrorBeforeCallback(t *testing.T) {
	calls := 0
	_, err := Stream("", DefaultOptions(), 10, func(c Chunk) { calls++ })
	if err == nil {
		t.Fatal("Stream() expected error for empty input")
	}
	if calls != 0 {
		t.Errorf("callback invoked %d times for structural error, want 0", calls)
	}
}

func TestStream_DefaultChunkSize(t *testing.T) {
	input := buildCSV(3)

	var sizes []int
	_, err := Stream(input, DefaultOptions(), 0, func(c Chunk) {
		sizes = append(sizes, len(c.Rows))
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(sizes) != 1 || sizes[0] != 3 {
		t.Errorf("sizes = %v, want one chunk of 3", sizes)
	}
}

// ----------------------------------------------------------------------------
// Decode Tests
// ----------------------------------------------------------------------------

func TestDecode_UTF8BOM(t *testing.T) {
	text, enc, err := Decode([]byte("\xef\xbb\xbfName\nAlice\n"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if strings.HasPrefix(text, "\xef\xbb\xbf") {
		t.Error("BOM should be stripped")
	}
	if enc != "utf-8-bom" {
		t.Errorf("encoding = %q, want utf-8-bom", enc)
	}
}

func TestDecode_UTF16LE(t *testing.T) {
	// "A,B\n" in UTF-16LE with BOM
	data := []byte{0xff, 0xfe, 'A', 0, ',', 0, 'B', 0, '\n', 0}
	text, enc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if text != "A,B\n" {
		t.Errorf("text = %q, want %q", text, "A,B\n")
	}
	if enc != "utf-16le" {
		t.Errorf("encoding = %q, want utf-16le", enc)
	}
}

func TestDecode_Latin1Fallback(t *testing.T) {
	// 0xe9 is é in ISO 8859-1 and invalid as standalone UTF-8.
	text, enc, err := Decode([]byte{'R', 0xe9, 'n', 0xe9})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if text != "René" {
		t.Errorf("text = %q, want René", text)
	}
	if enc != "latin-1" {
		t.Errorf("encoding = %q, want latin-1", enc)
	}
}

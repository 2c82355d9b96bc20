package parser

// decode.go normalizes raw upload bytes to UTF-8 text before any CSV work.
//
// Vendor exports arrive in whatever encoding the legacy system produced:
// UTF-8 with or without a BOM, UTF-16 from Windows tools, or Latin-1 from
// older databases. Decoding is detected per file from the BOM and content
// rather than configured, since callers rarely know what they have.

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode detects the encoding of the input, strips any BOM, and returns
// UTF-8 text plus the detected encoding name.
func Decode(data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", "utf-8", nil
	}

	if bytes.HasPrefix(data, bomUTF8) {
		return string(data[3:]), "utf-8-bom", nil
	}

	if bytes.HasPrefix(data, bomUTF16LE) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(data[2:])
		if err != nil {
			return "", "", err
		}
		return string(out), "utf-16le", nil
	}

	if bytes.HasPrefix(data, bomUTF16BE) {
		dec := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(data[2:])
		if err != nil {
			return "", "", err
		}
		return string(out), "utf-16be", nil
	}

	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}

	// Latin-1 maps every byte to a code point, so this cannot fail.
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", err
	}
	return string(out), "latin-1", nil
}

// normalizeLineEndings converts classic-Mac CR-only line endings to LF.
// CRLF files are left alone; encoding/csv handles those natively, and
// rewriting them would corrupt CRs embedded in quoted fields.
func normalizeLineEndings(text string) string {
	if strings.ContainsRune(text, '\r') && !strings.ContainsRune(text, '\n') {
		return strings.ReplaceAll(text, "\r", "\n")
	}
	return text
}

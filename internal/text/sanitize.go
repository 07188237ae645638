// Package text turns raw corpus files into clean, segmented sentences:
// encoding detection, control-character sanitizing and rule-based sentence
// splitting.
package text

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	// Unicode whitespace, so runs of non-breaking spaces left by PDF
	// extraction collapse as well.
	whitespaceRuns = regexp.MustCompile(`[\s\x{85}\x{a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}]{2,}`)
)

const leadingSpace = " \t\n\r\v\f"

// Sanitize removes invisible control characters, strips leading whitespace
// and replaces every run of two or more whitespace characters with " \n".
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	s = controlChars.ReplaceAllString(s, "")
	s = strings.TrimLeft(s, leadingSpace)
	return whitespaceRuns.ReplaceAllString(s, " \n")
}

// Decode interprets raw as UTF-8 and falls back to ISO-8859-1 when the bytes
// are not valid UTF-8. The second result reports that the fallback was used.
func Decode(raw []byte) (string, bool) {
	if utf8.Valid(raw) {
		return strings.TrimPrefix(string(raw), "\uFEFF"), false
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "\uFFFD"), true
	}
	return string(out), true
}

// ReadFile reads and decodes a corpus text file.
func ReadFile(path string) (string, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", path, err)
	}
	s, fallback := Decode(raw)
	return s, fallback, nil
}

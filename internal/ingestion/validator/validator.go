// Package validator checks upload metadata and derives the on-disk name of
// an uploaded work.
package validator

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/ingestion"
)

const (
	maxTitleLength  = 512
	maxAuthorLength = 256
	maxFieldLength  = 128
	minYear         = 1000
	maxYear         = 2100
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_\-.]`)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// IsPDF reports whether name has a .pdf extension, in any case.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// ValidateUpload checks the required fields and bounds of an upload. The
// file type is checked separately.
func ValidateUpload(req *ingestion.UploadRequest) error {
	errs := make(map[string]string)

	title := strings.TrimSpace(req.Title)
	switch {
	case title == "":
		errs["title"] = "title is required"
	case len(title) > maxTitleLength:
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	case SafeName(title) == "":
		errs["title"] = "title must contain at least one letter or digit"
	}
	author := strings.TrimSpace(req.Author)
	if author == "" {
		errs["author"] = "author is required"
	} else if len(author) > maxAuthorLength {
		errs["author"] = fmt.Sprintf("author must be at most %d characters", maxAuthorLength)
	}
	if req.Year != nil && (*req.Year < minYear || *req.Year > maxYear) {
		errs["year"] = fmt.Sprintf("year must be between %d and %d", minYear, maxYear)
	}
	if len(req.Genre) > maxFieldLength {
		errs["genre"] = fmt.Sprintf("genre must be at most %d characters", maxFieldLength)
	}
	if len(req.Movement) > maxFieldLength {
		errs["movement"] = fmt.Sprintf("movement must be at most %d characters", maxFieldLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// SafeName turns a title into a file stem: lower-cased, spaces to
// underscores, anything outside [a-zA-Z0-9_-.] to an underscore. A stem made
// only of underscores and dots is empty.
func SafeName(title string) string {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(title)), " ", "_")
	name = unsafeChars.ReplaceAllString(name, "_")
	if strings.Trim(name, "_.") == "" {
		return ""
	}
	return name
}

// Package catalog owns the works table: bibliographic records, file paths
// and the processing status the indexer drives.
package catalog

import (
	"fmt"
	"time"
)

// Status is a work's position in the ingestion lifecycle.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusProcessed        Status = "PROCESSED"
	StatusFailedConversion Status = "FAILED_CONVERSION"
	StatusFailedProcessing Status = "FAILED_PROCESSING"
	// StatusUnderReview holds uploads until an operator promotes them.
	StatusUnderReview Status = "EM_REVISAO"
)

var statuses = map[Status]struct{}{
	StatusPending:          {},
	StatusProcessed:        {},
	StatusFailedConversion: {},
	StatusFailedProcessing: {},
	StatusUnderReview:      {},
}

// ParseStatus validates s.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statuses[st]; !ok {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Terminal reports whether only an operator can move a work out of st.
func (st Status) Terminal() bool {
	return st == StatusFailedConversion || st == StatusFailedProcessing
}

// Work is a catalogued literary work.
type Work struct {
	ID        int64     `json:"id" yaml:"-"`
	Title     string    `json:"title" yaml:"title"`
	Author    string    `json:"author" yaml:"author"`
	Year      *int      `json:"year,omitempty" yaml:"year"`
	Genre     string    `json:"genre,omitempty" yaml:"genre"`
	Movement  string    `json:"movement,omitempty" yaml:"movement"`
	TextPath  string    `json:"text_path" yaml:"text_path"`
	PDFPath   string    `json:"pdf_path,omitempty" yaml:"pdf_path"`
	Status    Status    `json:"status" yaml:"status"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// DownloadURL is the public path of the work's PDF, empty when it has none.
func (w *Work) DownloadURL() string {
	if w.PDFPath == "" {
		return ""
	}
	return "/" + w.PDFPath
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status   Status
	Author   string
	Genre    string
	Movement string
	Limit    int
}

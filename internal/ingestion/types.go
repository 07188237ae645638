// Package ingestion defines the upload request/response types and the Kafka
// event published when an uploaded work is ready for indexing.
package ingestion

import "time"

// Upload modes.
const (
	ModeReview = "review"
	ModeDirect = "direct"
)

// UploadRequest is the metadata part of a multipart work upload.
type UploadRequest struct {
	Title    string
	Author   string
	Year     *int
	Genre    string
	Movement string
	FileName string
}

// UploadResponse is returned once the work is catalogued and its PDF stored.
type UploadResponse struct {
	WorkID      int64  `json:"work_id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	PDFPath     string `json:"pdf_path"`
	TextPath    string `json:"text_path"`
	DownloadURL string `json:"download_url"`
}

// WorkIngestedEvent is the work-ingested payload. The indexer treats it as a
// hint to run early; the catalog stays authoritative.
type WorkIngestedEvent struct {
	WorkID     int64     `json:"work_id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	IngestedAt time.Time `json:"ingested_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Scan is one processed upload as kept in the scan history.
type Scan struct {
	ID             uuid.UUID `json:"id"`
	Filename       string    `json:"filename"`
	ContentType    string    `json:"content_type"`
	ImagePath      string    `json:"image_path,omitempty"` // bucket/object in the image archive
	Language       string    `json:"language"`
	Threshold      float64   `json:"threshold"`
	Lines          []string  `json:"lines"`
	DetectionCount int       `json:"detection_count"`
	OCRSeconds     float64   `json:"ocr_seconds"`
	CreatedAt      time.Time `json:"created_at"`
}

// LineDetail describes one reconstructed line when detail output is requested.
type LineDetail struct {
	Text       string  `json:"text"`
	Top        float64 `json:"top"`
	Words      int     `json:"words"`
	Confidence float64 `json:"confidence"`
}

// OCRResponse represents the output of the OCR endpoint
type OCRResponse struct {
	DetectedText []string     `json:"detected_text,omitempty"`
	Message      string       `json:"message,omitempty"`
	Lines        []LineDetail `json:"lines,omitempty"`
	ScanID       string       `json:"scan_id,omitempty"`
	Cached       bool         `json:"cached"`

	// Processing metadata, in seconds
	Duration    float64 `json:"duration"`
	OCRDuration float64 `json:"ocr_duration,omitempty"` // recognition only; absent on cache hits
}

// ScanListResponse wraps a page of scan history.
type ScanListResponse struct {
	Success bool   `json:"success"`
	Scans   []Scan `json:"scans"`
	Count   int    `json:"count"`
}

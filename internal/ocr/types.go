// Package ocr holds the recognition data model and the line reconstruction
// that turns unordered word detections back into document lines.
package ocr

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrRecognition wraps any failure raised by a Recognizer.
	ErrRecognition = errors.New("text recognition failed")
	// ErrInvalidImage is returned when uploaded bytes cannot be decoded.
	ErrInvalidImage = errors.New("invalid image")
	// ErrImageTooLarge is returned when an image exceeds the pixel limit.
	ErrImageTooLarge = errors.New("image too large")
)

// Recognizer runs OCR over a decoded image and returns one detection per
// recognized word. Implementations are long-lived and shared across requests.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, language string) ([]Detection, error)
	Name() string
	Close() error
}

// Point is a position in image pixel coordinates
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox holds the four corners of a text region, clockwise from the
// top-left corner.
type BoundingBox [4]Point

// TopLeft returns the first corner of the box.
func (b BoundingBox) TopLeft() Point {
	return b[0]
}

// BoxFromRect builds a BoundingBox from an axis-aligned rectangle
func BoxFromRect(r image.Rectangle) BoundingBox {
	minX, minY := float64(r.Min.X), float64(r.Min.Y)
	maxX, maxY := float64(r.Max.X), float64(r.Max.Y)
	return BoundingBox{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
	}
}

// Detection is a single recognized fragment. A nil Box or Text marks a
// malformed detection that line reconstruction skips.
type Detection struct {
	Box        *BoundingBox `json:"box,omitempty"`
	Text       *string      `json:"text,omitempty"`
	Confidence float64      `json:"confidence"`
}

// NewDetection returns a well-formed detection.
func NewDetection(box BoundingBox, text string, confidence float64) Detection {
	return Detection{
		Box:        &box,
		Text:       &text,
		Confidence: confidence,
	}
}

// Valid reports whether both box and text are present.
func (d Detection) Valid() bool {
	return d.Box != nil && d.Text != nil
}

package recognizer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/facturaIA/textline-ocr-service/internal/ocr"
)

// TesseractOCR recognizes words through the Tesseract C API. It keeps a
// fixed set of clients created at startup; a gosseract client is not safe
// for concurrent use, so each call borrows one for its whole duration.
type TesseractOCR struct {
	clients chan *gosseract.Client
	all     []*gosseract.Client

	closeOnce sync.Once
	closed    chan struct{}
}

// NewTesseractOCR creates a pool of workers Tesseract clients.
func NewTesseractOCR(workers int) (*TesseractOCR, error) {
	if workers <= 0 {
		workers = 1
	}

	t := &TesseractOCR{
		clients: make(chan *gosseract.Client, workers),
		all:     make([]*gosseract.Client, 0, workers),
		closed:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		client := gosseract.NewClient()
		t.all = append(t.all, client)
		t.clients <- client
	}
	return t, nil
}

// Name identifies the engine in logs and health output.
func (t *TesseractOCR) Name() string {
	return "gosseract"
}

// Version returns the linked Tesseract library version.
func (t *TesseractOCR) Version() string {
	return gosseract.Version()
}

// Recognize runs word-level OCR on img. Waiting for a free client honours
// ctx; a recognition already in progress runs to completion and callers
// must check ctx themselves afterwards.
func (t *TesseractOCR) Recognize(ctx context.Context, img image.Image, language string) ([]ocr.Detection, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encode image: %v", ocr.ErrRecognition, err)
	}

	var client *gosseract.Client
	select {
	case client = <-t.clients:
	case <-t.closed:
		return nil, fmt.Errorf("%w: recognizer closed", ocr.ErrRecognition)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ocr.ErrRecognition, ctx.Err())
	}
	defer func() { t.clients <- client }()

	if language != "" {
		if err := client.SetLanguage(language); err != nil {
			return nil, fmt.Errorf("%w: set language %q: %v", ocr.ErrRecognition, language, err)
		}
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: set image: %v", ocr.ErrRecognition, err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ocr.ErrRecognition, err)
	}

	detections := make([]ocr.Detection, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		detections = append(detections, ocr.NewDetection(
			ocr.BoxFromRect(box.Box),
			box.Word,
			box.Confidence/100.0,
		))
	}
	return detections, nil
}

// Close releases every client. Calls waiting for a client fail afterwards.
func (t *TesseractOCR) Close() error {
	var firstErr error
	t.closeOnce.Do(func() {
		close(t.closed)
		for _, client := range t.all {
			if err := client.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

// Package recognizer builds the OCR engine selected in the configuration.
package recognizer

import (
	"errors"
	"fmt"

	"github.com/facturaIA/textline-ocr-service/internal/config"
	"github.com/facturaIA/textline-ocr-service/internal/ocr"
	"github.com/facturaIA/textline-ocr-service/internal/recognizer/tsv"
)

// ErrUnsupportedEngine is returned for an unknown ocr.engine value.
var ErrUnsupportedEngine = errors.New("unsupported OCR engine")

// New creates the long-lived recognizer for cfg. Callers own it and must
// Close it on shutdown.
func New(cfg config.OCRConfig) (ocr.Recognizer, error) {
	switch cfg.Engine {
	case config.EngineGosseract, "":
		return NewTesseractOCR(cfg.Workers)
	case config.EngineTesseractCLI:
		return tsv.New(cfg.TesseractPath), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEngine, cfg.Engine)
	}
}

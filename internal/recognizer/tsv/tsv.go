// Package tsv runs the tesseract command line tool and reads word boxes from
// its TSV output. It needs no cgo and serves hosts where only the binary is
// installed.
package tsv

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/facturaIA/textline-ocr-service/internal/ocr"
)

const (
	// wordLevel is the TSV "level" value of word rows.
	wordLevel = 5
	// maxRowBytes bounds a single TSV row.
	maxRowBytes = 1 << 20
)

// Engine is an ocr.Recognizer backed by the tesseract binary.
type Engine struct {
	path string
}

// New creates an engine that runs the binary at path ("tesseract" if empty).
func New(path string) *Engine {
	if path == "" {
		path = "tesseract"
	}
	return &Engine{path: path}
}

// Name identifies the engine in logs and health output.
func (e *Engine) Name() string {
	return "tesseract-cli"
}

// Close is a no-op; every call starts its own process.
func (e *Engine) Close() error {
	return nil
}

// Version returns the first line of `tesseract --version`.
func (e *Engine) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, e.path, "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s not found or not executable: %w", e.path, err)
	}
	first, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(first), nil
}

// Recognize pipes the image to tesseract as PNG and parses the word rows.
func (e *Engine) Recognize(ctx context.Context, img image.Image, language string) ([]ocr.Detection, error) {
	var input bytes.Buffer
	if err := png.Encode(&input, img); err != nil {
		return nil, fmt.Errorf("%w: encode image: %v", ocr.ErrRecognition, err)
	}

	args := []string{"stdin", "stdout"}
	if language != "" {
		args = append(args, "-l", language)
	}
	args = append(args, "tsv")

	cmd := exec.CommandContext(ctx, e.path, args...)
	cmd.Stdin = &input
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ocr.ErrRecognition, ctxErr)
		}
		return nil, fmt.Errorf("%w: tesseract: %v: %s", ocr.ErrRecognition, err, strings.TrimSpace(stderr.String()))
	}

	detections, err := Parse(&stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ocr.ErrRecognition, err)
	}
	return detections, nil
}

// Parse reads tesseract TSV output and returns one detection per word row.
// Rows with confidence -1 carry layout structure only and are skipped. A
// word row with blank text yields a detection without text.
//
// Tesseract never quotes fields, so rows are split on tabs only. The last
// column keeps any tabs it contains.
func Parse(r io.Reader) ([]ocr.Detection, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRowBytes)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read tsv header: %w", err)
		}
		return []ocr.Detection{}, nil
	}
	header := strings.Split(strings.TrimRight(scanner.Text(), "\r"), "\t")
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, name := range []string{"level", "left", "top", "width", "height", "conf", "text"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("tsv header missing column %q", name)
		}
	}

	detections := []ocr.Detection{}
	for line := 2; scanner.Scan(); line++ {
		row := strings.TrimRight(scanner.Text(), "\r")
		if row == "" {
			continue
		}
		record := strings.SplitN(row, "\t", len(header))
		if len(record) <= cols["conf"] {
			continue
		}

		level, err := strconv.Atoi(record[cols["level"]])
		if err != nil || level != wordLevel {
			continue
		}
		conf, err := strconv.ParseFloat(strings.TrimSpace(record[cols["conf"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("tsv line %d: bad conf: %w", line, err)
		}
		if conf < 0 {
			continue
		}

		rect, err := parseRect(record, cols)
		if err != nil {
			return nil, fmt.Errorf("tsv line %d: %w", line, err)
		}
		box := ocr.BoxFromRect(rect)

		d := ocr.Detection{Box: &box, Confidence: conf / 100}
		if cols["text"] < len(record) {
			if text := strings.TrimSpace(record[cols["text"]]); text != "" {
				d.Text = &text
			}
		}
		detections = append(detections, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read tsv: %w", err)
	}

	return detections, nil
}

func parseRect(record []string, cols map[string]int) (image.Rectangle, error) {
	var v [4]int
	for i, name := range []string{"left", "top", "width", "height"} {
		n, err := strconv.Atoi(strings.TrimSpace(record[cols[name]]))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("bad %s: %w", name, err)
		}
		v[i] = n
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}

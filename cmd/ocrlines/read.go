package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/facturaIA/textline-ocr-service/internal/config"
	"github.com/facturaIA/textline-ocr-service/internal/ocr"
)

// fileResult is the JSON output for one input file.
type fileResult struct {
	File         string   `json:"file"`
	DetectedText []string `json:"detected_text"`
}

func newReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <image>...",
		Short: "Print the text lines found in each image",
		Long: `Decode each image, run the configured OCR engine and print the
reconstructed lines, one per row. With --json one object is printed per file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRead,
	}

	cmd.Flags().String("lang", "", "recognition language (overrides config)")
	cmd.Flags().Float64("threshold", -1, "line grouping threshold in pixels (overrides config)")
	cmd.Flags().Bool("json", false, "print JSON instead of plain lines")
	return cmd
}

func runRead(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	language := cfg.OCR.Language
	if lang, _ := cmd.Flags().GetString("lang"); lang != "" {
		language = lang
	}

	threshold := cfg.OCR.LineThreshold
	if cmd.Flags().Changed("threshold") {
		threshold, _ = cmd.Flags().GetFloat64("threshold")
		if threshold < 0 {
			return fmt.Errorf("invalid threshold: %g (must not be negative)", threshold)
		}
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	rec, err := newRecognizer(cfg.OCR)
	if err != nil {
		return fmt.Errorf("failed to create recognizer: %w", err)
	}
	defer func() { _ = rec.Close() }()

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)

	for _, path := range args {
		lines, err := readFile(cmd.Context(), rec, cfg, path, language, threshold)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		if asJSON {
			if err := enc.Encode(fileResult{File: path, DetectedText: lines}); err != nil {
				return err
			}
			continue
		}
		if err := printLines(out, path, lines, len(args) > 1); err != nil {
			return err
		}
	}
	return nil
}

func readFile(ctx context.Context, rec ocr.Recognizer, cfg *config.Config, path, language string, threshold float64) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	img, _, err := ocr.DecodeImage(data, cfg.OCR.MaxPixels)
	if err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.OCR.Timeout)
	defer cancel()

	detections, err := rec.Recognize(ctx, img, language)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("recognition timed out after %s", cfg.OCR.Timeout)
		}
		return nil, err
	}
	return ocr.ReconstructLines(detections, threshold), nil
}

func printLines(w io.Writer, path string, lines []string, withHeader bool) error {
	if withHeader {
		if _, err := fmt.Fprintf(w, "== %s ==\n", path); err != nil {
			return err
		}
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

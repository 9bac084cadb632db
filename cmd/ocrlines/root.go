package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facturaIA/textline-ocr-service/internal/recognizer"
)

// newRecognizer is swapped out in tests to avoid the tesseract dependency.
var newRecognizer = recognizer.New

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ocrlines",
		Short: "Read text lines from images",
		Long: `ocrlines runs word-level OCR over images and groups the detected words
back into text lines by their vertical position.

Examples:
  ocrlines read receipt.jpg
  ocrlines read scans/*.png --threshold 20 --json
  ocrlines version`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "config file (defaults and environment only when empty)")

	rootCmd.AddCommand(newReadCmd(), newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "ocrlines %s (commit: %s)\n", version, commit)
			return err
		},
	}
}

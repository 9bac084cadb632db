package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/facturaIA/textline-ocr-service/internal/models"
)

// ErrScanNotFound is returned when no scan has the requested id.
var ErrScanNotFound = errors.New("scan not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS scans (
	id              uuid PRIMARY KEY,
	filename        text NOT NULL DEFAULT '',
	content_type    text NOT NULL DEFAULT '',
	image_path      text NOT NULL DEFAULT '',
	language        text NOT NULL DEFAULT '',
	threshold       double precision NOT NULL,
	lines           text[] NOT NULL DEFAULT '{}',
	detection_count integer NOT NULL DEFAULT 0,
	ocr_seconds     double precision NOT NULL DEFAULT 0,
	created_at      timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS scans_created_at_idx ON scans (created_at DESC);
`

const scanColumns = `id, filename, content_type, image_path, language, threshold,
	lines, detection_count, ocr_seconds, created_at`

// EnsureSchema creates the scans table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveScan inserts a scan. A zero ID is replaced by a new random one; the
// stored creation time is written back to scan.
func (s *Store) SaveScan(ctx context.Context, scan *models.Scan) error {
	if scan.ID == uuid.Nil {
		scan.ID = uuid.New()
	}
	lines := scan.Lines
	if lines == nil {
		lines = []string{}
	}

	query := `
		INSERT INTO scans (
			id, filename, content_type, image_path, language, threshold,
			lines, detection_count, ocr_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := s.pool.QueryRow(ctx, query,
		scan.ID, scan.Filename, scan.ContentType, scan.ImagePath, scan.Language, scan.Threshold,
		lines, scan.DetectionCount, scan.OCRSeconds,
	).Scan(&scan.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}
	return nil
}

// ListScans returns the most recent scans, newest first.
func (s *Store) ListScans(ctx context.Context, limit int) ([]models.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans ORDER BY created_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	scans := []models.Scan{}
	for rows.Next() {
		scan, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, *scan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	return scans, nil
}

// GetScan retrieves a single scan by ID
func (s *Store) GetScan(ctx context.Context, id uuid.UUID) (*models.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE id = $1`

	scan, err := scanRow(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrScanNotFound
	}
	return scan, err
}

// DeleteScan removes a scan
func (s *Store) DeleteScan(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScanNotFound
	}
	return nil
}

func scanRow(row pgx.Row) (*models.Scan, error) {
	var scan models.Scan
	err := row.Scan(
		&scan.ID, &scan.Filename, &scan.ContentType, &scan.ImagePath, &scan.Language, &scan.Threshold,
		&scan.Lines, &scan.DetectionCount, &scan.OCRSeconds, &scan.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}
	return &scan, nil
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/textline-ocr-service/internal/config"
	"github.com/facturaIA/textline-ocr-service/internal/db"
	"github.com/facturaIA/textline-ocr-service/internal/models"
	"github.com/facturaIA/textline-ocr-service/internal/ocr"
)

// fakeRecognizer returns canned detections. With block set it waits for
// the context to end, like a stuck engine would. With delay set it sleeps
// without watching the context, like an engine that cannot be interrupted.
type fakeRecognizer struct {
	detections []ocr.Detection
	err        error
	block      bool
	delay      time.Duration

	mu        sync.Mutex
	calls     int
	languages []string
}

func (f *fakeRecognizer) Recognize(ctx context.Context, _ image.Image, language string) ([]ocr.Detection, error) {
	f.mu.Lock()
	f.calls++
	f.languages = append(f.languages, language)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", ocr.ErrRecognition, ctx.Err())
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.detections, f.err
}

func (f *fakeRecognizer) Name() string { return "fake" }

func (f *fakeRecognizer) Close() error { return nil }

func (f *fakeRecognizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeScanStore struct {
	mu      sync.Mutex
	scans   map[uuid.UUID]models.Scan
	order   []uuid.UUID
	saveErr error
	pingErr error
	limits  []int
}

func newFakeScanStore() *fakeScanStore {
	return &fakeScanStore{scans: make(map[uuid.UUID]models.Scan)}
}

func (f *fakeScanStore) SaveScan(_ context.Context, scan *models.Scan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if scan.ID == uuid.Nil {
		scan.ID = uuid.New()
	}
	scan.CreatedAt = time.Now()
	f.scans[scan.ID] = *scan
	f.order = append(f.order, scan.ID)
	return nil
}

func (f *fakeScanStore) ListScans(_ context.Context, limit int) ([]models.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	var out []models.Scan
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		if s, ok := f.scans[f.order[i]]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeScanStore) GetScan(_ context.Context, id uuid.UUID) (*models.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.scans[id]
	if !ok {
		return nil, db.ErrScanNotFound
	}
	return &s, nil
}

func (f *fakeScanStore) DeleteScan(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.scans[id]; !ok {
		return db.ErrScanNotFound
	}
	delete(f.scans, id)
	return nil
}

func (f *fakeScanStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeScanStore) put(scan models.Scan) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans[scan.ID] = scan
	f.order = append(f.order, scan.ID)
}

type fakeImageStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	uploadErr error
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{objects: make(map[string][]byte)}
}

func (f *fakeImageStore) Upload(_ context.Context, filename string, reader io.Reader, _ int64, _ string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	path := "scans/2026/10/" + filename
	f.mu.Lock()
	f.objects[path] = data
	f.mu.Unlock()
	return path, nil
}

func (f *fakeImageStore) PresignedURL(_ context.Context, objectPath string) (*url.URL, error) {
	return url.Parse("http://minio.local/" + objectPath + "?X-Amz-Signature=abc")
}

func (f *fakeImageStore) Delete(_ context.Context, objectPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, objectPath)
	delete(f.objects, objectPath)
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]string
	getErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]string)}
}

func (f *fakeCache) Get(_ context.Context, key string) ([]string, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lines, ok := f.entries[key]
	return lines, ok, nil
}

func (f *fakeCache) Set(_ context.Context, key string, lines []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = lines
	return nil
}

func (f *fakeCache) Ping(context.Context) error { return nil }

var errBoom = errors.New("boom")

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.MaxUploadMB = 1
	cfg.OCR.Timeout = time.Second
	return cfg
}

func newTestHandler(cfg *config.Config, rec ocr.Recognizer, opts ...Option) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(cfg, rec, logger, opts...)
}

func wordAt(x, y int, text string) ocr.Detection {
	return ocr.NewDetection(ocr.BoxFromRect(image.Rect(x, y, x+40, y+20)), text, 0.9)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartRequest builds a POST with one file part plus plain fields.
func multipartRequest(t *testing.T, target, field, filename, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)

	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

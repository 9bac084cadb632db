package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/textline-ocr-service/internal/models"
)

func seedScan(store *fakeScanStore, imagePath string) models.Scan {
	scan := models.Scan{
		ID:          uuid.New(),
		Filename:    "receipt.jpg",
		ContentType: "image/jpeg",
		ImagePath:   imagePath,
		Language:    "eng",
		Threshold:   30,
		Lines:       []string{"TOTAL 12.00"},
		CreatedAt:   time.Now(),
	}
	store.put(scan)
	return scan
}

func TestListScans(t *testing.T) {
	store := newFakeScanStore()
	for range 3 {
		seedScan(store, "")
	}
	h := newTestHandler(testConfig(), &fakeRecognizer{}, WithScanStore(store))

	resp := serve(h, httptest.NewRequest(http.MethodGet, "/api/scans?limit=2", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	body := decodeBody[models.ScanListResponse](t, resp)
	assert.True(t, body.Success)
	assert.Equal(t, 2, body.Count)
	assert.Len(t, body.Scans, 2)
}

func TestListScans_Limits(t *testing.T) {
	store := newFakeScanStore()
	h := newTestHandler(testConfig(), &fakeRecognizer{}, WithScanStore(store))

	resp := serve(h, httptest.NewRequest(http.MethodGet, "/api/scans", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody[models.ScanListResponse](t, resp)
	assert.NotNil(t, body.Scans, "empty history is an empty list")
	assert.Zero(t, body.Count)

	resp = serve(h, httptest.NewRequest(http.MethodGet, "/api/scans?limit=5000", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, []int{defaultScanLimit, maxScanLimit}, store.limits)

	for _, bad := range []string{"0", "-3", "ten"} {
		resp = serve(h, httptest.NewRequest(http.MethodGet, "/api/scans?limit="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, resp.Code, bad)
	}
}

func TestScanRoutes_WithoutDatabase(t *testing.T) {
	h := newTestHandler(testConfig(), &fakeRecognizer{})
	id := uuid.NewString()

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/scans", nil),
		httptest.NewRequest(http.MethodGet, "/api/scans/"+id, nil),
		httptest.NewRequest(http.MethodDelete, "/api/scans/"+id, nil),
	} {
		resp := serve(h, req)
		assert.Equal(t, http.StatusServiceUnavailable, resp.Code, req.Method+" "+req.URL.Path)
		assert.Equal(t, "database not available", decodeBody[map[string]string](t, resp)["error"])
	}
}

func TestGetScan(t *testing.T) {
	store := newFakeScanStore()
	scan := seedScan(store, "scans/2026/10/receipt.jpg")
	h := newTestHandler(testConfig(), &fakeRecognizer{}, WithScanStore(store), WithImageStore(newFakeImageStore()))

	resp := serve(h, httptest.NewRequest(http.MethodGet, "/api/scans/"+scan.ID.String(), nil))
	require.Equal(t, http.StatusOK, resp.Code)

	body := decodeBody[ScanResponse](t, resp)
	assert.Equal(t, scan.ID, body.ID)
	assert.Equal(t, []string{"TOTAL 12.00"}, body.Lines)
	assert.Contains(t, body.ImageURL, "scans/2026/10/receipt.jpg")
}

func TestGetScan_Errors(t *testing.T) {
	store := newFakeScanStore()
	h := newTestHandler(testConfig(), &fakeRecognizer{}, WithScanStore(store))

	resp := serve(h, httptest.NewRequest(http.MethodGet, "/api/scans/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = serve(h, httptest.NewRequest(http.MethodGet, "/api/scans/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "scan not found", decodeBody[map[string]string](t, resp)["error"])
}

func TestGetScanImage(t *testing.T) {
	store := newFakeScanStore()
	withImage := seedScan(store, "scans/2026/10/receipt.jpg")
	withoutImage := seedScan(store, "")
	h := newTestHandler(testConfig(), &fakeRecognizer{}, WithScanStore(store), WithImageStore(newFakeImageStore()))

	resp := serve(h, httptest.NewRequest(http.MethodGet, "/api/scans/"+withImage.ID.String()+"/image", nil))
	require.Equal(t, http.StatusTemporaryRedirect, resp.Code)
	assert.Contains(t, resp.Header().Get("Location"), "http://minio.local/scans/2026/10/receipt.jpg")

	resp = serve(h, httptest.NewRequest(http.MethodGet, "/api/scans/"+withoutImage.ID.String()+"/image", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetScanImage_WithoutStorage(t *testing.T) {
	store := newFakeScanStore()
	scan := seedScan(store, "scans/2026/10/receipt.jpg")
	h := newTestHandler(testConfig(), &fakeRecognizer{}, WithScanStore(store))

	resp := serve(h, httptest.NewRequest(http.MethodGet, "/api/scans/"+scan.ID.String()+"/image", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestDeleteScan(t *testing.T) {
	store := newFakeScanStore()
	images := newFakeImageStore()
	scan := seedScan(store, "scans/2026/10/receipt.jpg")
	h := newTestHandler(testConfig(), &fakeRecognizer{}, WithScanStore(store), WithImageStore(images))

	resp := serve(h, httptest.NewRequest(http.MethodDelete, "/api/scans/"+scan.ID.String(), nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, resp)["success"])
	assert.Equal(t, []string{"scans/2026/10/receipt.jpg"}, images.deleted)

	resp = serve(h, httptest.NewRequest(http.MethodDelete, "/api/scans/"+scan.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

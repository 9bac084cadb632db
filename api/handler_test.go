package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type versionedRecognizer struct {
	fakeRecognizer
	version string
	err     error
}

func (v *versionedRecognizer) Version(context.Context) (string, error) {
	return v.version, v.err
}

func TestRoot(t *testing.T) {
	h := newTestHandler(testConfig(), &fakeRecognizer{})

	resp := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "textline-ocr deployed.", decodeBody[map[string]string](t, resp)["message"])
}

func TestHealth(t *testing.T) {
	rec := &versionedRecognizer{version: "5.3.4"}
	store := newFakeScanStore()
	h := newTestHandler(testConfig(), rec, WithScanStore(store), WithResultCache(newFakeCache()))

	resp := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	body := decodeBody[HealthResponse](t, resp)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, Version, body.Version)
	assert.True(t, body.Engine.Available)
	assert.Equal(t, "fake", body.Engine.Name)
	assert.Equal(t, "5.3.4", body.Engine.Version)
	assert.True(t, body.Database.Available)
	assert.False(t, body.Storage.Available)
	assert.Equal(t, "not configured", body.Storage.Error)
	assert.True(t, body.Cache.Available)
	assert.Equal(t, "eng", body.Language)
	assert.Equal(t, 30.0, body.Threshold)
}

func TestHealth_Degraded(t *testing.T) {
	t.Run("no recognizer", func(t *testing.T) {
		h := newTestHandler(testConfig(), nil)
		resp := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
		assert.Equal(t, "degraded", decodeBody[HealthResponse](t, resp).Status)
	})

	t.Run("engine binary missing", func(t *testing.T) {
		h := newTestHandler(testConfig(), &versionedRecognizer{err: errBoom})
		resp := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
		body := decodeBody[HealthResponse](t, resp)
		assert.Equal(t, "boom", body.Engine.Error)
	})

	t.Run("database down keeps the service healthy", func(t *testing.T) {
		store := newFakeScanStore()
		store.pingErr = errBoom
		h := newTestHandler(testConfig(), &fakeRecognizer{}, WithScanStore(store))
		resp := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, resp.Code)
		assert.False(t, decodeBody[HealthResponse](t, resp).Database.Available)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(testConfig(), &fakeRecognizer{})
	serve(h, httptest.NewRequest(http.MethodGet, "/", nil))

	resp := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `textline_http_requests_total{method="GET",route="/",status="200"}`)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(testConfig(), &fakeRecognizer{})

	resp := serve(h, httptest.NewRequest(http.MethodGet, "/kj", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

func TestCORS(t *testing.T) {
	cfg := testConfig()
	cfg.Server.CORSOrigins = []string{"https://app.example.com"}
	h := newTestHandler(cfg, &fakeRecognizer{})

	t.Run("allowed origin is echoed with credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://app.example.com")
		resp := serve(h, req)

		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "https://app.example.com", resp.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", resp.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, resp.Header().Values("Vary"), "Origin")
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/kj", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "Content-Type, Authorization")
		resp := serve(h, req)

		assert.Equal(t, http.StatusNoContent, resp.Code)
		assert.Equal(t, "POST", resp.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type, Authorization", resp.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "86400", resp.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("disallowed origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		resp := serve(h, req)

		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, []string{"Origin"}, resp.Header().Values("Vary"))
	})

	t.Run("request without origin still varies on it", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		resp := serve(h, req)

		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, []string{"Origin"}, resp.Header().Values("Vary"))
	})

	t.Run("disallowed preflight is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/kj", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		resp := serve(h, req)

		assert.Equal(t, http.StatusForbidden, resp.Code)
		assert.Contains(t, resp.Header().Values("Vary"), "Origin")
	})

	t.Run("wildcard config still echoes the origin", func(t *testing.T) {
		h := newTestHandler(testConfig(), &fakeRecognizer{})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		resp := serve(h, req)

		assert.Equal(t, "http://localhost:5173", resp.Header().Get("Access-Control-Allow-Origin"))
		assert.False(t, strings.Contains(resp.Header().Get("Access-Control-Allow-Origin"), "*"))
	})
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/facturaIA/textline-ocr-service/internal/config"
	"github.com/facturaIA/textline-ocr-service/internal/models"
	"github.com/facturaIA/textline-ocr-service/internal/ocr"
)

const Version = "1.0.0"

// ScanStore persists processed scans.
type ScanStore interface {
	SaveScan(ctx context.Context, scan *models.Scan) error
	ListScans(ctx context.Context, limit int) ([]models.Scan, error)
	GetScan(ctx context.Context, id uuid.UUID) (*models.Scan, error)
	DeleteScan(ctx context.Context, id uuid.UUID) error
	Ping(ctx context.Context) error
}

// ImageStore archives uploaded images.
type ImageStore interface {
	Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error)
	PresignedURL(ctx context.Context, objectPath string) (*url.URL, error)
	Delete(ctx context.Context, objectPath string) error
}

// ResultCache remembers reconstructed lines per image and parameters.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, lines []string) error
	Ping(ctx context.Context) error
}

// Handler handles HTTP requests for image OCR
type Handler struct {
	config     *config.Config
	recognizer ocr.Recognizer
	logger     *slog.Logger

	// optional collaborators; nil means the feature is off
	scans  ScanStore
	images ImageStore
	cache  ResultCache
}

// Option configures optional collaborators of a Handler.
type Option func(*Handler)

// WithScanStore enables scan history.
func WithScanStore(s ScanStore) Option {
	return func(h *Handler) { h.scans = s }
}

// WithImageStore enables archiving of uploaded images.
func WithImageStore(s ImageStore) Option {
	return func(h *Handler) { h.images = s }
}

// WithResultCache enables the result cache.
func WithResultCache(c ResultCache) Option {
	return func(h *Handler) { h.cache = c }
}

// NewHandler creates a new API handler around a long-lived recognizer.
func NewHandler(cfg *config.Config, recognizer ocr.Recognizer, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		config:     cfg,
		recognizer: recognizer,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()
	router.Use(h.metricsMiddleware)

	// Deploy check
	router.HandleFunc("/", h.Root).Methods("GET")

	// OCR endpoints
	router.HandleFunc("/kj", h.ProcessImage).Methods("POST")
	router.HandleFunc("/api/ocr", h.ProcessImage).Methods("POST")

	// Scan history
	router.HandleFunc("/api/scans", h.ListScans).Methods("GET")
	router.HandleFunc("/api/scans/{id}/image", h.GetScanImage).Methods("GET")
	router.HandleFunc("/api/scans/{id}", h.GetScan).Methods("GET")
	router.HandleFunc("/api/scans/{id}", h.DeleteScan).Methods("DELETE")

	// Monitoring
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

// Router returns the routes wrapped with the CORS middleware.
func (h *Handler) Router() http.Handler {
	return h.corsMiddleware(h.SetupRoutes())
}

// Root answers the deploy check.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.sendJSON(w, http.StatusOK, map[string]string{
		"message": "textline-ocr deployed.",
	})
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Memory    MemoryStats   `json:"memory"`
	Engine    ServiceStatus `json:"engine"`
	Database  ServiceStatus `json:"database"`
	Storage   ServiceStatus `json:"storage"`
	Cache     ServiceStatus `json:"cache"`
	Language  string        `json:"language"`
	Threshold float64       `json:"lineThreshold"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Name      string `json:"name,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health endpoint - enhanced for monitoring
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory:    readMemoryStats(),
		Engine:    h.checkEngine(ctx),
		Database:  h.checkDatabase(ctx),
		Storage:   h.checkStorage(),
		Cache:     h.checkCache(ctx),
		Language:  h.config.OCR.Language,
		Threshold: h.config.OCR.LineThreshold,
	}

	// Without a recognizer the service cannot do its job
	status := http.StatusOK
	if !response.Engine.Available {
		response.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	h.sendJSON(w, status, response)
}

// checkEngine reports the recognizer and its version when it exposes one
func (h *Handler) checkEngine(ctx context.Context) ServiceStatus {
	if h.recognizer == nil {
		return ServiceStatus{Available: false, Error: "recognizer not initialized"}
	}

	status := ServiceStatus{Available: true, Name: h.recognizer.Name()}
	switch v := h.recognizer.(type) {
	case interface{ Version() string }:
		status.Version = v.Version()
	case interface {
		Version(context.Context) (string, error)
	}:
		version, err := v.Version(ctx)
		if err != nil {
			return ServiceStatus{Available: false, Name: status.Name, Error: err.Error()}
		}
		status.Version = version
	}
	return status
}

// checkDatabase verifies the PostgreSQL connection
func (h *Handler) checkDatabase(ctx context.Context) ServiceStatus {
	if h.scans == nil {
		return ServiceStatus{Available: false, Error: "not configured"}
	}
	if err := h.scans.Ping(ctx); err != nil {
		return ServiceStatus{Available: false, Name: "PostgreSQL", Error: err.Error()}
	}
	return ServiceStatus{Available: true, Name: "PostgreSQL"}
}

// checkStorage reports whether the image archive is configured
func (h *Handler) checkStorage() ServiceStatus {
	if h.images == nil {
		return ServiceStatus{Available: false, Error: "not configured"}
	}
	return ServiceStatus{Available: true, Name: "MinIO S3"}
}

// checkCache verifies the Redis connection
func (h *Handler) checkCache(ctx context.Context) ServiceStatus {
	if h.cache == nil {
		return ServiceStatus{Available: false, Error: "not configured"}
	}
	if err := h.cache.Ping(ctx); err != nil {
		return ServiceStatus{Available: false, Name: "Redis", Error: err.Error()}
	}
	return ServiceStatus{Available: true, Name: "Redis"}
}

func readMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
		Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
		System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
	}
}

// logMemoryUsage logs current heap and system memory
func (h *Handler) logMemoryUsage() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	h.logger.Info("memory usage",
		"alloc_mb", fmt.Sprintf("%.2f", float64(m.Alloc)/1024/1024),
		"sys_mb", fmt.Sprintf("%.2f", float64(m.Sys)/1024/1024),
	)
}

// sendJSON writes v with the given status code
func (h *Handler) sendJSON(w http.ResponseWriter, statusCode int, v any) {
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	h.sendJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

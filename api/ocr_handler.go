package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/facturaIA/textline-ocr-service/internal/cache"
	"github.com/facturaIA/textline-ocr-service/internal/models"
	"github.com/facturaIA/textline-ocr-service/internal/ocr"
	"github.com/facturaIA/textline-ocr-service/internal/storage"
)

// statusClientClosedRequest is written when the client disconnects before
// recognition completes. It only shows up in logs and metrics.
const statusClientClosedRequest = 499

// ocrParams are the per-request options of the OCR endpoint.
type ocrParams struct {
	language  string
	threshold float64
	detail    bool
}

// upload is a validated image from the multipart form.
type upload struct {
	data        []byte
	filename    string
	contentType string
}

// ProcessImage runs OCR on an uploaded image and returns the reconstructed lines.
func (h *Handler) ProcessImage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	start := time.Now()
	ctx := r.Context()
	h.logMemoryUsage()

	if h.recognizer == nil {
		ocrRequestsTotal.WithLabelValues("error").Inc()
		h.sendError(w, http.StatusServiceUnavailable, "OCR engine not available")
		return
	}

	file, status, err := h.readUpload(w, r)
	if err != nil {
		ocrRequestsTotal.WithLabelValues("rejected").Inc()
		h.logger.Warn("upload rejected", "error", err)
		h.sendError(w, status, err.Error())
		return
	}
	h.logger.Info("file received", "filename", file.filename, "content_type", file.contentType, "bytes", len(file.data))

	params, err := h.parseParams(r)
	if err != nil {
		ocrRequestsTotal.WithLabelValues("rejected").Inc()
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	img, _, err := ocr.DecodeImage(file.data, h.config.OCR.MaxPixels)
	if err != nil {
		ocrRequestsTotal.WithLabelValues("rejected").Inc()
		h.logger.Warn("image decode failed", "filename", file.filename, "error", err)
		if errors.Is(err, ocr.ErrImageTooLarge) {
			h.sendError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		h.sendError(w, http.StatusBadRequest, "invalid image")
		return
	}

	cacheKey := cache.Key(file.data, params.language, params.threshold)
	if !params.detail {
		if lines, ok := h.cachedLines(ctx, cacheKey); ok {
			ocrRequestsTotal.WithLabelValues("success").Inc()
			h.sendJSON(w, http.StatusOK, linesResponse(lines, nil, true, 0, start))
			return
		}
	}

	h.logger.Info("image decoded, starting OCR", "engine", h.recognizer.Name(), "language", params.language)

	ocrCtx, cancel := context.WithTimeout(ctx, h.config.OCR.Timeout)
	defer cancel()

	ocrStart := time.Now()
	detections, err := h.recognizer.Recognize(ocrCtx, img, params.language)
	ocrDuration := time.Since(ocrStart)
	switch {
	case ctx.Err() != nil:
		// The client went away; nobody reads the answer.
		ocrRequestsTotal.WithLabelValues("canceled").Inc()
		h.logger.Debug("request canceled during recognition", "filename", file.filename, "duration", ocrDuration)
		h.sendError(w, statusClientClosedRequest, "request canceled")
		return
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ocrCtx.Err(), context.DeadlineExceeded):
		// Engines that cannot be interrupted may still finish after the
		// deadline. Their result is dropped.
		ocrRequestsTotal.WithLabelValues("timeout").Inc()
		h.logger.Warn("recognition timed out", "filename", file.filename, "timeout", h.config.OCR.Timeout, "duration", ocrDuration)
		h.sendError(w, http.StatusGatewayTimeout, "recognition timed out")
		return
	case err != nil:
		ocrRequestsTotal.WithLabelValues("error").Inc()
		h.logger.Error("recognition failed", "filename", file.filename, "error", err)
		h.sendError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	ocrProcessingDuration.Observe(ocrDuration.Seconds())
	ocrDetections.Observe(float64(len(detections)))

	grouped := ocr.GroupLines(detections, params.threshold)
	lines := make([]string, len(grouped))
	for i, l := range grouped {
		lines[i] = l.String()
	}
	ocrLines.Observe(float64(len(lines)))
	h.logger.Info("text detected", "lines", len(lines), "detections", len(detections), "duration", ocrDuration)

	h.storeCachedLines(ctx, cacheKey, lines)

	var details []models.LineDetail
	if params.detail {
		details = make([]models.LineDetail, len(grouped))
		for i, l := range grouped {
			details[i] = models.LineDetail{
				Text:       lines[i],
				Top:        l.Top,
				Words:      len(l.Words),
				Confidence: l.Confidence(),
			}
		}
	}

	response := linesResponse(lines, details, false, ocrDuration, start)
	response.ScanID = h.saveScan(ctx, file, params, lines, len(detections), ocrDuration)

	if len(lines) == 0 {
		ocrRequestsTotal.WithLabelValues("empty").Inc()
		h.logger.Warn("no text detected", "filename", file.filename)
	} else {
		ocrRequestsTotal.WithLabelValues("success").Inc()
	}

	h.sendJSON(w, http.StatusOK, response)
}

// readUpload parses the multipart form and returns the image part. The
// returned status is the HTTP code to answer with on error.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*upload, int, error) {
	maxBytes := h.config.Server.MaxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			return nil, http.StatusRequestEntityTooLarge, errors.New("file too large")
		}
		return nil, http.StatusBadRequest, errors.New("file too large or invalid form data")
	}

	// Accept both "file" and "image" field names
	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("image")
		if err != nil {
			return nil, http.StatusBadRequest, errors.New("no file provided (use 'file' or 'image' field)")
		}
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, http.StatusInternalServerError, errors.New("failed to read file")
	}
	uploadSizeBytes.Observe(float64(len(data)))

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !ocr.IsImageContentType(contentType) {
		return nil, http.StatusBadRequest, errors.New("uploaded file is not an image")
	}

	return &upload{data: data, filename: header.Filename, contentType: contentType}, http.StatusOK, nil
}

func (h *Handler) parseParams(r *http.Request) (ocrParams, error) {
	params := ocrParams{
		language:  h.config.OCR.Language,
		threshold: h.config.OCR.LineThreshold,
	}

	if language := r.FormValue("language"); language != "" {
		params.language = language
	}

	if raw := r.FormValue("threshold"); raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil || threshold < 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
			return params, fmt.Errorf("threshold must be a non-negative number, got %q", raw)
		}
		params.threshold = threshold
	}

	if raw := r.FormValue("detail"); raw != "" {
		detail, err := strconv.ParseBool(raw)
		if err != nil {
			return params, fmt.Errorf("detail must be a boolean, got %q", raw)
		}
		params.detail = detail
	}

	return params, nil
}

func (h *Handler) cachedLines(ctx context.Context, key string) ([]string, bool) {
	if h.cache == nil {
		return nil, false
	}
	lines, ok, err := h.cache.Get(ctx, key)
	switch {
	case err != nil:
		cacheLookups.WithLabelValues("error").Inc()
		h.logger.Warn("cache lookup failed", "error", err)
		return nil, false
	case !ok:
		cacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	cacheLookups.WithLabelValues("hit").Inc()
	return lines, true
}

func (h *Handler) storeCachedLines(ctx context.Context, key string, lines []string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(ctx, key, lines); err != nil {
		h.logger.Warn("cache store failed", "error", err)
	}
}

// saveScan archives the image and records the scan. Both steps are best
// effort: failures are logged and the OCR result is still returned.
func (h *Handler) saveScan(ctx context.Context, file *upload, params ocrParams, lines []string, detections int, ocrDuration time.Duration) string {
	if h.scans == nil {
		return ""
	}

	scan := &models.Scan{
		ID:             uuid.New(),
		Filename:       file.filename,
		ContentType:    file.contentType,
		Language:       params.language,
		Threshold:      params.threshold,
		Lines:          lines,
		DetectionCount: detections,
		OCRSeconds:     ocrDuration.Seconds(),
	}

	if h.images != nil {
		objectFile := fmt.Sprintf("%s_%s%s",
			time.Now().Format("20060102_150405"),
			scan.ID.String()[:8],
			storage.FileExtension(file.contentType),
		)
		path, err := h.images.Upload(ctx, objectFile, bytes.NewReader(file.data), int64(len(file.data)), file.contentType)
		if err != nil {
			h.logger.Warn("failed to archive image", "error", err)
		} else {
			scan.ImagePath = path
		}
	}

	if err := h.scans.SaveScan(ctx, scan); err != nil {
		h.logger.Warn("failed to save scan", "error", err)
		return ""
	}
	return scan.ID.String()
}

func linesResponse(lines []string, details []models.LineDetail, cached bool, ocrDuration time.Duration, start time.Time) models.OCRResponse {
	response := models.OCRResponse{
		Cached:      cached,
		Duration:    time.Since(start).Seconds(),
		OCRDuration: ocrDuration.Seconds(),
	}
	if len(lines) == 0 {
		response.Message = "no text detected"
		return response
	}
	response.DetectedText = lines
	response.Lines = details
	return response
}

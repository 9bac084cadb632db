package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/facturaIA/textline-ocr-service/internal/db"
	"github.com/facturaIA/textline-ocr-service/internal/models"
)

const (
	defaultScanLimit = 50
	maxScanLimit     = 200
)

// ScanResponse is a single scan with a short-lived link to its image.
type ScanResponse struct {
	models.Scan
	ImageURL string `json:"image_url,omitempty"`
}

// ListScans - GET /api/scans
func (h *Handler) ListScans(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.scans == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	limit := defaultScanLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil || val <= 0 {
			h.sendError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(val, maxScanLimit)
	}

	scans, err := h.scans.ListScans(r.Context(), limit)
	if err != nil {
		h.logger.Error("list scans failed", "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to get scans")
		return
	}
	if scans == nil {
		scans = []models.Scan{}
	}

	h.sendJSON(w, http.StatusOK, models.ScanListResponse{
		Success: true,
		Scans:   scans,
		Count:   len(scans),
	})
}

// GetScan - GET /api/scans/{id}
func (h *Handler) GetScan(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	scan, ok := h.lookupScan(w, r)
	if !ok {
		return
	}

	response := ScanResponse{Scan: *scan}
	if h.images != nil && scan.ImagePath != "" {
		if u, err := h.images.PresignedURL(r.Context(), scan.ImagePath); err != nil {
			h.logger.Warn("presign failed", "scan_id", scan.ID, "error", err)
		} else {
			response.ImageURL = u.String()
		}
	}

	h.sendJSON(w, http.StatusOK, response)
}

// GetScanImage - GET /api/scans/{id}/image redirects to the archived image.
func (h *Handler) GetScanImage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.images == nil {
		h.sendError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	scan, ok := h.lookupScan(w, r)
	if !ok {
		return
	}
	if scan.ImagePath == "" {
		h.sendError(w, http.StatusNotFound, "scan has no stored image")
		return
	}

	u, err := h.images.PresignedURL(r.Context(), scan.ImagePath)
	if err != nil {
		h.logger.Error("presign failed", "scan_id", scan.ID, "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to get image")
		return
	}

	w.Header().Del("Content-Type")
	http.Redirect(w, r, u.String(), http.StatusTemporaryRedirect)
}

// DeleteScan - DELETE /api/scans/{id}
func (h *Handler) DeleteScan(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	scan, ok := h.lookupScan(w, r)
	if !ok {
		return
	}

	if err := h.scans.DeleteScan(r.Context(), scan.ID); err != nil {
		if errors.Is(err, db.ErrScanNotFound) {
			h.sendError(w, http.StatusNotFound, "scan not found")
			return
		}
		h.logger.Error("delete scan failed", "scan_id", scan.ID, "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to delete scan")
		return
	}

	// The row is gone; a leftover object only costs storage
	if h.images != nil && scan.ImagePath != "" {
		if err := h.images.Delete(r.Context(), scan.ImagePath); err != nil {
			h.logger.Warn("failed to delete image", "scan_id", scan.ID, "path", scan.ImagePath, "error", err)
		}
	}

	h.sendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "scan deleted",
	})
}

// lookupScan resolves the {id} path variable. On failure it has already
// written the error response.
func (h *Handler) lookupScan(w http.ResponseWriter, r *http.Request) (*models.Scan, bool) {
	if h.scans == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return nil, false
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid scan id")
		return nil, false
	}

	scan, err := h.scans.GetScan(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrScanNotFound) {
			h.sendError(w, http.StatusNotFound, "scan not found")
			return nil, false
		}
		h.logger.Error("get scan failed", "scan_id", id, "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to get scan")
		return nil, false
	}
	return scan, true
}

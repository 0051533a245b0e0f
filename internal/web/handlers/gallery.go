package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/logging"
	"github.com/kozaktomas/rollcall/internal/matcher"
)

// GalleryHandler handles gallery reload and diagnostics.
type GalleryHandler struct {
	service   AttendanceService
	validator *validator.Validate
	log       logrus.FieldLogger
}

// NewGalleryHandler creates a new gallery handler
func NewGalleryHandler(svc AttendanceService, v *validator.Validate, log logrus.FieldLogger) *GalleryHandler {
	return &GalleryHandler{service: svc, validator: v, log: logging.OrDiscard(log)}
}

// ReloadResponse represents the outcome of a gallery reload
type ReloadResponse struct {
	Success    bool     `json:"success"`
	Identities int      `json:"identities"`
	Encodings  int      `json:"encodings"`
	Added      []string `json:"added"`
	Removed    []string `json:"removed"`
}

// Reload swaps in a freshly loaded gallery. On failure the previous gallery keeps serving.
func (h *GalleryHandler) Reload(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ReloadGallery(r.Context())
	if err != nil {
		h.log.WithError(err).Error("gallery reload failed")
		respondError(w, http.StatusInternalServerError, "gallery reload failed: "+err.Error())
		return
	}

	st := h.service.Stats()
	resp := ReloadResponse{
		Success:    true,
		Identities: st.Identities,
		Encodings:  st.Entries,
		Added:      []string{},
		Removed:    []string{},
	}
	if report != nil {
		resp.Added = append(resp.Added, report.Added...)
		resp.Removed = append(resp.Removed, report.Removed...)
	}
	respondJSON(w, http.StatusOK, resp)
}

// NearestRequest represents a nearest-identity lookup
type NearestRequest struct {
	ImageData string `json:"image_data" validate:"required"`
	K         int    `json:"k" validate:"omitempty,min=1,max=50"`
}

// NearestResponse lists the closest gallery identities
type NearestResponse struct {
	Neighbors []gallery.Neighbor `json:"neighbors"`
}

// Nearest returns the gallery identities closest to the probe. Diagnostic only:
// nothing is recorded.
func (h *GalleryHandler) Nearest(w http.ResponseWriter, r *http.Request) {
	var req NearestRequest
	if msg, ok := decodeAndValidate(w, r, h.validator, &req); !ok {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	if req.K == 0 {
		req.K = constants.DefaultNearestK
	}

	image, err := encoder.DecodeImageData(req.ImageData)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid image data")
		return
	}

	neighbors, err := h.service.Nearest(r.Context(), image, req.K)
	switch {
	case err == nil:
		if neighbors == nil {
			neighbors = []gallery.Neighbor{}
		}
		respondJSON(w, http.StatusOK, NearestResponse{Neighbors: neighbors})
	case errors.Is(err, attendance.ErrGalleryNotLoaded), errors.Is(err, gallery.ErrEmptyGallery):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, encoder.ErrNoFaceDetected), errors.Is(err, matcher.ErrDimensionMismatch):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.WithError(err).Error("nearest lookup failed")
		respondError(w, http.StatusBadGateway, "feature extraction failed")
	}
}

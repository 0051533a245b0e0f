package handlers

import (
	"net/http"
)

// HealthHandler reports service readiness
type HealthHandler struct {
	service AttendanceService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(svc AttendanceService) *HealthHandler {
	return &HealthHandler{service: svc}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status"`
	GalleryLoaded bool   `json:"gallery_loaded"`
	Identities    int    `json:"identities"`
	Encodings     int    `json:"encodings"`
	Dimension     int    `json:"dimension"`
	ClassMetadata bool   `json:"class_metadata"`
	RosterSize    int    `json:"roster_size"`
	Policy        string `json:"policy"`
	Scorer        string `json:"scorer"`
}

// Get handles the health check endpoint. The service is "degraded" until a
// gallery is loaded.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	st := h.service.Stats()
	status := "ok"
	if !st.GalleryLoaded {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		GalleryLoaded: st.GalleryLoaded,
		Identities:    st.Identities,
		Encodings:     st.Entries,
		Dimension:     st.Dimension,
		ClassMetadata: st.ClassMetadata,
		RosterSize:    st.RosterSize,
		Policy:        st.Policy,
		Scorer:        st.Scorer,
	})
}

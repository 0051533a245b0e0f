package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/rollcall/internal/attendance"
)

func TestHealthHandler_Get(t *testing.T) {
	tests := []struct {
		name       string
		stats      attendance.Stats
		wantStatus string
	}{
		{
			name:       "loaded",
			stats:      attendance.Stats{GalleryLoaded: true, Identities: 30, Entries: 120, Dimension: 512, RosterSize: 32, Policy: "fuzzy", Scorer: "distance"},
			wantStatus: "ok",
		},
		{
			name:       "no gallery",
			stats:      attendance.Stats{Policy: "threshold", Scorer: "cosine"},
			wantStatus: "degraded",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHealthHandler(&fakeService{stats: tc.stats})

			recorder := httptest.NewRecorder()
			handler.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

			assertStatusCode(t, recorder, http.StatusOK)
			assertContentType(t, recorder, "application/json")

			var resp HealthResponse
			parseJSONResponse(t, recorder, &resp)
			if resp.Status != tc.wantStatus {
				t.Errorf("expected status '%s', got '%s'", tc.wantStatus, resp.Status)
			}
			if resp.Identities != tc.stats.Identities || resp.Encodings != tc.stats.Entries || resp.RosterSize != tc.stats.RosterSize {
				t.Errorf("unexpected counts %+v", resp)
			}
			if resp.Policy != tc.stats.Policy || resp.Scorer != tc.stats.Scorer {
				t.Errorf("unexpected policy %+v", resp)
			}
		})
	}
}

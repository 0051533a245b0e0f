package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/gallery"
)

type stubService struct {
	panicOnRecognize bool
}

func (s *stubService) Recognize(context.Context, attendance.Request) attendance.Result {
	if s.panicOnRecognize {
		panic("boom")
	}
	return attendance.Result{Success: true, Name: "Alice", RequestID: "r"}
}

func (s *stubService) ReloadGallery(context.Context) (*gallery.Report, error) {
	return &gallery.Report{}, nil
}

func (s *stubService) Today(context.Context, *gallery.ClassTag, string) ([]attendance.SessionRecords, error) {
	return nil, nil
}

func (s *stubService) Nearest(context.Context, []byte, int) ([]gallery.Neighbor, error) {
	return nil, nil
}

func (s *stubService) Stats() attendance.Stats {
	return attendance.Stats{GalleryLoaded: true, Identities: 2, Policy: "threshold", Scorer: "distance"}
}

func testServer(svc *stubService) *Server {
	return NewServer(config.WebConfig{Host: "127.0.0.1", Port: 0}, svc, nil)
}

func TestServer_Routes(t *testing.T) {
	srv := testServer(&stubService{})

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{http.MethodPost, "/api/v1/recognize", `{"image_data":"aGVsbG8="}`, http.StatusOK},
		{http.MethodPost, "/api/v1/reload", "", http.StatusOK},
		{http.MethodPost, "/api/v1/gallery/nearest", `{"image_data":"aGVsbG8="}`, http.StatusOK},
		{http.MethodGet, "/api/v1/attendance/today", "", http.StatusOK},
		{http.MethodGet, "/api/v1/recognize", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			var req *http.Request
			if tc.body != "" {
				req = httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			} else {
				req = httptest.NewRequest(tc.method, tc.path, nil)
			}
			recorder := httptest.NewRecorder()
			srv.Router().ServeHTTP(recorder, req)

			if recorder.Code != tc.want {
				t.Errorf("expected status %d, got %d\nBody: %s", tc.want, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestServer_HealthBody(t *testing.T) {
	srv := testServer(&stubService{})

	recorder := httptest.NewRecorder()
	srv.Router().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if body["status"] != "ok" || body["identities"] != float64(2) {
		t.Errorf("unexpected health body %v", body)
	}
	if recorder.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on API responses")
	}
}

func TestServer_RecoversFromPanics(t *testing.T) {
	srv := testServer(&stubService{panicOnRecognize: true})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", strings.NewReader(`{"image_data":"aGVsbG8="}`))
	srv.Router().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500 after panic, got %d", recorder.Code)
	}
}

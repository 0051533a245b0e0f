package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/gallery"
)

// fakeService is an in-memory AttendanceService that records what it was asked.
type fakeService struct {
	result    attendance.Result
	report    *gallery.Report
	reloadErr error
	sessions  []attendance.SessionRecords
	todayErr  error
	neighbors []gallery.Neighbor
	nearErr   error
	stats     attendance.Stats

	lastRequest  attendance.Request
	lastClass    *gallery.ClassTag
	lastTimeSlot string
	lastK        int
	reloads      int
}

func (f *fakeService) Recognize(_ context.Context, req attendance.Request) attendance.Result {
	f.lastRequest = req
	return f.result
}

func (f *fakeService) ReloadGallery(context.Context) (*gallery.Report, error) {
	f.reloads++
	return f.report, f.reloadErr
}

func (f *fakeService) Today(_ context.Context, class *gallery.ClassTag, timeSlot string) ([]attendance.SessionRecords, error) {
	f.lastClass = class
	f.lastTimeSlot = timeSlot
	return f.sessions, f.todayErr
}

func (f *fakeService) Nearest(_ context.Context, _ []byte, k int) ([]gallery.Neighbor, error) {
	f.lastK = k
	return f.neighbors, f.nearErr
}

func (f *fakeService) Stats() attendance.Stats {
	return f.stats
}

// testImageData is a base64 payload; the handlers only decode it.
var testImageData = base64.StdEncoding.EncodeToString([]byte("\xff\xd8\xff\xe0probe"))

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("failed to encode request body: %v", err)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

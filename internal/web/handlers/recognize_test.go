package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/decision"
	"github.com/kozaktomas/rollcall/internal/ledger"
)

func TestRecognizeHandler_Marked(t *testing.T) {
	svc := &fakeService{result: attendance.Result{
		Success:    true,
		Name:       "Alice",
		RollNo:     "42",
		Score:      87.5,
		Confidence: 87.5,
		Scorer:     "distance",
		Outcome:    decision.Present,
		Marked:     true,
		State:      attendance.StateMarked,
		RequestID:  "req-1",
		Session:    ledger.SessionKey{Department: "CS", Year: "TE", Division: "A", TimeSlot: "10-11", Date: "2026-03-02"},
	}}
	handler := NewRecognizeHandler(svc, NewValidator(), nil)

	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, jsonRequest(t, http.MethodPost, "/api/v1/recognize", RecognizeRequest{
		ImageData: "data:image/jpeg;base64," + testImageData,
		Meta:      &SessionMeta{Department: "CS", Year: "TE", Division: "A", TimeSlot: "10-11"},
	}))

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")

	var resp RecognitionResponse
	parseJSONResponse(t, recorder, &resp)
	if !resp.Success || !resp.AttendanceMarked || resp.AlreadyMarked {
		t.Errorf("unexpected flags %+v", resp)
	}
	if resp.Name != "Alice" || resp.RollNo != "42" {
		t.Errorf("unexpected identity %s/%s", resp.Name, resp.RollNo)
	}
	if resp.Similarity != 0.875 || resp.Confidence != 87.5 {
		t.Errorf("unexpected similarity %v confidence %v", resp.Similarity, resp.Confidence)
	}
	if resp.Outcome != "present" || resp.Status != "Accepted" || resp.State != "marked" {
		t.Errorf("unexpected outcome %s status %s state %s", resp.Outcome, resp.Status, resp.State)
	}
	if resp.Session.Division != "A" || resp.RequestID != "req-1" {
		t.Errorf("unexpected session %+v", resp.Session)
	}

	if string(svc.lastRequest.Image) != "\xff\xd8\xff\xe0probe" {
		t.Errorf("image not decoded from data URL: %q", svc.lastRequest.Image)
	}
	if svc.lastRequest.Class == nil || svc.lastRequest.Class.Department != "CS" || svc.lastRequest.TimeSlot != "10-11" {
		t.Errorf("session meta not forwarded: %+v", svc.lastRequest)
	}
}

func TestRecognizeHandler_NoMetaIsGeneralSession(t *testing.T) {
	svc := &fakeService{result: attendance.Result{Success: true, Outcome: decision.Absent, Name: decision.UnknownName}}
	handler := NewRecognizeHandler(svc, NewValidator(), nil)

	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, jsonRequest(t, http.MethodPost, "/api/v1/recognize", RecognizeRequest{ImageData: testImageData}))

	assertStatusCode(t, recorder, http.StatusOK)
	if svc.lastRequest.Class != nil || svc.lastRequest.TimeSlot != "" {
		t.Errorf("expected general session request, got %+v", svc.lastRequest)
	}

	var resp RecognitionResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Name != "Unknown" || resp.Status != "Rejected" || resp.AttendanceMarked {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestRecognizeHandler_PipelineFailureIsReported(t *testing.T) {
	svc := &fakeService{result: attendance.Result{
		Success: false,
		Error:   "no face detected",
		State:   attendance.StateNoFaceFound,
	}}
	handler := NewRecognizeHandler(svc, NewValidator(), nil)

	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, jsonRequest(t, http.MethodPost, "/api/v1/recognize", RecognizeRequest{ImageData: testImageData}))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp RecognitionResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Success || resp.Error != "no face detected" || resp.State != "no_face_found" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Status != "" {
		t.Errorf("expected no status without a decision, got '%s'", resp.Status)
	}
}

func TestRecognizeHandler_GalleryNotLoaded(t *testing.T) {
	svc := &fakeService{result: attendance.Result{
		Err:   attendance.ErrGalleryNotLoaded,
		Error: attendance.ErrGalleryNotLoaded.Error(),
		State: attendance.StateReceivedProbe,
	}}
	handler := NewRecognizeHandler(svc, NewValidator(), nil)

	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, jsonRequest(t, http.MethodPost, "/api/v1/recognize", RecognizeRequest{ImageData: testImageData}))

	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
}

func TestRecognizeHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		wantMsg string
	}{
		{"invalid json", "not json", errInvalidRequestBody},
		{"missing image", RecognizeRequest{}, "image_data is required"},
		{"undecodable image", RecognizeRequest{ImageData: "!!!"}, "invalid image data"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{}
			handler := NewRecognizeHandler(svc, NewValidator(), nil)

			recorder := httptest.NewRecorder()
			handler.Recognize(recorder, jsonRequest(t, http.MethodPost, "/api/v1/recognize", tc.body))

			assertStatusCode(t, recorder, http.StatusBadRequest)
			assertJSONError(t, recorder, tc.wantMsg)
			if svc.lastRequest.Image != nil {
				t.Error("service must not be called for a bad request")
			}
		})
	}
}

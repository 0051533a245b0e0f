package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/ledger"
	"github.com/kozaktomas/rollcall/internal/logging"
)

// RecognizeHandler handles probe recognition.
type RecognizeHandler struct {
	service   AttendanceService
	validator *validator.Validate
	log       logrus.FieldLogger
}

// NewRecognizeHandler creates a new recognize handler
func NewRecognizeHandler(svc AttendanceService, v *validator.Validate, log logrus.FieldLogger) *RecognizeHandler {
	return &RecognizeHandler{service: svc, validator: v, log: logging.OrDiscard(log)}
}

// SessionMeta identifies the class session a probe belongs to.
type SessionMeta struct {
	Department string `json:"department" validate:"max=64"`
	Year       string `json:"year" validate:"max=64"`
	Division   string `json:"division" validate:"max=64"`
	TimeSlot   string `json:"time_slot" validate:"max=64"`
}

// RecognizeRequest represents a recognition request
type RecognizeRequest struct {
	ImageData string       `json:"image_data" validate:"required"`
	Meta      *SessionMeta `json:"meta"`
}

// RecognitionResponse represents the result of one recognition
type RecognitionResponse struct {
	Success          bool              `json:"success"`
	Name             string            `json:"name,omitempty"`
	RollNo           string            `json:"roll_no,omitempty"`
	Confidence       float64           `json:"confidence"`
	Similarity       float64           `json:"similarity"`
	Score            float64           `json:"score"`
	Outcome          string            `json:"outcome,omitempty"`
	Status           string            `json:"status,omitempty"`
	AttendanceMarked bool              `json:"attendance_marked"`
	AlreadyMarked    bool              `json:"already_marked"`
	Error            string            `json:"error,omitempty"`
	State            string            `json:"state"`
	RequestID        string            `json:"request_id"`
	Warnings         []string          `json:"warnings,omitempty"`
	Session          ledger.SessionKey `json:"session"`
}

func newRecognitionResponse(res attendance.Result) RecognitionResponse {
	return RecognitionResponse{
		Success:          res.Success,
		Name:             res.Name,
		RollNo:           res.RollNo,
		Confidence:       res.Confidence,
		Similarity:       res.Similarity(),
		Score:            res.Score,
		Outcome:          string(res.Outcome),
		Status:           res.Status(),
		AttendanceMarked: res.Marked,
		AlreadyMarked:    res.AlreadyMarked,
		Error:            res.Error,
		State:            string(res.State),
		RequestID:        res.RequestID,
		Warnings:         res.Warnings,
		Session:          res.Session,
	}
}

// Recognize runs one probe through the pipeline. Pipeline outcomes, including
// "no face" and "unknown", are reported with 200 and success=false where
// applicable; only a missing gallery maps to 503.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var req RecognizeRequest
	if msg, ok := decodeAndValidate(w, r, h.validator, &req); !ok {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	image, err := encoder.DecodeImageData(req.ImageData)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid image data")
		return
	}

	areq := attendance.Request{Image: image}
	if req.Meta != nil {
		areq.Class = classFromMeta(req.Meta.Department, req.Meta.Year, req.Meta.Division)
		areq.TimeSlot = req.Meta.TimeSlot
	}

	res := h.service.Recognize(r.Context(), areq)
	if errors.Is(res.Err, attendance.ErrGalleryNotLoaded) {
		respondJSON(w, http.StatusServiceUnavailable, newRecognitionResponse(res))
		return
	}
	if res.Marked {
		h.log.WithFields(logging.Fields{
			"request_id": res.RequestID,
			"roll_no":    sanitizeForLog(res.RollNo),
			"session":    res.Session.Encode(),
		}).Info("attendance marked")
	}
	respondJSON(w, http.StatusOK, newRecognitionResponse(res))
}

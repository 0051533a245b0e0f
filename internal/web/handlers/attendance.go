package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/rollcall/internal/ledger"
	"github.com/kozaktomas/rollcall/internal/logging"
)

// AttendanceHandler handles attendance listings.
type AttendanceHandler struct {
	service   AttendanceService
	validator *validator.Validate
	log       logrus.FieldLogger
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(svc AttendanceService, v *validator.Validate, log logrus.FieldLogger) *AttendanceHandler {
	return &AttendanceHandler{service: svc, validator: v, log: logging.OrDiscard(log)}
}

// TodayQuery holds the optional session filters.
type TodayQuery struct {
	Department string `validate:"max=64"`
	Year       string `validate:"max=64"`
	Division   string `validate:"max=64"`
	TimeSlot   string `validate:"max=64"`
}

// SessionAttendance is one session with its records
type SessionAttendance struct {
	Session ledger.SessionKey `json:"session"`
	Count   int               `json:"count"`
	Records []ledger.Record   `json:"records"`
}

// TodayResponse lists today's sessions
type TodayResponse struct {
	Sessions []SessionAttendance `json:"sessions"`
	Total    int                 `json:"total"`
}

// Today returns today's attendance. With a full class and time slot it returns
// that session; with a class only, every session of the class; with no filters, everything.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := TodayQuery{
		Department: q.Get("department"),
		Year:       q.Get("year"),
		Division:   q.Get("division"),
		TimeSlot:   q.Get("time_slot"),
	}
	if err := h.validator.Struct(query); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	class := classFromMeta(query.Department, query.Year, query.Division)
	sessions, err := h.service.Today(r.Context(), class, query.TimeSlot)
	if err != nil {
		h.log.WithError(err).Error("listing attendance failed")
		respondError(w, http.StatusInternalServerError, "failed to read attendance")
		return
	}

	resp := TodayResponse{Sessions: make([]SessionAttendance, 0, len(sessions))}
	for _, s := range sessions {
		records := s.Records
		if records == nil {
			records = []ledger.Record{}
		}
		resp.Sessions = append(resp.Sessions, SessionAttendance{
			Session: s.Session,
			Count:   len(records),
			Records: records,
		})
		resp.Total += len(records)
	}
	respondJSON(w, http.StatusOK, resp)
}

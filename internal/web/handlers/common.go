package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/gallery"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// AttendanceService is what the HTTP layer needs from the recognition service.
type AttendanceService interface {
	Recognize(ctx context.Context, req attendance.Request) attendance.Result
	ReloadGallery(ctx context.Context) (*gallery.Report, error)
	Today(ctx context.Context, class *gallery.ClassTag, timeSlot string) ([]attendance.SessionRecords, error)
	Nearest(ctx context.Context, image []byte, k int) ([]gallery.Neighbor, error)
	Stats() attendance.Stats
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// The returned message is safe to send to the client.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) (string, bool) {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, constants.MaxRequestBody)).Decode(dst); err != nil {
		return errInvalidRequestBody, false
	}
	if err := v.Struct(dst); err != nil {
		return validationMessage(err), false
	}
	return "", true
}

// validationMessage turns validator errors into a short client-facing message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// classFromMeta builds a class tag, or nil when no class field is set.
func classFromMeta(department, year, division string) *gallery.ClassTag {
	tag := gallery.ClassTag{
		Department: strings.TrimSpace(department),
		Year:       strings.TrimSpace(year),
		Division:   strings.TrimSpace(division),
	}
	if tag.IsZero() {
		return nil
	}
	return &tag
}

// NewValidator returns the validator shared by all handlers. JSON field names
// are used in error messages.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

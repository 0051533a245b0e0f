package ledger

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kozaktomas/rollcall/internal/gallery"
)

// DateLayout is the layout of SessionKey.Date.
const DateLayout = "2006-01-02"

// SessionKey identifies one class session. The zero class with an empty time
// slot is the general session of a day.
type SessionKey struct {
	Department string `json:"department"`
	Year       string `json:"year"`
	Division   string `json:"division"`
	TimeSlot   string `json:"time_slot"`
	Date       string `json:"date"`
}

// NewSessionKey builds the key for a class and time slot on the day of now.
// A nil class yields the general session unless a time slot is given.
func NewSessionKey(class *gallery.ClassTag, timeSlot string, now time.Time) SessionKey {
	k := SessionKey{
		TimeSlot: strings.TrimSpace(timeSlot),
		Date:     now.Format(DateLayout),
	}
	if class != nil {
		k.Department = strings.TrimSpace(class.Department)
		k.Year = strings.TrimSpace(class.Year)
		k.Division = strings.TrimSpace(class.Division)
	}
	return k
}

// IsGeneral reports whether the key has neither class nor time slot.
func (k SessionKey) IsGeneral() bool {
	return k.Department == "" && k.Year == "" && k.Division == "" && k.TimeSlot == ""
}

// Class returns the class part of the key.
func (k SessionKey) Class() gallery.ClassTag {
	return gallery.ClassTag{Department: k.Department, Year: k.Year, Division: k.Division}
}

// Encode returns the canonical string form: date/department/year/division/slot,
// each component path-escaped. Distinct keys always encode differently.
func (k SessionKey) Encode() string {
	parts := []string{k.Date, k.Department, k.Year, k.Division, k.TimeSlot}
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func (k SessionKey) String() string { return k.Encode() }

// ParseSessionKey is the inverse of Encode.
func ParseSessionKey(s string) (SessionKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 5 {
		return SessionKey{}, fmt.Errorf("session key %q: expected 5 components, got %d", s, len(parts))
	}
	for i, p := range parts {
		v, err := url.PathUnescape(p)
		if err != nil {
			return SessionKey{}, fmt.Errorf("session key %q: %w", s, err)
		}
		parts[i] = v
	}
	if _, err := time.Parse(DateLayout, parts[0]); err != nil {
		return SessionKey{}, fmt.Errorf("session key %q: invalid date: %w", s, err)
	}
	return SessionKey{
		Date:       parts[0],
		Department: parts[1],
		Year:       parts[2],
		Division:   parts[3],
		TimeSlot:   parts[4],
	}, nil
}

// RelPath returns the session's file path relative to a ledger root:
// <dept>/<year>/<div>/<date>_<slot>.csv, <dept>/<year>/<div>/<date>.csv without
// a slot, or attendance_<date>.csv for the general session. Every component goes
// through pathSegment, so distinct keys never share a file.
func (k SessionKey) RelPath() string {
	date := pathSegment(k.Date)
	if k.IsGeneral() {
		return "attendance_" + date + ".csv"
	}
	name := date + ".csv"
	if k.TimeSlot != "" {
		name = date + "_" + pathSegment(k.TimeSlot) + ".csv"
	}
	return filepath.Join(pathSegment(k.Department), pathSegment(k.Year), pathSegment(k.Division), name)
}

// pathSegment escapes s for use as a single file name component. Letters,
// digits and '-' are kept; every other byte becomes %XX and the empty string
// becomes "%". The mapping is injective and never yields '.', '_' or a path
// separator.
func pathSegment(s string) string {
	if s == "" {
		return "%"
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
			b.WriteString(s[i : i+size])
		} else {
			for _, c := range []byte(s[i : i+size]) {
				fmt.Fprintf(&b, "%%%02X", c)
			}
		}
		i += size
	}
	return b.String()
}

// Package ledger records which students were marked present in which session
// and guarantees a student is marked at most once per session.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/rollcall/internal/logging"
)

// ErrLedgerWrite is matched by every *WriteError.
var ErrLedgerWrite = errors.New("ledger write failed")

// WriteError reports a mark that could not be persisted.
type WriteError struct {
	Session string
	RollNo  string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("record attendance for %s in %s: %v", e.RollNo, e.Session, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is reports whether target is ErrLedgerWrite.
func (e *WriteError) Is(target error) bool { return target == ErrLedgerWrite }

// MarkResult tells whether a mark created a new record.
type MarkResult int

const (
	Marked MarkResult = iota + 1
	AlreadyMarked
)

func (r MarkResult) String() string {
	switch r {
	case Marked:
		return "marked"
	case AlreadyMarked:
		return "already_marked"
	default:
		return "unknown"
	}
}

// Mark is a request to record a student as present.
type Mark struct {
	RollNo     string
	Name       string
	Confidence float64
	Outcome    string
	At         time.Time
}

// Key returns the identifier the ledger deduplicates on: the roll number, or
// the name for identities without one.
func (m Mark) Key() string {
	return MemberKey(m.RollNo, m.Name)
}

// Record converts the mark to its stored form.
func (m Mark) Record() Record {
	return Record{
		RollNo:     m.RollNo,
		Name:       m.Name,
		Timestamp:  m.At,
		Confidence: m.Confidence,
		Outcome:    m.Outcome,
	}
}

// MemberKey normalizes the identifier used for deduplication.
func MemberKey(rollNo, name string) string {
	if k := strings.ToLower(strings.TrimSpace(rollNo)); k != "" {
		return k
	}
	return "name:" + strings.ToLower(strings.TrimSpace(name))
}

// Record is one stored attendance mark.
type Record struct {
	RollNo     string    `json:"roll_no"`
	Name       string    `json:"name"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	Outcome    string    `json:"status"`
}

// Ledger stores attendance marks. MarkPresent is an atomic check-and-set per
// (session, member): of any number of concurrent calls for the same pair
// exactly one returns Marked.
type Ledger interface {
	// IsMarked reports whether member, a MemberKey, has a record in the session.
	IsMarked(ctx context.Context, key SessionKey, member string) (bool, error)
	MarkPresent(ctx context.Context, key SessionKey, m Mark) (MarkResult, error)
	Records(ctx context.Context, key SessionKey) ([]Record, error)
	// Sessions lists the sessions with at least one record on date (YYYY-MM-DD).
	Sessions(ctx context.Context, date string) ([]SessionKey, error)
}

type retryLedger struct {
	Ledger
	log logrus.FieldLogger
}

// WithRetry wraps l so a failed MarkPresent is retried once. If the retry also
// fails the error is returned as a *WriteError and nothing is reported as marked.
func WithRetry(l Ledger, log logrus.FieldLogger) Ledger {
	return &retryLedger{Ledger: l, log: logging.OrDiscard(log)}
}

func (r *retryLedger) MarkPresent(ctx context.Context, key SessionKey, m Mark) (MarkResult, error) {
	res, err := r.Ledger.MarkPresent(ctx, key, m)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return 0, asWriteError(key, m, err)
	}

	r.log.WithError(err).WithFields(logging.Fields{
		"session": key.Encode(),
		"roll_no": m.RollNo,
	}).Warn("attendance write failed, retrying once")

	res, err = r.Ledger.MarkPresent(ctx, key, m)
	if err != nil {
		return 0, asWriteError(key, m, err)
	}
	return res, nil
}

func asWriteError(key SessionKey, m Mark, err error) error {
	var we *WriteError
	if errors.As(err, &we) {
		return err
	}
	return &WriteError{Session: key.Encode(), RollNo: m.RollNo, Err: err}
}

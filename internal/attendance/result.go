package attendance

import (
	"github.com/kozaktomas/rollcall/internal/decision"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/ledger"
	"github.com/kozaktomas/rollcall/internal/matcher"
)

// State is a step of the recognition pipeline.
type State string

const (
	StateReceivedProbe State = "received_probe"
	StateDetected      State = "detected"
	StateNoFaceFound   State = "no_face_found"
	StateMatched       State = "matched"
	StateNoCandidates  State = "no_candidates"
	StateDecided       State = "decided"
	StateMarked        State = "marked"
	StateAlreadyMarked State = "already_marked"
	StateNotMarked     State = "not_marked"
)

// Request is one probe image together with the session it belongs to.
type Request struct {
	Image    []byte
	Class    *gallery.ClassTag
	TimeSlot string
}

// Result is what one recognition produced. State is the last pipeline state
// reached; on failure Error says why.
type Result struct {
	Success       bool
	Name          string
	RollNo        string
	Confidence    float64 // on the policy's scale
	Score         float64 // raw matcher score
	Scorer        string
	Outcome       decision.Outcome
	Marked        bool
	AlreadyMarked bool
	Error         string
	Err           error
	State         State
	RequestID     string
	Warnings      []string
	Session       ledger.SessionKey
}

// Status returns the user-facing label of the outcome, or "" when no decision was made.
func (r Result) Status() string {
	if r.Outcome == "" {
		return ""
	}
	return r.Outcome.Status()
}

// Similarity is the score on a [-1, 1]-ish similarity scale: distance scores
// are percentages, cosine scores are already similarities.
func (r Result) Similarity() float64 {
	if r.Scorer == (matcher.Distance{}).Name() {
		return r.Score / 100
	}
	return r.Score
}

// SessionRecords groups the records of one session.
type SessionRecords struct {
	Session ledger.SessionKey
	Records []ledger.Record
}

// Stats summarizes what the service has loaded.
type Stats struct {
	GalleryLoaded bool
	Identities    int
	Entries       int
	Dimension     int
	ClassMetadata bool
	RosterSize    int
	Policy        string
	Scorer        string
}

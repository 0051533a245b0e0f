// Package attendance runs the recognition pipeline: extract a probe, match it
// against the gallery, decide, and record attendance.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/rollcall/internal/decision"
	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/ledger"
	"github.com/kozaktomas/rollcall/internal/logging"
	"github.com/kozaktomas/rollcall/internal/matcher"
)

// ErrGalleryNotLoaded is reported when no gallery snapshot is available.
var ErrGalleryNotLoaded = errors.New("gallery not loaded")

// Extractor turns an image into one feature vector per detected face.
type Extractor interface {
	ExtractFeatures(ctx context.Context, image []byte) ([][]float32, error)
}

// GalleryStore provides the current gallery snapshot.
type GalleryStore interface {
	Current() *gallery.Gallery
	Reload(ctx context.Context) (*gallery.Report, error)
}

// RosterLookup resolves roll numbers for identities the gallery lacks them for.
type RosterLookup interface {
	Lookup(name string) (gallery.Identity, bool)
	Len() int
}

// Deps are the collaborators of a Service. Roster, Logger and Clock are optional.
type Deps struct {
	Gallery   GalleryStore
	Extractor Extractor
	Scorer    matcher.Scorer
	Policy    decision.Policy
	Ledger    ledger.Ledger
	Roster    RosterLookup
	Logger    logrus.FieldLogger
	Clock     func() time.Time
}

// Service composes gallery, matcher, policy and ledger for each request.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	gallery   GalleryStore
	extractor Extractor
	scorer    matcher.Scorer
	policy    decision.Policy
	ledger    ledger.Ledger
	roster    RosterLookup
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewService validates deps and builds a service.
func NewService(d Deps) (*Service, error) {
	switch {
	case d.Gallery == nil:
		return nil, errors.New("attendance: gallery store is required")
	case d.Extractor == nil:
		return nil, errors.New("attendance: feature extractor is required")
	case d.Scorer == nil:
		return nil, errors.New("attendance: scorer is required")
	case d.Policy == nil:
		return nil, errors.New("attendance: decision policy is required")
	case d.Ledger == nil:
		return nil, errors.New("attendance: ledger is required")
	}

	s := &Service{
		gallery:   d.Gallery,
		extractor: d.Extractor,
		scorer:    d.Scorer,
		policy:    d.Policy,
		ledger:    d.Ledger,
		roster:    d.Roster,
		log:       logging.OrDiscard(d.Logger),
		now:       d.Clock,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Recognize runs the pipeline for one probe. It never returns an error:
// failures are reported through Result.Success and Result.Error.
func (s *Service) Recognize(ctx context.Context, req Request) Result {
	res := Result{
		RequestID: uuid.NewString(),
		State:     StateReceivedProbe,
		Scorer:    s.scorer.Name(),
		Session:   ledger.NewSessionKey(req.Class, req.TimeSlot, s.now()),
	}
	log := s.log.WithFields(logging.Fields{
		"request_id": res.RequestID,
		"session":    res.Session.Encode(),
	})

	g := s.gallery.Current()
	if g == nil {
		return s.fail(log, res, ErrGalleryNotLoaded)
	}

	// ReceivedProbe -> Detected | NoFaceFound
	vecs, err := s.extractor.ExtractFeatures(ctx, req.Image)
	if errors.Is(err, encoder.ErrNoFaceDetected) {
		res.State = StateNoFaceFound
		return s.fail(log, res, err)
	}
	if err != nil {
		return s.fail(log, res, fmt.Errorf("feature extraction: %w", err))
	}
	if len(vecs) == 0 {
		res.State = StateNoFaceFound
		return s.fail(log, res, encoder.ErrNoFaceDetected)
	}
	res.State = StateDetected
	if len(vecs) > 1 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d faces detected, using the first", len(vecs)))
	}
	probe := vecs[0]

	// Detected -> Matched | NoCandidates
	candidates := g
	if req.Class != nil && !req.Class.IsZero() {
		candidates, err = g.FilterByClassTag(*req.Class)
		if errors.Is(err, gallery.ErrNoClassMetadata) {
			res.Warnings = append(res.Warnings, "no class information available, matching against all students")
		}
	}
	match, err := matcher.Match(probe, candidates.ByIdentity(), s.scorer)
	if errors.Is(err, matcher.ErrNoCandidates) {
		res.State = StateNoCandidates
		res.Name = decision.UnknownName
		return s.fail(log, res, err)
	}
	if err != nil {
		return s.fail(log, res, err)
	}
	res.State = StateMatched
	res.Score = match.Score

	// Matched -> Decided
	d := s.policy.Decide(match.Score)
	res.State = StateDecided
	res.Outcome = d.Outcome
	res.Confidence = d.Confidence

	if d.Outcome == decision.Absent {
		res.Name = decision.UnknownName
	} else {
		res.Name = match.Identity
		res.RollNo = s.rollNo(candidates, match.Identity)
	}

	// Decided -> Marked | AlreadyMarked | NotMarked
	switch d.Outcome {
	case decision.Present:
		mr, err := s.ledger.MarkPresent(ctx, res.Session, ledger.Mark{
			RollNo:     res.RollNo,
			Name:       res.Name,
			Confidence: res.Confidence,
			Outcome:    string(d.Outcome),
			At:         s.now(),
		})
		if err != nil {
			res.State = StateNotMarked
			return s.fail(log, res, err)
		}
		if mr == ledger.Marked {
			res.State = StateMarked
			res.Marked = true
		} else {
			res.State = StateAlreadyMarked
			res.AlreadyMarked = true
		}
	case decision.Uncertain:
		res.State = StateNotMarked
		marked, err := s.ledger.IsMarked(ctx, res.Session, ledger.MemberKey(res.RollNo, res.Name))
		if err != nil {
			res.Warnings = append(res.Warnings, "could not check existing attendance: "+err.Error())
		}
		res.AlreadyMarked = marked
	default:
		res.State = StateNotMarked
	}

	res.Success = true
	log.WithFields(logging.Fields{
		"name":       res.Name,
		"roll_no":    res.RollNo,
		"score":      res.Score,
		"confidence": res.Confidence,
		"outcome":    res.Outcome,
		"state":      res.State,
	}).Info("recognition complete")
	return res
}

func (s *Service) fail(log logrus.FieldLogger, res Result, err error) Result {
	res.Success = false
	res.Err = err
	res.Error = err.Error()
	log.WithError(err).WithField("state", res.State).Warn("recognition failed")
	return res
}

func (s *Service) rollNo(g *gallery.Gallery, name string) string {
	if id, ok := g.Identity(name); ok && id.RollNo != "" {
		return id.RollNo
	}
	if s.roster != nil {
		if id, ok := s.roster.Lookup(name); ok {
			return id.RollNo
		}
	}
	return ""
}

// ReloadGallery swaps in a freshly loaded gallery. On failure the current
// gallery keeps serving.
func (s *Service) ReloadGallery(ctx context.Context) (*gallery.Report, error) {
	return s.gallery.Reload(ctx)
}

// Today returns today's records. With a class and time slot it returns that
// session; with only a class, every session of that class; otherwise every session.
func (s *Service) Today(ctx context.Context, class *gallery.ClassTag, timeSlot string) ([]SessionRecords, error) {
	now := s.now()

	var keys []ledger.SessionKey
	if class != nil && !class.IsZero() && timeSlot != "" {
		keys = []ledger.SessionKey{ledger.NewSessionKey(class, timeSlot, now)}
	} else {
		all, err := s.ledger.Sessions(ctx, now.Format(ledger.DateLayout))
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		for _, k := range all {
			if class != nil && !class.Matches(k.Class()) {
				continue
			}
			keys = append(keys, k)
		}
	}

	out := make([]SessionRecords, 0, len(keys))
	for _, k := range keys {
		records, err := s.ledger.Records(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("records for %s: %w", k.Encode(), err)
		}
		out = append(out, SessionRecords{Session: k, Records: records})
	}
	return out, nil
}

// Nearest returns the k gallery identities closest to the first face in image.
func (s *Service) Nearest(ctx context.Context, image []byte, k int) ([]gallery.Neighbor, error) {
	g := s.gallery.Current()
	if g == nil {
		return nil, ErrGalleryNotLoaded
	}
	vecs, err := s.extractor.ExtractFeatures(ctx, image)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, encoder.ErrNoFaceDetected
	}
	return g.Nearest(vecs[0], k)
}

// Stats reports what is currently loaded.
func (s *Service) Stats() Stats {
	st := Stats{
		Policy: s.policy.Name(),
		Scorer: s.scorer.Name(),
	}
	if s.roster != nil {
		st.RosterSize = s.roster.Len()
	}
	if g := s.gallery.Current(); g != nil {
		st.GalleryLoaded = true
		st.Identities = g.Len()
		st.Entries = g.EntryCount()
		st.Dimension = g.Dim()
		st.ClassMetadata = g.HasClassMetadata()
	}
	return st
}

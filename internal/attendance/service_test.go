package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/rollcall/internal/decision"
	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/ledger"
	"github.com/kozaktomas/rollcall/internal/matcher"
	"github.com/kozaktomas/rollcall/internal/roster"
)

var testNow = time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)

type fakeExtractor struct {
	vecs [][]float32
	err  error
}

func (f fakeExtractor) ExtractFeatures(context.Context, []byte) ([][]float32, error) {
	return f.vecs, f.err
}

type brokenLedger struct {
	ledger.Ledger
	mu    sync.Mutex
	calls int
}

func (b *brokenLedger) MarkPresent(context.Context, ledger.SessionKey, ledger.Mark) (ledger.MarkResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return 0, errors.New("disk full")
}

func class(dept, year, div string) *gallery.ClassTag {
	return &gallery.ClassTag{Department: dept, Year: year, Division: div}
}

func newGallery(t *testing.T, withClasses bool) *gallery.Gallery {
	t.Helper()
	ids := []gallery.Identity{
		{Name: "Alice", RollNo: "1", Class: class("CS", "TE", "A")},
		{Name: "Bob", Class: class("CS", "TE", "B")},
	}
	if !withClasses {
		for i := range ids {
			ids[i].Class = nil
		}
	}
	g, err := gallery.New(ids, []gallery.Entry{
		{Name: "Alice", Vector: []float32{1, 0}},
		{Name: "Bob", Vector: []float32{0, 1}},
	}, nil)
	if err != nil {
		t.Fatalf("gallery.New() error: %v", err)
	}
	return g
}

type fixture struct {
	svc    *Service
	store  *gallery.Store
	ledger *ledger.CSVLedger
}

func newFixture(t *testing.T, ext Extractor, g *gallery.Gallery, l ledger.Ledger) fixture {
	t.Helper()
	store := gallery.NewStore(nil, nil)
	if g != nil {
		store.Swap(g)
	}
	csv := ledger.NewCSVLedger(t.TempDir(), nil)
	if l == nil {
		l = csv
	}
	svc, err := NewService(Deps{
		Gallery:   store,
		Extractor: ext,
		Scorer:    matcher.Distance{},
		Policy:    decision.Threshold{Low: 40, High: 60},
		Ledger:    ledger.WithRetry(l, nil),
		Roster:    roster.New([]gallery.Identity{{Name: "Bob", RollNo: "2"}}),
		Clock:     func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	return fixture{svc: svc, store: store, ledger: csv}
}

func TestRecognize_MarksThenReportsAlreadyMarked(t *testing.T) {
	f := newFixture(t, fakeExtractor{vecs: [][]float32{{1, 0}}}, newGallery(t, true), nil)
	req := Request{Image: []byte("img"), Class: class("CS", "TE", "A"), TimeSlot: "10:00 - 11:00"}

	first := f.svc.Recognize(context.Background(), req)
	if !first.Success || !first.Marked || first.AlreadyMarked {
		t.Fatalf("first recognition = %+v, want marked", first)
	}
	if first.Name != "Alice" || first.RollNo != "1" || first.Score != 100 {
		t.Errorf("unexpected identity %q/%q score %v", first.Name, first.RollNo, first.Score)
	}
	if first.Outcome != decision.Present || first.State != StateMarked {
		t.Errorf("outcome %q state %q", first.Outcome, first.State)
	}
	if first.RequestID == "" {
		t.Error("expected a request id")
	}
	wantSession := ledger.SessionKey{Department: "CS", Year: "TE", Division: "A", TimeSlot: "10:00 - 11:00", Date: "2026-03-02"}
	if first.Session != wantSession {
		t.Errorf("session = %+v, want %+v", first.Session, wantSession)
	}

	second := f.svc.Recognize(context.Background(), req)
	if !second.Success || second.Marked || !second.AlreadyMarked || second.State != StateAlreadyMarked {
		t.Errorf("second recognition = %+v, want already marked", second)
	}
	if second.RequestID == first.RequestID {
		t.Error("request ids must differ")
	}

	records, err := f.ledger.Records(context.Background(), wantSession)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Timestamp != testNow {
		t.Errorf("unexpected records %+v", records)
	}
}

func TestRecognize_RollNoFromRoster(t *testing.T) {
	f := newFixture(t, fakeExtractor{vecs: [][]float32{{0, 1}}}, newGallery(t, true), nil)

	res := f.svc.Recognize(context.Background(), Request{Class: class("CS", "TE", "B"), TimeSlot: "9-10"})
	if !res.Marked || res.Name != "Bob" || res.RollNo != "2" {
		t.Errorf("expected Bob marked with roster roll number, got %+v", res)
	}
}

func TestRecognize_EmptyClassHasNoCandidates(t *testing.T) {
	f := newFixture(t, fakeExtractor{vecs: [][]float32{{1, 0}}}, newGallery(t, true), nil)

	res := f.svc.Recognize(context.Background(), Request{Class: class("ME", "FE", "C"), TimeSlot: "9-10"})
	if res.Success || res.State != StateNoCandidates || res.Marked {
		t.Errorf("expected no candidates, got %+v", res)
	}
	if res.Name != decision.UnknownName {
		t.Errorf("name = %q, want %q", res.Name, decision.UnknownName)
	}
}

func TestRecognize_ClassFilterExcludesOtherDivisions(t *testing.T) {
	f := newFixture(t, fakeExtractor{vecs: [][]float32{{0, 1}}}, newGallery(t, true), nil)

	// Bob's exact vector, but Bob is in division B.
	res := f.svc.Recognize(context.Background(), Request{Class: class("CS", "TE", "A"), TimeSlot: "9-10"})
	if res.Name == "Bob" {
		t.Errorf("identity from another division matched: %+v", res)
	}
}

func TestRecognize_NoFace(t *testing.T) {
	f := newFixture(t, fakeExtractor{err: encoder.ErrNoFaceDetected}, newGallery(t, true), nil)

	res := f.svc.Recognize(context.Background(), Request{Image: []byte("img")})
	if res.Success || res.State != StateNoFaceFound || res.Error == "" {
		t.Errorf("expected no face result, got %+v", res)
	}
	if res.Status() != "" {
		t.Errorf("no decision expected, got status %q", res.Status())
	}
}

func TestRecognize_EncoderFailure(t *testing.T) {
	f := newFixture(t, fakeExtractor{err: errors.New("connection refused")}, newGallery(t, true), nil)

	res := f.svc.Recognize(context.Background(), Request{})
	if res.Success || res.State != StateReceivedProbe || !strings.Contains(res.Error, "connection refused") {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRecognize_GalleryNotLoaded(t *testing.T) {
	f := newFixture(t, fakeExtractor{vecs: [][]float32{{1, 0}}}, nil, nil)

	res := f.svc.Recognize(context.Background(), Request{})
	if res.Success || res.Error != ErrGalleryNotLoaded.Error() {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRecognize_AbsentIsUnknown(t *testing.T) {
	f := newFixture(t, fakeExtractor{vecs: [][]float32{{10, 10}}}, newGallery(t, true), nil)

	res := f.svc.Recognize(context.Background(), Request{})
	if !res.Success || res.Outcome != decision.Absent || res.State != StateNotMarked {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Name != decision.UnknownName || res.RollNo != "" || res.Marked {
		t.Errorf("absent probe must be unknown and unmarked: %+v", res)
	}
	if res.Status() != "Rejected" {
		t.Errorf("status = %q, want Rejected", res.Status())
	}
}

func TestRecognize_UncertainIsNotMarked(t *testing.T) {
	f := newFixture(t, fakeExtractor{vecs: [][]float32{{1, 0.5}}}, newGallery(t, true), nil)

	res := f.svc.Recognize(context.Background(), Request{})
	if !res.Success || res.Outcome != decision.Uncertain || res.Marked {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Name != "Alice" || res.RollNo != "1" {
		t.Errorf("uncertain result should still name the best match: %+v", res)
	}

	records, err := f.ledger.Records(context.Background(), res.Session)
	if err != nil || len(records) != 0 {
		t.Errorf("expected no records, got %v, %v", records, err)
	}
}

func TestRecognize_WriteFailureNotMarked(t *testing.T) {
	broken := &brokenLedger{}
	f := newFixture(t, fakeExtractor{vecs: [][]float32{{1, 0}}}, newGallery(t, true), broken)

	res := f.svc.Recognize(context.Background(), Request{})
	if res.Success || res.Marked || res.AlreadyMarked {
		t.Errorf("failed write reported as success: %+v", res)
	}
	if res.State != StateNotMarked || res.Name != "Alice" || res.Outcome != decision.Present {
		t.Errorf("unexpected result %+v", res)
	}
	if broken.calls != 2 {
		t.Errorf("expected one retry, got %d calls", broken.calls)
	}
}

func TestRecognize_NoClassMetadataWarns(t *testing.T) {
	f := newFixture(t, fakeExtractor{vecs: [][]float32{{1, 0}}}, newGallery(t, false), nil)

	res := f.svc.Recognize(context.Background(), Request{Class: class("CS", "TE", "A"), TimeSlot: "9-10"})
	if !res.Marked || res.Name != "Alice" {
		t.Fatalf("expected match against the full gallery, got %+v", res)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("expected one warning, got %v", res.Warnings)
	}
}

func TestRecognize_MultipleFacesWarns(t *testing.T) {
	f := newFixture(t, fakeExtractor{vecs: [][]float32{{1, 0}, {0, 1}}}, newGallery(t, true), nil)

	res := f.svc.Recognize(context.Background(), Request{})
	if res.Name != "Alice" || len(res.Warnings) != 1 {
		t.Errorf("expected first face used with a warning, got %+v", res)
	}
}

func TestRecognize_ConcurrentSameStudentMarkedOnce(t *testing.T) {
	f := newFixture(t, fakeExtractor{vecs: [][]float32{{1, 0}}}, newGallery(t, true), nil)
	req := Request{Class: class("CS", "TE", "A"), TimeSlot: "10:00 - 11:00"}

	const n = 16
	results := make(chan Result, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.svc.Recognize(context.Background(), req)
		}()
	}
	wg.Wait()
	close(results)

	marked := 0
	for r := range results {
		if r.Marked {
			marked++
		}
	}
	if marked != 1 {
		t.Errorf("expected exactly one marked result, got %d", marked)
	}
}

func TestToday(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fakeExtractor{vecs: [][]float32{{1, 0}}}, newGallery(t, false), nil)

	for _, req := range []Request{
		{Class: class("CS", "TE", "A"), TimeSlot: "9-10"},
		{Class: class("CS", "TE", "A"), TimeSlot: "10-11"},
		{Class: class("CS", "TE", "B"), TimeSlot: "9-10"},
		{},
	} {
		if res := f.svc.Recognize(ctx, req); !res.Marked {
			t.Fatalf("setup recognition not marked: %+v", res)
		}
	}

	tests := []struct {
		name  string
		class *gallery.ClassTag
		slot  string
		want  int
	}{
		{"single session", class("CS", "TE", "A"), "9-10", 1},
		{"whole class", class("CS", "TE", "A"), "", 2},
		{"department", class("CS", "", ""), "", 3},
		{"everything", nil, "", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Today(ctx, tt.class, tt.slot)
			if err != nil {
				t.Fatalf("Today() error: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d sessions, want %d: %v", len(got), tt.want, fmt.Sprint(got))
			}
			for _, s := range got {
				if len(s.Records) != 1 || s.Records[0].Name != "Alice" {
					t.Errorf("session %s: unexpected records %+v", s.Session, s.Records)
				}
			}
		})
	}
}

func TestNearest(t *testing.T) {
	f := newFixture(t, fakeExtractor{vecs: [][]float32{{1, 0.1}}}, newGallery(t, true), nil)

	got, err := f.svc.Nearest(context.Background(), nil, 2)
	if err != nil {
		t.Fatalf("Nearest() error: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Alice" || got[0].RollNo != "1" {
		t.Errorf("unexpected neighbors %+v", got)
	}

	empty := newFixture(t, fakeExtractor{vecs: [][]float32{{1, 0}}}, nil, nil)
	if _, err := empty.svc.Nearest(context.Background(), nil, 2); !errors.Is(err, ErrGalleryNotLoaded) {
		t.Errorf("expected ErrGalleryNotLoaded, got %v", err)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t, fakeExtractor{}, newGallery(t, true), nil)

	st := f.svc.Stats()
	if !st.GalleryLoaded || st.Identities != 2 || st.Entries != 2 || st.Dimension != 2 || !st.ClassMetadata {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.RosterSize != 1 || st.Policy != "threshold" || st.Scorer != "distance" {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestNewService_RequiresDeps(t *testing.T) {
	if _, err := NewService(Deps{}); err == nil {
		t.Error("expected error for missing dependencies")
	}
}

func TestResult_Similarity(t *testing.T) {
	tests := []struct {
		scorer string
		score  float64
		want   float64
	}{
		{"distance", 87.5, 0.875},
		{"distance", -20, -0.2},
		{"cosine", 0.93, 0.93},
	}
	for _, tt := range tests {
		r := Result{Scorer: tt.scorer, Score: tt.score}
		if got := r.Similarity(); got != tt.want {
			t.Errorf("Similarity(%s, %v) = %v, want %v", tt.scorer, tt.score, got, tt.want)
		}
	}
}

// Package gallery holds the enrolled identities and their exemplar vectors.
//
// A Gallery is immutable once built. Readers share snapshots freely; a Store
// replaces the whole snapshot when the gallery is reloaded.
package gallery

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrGalleryLoad is matched by every *LoadError.
	ErrGalleryLoad = errors.New("gallery load failed")
	// ErrNoClassMetadata is returned alongside the unfiltered gallery when a class
	// filter is requested but no identity carries class information.
	ErrNoClassMetadata = errors.New("gallery has no class metadata")
)

// LoadError describes why a gallery artifact could not be used.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load gallery from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is reports whether target is ErrGalleryLoad.
func (e *LoadError) Is(target error) bool { return target == ErrGalleryLoad }

// ClassTag identifies the class an identity belongs to.
type ClassTag struct {
	Department string `json:"department"`
	Year       string `json:"year"`
	Division   string `json:"division"`
}

// IsZero reports whether no field of the tag is set.
func (t ClassTag) IsZero() bool {
	return strings.TrimSpace(t.Department) == "" &&
		strings.TrimSpace(t.Year) == "" &&
		strings.TrimSpace(t.Division) == ""
}

// Matches reports whether other belongs to the class described by t.
// Empty fields of t match anything; comparison ignores case and surrounding space.
func (t ClassTag) Matches(other ClassTag) bool {
	return fieldMatches(t.Department, other.Department) &&
		fieldMatches(t.Year, other.Year) &&
		fieldMatches(t.Division, other.Division)
}

func (t ClassTag) String() string {
	return fmt.Sprintf("%s/%s/%s", t.Department, t.Year, t.Division)
}

func fieldMatches(want, got string) bool {
	want = strings.TrimSpace(want)
	if want == "" {
		return true
	}
	return strings.EqualFold(want, strings.TrimSpace(got))
}

// Identity is one enrolled person. Name is the unique key.
type Identity struct {
	Name   string
	RollNo string
	Class  *ClassTag
}

// Entry is one raw encoding of an identity, as produced from a single image.
type Entry struct {
	Name   string
	Vector []float32
}

// Gallery is an immutable snapshot of identities, their raw entries and one
// baseline vector per identity.
type Gallery struct {
	identities map[string]Identity
	baselines  map[string][]float32
	entries    []Entry
	dim        int

	indexOnce sync.Once
	index     *Index
	indexErr  error
}

// New validates the parts and assembles a Gallery. Identities with entries but
// no baseline get the mean of their entries as baseline.
func New(identities []Identity, entries []Entry, baselines map[string][]float32) (*Gallery, error) {
	g := &Gallery{
		identities: make(map[string]Identity, len(identities)),
		baselines:  make(map[string][]float32, len(identities)),
		entries:    slices.Clone(entries),
	}

	for _, id := range identities {
		if strings.TrimSpace(id.Name) == "" {
			return nil, errors.New("identity with empty name")
		}
		if _, dup := g.identities[id.Name]; dup {
			return nil, fmt.Errorf("duplicate identity %q", id.Name)
		}
		g.identities[id.Name] = id
	}

	grouped := make(map[string][][]float32)
	for i, e := range g.entries {
		if _, ok := g.identities[e.Name]; !ok {
			return nil, fmt.Errorf("entry %d references unknown identity %q", i, e.Name)
		}
		if err := g.checkDim(len(e.Vector)); err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, e.Name, err)
		}
		grouped[e.Name] = append(grouped[e.Name], e.Vector)
	}

	for name, vec := range baselines {
		if _, ok := g.identities[name]; !ok {
			return nil, fmt.Errorf("baseline references unknown identity %q", name)
		}
		if err := g.checkDim(len(vec)); err != nil {
			return nil, fmt.Errorf("baseline for %s: %w", name, err)
		}
		g.baselines[name] = vec
	}

	for name, vecs := range grouped {
		if _, ok := g.baselines[name]; !ok {
			g.baselines[name] = Mean(vecs)
		}
	}

	return g, nil
}

func (g *Gallery) checkDim(n int) error {
	if n == 0 {
		return errors.New("empty vector")
	}
	if g.dim == 0 {
		g.dim = n
		return nil
	}
	if n != g.dim {
		return fmt.Errorf("dimension %d differs from gallery dimension %d", n, g.dim)
	}
	return nil
}

// Len returns the number of identities that have a baseline and can be matched.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.baselines)
}

// EntryCount returns the number of raw encodings in the gallery.
func (g *Gallery) EntryCount() int {
	if g == nil {
		return 0
	}
	return len(g.entries)
}

// Dim returns the vector dimensionality, or 0 for an empty gallery.
func (g *Gallery) Dim() int {
	if g == nil {
		return 0
	}
	return g.dim
}

// ByIdentity returns the baseline vector of every matchable identity.
// The returned map is a fresh copy; the vectors are shared and must not be modified.
func (g *Gallery) ByIdentity() map[string][]float32 {
	if g == nil {
		return map[string][]float32{}
	}
	out := make(map[string][]float32, len(g.baselines))
	for name, vec := range g.baselines {
		out[name] = vec
	}
	return out
}

// Identity looks up an identity by name.
func (g *Gallery) Identity(name string) (Identity, bool) {
	if g == nil {
		return Identity{}, false
	}
	id, ok := g.identities[name]
	return id, ok
}

// Identities returns all identities sorted by name.
func (g *Gallery) Identities() []Identity {
	if g == nil {
		return nil
	}
	out := make([]Identity, 0, len(g.identities))
	for _, id := range g.identities {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b Identity) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Names returns the names of all matchable identities, sorted.
func (g *Gallery) Names() []string {
	if g == nil {
		return nil
	}
	names := make([]string, 0, len(g.baselines))
	for name := range g.baselines {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Entries returns a copy of the raw entries.
func (g *Gallery) Entries() []Entry {
	if g == nil {
		return nil
	}
	return slices.Clone(g.entries)
}

// HasClassMetadata reports whether any identity carries a class tag.
func (g *Gallery) HasClassMetadata() bool {
	if g == nil {
		return false
	}
	for _, id := range g.identities {
		if id.Class != nil && !id.Class.IsZero() {
			return true
		}
	}
	return false
}

// FilterByClassTag returns the identities belonging to tag. A zero tag returns
// the gallery unchanged. When no identity has class metadata the full gallery is
// returned together with ErrNoClassMetadata; callers may treat that as a warning.
// The filtered gallery may be empty.
func (g *Gallery) FilterByClassTag(tag ClassTag) (*Gallery, error) {
	if tag.IsZero() {
		return g, nil
	}
	if !g.HasClassMetadata() {
		return g, ErrNoClassMetadata
	}

	sub := &Gallery{
		identities: make(map[string]Identity),
		baselines:  make(map[string][]float32),
		dim:        g.dim,
	}
	for name, id := range g.identities {
		if id.Class == nil || !tag.Matches(*id.Class) {
			continue
		}
		sub.identities[name] = id
		if vec, ok := g.baselines[name]; ok {
			sub.baselines[name] = vec
		}
	}
	for _, e := range g.entries {
		if _, ok := sub.identities[e.Name]; ok {
			sub.entries = append(sub.entries, e)
		}
	}
	if len(sub.baselines) == 0 {
		sub.dim = 0
	}

	return sub, nil
}

// Mean returns the elementwise mean of equal-length vectors.
func Mean(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	sum := make([]float64, len(vecs[0]))
	for _, v := range vecs {
		for i := range sum {
			sum[i] += float64(v[i])
		}
	}
	out := make([]float32, len(sum))
	n := float64(len(vecs))
	for i, s := range sum {
		out[i] = float32(s / n)
	}
	return out
}

// Diff returns the identity names present only in next (added) and only in
// prev (removed), both sorted. Either gallery may be nil.
func Diff(prev, next *Gallery) (added, removed []string) {
	prevNames := make(map[string]struct{})
	for _, name := range prev.Names() {
		prevNames[name] = struct{}{}
	}
	nextNames := make(map[string]struct{})
	for _, name := range next.Names() {
		nextNames[name] = struct{}{}
		if _, ok := prevNames[name]; !ok {
			added = append(added, name)
		}
	}
	for _, name := range prev.Names() {
		if _, ok := nextNames[name]; !ok {
			removed = append(removed, name)
		}
	}
	return added, removed
}

package gallery

import (
	"fmt"
	"slices"
	"strings"
)

// Report summarizes how a new gallery differs from the previous one.
type Report struct {
	Added    []string // identities new in this gallery
	Removed  []string // identities that were in the previous gallery but not this one
	Skipped  []string // encoding groups with no roster entry, never merged
	Excluded []string // roster identities with zero usable encodings
	Warnings []string
}

// Rebuild builds a gallery from a roster and the encodings extracted per identity.
// Each roster identity's baseline is the mean of its encodings. Roster entries
// without encodings are excluded, and encodings for names missing from the
// roster are skipped. Encodings whose dimension differs from the first one seen
// are dropped with a warning, as are roster entries with a blank name. prev may
// be nil.
func Rebuild(prev *Gallery, roster []Identity, encodings map[string][][]float32) (*Gallery, *Report, error) {
	report := &Report{}

	ordered := slices.Clone(roster)
	slices.SortStableFunc(ordered, func(a, b Identity) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})

	known := make(map[string]struct{}, len(ordered))
	var (
		identities []Identity
		entries    []Entry
		dim        int
	)
	for _, id := range ordered {
		if strings.TrimSpace(id.Name) == "" {
			report.Warnings = append(report.Warnings, "roster entry with blank name ignored")
			continue
		}
		if _, dup := known[id.Name]; dup {
			report.Warnings = append(report.Warnings, fmt.Sprintf("duplicate roster entry %q ignored", id.Name))
			continue
		}
		known[id.Name] = struct{}{}

		var usable [][]float32
		for _, vec := range encodings[id.Name] {
			if len(vec) == 0 {
				continue
			}
			if dim == 0 {
				dim = len(vec)
			}
			if len(vec) != dim {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("%s: dropped encoding with dimension %d (expected %d)", id.Name, len(vec), dim))
				continue
			}
			usable = append(usable, vec)
		}

		if len(usable) == 0 {
			report.Excluded = append(report.Excluded, id.Name)
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: no encodings, excluded from gallery", id.Name))
			continue
		}

		identities = append(identities, id)
		for _, vec := range usable {
			entries = append(entries, Entry{Name: id.Name, Vector: vec})
		}
	}

	for name := range encodings {
		if _, ok := known[name]; !ok {
			report.Skipped = append(report.Skipped, name)
		}
	}
	slices.Sort(report.Skipped)
	for _, name := range report.Skipped {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s: not in roster, skipped", name))
	}

	next, err := New(identities, entries, nil)
	if err != nil {
		return nil, report, fmt.Errorf("rebuild gallery: %w", err)
	}

	report.Added, report.Removed = Diff(prev, next)
	return next, report, nil
}

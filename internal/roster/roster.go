// Package roster loads the list of enrolled students.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/kozaktomas/rollcall/internal/gallery"
)

// Required and optional column names of students.csv.
const (
	colName       = "name"
	colRollNo     = "rollno"
	colDepartment = "department"
	colYear       = "year"
	colDivision   = "division"
)

// Roster is an immutable list of students with name lookup.
type Roster struct {
	students []gallery.Identity
	byName   map[string]gallery.Identity
}

// New builds a roster. When two students normalize to the same name the first one wins.
func New(students []gallery.Identity) *Roster {
	r := &Roster{
		students: slices.Clone(students),
		byName:   make(map[string]gallery.Identity, len(students)),
	}
	for _, s := range r.students {
		key := NormalizeName(s.Name)
		if _, dup := r.byName[key]; !dup {
			r.byName[key] = s
		}
	}
	return r
}

// LoadCSV reads a students.csv file.
func LoadCSV(path string) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	r, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return r, nil
}

// Parse reads roster rows. The header must contain Name and RollNo; Department,
// Year and Division are optional and become the student's class tag.
func Parse(in io.Reader) (*Roster, error) {
	cr := csv.NewReader(in)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty roster")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		h = strings.NewReplacer(" ", "", "_", "").Replace(h)
		cols[h] = i
	}
	for _, required := range []string{colName, colRollNo} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing %q column", required)
		}
	}

	field := func(row []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	cr.FieldsPerRecord = -1
	var students []gallery.Identity
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}

		s := gallery.Identity{
			Name:   field(row, colName),
			RollNo: field(row, colRollNo),
		}
		if s.Name == "" {
			continue
		}
		tag := gallery.ClassTag{
			Department: field(row, colDepartment),
			Year:       field(row, colYear),
			Division:   field(row, colDivision),
		}
		if !tag.IsZero() {
			s.Class = &tag
		}
		students = append(students, s)
	}

	return New(students), nil
}

// Lookup finds a student by name, ignoring case, diacritics and spacing.
func (r *Roster) Lookup(name string) (gallery.Identity, bool) {
	if r == nil {
		return gallery.Identity{}, false
	}
	s, ok := r.byName[NormalizeName(name)]
	return s, ok
}

// Identities returns the students in file order.
func (r *Roster) Identities() []gallery.Identity {
	if r == nil {
		return nil
	}
	return slices.Clone(r.students)
}

// Len returns the number of students.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.students)
}

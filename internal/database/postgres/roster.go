package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/kozaktomas/rollcall/internal/gallery"
)

// RosterRepository stores the enrolled students.
type RosterRepository struct {
	pool *Pool
}

// NewRosterRepository creates a new PostgreSQL roster repository.
func NewRosterRepository(pool *Pool) *RosterRepository {
	return &RosterRepository{pool: pool}
}

// Roster returns every student ordered by name.
func (r *RosterRepository) Roster(ctx context.Context) ([]gallery.Identity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT roll_no, name, department, year, division
		FROM students
		ORDER BY name, roll_no
	`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var out []gallery.Identity
	for rows.Next() {
		var (
			id  gallery.Identity
			tag gallery.ClassTag
		)
		if err := rows.Scan(&id.RollNo, &id.Name, &tag.Department, &tag.Year, &tag.Division); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		if !tag.IsZero() {
			id.Class = &tag
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return out, nil
}

// ReplaceRoster upserts the given students and removes everyone else.
func (r *RosterRepository) ReplaceRoster(ctx context.Context, students []gallery.Identity) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	rolls := make([]string, 0, len(students))
	for _, s := range students {
		var tag gallery.ClassTag
		if s.Class != nil {
			tag = *s.Class
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO students (roll_no, name, department, year, division)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (roll_no) DO UPDATE SET
				name = EXCLUDED.name,
				department = EXCLUDED.department,
				year = EXCLUDED.year,
				division = EXCLUDED.division
		`, s.RollNo, s.Name, tag.Department, tag.Year, tag.Division)
		if err != nil {
			return fmt.Errorf("upsert student %s: %w", s.RollNo, err)
		}
		rolls = append(rolls, s.RollNo)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM students WHERE roll_no <> ALL($1)", pq.Array(rolls)); err != nil {
		return fmt.Errorf("remove stale students: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit roster: %w", err)
	}
	return nil
}

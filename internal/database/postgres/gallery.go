package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/rollcall/internal/gallery"
)

// GalleryRepository stores the gallery in gallery_identities and gallery_entries
// with pgvector columns. SaveArtifact replaces the whole gallery in one transaction.
type GalleryRepository struct {
	pool *Pool
}

// NewGalleryRepository creates a new PostgreSQL gallery source and sink.
func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool}
}

func (r *GalleryRepository) Describe() string { return "postgres" }

// LoadArtifact reads the stored gallery.
func (r *GalleryRepository) LoadArtifact(ctx context.Context) (*gallery.Artifact, error) {
	a := &gallery.Artifact{Baselines: make(map[string][]float32)}

	err := r.pool.QueryRow(ctx, "SELECT version, built_at FROM gallery_meta WHERE id = 1").Scan(&a.Version, &a.BuiltAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New("no gallery stored in database")
	}
	if err != nil {
		return nil, fmt.Errorf("get gallery metadata: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT name, roll_no, department, year, division, baseline
		FROM gallery_identities
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list gallery identities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id                   gallery.Identity
			dept, year, division sql.NullString
			vec                  pgvector.Vector
		)
		if err := rows.Scan(&id.Name, &id.RollNo, &dept, &year, &division, &vec); err != nil {
			return nil, fmt.Errorf("scan gallery identity: %w", err)
		}
		if dept.Valid || year.Valid || division.Valid {
			id.Class = &gallery.ClassTag{Department: dept.String, Year: year.String, Division: division.String}
		}
		a.Identities = append(a.Identities, id)
		a.Baselines[id.Name] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery identities: %w", err)
	}

	entries, err := r.pool.Query(ctx, "SELECT name, embedding FROM gallery_entries ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list gallery entries: %w", err)
	}
	defer entries.Close()

	for entries.Next() {
		var (
			e   gallery.Entry
			vec pgvector.Vector
		)
		if err := entries.Scan(&e.Name, &vec); err != nil {
			return nil, fmt.Errorf("scan gallery entry: %w", err)
		}
		e.Vector = vec.Slice()
		a.Entries = append(a.Entries, e)
	}
	if err := entries.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery entries: %w", err)
	}

	return a, nil
}

// SaveArtifact replaces the stored gallery atomically.
func (r *GalleryRepository) SaveArtifact(ctx context.Context, a *gallery.Artifact) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM gallery_entries"); err != nil {
		return fmt.Errorf("clear gallery entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM gallery_identities"); err != nil {
		return fmt.Errorf("clear gallery identities: %w", err)
	}

	for _, id := range a.Identities {
		baseline, ok := a.Baselines[id.Name]
		if !ok {
			continue
		}
		var dept, year, division sql.NullString
		if id.Class != nil {
			dept = sql.NullString{String: id.Class.Department, Valid: true}
			year = sql.NullString{String: id.Class.Year, Valid: true}
			division = sql.NullString{String: id.Class.Division, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO gallery_identities (name, roll_no, department, year, division, baseline)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id.Name, id.RollNo, dept, year, division, pgvector.NewVector(baseline))
		if err != nil {
			return fmt.Errorf("insert gallery identity %s: %w", id.Name, err)
		}
	}

	for _, e := range a.Entries {
		if _, ok := a.Baselines[e.Name]; !ok {
			continue
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO gallery_entries (name, embedding) VALUES ($1, $2)",
			e.Name, pgvector.NewVector(e.Vector),
		)
		if err != nil {
			return fmt.Errorf("insert gallery entry for %s: %w", e.Name, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO gallery_meta (id, version, built_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			built_at = EXCLUDED.built_at
	`, a.Version, a.BuiltAt)
	if err != nil {
		return fmt.Errorf("save gallery metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit gallery: %w", err)
	}
	return nil
}

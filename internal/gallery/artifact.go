package gallery

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ArtifactVersion is the current serialized gallery format.
const ArtifactVersion = 1

// Artifact is the serialized form of a gallery produced by training.
type Artifact struct {
	Version    int
	BuiltAt    time.Time
	Identities []Identity
	Entries    []Entry
	Baselines  map[string][]float32
}

// Artifact converts the gallery to its serialized form.
func (g *Gallery) Artifact() *Artifact {
	return &Artifact{
		Version:    ArtifactVersion,
		BuiltAt:    time.Now().UTC(),
		Identities: g.Identities(),
		Entries:    g.Entries(),
		Baselines:  g.ByIdentity(),
	}
}

// FromArtifact validates an artifact and builds a Gallery from it.
func FromArtifact(a *Artifact) (*Gallery, error) {
	if a == nil {
		return nil, fmt.Errorf("nil artifact")
	}
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("unsupported artifact version %d (expected %d)", a.Version, ArtifactVersion)
	}
	return New(a.Identities, a.Entries, a.Baselines)
}

// Source provides serialized galleries.
type Source interface {
	LoadArtifact(ctx context.Context) (*Artifact, error)
	Describe() string
}

// Sink persists serialized galleries. Implementations replace the previous
// artifact atomically.
type Sink interface {
	SaveArtifact(ctx context.Context, a *Artifact) error
}

// Load reads and validates a gallery from src. Every failure is a *LoadError.
func Load(ctx context.Context, src Source) (*Gallery, error) {
	a, err := src.LoadArtifact(ctx)
	if err != nil {
		return nil, &LoadError{Source: src.Describe(), Err: err}
	}
	g, err := FromArtifact(a)
	if err != nil {
		return nil, &LoadError{Source: src.Describe(), Err: err}
	}
	return g, nil
}

// FileSource stores the artifact as a gob file on disk.
type FileSource struct {
	Path string
}

// NewFileSource creates a file-backed source and sink.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (f *FileSource) Describe() string { return "file " + f.Path }

// LoadArtifact decodes the artifact file.
func (f *FileSource) LoadArtifact(_ context.Context) (*Artifact, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	var a Artifact
	if err := gob.NewDecoder(file).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &a, nil
}

// SaveArtifact writes the artifact to a temporary file next to Path and renames
// it into place, so readers see either the old or the new artifact.
func (f *FileSource) SaveArtifact(_ context.Context, a *Artifact) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if err := gob.NewEncoder(tmp).Encode(a); err != nil {
		tmp.Close()
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return fmt.Errorf("replace artifact: %w", err)
	}
	return nil
}

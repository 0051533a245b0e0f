// Package enroll turns per-student photo folders into face encodings for a
// gallery rebuild.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/logging"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".bmp"}

// Extractor turns an image into one feature vector per detected face.
type Extractor interface {
	ExtractFeatures(ctx context.Context, image []byte) ([][]float32, error)
}

// Folder is one student's photo directory.
type Folder struct {
	Name   string // directory name
	Images []string
}

// Scan lists the student folders under dir. Each subdirectory is one student;
// files that are not images are ignored. Folders are sorted by name.
func Scan(dir string) ([]Folder, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read students directory: %w", err)
	}

	var folders []Folder
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		f := Folder{Name: e.Name()}
		for _, file := range files {
			if file.IsDir() || !isImage(file.Name()) {
				continue
			}
			f.Images = append(f.Images, filepath.Join(dir, e.Name(), file.Name()))
		}
		slices.Sort(f.Images)
		folders = append(folders, f)
	}

	slices.SortFunc(folders, func(a, b Folder) int { return strings.Compare(a.Name, b.Name) })
	return folders, nil
}

func isImage(name string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(name)))
}

// Roster resolves folder names to enrolled students.
type Roster interface {
	Lookup(name string) (gallery.Identity, bool)
	Identities() []gallery.Identity
}

// Resolve maps folder names onto canonical roster names. Folders with no
// roster match keep their own name and are reported by Rebuild as skipped.
// When the roster is empty every folder becomes an identity without a roll number.
func Resolve(folders []Folder, r Roster) (named []Folder, identities []gallery.Identity) {
	named = make([]Folder, 0, len(folders))
	for _, f := range folders {
		if id, ok := r.Lookup(f.Name); ok {
			f.Name = id.Name
		}
		named = append(named, f)
	}

	if identities = r.Identities(); len(identities) > 0 {
		return named, identities
	}
	for _, f := range named {
		identities = append(identities, gallery.Identity{Name: f.Name})
	}
	return named, identities
}

// Stats counts what happened to the images during encoding.
type Stats struct {
	Images      int      `json:"images"`
	Encoded     int      `json:"encoded"`
	NoFace      int      `json:"no_face"`
	MultiFace   int      `json:"multi_face"`
	Failed      int      `json:"failed"`
	FailedFiles []string `json:"failed_files,omitempty"`
}

// Encode extracts one encoding per image using at most concurrency parallel
// encoder calls. Images with no face or with more than one face are not used.
// Encodings keep folder and file order regardless of completion order.
// onImage, if set, is called once per processed image.
func Encode(ctx context.Context, ext Extractor, folders []Folder, concurrency int, log logrus.FieldLogger, onImage func()) (map[string][][]float32, Stats) {
	log = logging.OrDiscard(log)
	if concurrency < 1 {
		concurrency = 1
	}

	type job struct {
		name, path string
		vecs       [][]float32
		err        error
	}
	var jobs []job
	for _, f := range folders {
		for _, img := range f.Images {
			jobs = append(jobs, job{name: f.Name, path: img})
		}
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i := range jobs {
		wg.Add(1)
		go func(j *job) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			j.vecs, j.err = encodeFile(ctx, ext, j.path)
			if onImage != nil {
				onImage()
			}
		}(&jobs[i])
	}
	wg.Wait()

	encodings := make(map[string][][]float32)
	stats := Stats{Images: len(jobs)}
	for _, j := range jobs {
		entry := log.WithFields(logging.Fields{"student": j.name, "file": j.path})
		switch {
		case errors.Is(j.err, encoder.ErrNoFaceDetected):
			entry.Debug("no face detected")
			stats.NoFace++
		case j.err != nil:
			entry.WithError(j.err).Warn("encoding failed")
			stats.Failed++
			stats.FailedFiles = append(stats.FailedFiles, j.path)
		case len(j.vecs) > 1:
			entry.WithField("faces", len(j.vecs)).Debug("several faces detected, image not used")
			stats.MultiFace++
		default:
			stats.Encoded++
			encodings[j.name] = append(encodings[j.name], j.vecs[0])
		}
	}
	return encodings, stats
}

func encodeFile(ctx context.Context, ext Extractor, path string) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vecs, err := ext.ExtractFeatures(ctx, data)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, encoder.ErrNoFaceDetected
	}
	return vecs, nil
}

package gallery

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/rollcall/internal/logging"
)

// Store is the shared handle to the current gallery snapshot.
// Current never blocks; Reload replaces the snapshot only when loading succeeds.
type Store struct {
	src     Source
	current atomic.Pointer[Gallery]
	reload  sync.Mutex
	log     logrus.FieldLogger
}

// NewStore creates a store backed by src. The store is empty until Reload or Swap.
func NewStore(src Source, log logrus.FieldLogger) *Store {
	return &Store{src: src, log: logging.OrDiscard(log)}
}

// Current returns the active snapshot, or nil before the first successful load.
func (s *Store) Current() *Gallery {
	return s.current.Load()
}

// Swap installs g as the active snapshot and returns the previous one.
func (s *Store) Swap(g *Gallery) *Gallery {
	return s.current.Swap(g)
}

// Reload loads a fresh snapshot from the source and swaps it in. On failure
// the previous snapshot stays active and the error is returned.
func (s *Store) Reload(ctx context.Context) (*Report, error) {
	s.reload.Lock()
	defer s.reload.Unlock()

	next, err := Load(ctx, s.src)
	if err != nil {
		s.log.WithError(err).Warn("gallery reload failed, keeping previous snapshot")
		return nil, err
	}

	prev := s.current.Swap(next)
	added, removed := Diff(prev, next)

	s.log.WithFields(logging.Fields{
		"source":     s.src.Describe(),
		"identities": next.Len(),
		"entries":    next.EntryCount(),
		"added":      len(added),
		"removed":    len(removed),
	}).Info("gallery loaded")

	return &Report{Added: added, Removed: removed}, nil
}

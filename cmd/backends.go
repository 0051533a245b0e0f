package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database/mariadb"
	"github.com/kozaktomas/rollcall/internal/database/postgres"
	"github.com/kozaktomas/rollcall/internal/database/redisstore"
	"github.com/kozaktomas/rollcall/internal/decision"
	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/ledger"
	"github.com/kozaktomas/rollcall/internal/matcher"
	"github.com/kozaktomas/rollcall/internal/roster"
)

// backends opens storage lazily so each command only connects to what it uses.
type backends struct {
	cfg     *config.Config
	log     *logrus.Logger
	pool    *postgres.Pool
	closers []func() error
}

func newBackends(cfg *config.Config, log *logrus.Logger) *backends {
	return &backends{cfg: cfg, log: log}
}

// Close releases every opened connection in reverse order.
func (b *backends) Close() {
	for _, c := range slices.Backward(b.closers) {
		if err := c(); err != nil {
			b.log.WithError(err).Warn("closing backend failed")
		}
	}
}

// postgres opens the PostgreSQL pool on first use and applies pending migrations.
func (b *backends) postgres(ctx context.Context) (*postgres.Pool, error) {
	if b.pool != nil {
		return b.pool, nil
	}
	if b.cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	pool, applied, err := postgres.Open(ctx, &b.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	if len(applied) > 0 {
		b.log.WithField("migrations", applied).Info("applied database migrations")
	}
	b.pool = pool
	b.closers = append(b.closers, pool.Close)
	return pool, nil
}

// gallerySource returns where the gallery artifact is read from and written to.
func (b *backends) gallerySource(ctx context.Context) (gallery.Source, gallery.Sink, error) {
	switch strings.ToLower(b.cfg.Gallery.Source) {
	case "", "file":
		src := gallery.NewFileSource(b.cfg.Gallery.Path)
		return src, src, nil
	case "postgres":
		pool, err := b.postgres(ctx)
		if err != nil {
			return nil, nil, err
		}
		repo := postgres.NewGalleryRepository(pool)
		return repo, repo, nil
	default:
		return nil, nil, fmt.Errorf("unknown GALLERY_SOURCE %q (expected file or postgres)", b.cfg.Gallery.Source)
	}
}

// roster loads the student list. With the PostgreSQL gallery source the roster
// lives in the database, otherwise in students.csv. A missing CSV yields an
// empty roster.
func (b *backends) roster(ctx context.Context) (*roster.Roster, error) {
	if strings.EqualFold(b.cfg.Gallery.Source, "postgres") {
		pool, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		students, err := postgres.NewRosterRepository(pool).Roster(ctx)
		if err != nil {
			return nil, err
		}
		return roster.New(students), nil
	}

	r, err := roster.LoadCSV(b.cfg.Gallery.RosterPath)
	if errors.Is(err, fs.ErrNotExist) {
		b.log.WithField("path", b.cfg.Gallery.RosterPath).Warn("roster file not found, continuing without roll numbers")
		return roster.New(nil), nil
	}
	return r, err
}

// ledger opens the configured attendance ledger.
func (b *backends) ledger(ctx context.Context) (ledger.Ledger, error) {
	switch strings.ToLower(b.cfg.Ledger.Backend) {
	case "", "csv":
		return ledger.NewCSVLedger(b.cfg.Ledger.Dir, b.log), nil
	case "postgres":
		pool, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return postgres.NewLedgerRepository(pool), nil
	case "mariadb", "mysql":
		if b.cfg.MariaDB.DSN == "" {
			return nil, errors.New("MARIADB_DSN environment variable is required")
		}
		pool, err := mariadb.NewPool(b.cfg.MariaDB.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MariaDB: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		repo := mariadb.NewLedgerRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	case "redis":
		client, err := redisstore.NewClient(ctx, b.cfg.Redis)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, client.Close)
		return redisstore.New(client, b.log), nil
	default:
		return nil, fmt.Errorf("unknown LEDGER_BACKEND %q (expected csv, postgres, mariadb or redis)", b.cfg.Ledger.Backend)
	}
}

// newService wires the recognition service. The gallery starts empty; callers
// load it with ReloadGallery.
func newService(ctx context.Context, b *backends) (*attendance.Service, error) {
	scorer, err := matcher.ScorerByName(b.cfg.Policy.Scorer)
	if err != nil {
		return nil, err
	}
	policy, err := decision.New(b.cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("invalid decision policy: %w", err)
	}

	src, _, err := b.gallerySource(ctx)
	if err != nil {
		return nil, err
	}
	students, err := b.roster(ctx)
	if err != nil {
		return nil, err
	}
	l, err := b.ledger(ctx)
	if err != nil {
		return nil, err
	}

	return attendance.NewService(attendance.Deps{
		Gallery:   gallery.NewStore(src, b.log),
		Extractor: encoder.NewClient(b.cfg.Encoder, b.log),
		Scorer:    scorer,
		Policy:    policy,
		Ledger:    ledger.WithRetry(l, b.log),
		Roster:    students,
		Logger:    b.log,
	})
}

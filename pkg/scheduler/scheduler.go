// Package scheduler runs the ingest pipeline (C10) on a cron schedule
// (component D1): periodic CDX-store imports for every configured pattern
// plus a local-snapshot reconciliation pass, grounded on
// pkg/cache.Cache's SetupCron/AddLRUCronJob/StartCron pattern and adapted
// to run ingest jobs instead of LRU eviction.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"

	"github.com/travisbrown/archivindex/pkg/ingest"
	"github.com/travisbrown/archivindex/pkg/store"
)

// Scheduler periodically re-runs C10's CDX ingest and local-snapshot
// reconciliation against every configured pattern.
type Scheduler struct {
	cron        *cron.Cron
	db          *bun.DB
	store       *store.Store
	configs     []ingest.PatternConfig
	mimeType    string
	parallelism int
	log         zerolog.Logger

	mu      sync.Mutex
	running map[string]struct{}
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithLogger attaches a logger; without it the scheduler logs nothing.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithParallelism bounds how many patterns import concurrently per run;
// the default is one per configured pattern (fully parallel).
func WithParallelism(n int) Option {
	return func(s *Scheduler) { s.parallelism = n }
}

// WithTimezone runs the cron schedule in loc instead of the local timezone.
func WithTimezone(loc *time.Location) Option {
	return func(s *Scheduler) { s.cron = cron.New(cron.WithLocation(loc)) }
}

// New constructs a Scheduler over db/st, importing every config on each
// scheduled run and reconciling local snapshots for mimeType afterward.
func New(db *bun.DB, st *store.Store, configs []ingest.PatternConfig, mimeType string, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:        cron.New(),
		db:          db,
		store:       st,
		configs:     configs,
		mimeType:    mimeType,
		parallelism: len(configs),
		running:     make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.parallelism <= 0 {
		s.parallelism = 1
	}

	return s
}

// AddIngestJob schedules a full ingest cycle (every configured pattern's
// CDX import, then local-snapshot reconciliation) on the given standard
// cron spec. It returns the scheduled entry's id, usable with Remove.
func (s *Scheduler) AddIngestJob(spec string) (cron.EntryID, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, fmt.Errorf("scheduler: error parsing cron spec %q: %w", spec, err)
	}

	id := s.cron.Schedule(schedule, cron.FuncJob(func() { s.runOnce(context.Background()) }))

	return id, nil
}

// Remove cancels a previously scheduled job.
func (s *Scheduler) Remove(id cron.EntryID) { s.cron.Remove(id) }

// Start begins running scheduled jobs in their own goroutine. It is a
// no-op if already started.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for any in-flight job to finish,
// returning a context that is done once that wait completes.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

// runOnce imports every configured pattern concurrently (bounded by
// s.parallelism, deduplicated per pattern slug so a slow run is never
// started twice concurrently), then reconciles local snapshots once every
// import has settled.
func (s *Scheduler) runOnce(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for _, cfg := range s.configs {
		cfg := cfg

		if !s.tryAcquire(cfg.Slug) {
			s.log.Debug().Str("pattern", cfg.Slug).Msg("skipping run, already in progress")

			continue
		}

		g.Go(func() error {
			defer s.release(cfg.Slug)

			n, err := ingest.ImportCDXStore(gctx, s.db, cfg)
			if err != nil {
				s.log.Error().Err(err).Str("pattern", cfg.Slug).Msg("scheduled import failed")

				return nil // one pattern's failure must not cancel the others
			}

			s.log.Info().Str("pattern", cfg.Slug).Int("entries", n).Msg("scheduled import complete")

			return nil
		})
	}

	_ = g.Wait()

	n, err := ingest.FindLocalSnapshots(ctx, s.db, s.store, s.mimeType, time.Now().Unix())
	if err != nil {
		s.log.Error().Err(err).Msg("scheduled local-snapshot reconciliation failed")

		return
	}

	s.log.Info().Int("reconciled", n).Msg("scheduled local-snapshot reconciliation complete")
}

func (s *Scheduler) tryAcquire(slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.running[slug]; ok {
		return false
	}

	s.running[slug] = struct{}{}

	return true
}

func (s *Scheduler) release(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.running, slug)
}

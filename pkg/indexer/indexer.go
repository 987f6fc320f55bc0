// Package indexer implements the C6 driver: it reads the catalog's
// successfully-downloaded snapshots, pulls their decompressed content out
// of the item store, extracts each page via pkg/extractor, and writes the
// result into the abstract index engine, recording any discovered links in
// the catalog along the way. Grounded on original_source/manager/src/lib.rs's
// index() method, the only place in the original source with access to
// both an extracted Document and a snapshot_id.
package indexer

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/travisbrown/archivindex/pkg/catalog"
	"github.com/travisbrown/archivindex/pkg/digest"
	"github.com/travisbrown/archivindex/pkg/extractor"
	"github.com/travisbrown/archivindex/pkg/index"
	"github.com/travisbrown/archivindex/pkg/store"
	"github.com/travisbrown/archivindex/pkg/surt"
)

// Indexer ties the catalog, item store and extractor together to populate
// an index.Engine.
type Indexer struct {
	db     *bun.DB
	store  *store.Store
	engine *index.Engine
	log    zerolog.Logger
}

// Option configures an Indexer at construction time.
type Option func(*Indexer)

// WithLogger attaches a logger; without it the indexer logs nothing.
func WithLogger(log zerolog.Logger) Option {
	return func(ix *Indexer) { ix.log = log }
}

// New constructs an Indexer over db/st/engine.
func New(db *bun.DB, st *store.Store, engine *index.Engine, opts ...Option) *Indexer {
	ix := &Indexer{db: db, store: st, engine: engine}

	for _, opt := range opts {
		opt(ix)
	}

	return ix
}

// Run indexes every successfully downloaded snapshot of mimeType that is
// not already in the engine. Each snapshot is processed independently: a
// read, extraction or digest failure is logged and skipped rather than
// aborting the run, matching the original's log::warn-and-continue shape.
// It returns the number of documents newly added.
func (ix *Indexer) Run(ctx context.Context, mimeType string) (int, error) {
	rows, err := catalog.GetSnapshotInfo(ctx, ix.db, mimeType)
	if err != nil {
		return 0, err
	}

	count := 0
	seen := make(map[int64]bool)

	for _, row := range rows {
		if seen[row.SnapshotID] {
			continue
		}

		seen[row.SnapshotID] = true

		if ix.engine.HasSnapshot(row.SnapshotID) {
			continue
		}

		if err := ix.indexOne(ctx, row); err != nil {
			ix.log.Warn().Err(err).Int64("snapshot_id", row.SnapshotID).Msg("error indexing snapshot, skipping")

			continue
		}

		count++
	}

	if err := ix.engine.Commit(ctx); err != nil {
		return count, err
	}

	return count, nil
}

func (ix *Indexer) indexOne(ctx context.Context, row catalog.SnapshotInfo) error {
	d, err := digest.ParseStrict(row.Digest)
	if err != nil {
		return err
	}

	r, err := ix.store.Open(ctx, d)
	if err != nil {
		return err
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	doc, err := extractor.Extract(raw)
	if err != nil {
		return err
	}

	gravatarHashes := make([]string, 0, len(doc.GravatarHashes))
	for h := range doc.GravatarHashes {
		gravatarHashes = append(gravatarHashes, h)
	}

	indexDoc := index.Document{
		SnapshotID:     row.SnapshotID,
		SurtID:         row.SurtID,
		PatternSlug:    row.PatternSlug,
		Timestamp:      time.Unix(row.Timestamp, 0).UTC(),
		Title:          doc.Title,
		Content:        doc.Content,
		GravatarHashes: gravatarHashes,
	}

	if err := ix.engine.AddDocument(ctx, indexDoc); err != nil {
		return err
	}

	return ix.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return recordLinks(ctx, tx, row.SnapshotID, doc.Links)
	})
}

// recordLinks upserts a link row for every outbound URL the extractor
// found on the page and associates each with snapshotID, ignoring
// duplicates (a link is recorded once per snapshot regardless of how many
// times the extractor found it).
func recordLinks(ctx context.Context, tx bun.IDB, snapshotID int64, links []string) error {
	for _, linkURL := range links {
		s, err := surt.FromURL(linkURL)
		if err != nil {
			continue // not every extracted href is a well-formed absolute URL
		}

		linkID, err := catalog.InsertLink(ctx, tx, linkURL, s.String())
		if err != nil {
			return err
		}

		if err := catalog.InsertSnapshotLink(ctx, tx, snapshotID, linkID); err != nil {
			return err
		}
	}

	return nil
}

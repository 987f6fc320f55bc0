package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/travisbrown/archivindex/pkg/catalog"
	"github.com/travisbrown/archivindex/pkg/index"
	"github.com/travisbrown/archivindex/pkg/indexer"
	"github.com/travisbrown/archivindex/pkg/ingest"
	"github.com/travisbrown/archivindex/pkg/store"
)

// ingestCommand runs C10's ingest pipeline once: every configured
// pattern's CDX store is imported into the catalog, already-downloaded
// content is reconciled against the item store, and previously-recorded
// digest corrections are replayed, the way the source's run_import batch
// operates outside of the daemon's cron loop.
func ingestCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "import configured CDX stores into the catalog and reconcile local content",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "patterns",
				Usage:    "path to the JSON array of pattern configs to import",
				Sources:  flagSources("ingest.patterns", "ARCHIVINDEX_INGEST_PATTERNS"),
				Required: true,
			},
			&cli.StringFlag{
				Name:    "mime-type",
				Usage:   "mime type to reconcile and index after import",
				Sources: flagSources("ingest.mime-type", "ARCHIVINDEX_INGEST_MIME_TYPE"),
				Value:   "text/html",
			},
			&cli.BoolFlag{
				Name:    "skip-index",
				Usage:   "import and reconcile only, skip the full-text indexing pass",
				Sources: flagSources("ingest.skip-index", "ARCHIVINDEX_INGEST_SKIP_INDEX"),
			},
			&cli.IntFlag{
				Name:    "first-year",
				Usage:   "earliest capture year the index engine groups facets by",
				Sources: flagSources("index.first-year", "ARCHIVINDEX_INDEX_FIRST_YEAR"),
				Value:   1996,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := zerolog.Ctx(ctx)

			db, _, err := catalog.Open(cmd.Root().String("catalog-url"), nil)
			if err != nil {
				return fmt.Errorf("ingest: error opening catalog: %w", err)
			}
			defer db.Close()

			if err := catalog.EnsureSchema(ctx, db); err != nil {
				return fmt.Errorf("ingest: error ensuring schema: %w", err)
			}

			configs, err := ingest.LoadPatternConfigs(cmd.String("patterns"))
			if err != nil {
				return err
			}

			n, err := ingest.RunImport(ctx, db, configs)
			if err != nil {
				return err
			}

			log.Info().Int("entries", n).Msg("cdx import complete")

			st, err := store.New(ctx, cmd.Root().String("store-path"))
			if err != nil {
				return fmt.Errorf("ingest: error opening store: %w", err)
			}

			mimeType := cmd.String("mime-type")

			reconciled, err := ingest.FindLocalSnapshots(ctx, db, st, mimeType, time.Now().Unix())
			if err != nil {
				return err
			}

			log.Info().Int("reconciled", reconciled).Msg("local snapshot reconciliation complete")

			invalid, err := ingest.ListInvalidDigests(ctx, db)
			if err != nil {
				return err
			}

			if len(invalid) > 0 {
				corrected, err := ingest.ImportInvalidDigests(ctx, db, st, invalid, time.Now().Unix())
				if err != nil {
					return err
				}

				log.Info().Int("corrected", corrected).Msg("digest corrections replayed")
			}

			if cmd.Bool("skip-index") {
				return nil
			}

			patterns, err := catalog.GetAllPatterns(ctx, db)
			if err != nil {
				return fmt.Errorf("ingest: error listing patterns: %w", err)
			}

			slugs := make([]string, len(patterns))
			for i, p := range patterns {
				slugs[i] = p.Slug
			}

			engine, err := index.Open(ctx, db, slugs, int(cmd.Int("first-year")))
			if err != nil {
				return fmt.Errorf("ingest: error opening index engine: %w", err)
			}

			ix := indexer.New(db, st, engine, indexer.WithLogger(*log))

			indexed, err := ix.Run(ctx, mimeType)
			if err != nil {
				return err
			}

			log.Info().Int("indexed", indexed).Msg("indexing pass complete")

			return nil
		},
	}
}

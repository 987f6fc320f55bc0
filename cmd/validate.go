package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/travisbrown/archivindex/pkg/redirect"
	"github.com/travisbrown/archivindex/pkg/store"
)

// validateCommand checks the item store's on-disk invariant (every blob's
// path-encoded digest matches its recomputed SHA-1) and, when given a
// redirect CSV directory, the redirect shard files' sort order and digest
// invariants too.
func validateCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "validate item-store blobs and redirect CSV shards",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "parallelism",
				Usage:   "number of blobs validated concurrently",
				Sources: flagSources("validate.parallelism", "ARCHIVINDEX_VALIDATE_PARALLELISM"),
				Value:   4,
			},
			&cli.StringFlag{
				Name:    "redirects-dir",
				Usage:   "directory of redirects-<X>.csv shard files to validate",
				Sources: flagSources("validate.redirects-dir", "ARCHIVINDEX_VALIDATE_REDIRECTS_DIR"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := zerolog.Ctx(ctx)

			st, err := store.New(ctx, cmd.Root().String("store-path"))
			if err != nil {
				return fmt.Errorf("validate: error opening store: %w", err)
			}

			results, err := st.Entries(ctx, int(cmd.Int("parallelism")))
			if err != nil {
				return fmt.Errorf("validate: error listing store entries: %w", err)
			}

			invalid := 0

			for result := range results {
				switch {
				case result.Err != nil:
					log.Warn().Err(result.Err).Msg("error validating store entry")

					invalid++
				case result.ValidationErr != nil:
					log.Warn().Err(result.ValidationErr).Msg("store entry failed validation")

					invalid++
				}
			}

			if invalid > 0 {
				return fmt.Errorf("validate: %d store entries failed validation", invalid)
			}

			log.Info().Msg("item store validation passed")

			if dir := cmd.String("redirects-dir"); dir != "" {
				for _, prefix := range redirect.FilePrefixes() {
					name := fmt.Sprintf("redirects-%s.csv", prefix)
					path := filepath.Join(dir, name)

					if err := redirect.ValidateFile(path); err != nil {
						return fmt.Errorf("validate: %s: %w", name, err)
					}
				}

				log.Info().Msg("redirect csv validation passed")
			}

			return nil
		},
	}
}

package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/travisbrown/archivindex/pkg/catalog"
	"github.com/travisbrown/archivindex/pkg/index"
	"github.com/travisbrown/archivindex/pkg/search"
)

// searchCommand runs one query against the full-text index and prints the
// catalog-joined result (component C9), the one-shot CLI counterpart of
// the original source's interactive search form.
func searchCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "query the full-text index and print matching snapshots",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "pattern",
				Usage:   "restrict the search to a single pattern slug",
				Sources: flagSources("search.pattern", "ARCHIVINDEX_SEARCH_PATTERN"),
			},
			&cli.IntFlag{
				Name:    "limit",
				Usage:   "maximum number of matched canonical URLs (SURTs) to print",
				Sources: flagSources("search.limit", "ARCHIVINDEX_SEARCH_LIMIT"),
				Value:   20,
			},
			&cli.IntFlag{
				Name:    "offset",
				Usage:   "number of matched canonical URLs (SURTs) to skip before printing",
				Sources: flagSources("search.offset", "ARCHIVINDEX_SEARCH_OFFSET"),
			},
			&cli.IntFlag{
				Name:    "snippet-max-chars",
				Usage:   "maximum length of each result's highlighted snippet",
				Sources: flagSources("search.snippet-max-chars", "ARCHIVINDEX_SEARCH_SNIPPET_MAX_CHARS"),
				Value:   200,
			},
			&cli.IntFlag{
				Name:    "first-year",
				Usage:   "earliest capture year the index engine groups facets by",
				Sources: flagSources("index.first-year", "ARCHIVINDEX_INDEX_FIRST_YEAR"),
				Value:   1996,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			content := cmd.Args().First()
			if content == "" {
				return fmt.Errorf("search: a query argument is required")
			}

			db, _, err := catalog.Open(cmd.Root().String("catalog-url"), nil)
			if err != nil {
				return fmt.Errorf("search: error opening catalog: %w", err)
			}
			defer db.Close()

			patterns, err := catalog.GetAllPatterns(ctx, db)
			if err != nil {
				return fmt.Errorf("search: error listing patterns: %w", err)
			}

			slugs := make([]string, len(patterns))
			for i, p := range patterns {
				slugs[i] = p.Slug
			}

			engine, err := index.Open(ctx, db, slugs, int(cmd.Int("first-year")))
			if err != nil {
				return fmt.Errorf("search: error opening index engine: %w", err)
			}

			var patternSlugs []string
			if slug := cmd.String("pattern"); slug != "" {
				patternSlugs = []string{slug}
			}

			query := index.NewQuery(content, "", nil, patternSlugs, nil)

			result, err := search.Search(
				ctx, engine, db,
				int(cmd.Int("snippet-max-chars")), query,
				int(cmd.Int("limit")), int(cmd.Int("offset")),
			)
			if err != nil {
				return err
			}

			for _, timeline := range result.Surts {
				fmt.Printf("%s\n", timeline.Surt.String())

				for _, entry := range timeline.Entries {
					if entry.Hit == nil {
						continue
					}

					fmt.Printf("  [%s] %.3f %s — %s\n",
						entry.Timestamp.String(), entry.Hit.Score, entry.Hit.URL, entry.Hit.Title)

					if entry.Hit.Snippet.Fragment != "" {
						fmt.Printf("    %s\n", entry.Hit.Snippet.Fragment)
					}
				}
			}

			return nil
		},
	}
}

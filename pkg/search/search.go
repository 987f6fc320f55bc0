// Package search is the query orchestrator (component C9): it runs a query
// against the full-text index, then joins the matched snapshots with the
// catalog to resolve each canonical URL's full capture timeline, shaping
// the final result the way original_source/manager/src/search.rs does.
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/uptrace/bun"

	"github.com/travisbrown/archivindex/pkg/catalog"
	"github.com/travisbrown/archivindex/pkg/index"
	"github.com/travisbrown/archivindex/pkg/surt"
	"github.com/travisbrown/archivindex/pkg/timestamp"
)

// Hit is one matched snapshot, carrying everything the UI needs to render
// a result row: score, pattern, resolved URL, title, and snippet.
type Hit struct {
	Score       float64
	PatternSlug string
	URL         string
	Title       string
	Snippet     index.Snippet
}

// TimelineEntry is one known capture of a SURT. Hit is nil when that
// capture exists in the catalog but did not match the query — the sparse
// highlight the timeline is built to show.
type TimelineEntry struct {
	Timestamp timestamp.Timestamp
	Hit       *Hit
}

// SurtTimeline is one canonical URL's full, sorted capture timeline for
// the query's date-range window.
type SurtTimeline struct {
	Surt    surt.Surt
	Entries []TimelineEntry
}

// Result is the final, catalog-joined search result: complete facet
// counts plus every matched SURT's timeline, ordered by rank (best
// matching snapshot first).
type Result struct {
	PatternCounts []index.PatternCount
	YearCounts    []index.YearCount
	Surts         []SurtTimeline
}

// ErrMissingSnapshot means a snapshot the index matched was not found when
// joining against the catalog — a consistency fault between the index and
// the catalog it was built from.
type ErrMissingSnapshot struct{ SnapshotID int64 }

func (e ErrMissingSnapshot) Error() string {
	return fmt.Sprintf("search: missing snapshot %d in catalog join", e.SnapshotID)
}

// ErrMissingSurtTimeline means a matched SURT has no entry in the
// catalog's timeline query, which should be impossible since every
// matched snapshot must belong to some SURT entry row.
type ErrMissingSurtTimeline struct{ SurtID int64 }

func (e ErrMissingSurtTimeline) Error() string {
	return fmt.Sprintf("search: missing timeline for surt %d", e.SurtID)
}

// Search runs query against engine, then resolves the matched snapshots'
// identities and each matched SURT's timeline from db, failing rather than
// returning a partially-formed result if the catalog join can't account
// for something the index reported.
func Search(
	ctx context.Context,
	engine *index.Engine,
	db *bun.DB,
	snippetMaxChars int,
	query index.Query,
	limit, offset int,
) (Result, error) {
	indexResults, err := engine.Search(query, snippetMaxChars, limit, offset)
	if err != nil {
		return Result{}, fmt.Errorf("search: error querying index: %w", err)
	}

	var (
		snapshotIDs []int64
		surtOrder   []int64
		hitsByID    = make(map[int64]Hit)
	)

	for _, grouped := range indexResults.Hits {
		surtOrder = append(surtOrder, grouped.SurtID)

		for _, hit := range grouped.Hits {
			snapshotIDs = append(snapshotIDs, hit.SnapshotID)
			hitsByID[hit.SnapshotID] = Hit{
				Score:       hit.Score,
				PatternSlug: hit.PatternSlug,
				Title:       hit.Title,
				Snippet:     hit.Snippet,
			}
		}
	}

	var dateRange *catalog.TimestampRange

	if query.DateRange != nil {
		dateRange = &catalog.TimestampRange{}
		if query.DateRange.Start != nil {
			start := query.DateRange.Start.Unix()
			dateRange.Start = &start
		}

		if query.DateRange.End != nil {
			end := query.DateRange.End.Unix()
			dateRange.End = &end
		}
	}

	snapshots, timelines, err := catalog.GetSearchResult(ctx, db, snapshotIDs, dateRange)
	if err != nil {
		return Result{}, fmt.Errorf("search: error joining catalog: %w", err)
	}

	bySurt := make(map[int64][]catalog.SnapshotRow)
	surtValues := make(map[int64]string)

	for _, row := range snapshots {
		bySurt[row.SurtID] = append(bySurt[row.SurtID], row)
		surtValues[row.SurtID] = row.SurtValue
	}

	found := make(map[int64]struct{}, len(snapshots))

	for _, row := range snapshots {
		hit, ok := hitsByID[row.SnapshotID]
		if !ok {
			return Result{}, ErrMissingSnapshot{SnapshotID: row.SnapshotID}
		}

		hit.URL = row.URL
		hitsByID[row.SnapshotID] = hit
		found[row.SnapshotID] = struct{}{}
	}

	for _, id := range snapshotIDs {
		if _, ok := found[id]; !ok {
			return Result{}, ErrMissingSnapshot{SnapshotID: id}
		}
	}

	result := Result{
		PatternCounts: indexResults.PatternCounts,
		YearCounts:    indexResults.YearCounts,
	}

	for _, surtID := range surtOrder {
		ts, ok := timelines[surtID]
		if !ok {
			return Result{}, ErrMissingSurtTimeline{SurtID: surtID}
		}

		sorted := append([]int64(nil), ts...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		overlay := make(map[int64]*Hit, len(bySurt[surtID]))

		for _, row := range bySurt[surtID] {
			hit := hitsByID[row.SnapshotID]
			overlay[row.Timestamp] = &hit
		}

		timeline := SurtTimeline{}

		if value, ok := surtValues[surtID]; ok {
			parsed, err := surt.Parse(value)
			if err != nil {
				return Result{}, fmt.Errorf("search: error parsing surt %q: %w", value, err)
			}

			timeline.Surt = parsed
		}

		for _, unixTS := range sorted {
			timeline.Entries = append(timeline.Entries, TimelineEntry{
				Timestamp: timestamp.FromUnix(unixTS),
				Hit:       overlay[unixTS],
			})
		}

		result.Surts = append(result.Surts, timeline)
	}

	return result, nil
}

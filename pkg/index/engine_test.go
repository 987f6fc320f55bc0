package index_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/travisbrown/archivindex/pkg/catalog"
	"github.com/travisbrown/archivindex/pkg/index"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, _, err := catalog.Open("sqlite://"+filepath.Join(t.TempDir(), "index.sqlite"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func mustOpenEngine(t *testing.T, db *bun.DB, patterns []string, firstYear int) *index.Engine {
	t.Helper()

	e, err := index.Open(context.Background(), db, patterns, firstYear)
	require.NoError(t, err)

	return e
}

func TestSearchFacetCountsAreCompleteEvenWithNoHits(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	e := mustOpenEngine(t, db, []string{"blogs", "news"}, 2020)

	results, err := e.Search(index.Query{Content: "nonexistent"}, 0, 10, 0)
	require.NoError(t, err)

	assert.Equal(t, []index.PatternCount{{Slug: "blogs"}, {Slug: "news"}}, results.PatternCounts)
	assert.Empty(t, results.Hits)
	require.NotEmpty(t, results.YearCounts)

	for _, yc := range results.YearCounts {
		assert.Zero(t, yc.Count)
	}
}

func TestSearchLimitZeroSkipsScanning(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	e := mustOpenEngine(t, db, []string{"blogs"}, 2020)

	require.NoError(t, e.AddDocument(context.Background(), index.Document{
		SnapshotID: 1, SurtID: 1, PatternSlug: "blogs",
		Timestamp: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		Title:     "hello world", Content: []string{"hello world"},
	}))

	results, err := e.Search(index.Query{Content: "hello"}, 0, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, results.Hits)
}

func TestSearchGroupsHitsBySurtAndRanksByBestScore(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	e := mustOpenEngine(t, db, []string{"blogs"}, 2020)

	ctx := context.Background()

	require.NoError(t, e.AddDocument(ctx, index.Document{
		SnapshotID: 1, SurtID: 100, PatternSlug: "blogs",
		Timestamp: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		Title:     "alpha", Content: []string{"alpha beta"},
	}))
	require.NoError(t, e.AddDocument(ctx, index.Document{
		SnapshotID: 2, SurtID: 100, PatternSlug: "blogs",
		Timestamp: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		Title:     "alpha alpha", Content: []string{"alpha"},
	}))
	require.NoError(t, e.AddDocument(ctx, index.Document{
		SnapshotID: 3, SurtID: 200, PatternSlug: "blogs",
		Timestamp: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		Title:     "alpha", Content: []string{"alpha"},
	}))

	results, err := e.Search(index.Query{Content: "alpha"}, 100, 10, 0)
	require.NoError(t, err)
	require.Len(t, results.Hits, 2)

	assert.Equal(t, int64(100), results.Hits[0].SurtID)
	require.Len(t, results.Hits[0].Hits, 2)
	assert.Equal(t, int64(2), results.Hits[0].Hits[0].SnapshotID)

	assert.Equal(t, int64(200), results.Hits[1].SurtID)

	assert.Equal(t, []index.PatternCount{{Slug: "blogs", Count: 3}}, results.PatternCounts)
}

func TestSearchFiltersByPatternYearAndGravatar(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	e := mustOpenEngine(t, db, []string{"blogs", "news"}, 2020)

	ctx := context.Background()

	require.NoError(t, e.AddDocument(ctx, index.Document{
		SnapshotID: 1, SurtID: 1, PatternSlug: "blogs",
		Timestamp: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		Title: "alpha", Content: []string{"alpha"}, GravatarHashes: []string{"deadbeef"},
	}))
	require.NoError(t, e.AddDocument(ctx, index.Document{
		SnapshotID: 2, SurtID: 2, PatternSlug: "news",
		Timestamp: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		Title: "alpha", Content: []string{"alpha"},
	}))

	gravatar := "deadbeef"
	results, err := e.Search(index.Query{Content: "alpha", GravatarHash: &gravatar}, 0, 10, 0)
	require.NoError(t, err)
	require.Len(t, results.Hits, 1)
	assert.Equal(t, int64(1), results.Hits[0].SurtID)

	results, err = e.Search(index.Query{
		Content: "alpha", Years: map[int]struct{}{2022: {}},
	}, 0, 10, 0)
	require.NoError(t, err)
	require.Len(t, results.Hits, 1)
	assert.Equal(t, int64(2), results.Hits[0].SurtID)

	results, err = e.Search(index.Query{
		Content: "alpha", PatternSlugs: map[string]struct{}{"blogs": {}},
	}, 0, 10, 0)
	require.NoError(t, err)
	require.Len(t, results.Hits, 1)
	assert.Equal(t, int64(1), results.Hits[0].SurtID)
}

func TestOpenRebuildsPostingsFromStorage(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	e1 := mustOpenEngine(t, db, []string{"blogs"}, 2020)

	require.NoError(t, e1.AddDocument(context.Background(), index.Document{
		SnapshotID: 1, SurtID: 1, PatternSlug: "blogs",
		Timestamp: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		Title:     "alpha", Content: []string{"alpha"},
	}))

	e2 := mustOpenEngine(t, db, []string{"blogs"}, 2020)

	results, err := e2.Search(index.Query{Content: "alpha"}, 0, 10, 0)
	require.NoError(t, err)
	require.Len(t, results.Hits, 1)
}

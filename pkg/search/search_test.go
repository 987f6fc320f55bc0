package search_test

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
	"github.com/travisbrown/archivindex/pkg/search"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, _, err := catalog.Open("sqlite://"+filepath.Join(t.TempDir(), "search.sqlite"), nil)
	require.NoError(t, err)
	require.NoError(t, catalog.EnsureSchema(context.Background(), db))
	t.Cleanup(func() { db.Close() })

	return db
}

func TestSearchJoinsIndexHitsWithFullSurtTimeline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)

	surtID, err := catalog.InsertSurt(ctx, db, "com,example)/")
	require.NoError(t, err)

	ts2020 := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	ts2021 := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

	entry2020 := &catalog.Entry{
		URL: "https://example.com/", SurtID: surtID, Timestamp: ts2020.Unix(),
		Digest: "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567", MimeType: "text/html", Length: 10,
	}
	_, err = db.NewInsert().Model(entry2020).Exec(ctx)
	require.NoError(t, err)

	entry2021 := &catalog.Entry{
		URL: "https://example.com/", SurtID: surtID, Timestamp: ts2021.Unix(),
		Digest: "BBCDEFGHIJKLMNOPQRSTUVWXYZ234567", MimeType: "text/html", Length: 10,
	}
	_, err = db.NewInsert().Model(entry2021).Exec(ctx)
	require.NoError(t, err)

	_, err = catalog.InsertEntrySuccess(ctx, db, entry2020.ID, entry2020.Digest, true, ts2020.Unix())
	require.NoError(t, err)

	// InsertEntrySuccess returns the entry_success id; upserting the same
	// digest again returns the snapshot id it created.
	snapshot2020ID, err := catalog.InsertSnapshot(ctx, db, entry2020.Digest)
	require.NoError(t, err)

	_, err = catalog.InsertEntrySuccess(ctx, db, entry2021.ID, entry2021.Digest, true, ts2021.Unix())
	require.NoError(t, err)

	engine, err := index.Open(ctx, db, []string{"blogs"}, 2019)
	require.NoError(t, err)

	require.NoError(t, engine.AddDocument(ctx, index.Document{
		SnapshotID: snapshot2020ID, SurtID: surtID, PatternSlug: "blogs",
		Timestamp: ts2020, Title: "hello", Content: []string{"hello world"},
	}))

	result, err := search.Search(ctx, engine, db, 100, index.Query{Content: "hello"}, 10, 0)
	require.NoError(t, err)

	require.Len(t, result.Surts, 1)
	timeline := result.Surts[0]
	assert.Equal(t, "com,example)/", timeline.Surt.String())
	require.Len(t, timeline.Entries, 2)

	assert.NotNil(t, timeline.Entries[0].Hit)
	assert.Equal(t, "https://example.com/", timeline.Entries[0].Hit.URL)
	assert.Nil(t, timeline.Entries[1].Hit)

	assert.Equal(t, []index.PatternCount{{Slug: "blogs", Count: 1}}, result.PatternCounts)
}

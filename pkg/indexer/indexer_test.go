package indexer_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/travisbrown/archivindex/pkg/catalog"
	"github.com/travisbrown/archivindex/pkg/cdx"
	"github.com/travisbrown/archivindex/pkg/digest"
	"github.com/travisbrown/archivindex/pkg/index"
	"github.com/travisbrown/archivindex/pkg/indexer"
	"github.com/travisbrown/archivindex/pkg/store"
	"github.com/travisbrown/archivindex/pkg/surt"
	"github.com/travisbrown/archivindex/pkg/timestamp"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, _, err := catalog.Open("sqlite://"+filepath.Join(t.TempDir(), "catalog.sqlite"), nil)
	require.NoError(t, err)
	require.NoError(t, catalog.EnsureSchema(context.Background(), db))
	t.Cleanup(func() { db.Close() })

	return db
}

const pageHTML = `<html><head><title>Example Page</title></head>` +
	`<body>Hello world <a href="https://example.com/other">link</a></body></html>`

func seedSnapshot(ctx context.Context, t *testing.T, db *bun.DB, st *store.Store, html string) {
	t.Helper()

	d, _, err := digest.Compute(strings.NewReader(html))
	require.NoError(t, err)

	_, err = st.Save(ctx, d, strings.NewReader(html))
	require.NoError(t, err)

	key, err := surt.FromURL("https://example.com/")
	require.NoError(t, err)

	ts, err := timestamp.Parse("20200601000000")
	require.NoError(t, err)

	entryID, err := catalog.InsertEntry(ctx, db, cdx.Entry{
		Key:       key,
		Timestamp: ts,
		Original:  "https://example.com/",
		MimeType:  cdx.TextHTML,
		Digest:    d,
		Length:    uint64(len(html)),
	})
	require.NoError(t, err)

	_, err = catalog.InsertEntrySuccess(ctx, db, entryID, d.String(), true, ts.Unix())
	require.NoError(t, err)

	patternID, err := catalog.InsertPattern(ctx, db, catalog.Pattern{
		Surt: "com,example)/", Prefix: "com,example)/", Name: "Example", Slug: "example", SortID: 1,
	})
	require.NoError(t, err)

	require.NoError(t, catalog.InsertPatternEntry(ctx, db, patternID, entryID))
}

func TestRunIndexesSnapshotAndRecordsLinks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)

	st, err := store.New(ctx, t.TempDir())
	require.NoError(t, err)

	seedSnapshot(ctx, t, db, st, pageHTML)

	engine, err := index.Open(ctx, db, []string{"example"}, 2020)
	require.NoError(t, err)

	ix := indexer.New(db, st, engine)

	n, err := ix.Run(ctx, "text/html")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := engine.Search(index.NewQuery("hello", "", nil, nil, nil), 200, 10, 0)
	require.NoError(t, err)
	require.Len(t, results.Hits, 1)
	require.Len(t, results.Hits[0].Hits, 1)
	assert.Equal(t, "Example Page", results.Hits[0].Hits[0].Title)

	// Running again is a no-op: the snapshot is already indexed.
	n, err = ix.Run(ctx, "text/html")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

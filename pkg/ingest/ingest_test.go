package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/travisbrown/archivindex/pkg/catalog"
	"github.com/travisbrown/archivindex/pkg/ingest"
	"github.com/travisbrown/archivindex/pkg/store"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, _, err := catalog.Open("sqlite://"+filepath.Join(t.TempDir(), "ingest.sqlite"), nil)
	require.NoError(t, err)
	require.NoError(t, catalog.EnsureSchema(context.Background(), db))
	t.Cleanup(func() { db.Close() })

	return db
}

const cdxPage = `[
	["urlkey","timestamp","original","mimetype","statuscode","digest","length"],
	["com,example)/", "20200601000000", "https://example.com/", "text/html", "200", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", "10"],
	["com,example)/a", "20200601010000", "https://example.com/a", "text/html", "200", "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB", "20"]
]`

func writeCDXStore(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "1000.json"), []byte(cdxPage), 0o600))

	return root
}

func TestImportCDXStoreInsertsPatternEntriesAndLinks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)

	config := ingest.PatternConfig{
		Surt: "com,example)/", Prefix: "com,example)/", Name: "Example", Slug: "example", SortID: 1,
		Path: writeCDXStore(t),
	}

	n, err := ingest.ImportCDXStore(ctx, db, config)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	patterns, err := catalog.GetAllPatterns(ctx, db)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "example", patterns[0].Slug)

	missing, err := catalog.MissingEntries(ctx, db, "text/html", 0)
	require.NoError(t, err)
	assert.Len(t, missing, 2)
}

func TestFindLocalSnapshotsSkipsEntriesAbsentFromStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)

	config := ingest.PatternConfig{
		Surt: "com,example)/", Prefix: "com,example)/", Name: "Example", Slug: "example", SortID: 1,
		Path: writeCDXStore(t),
	}
	_, err := ingest.ImportCDXStore(ctx, db, config)
	require.NoError(t, err)

	st, err := store.New(ctx, t.TempDir())
	require.NoError(t, err)

	n, err := ingest.FindLocalSnapshots(ctx, db, st, "text/html", 1700000000)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is in the item store yet")

	missing, err := catalog.MissingEntries(ctx, db, "text/html", 0)
	require.NoError(t, err)
	require.Len(t, missing, 2)
}

func TestListMissingSnapshotsDedupesByDigestKeepingShortestURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)

	surtID, err := catalog.InsertSurt(ctx, db, "com,example)/")
	require.NoError(t, err)

	long := &catalog.Entry{
		URL: "https://example.com/a/very/long/path", SurtID: surtID, Timestamp: 100,
		Digest: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", MimeType: "text/html", Length: 10,
	}
	_, err = db.NewInsert().Model(long).Exec(ctx)
	require.NoError(t, err)

	short := &catalog.Entry{
		URL: "https://example.com/", SurtID: surtID, Timestamp: 200,
		Digest: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", MimeType: "text/html", Length: 10,
	}
	_, err = db.NewInsert().Model(short).Exec(ctx)
	require.NoError(t, err)

	results, err := ingest.ListMissingSnapshots(ctx, db, "text/html")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://example.com/", results[0].URL)
}

func TestImportInvalidDigestsSkipsDigestsAbsentFromStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)

	entry := &catalog.Entry{
		URL: "https://example.com/", SurtID: mustSurt(ctx, t, db), Timestamp: 100,
		Digest: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", MimeType: "text/html", Length: 10,
	}
	_, err := db.NewInsert().Model(entry).Exec(ctx)
	require.NoError(t, err)

	_, err = catalog.InsertEntrySuccess(ctx, db, entry.ID, "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB", false, 100)
	require.NoError(t, err)

	invalid, err := ingest.ListInvalidDigests(ctx, db)
	require.NoError(t, err)
	require.Len(t, invalid, 1)

	st, err := store.New(ctx, t.TempDir())
	require.NoError(t, err)

	n, err := ingest.ImportInvalidDigests(ctx, db, st, invalid, 1700000000)
	require.NoError(t, err)
	assert.Zero(t, n, "neither digest is present in an empty item store")
}

func mustSurt(ctx context.Context, t *testing.T, db *bun.DB) int64 {
	t.Helper()

	id, err := catalog.InsertSurt(ctx, db, "com,example)/")
	require.NoError(t, err)

	return id
}

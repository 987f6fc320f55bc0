package scheduler_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/travisbrown/archivindex/pkg/catalog"
	"github.com/travisbrown/archivindex/pkg/ingest"
	"github.com/travisbrown/archivindex/pkg/scheduler"
	"github.com/travisbrown/archivindex/pkg/store"
)

func TestAddIngestJobRunsOnSchedule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	dbFile := filepath.Join(t.TempDir(), "catalog.sqlite")
	db, _, err := catalog.Open("sqlite://"+dbFile, nil)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	require.NoError(t, catalog.EnsureSchema(ctx, db))

	st, err := store.New(ctx, t.TempDir())
	require.NoError(t, err)

	configs := []ingest.PatternConfig{
		{Surt: "com,example)/", Prefix: "com,example)/", Name: "Example", Slug: "example", SortID: 1, Path: filepath.Join(t.TempDir(), "missing")},
	}

	sched := scheduler.New(db, st, configs, "text/html")

	_, err = sched.AddIngestJob("@every 10ms")
	require.NoError(t, err)

	sched.Start()
	defer func() {
		stopCtx := sched.Stop()
		<-stopCtx.Done()
	}()

	time.Sleep(50 * time.Millisecond)
}

func TestAcquireReleaseDedupesConcurrentRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	dbFile := filepath.Join(t.TempDir(), "catalog.sqlite")
	db, _, err := catalog.Open("sqlite://"+dbFile, nil)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	require.NoError(t, catalog.EnsureSchema(ctx, db))

	st, err := store.New(ctx, t.TempDir())
	require.NoError(t, err)

	configs := []ingest.PatternConfig{
		{Surt: "com,example)/", Prefix: "com,example)/", Name: "Example", Slug: "dup", SortID: 1, Path: filepath.Join(t.TempDir(), "missing")},
	}

	sched := scheduler.New(db, st, configs, "text/html", scheduler.WithParallelism(2))

	_, err = sched.AddIngestJob("@every 5ms")
	require.NoError(t, err)

	sched.Start()
	defer func() {
		stopCtx := sched.Stop()
		<-stopCtx.Done()
	}()

	time.Sleep(30 * time.Millisecond)
}

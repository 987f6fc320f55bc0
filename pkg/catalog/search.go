package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
)

// SnapshotRow is one row of GetSnapshots' joined result: the page a
// snapshot was captured from, and the SURT it canonicalizes to.
type SnapshotRow struct {
	SnapshotID int64  `bun:"snapshot_id"`
	URL        string `bun:"url"`
	Timestamp  int64  `bun:"ts"`
	SurtID     int64  `bun:"surt_id"`
	SurtValue  string `bun:"surt_value"`
}

// GetSnapshots resolves each of snapshotIDs to the (url, timestamp, surt)
// of every entry with a successful download of it: a snapshot shared by
// several entries yields one row per entry.
func GetSnapshots(ctx context.Context, db bun.IDB, snapshotIDs []int64) ([]SnapshotRow, error) {
	if len(snapshotIDs) == 0 {
		return nil, nil
	}

	var rows []SnapshotRow

	err := db.NewRaw(`
		SELECT
			entry_success.snapshot_id AS snapshot_id,
			entry.url AS url,
			entry.ts AS ts,
			entry.surt_id AS surt_id,
			surt.value AS surt_value
		FROM entry_success
		JOIN entry ON entry.id = entry_success.entry_id
		JOIN surt ON surt.id = entry.surt_id
		WHERE entry_success.snapshot_id IN (?)
	`, bun.In(snapshotIDs)).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("catalog: error resolving snapshots: %w", err)
	}

	return rows, nil
}

// TimestampRange bounds a timeline query; a nil Start or End leaves that
// side unbounded.
type TimestampRange struct {
	Start *int64
	End   *int64
}

// GetSurtEntries returns, for each of surtIDs, the sorted unix timestamps
// at which it was successfully captured, optionally restricted to
// [dateRange.Start, dateRange.End).
func GetSurtEntries(
	ctx context.Context,
	db bun.IDB,
	surtIDs []int64,
	dateRange *TimestampRange,
) (map[int64][]int64, error) {
	if len(surtIDs) == 0 {
		return map[int64][]int64{}, nil
	}

	query := `
		SELECT surt_id, entry.ts AS ts
		FROM entry
		JOIN entry_success ON entry_success.entry_id = entry.id
		WHERE surt_id IN (?)
	`

	args := []any{bun.In(surtIDs)}

	if dateRange != nil {
		start := int64(0)
		if dateRange.Start != nil {
			start = *dateRange.Start
		}

		end := int64(1<<63 - 1)
		if dateRange.End != nil {
			end = *dateRange.End
		}

		query += " AND entry.ts >= ? AND entry.ts < ?"
		args = append(args, start, end)
	}

	query += " ORDER BY surt_id, entry.ts"

	var rows []struct {
		SurtID int64 `bun:"surt_id"`
		TS     int64 `bun:"ts"`
	}

	if err := db.NewRaw(query, args...).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("catalog: error resolving surt entries: %w", err)
	}

	results := make(map[int64][]int64, len(surtIDs))
	for _, row := range rows {
		results[row.SurtID] = append(results[row.SurtID], row.TS)
	}

	return results, nil
}

// GetSearchResult resolves a page of snapshot ids into their (url,
// timestamp, surt) identity plus each matched SURT's full capture
// timeline, in a single transaction so the two queries see a consistent
// snapshot of the catalog.
func GetSearchResult(
	ctx context.Context,
	db *bun.DB,
	snapshotIDs []int64,
	dateRange *TimestampRange,
) ([]SnapshotRow, map[int64][]int64, error) {
	var (
		snapshots []SnapshotRow
		timelines map[int64][]int64
	)

	err := db.RunInTx(ctx, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
		var err error

		snapshots, err = GetSnapshots(ctx, tx, snapshotIDs)
		if err != nil {
			return err
		}

		surtIDs := make([]int64, 0, len(snapshots))
		for _, s := range snapshots {
			surtIDs = append(surtIDs, s.SurtID)
		}

		timelines, err = GetSurtEntries(ctx, tx, surtIDs, dateRange)

		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: error computing search result: %w", err)
	}

	return snapshots, timelines, nil
}

// SnapshotInfo is one row of GetSnapshotInfo's joined result, used to
// rebuild the index from the catalog.
type SnapshotInfo struct {
	SnapshotID  int64  `bun:"snapshot_id"`
	SurtID      int64  `bun:"surt_id"`
	Digest      string `bun:"digest"`
	PatternSlug string `bun:"pattern_slug"`
	Timestamp   int64  `bun:"ts"`
}

// GetSnapshotInfo lists, for every successfully downloaded snapshot of the
// given MIME type, the pattern(s) it's associated with.
func GetSnapshotInfo(ctx context.Context, db bun.IDB, mimeType string) ([]SnapshotInfo, error) {
	var rows []SnapshotInfo

	err := db.NewRaw(`
		SELECT
			snapshot.id AS snapshot_id,
			entry.surt_id AS surt_id,
			snapshot.digest AS digest,
			pattern.slug AS pattern_slug,
			entry.ts AS ts
		FROM snapshot
		JOIN entry_success ON entry_success.snapshot_id = snapshot.id
		JOIN entry ON entry.id = entry_success.entry_id
		JOIN pattern_entry ON pattern_entry.entry_id = entry.id
		JOIN pattern ON pattern.id = pattern_entry.pattern_id
		WHERE entry.mime_type = ?
		ORDER BY snapshot_id, ts
	`, mimeType).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("catalog: error listing snapshot info: %w", err)
	}

	return rows, nil
}

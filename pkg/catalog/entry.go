package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/travisbrown/archivindex/pkg/cdx"
)

// InsertEntry upserts the entry's SURT and the entry row itself, returning
// the entry's row id. Repeated inserts of the same (url, surt, ts, ...)
// tuple are idempotent.
func InsertEntry(ctx context.Context, db bun.IDB, entry cdx.Entry) (int64, error) {
	surtID, err := InsertSurt(ctx, db, entry.Key.String())
	if err != nil {
		return 0, err
	}

	var statusCode *int32
	if entry.StatusCode != nil {
		v := int32(*entry.StatusCode)
		statusCode = &v
	}

	row := &Entry{
		URL:        entry.Original,
		SurtID:     surtID,
		Timestamp:  entry.Timestamp.Unix(),
		Digest:     entry.Digest.String(),
		MimeType:   entry.MimeType.String(),
		StatusCode: statusCode,
		Length:     int64(entry.Length),
	}

	if statusCode == nil {
		var id int64
		err := db.NewSelect().Model((*Entry)(nil)).Column("id").
			Where("url = ? AND surt_id = ? AND ts = ? AND digest = ? AND mime_type = ? AND length = ? AND status_code IS NULL",
				row.URL, row.SurtID, row.Timestamp, row.Digest, row.MimeType, row.Length).
			Limit(1).Scan(ctx, &id)
		if err == nil {
			return id, nil
		} else if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("catalog: error looking up entry for %q: %w", entry.Original, err)
		}
	}

	const conflictCols = "url, surt_id, ts, digest, mime_type, status_code, length"
	if err := upsertReturningID(ctx, db, row, "entry", conflictCols); err != nil {
		return 0, fmt.Errorf("catalog: error inserting entry for %q: %w", entry.Original, err)
	}

	return row.ID, nil
}

// InsertEntrySuccess records a successful download for entryID against
// digest, noting whether digest matched the entry's declared digest, and
// returns the entry_success row id. The snapshot upsert and the
// entry_success upsert run in the same transaction.
func InsertEntrySuccess(
	ctx context.Context,
	db *bun.DB,
	entryID int64,
	digest string,
	correctDigest bool,
	ts int64,
) (int64, error) {
	var id int64

	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		snapshotID, err := InsertSnapshot(ctx, tx, digest)
		if err != nil {
			return err
		}

		row := &EntrySuccess{
			EntryID:       entryID,
			SnapshotID:    snapshotID,
			CorrectDigest: correctDigest,
			Timestamp:     ts,
		}

		if err := upsertReturningID(ctx, tx, row, "entry_success", "entry_id, snapshot_id"); err != nil {
			return err
		}

		id = row.ID

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("catalog: error recording success for entry %d: %w", entryID, err)
	}

	return id, nil
}

// InsertEntryError records one failed download attempt for entryID.
func InsertEntryError(
	ctx context.Context,
	db bun.IDB,
	entryID int64,
	ts int64,
	statusCode int32,
	errorMessage string,
) (int64, error) {
	row := &EntryFailure{
		EntryID:      entryID,
		Timestamp:    ts,
		StatusCode:   statusCode,
		ErrorMessage: errorMessage,
	}

	if _, err := db.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		return 0, fmt.Errorf("catalog: error recording failure for entry %d: %w", entryID, err)
	}

	return row.ID, nil
}

// MissingEntry is one row of MissingEntries' joined result.
type MissingEntry struct {
	EntryID    int64  `bun:"entry_id"`
	SurtID     int64  `bun:"surt_id"`
	SurtValue  string `bun:"surt_value"`
	Timestamp  int64  `bun:"ts"`
	URL        string `bun:"url"`
	MimeType   string `bun:"mime_type"`
	StatusCode *int32 `bun:"status_code"`
	Digest     string `bun:"digest"`
	Length     int64  `bun:"length"`
}

// MissingEntries returns every entry of the given MIME type that has never
// been successfully downloaded and whose declared status, if any, was 200
// -- i.e. content the downloader should still attempt. limit <= 0 means no
// limit.
func MissingEntries(ctx context.Context, db bun.IDB, mimeType string, limit int) ([]MissingEntry, error) {
	if limit <= 0 {
		limit = 1<<31 - 1
	}

	var results []MissingEntry

	err := db.NewRaw(`
		SELECT
			entry.id AS entry_id,
			surt.id AS surt_id,
			surt.value AS surt_value,
			entry.ts AS ts,
			entry.url AS url,
			entry.mime_type AS mime_type,
			entry.status_code AS status_code,
			entry.digest AS digest,
			entry.length AS length
		FROM entry
		LEFT JOIN entry_success ON entry_success.entry_id = entry.id
		JOIN surt ON surt.id = entry.surt_id
		WHERE entry.mime_type = ? AND entry_success.id IS NULL
			AND (entry.status_code IS NULL OR entry.status_code = 200)
		LIMIT ?
	`, mimeType, limit).Scan(ctx, &results)
	if err != nil {
		return nil, fmt.Errorf("catalog: error listing missing entries: %w", err)
	}

	return results, nil
}

// InvalidDigest is one entry whose stored snapshot content did not match
// its declared digest.
type InvalidDigest struct {
	URL       string `bun:"url"`
	Timestamp int64  `bun:"timestamp"`
	Expected  string `bun:"expected"`
	Actual    string `bun:"actual"`
}

// InvalidDigests lists every entry_success row recorded with a digest
// mismatch, ordered by (url, timestamp) for stable CSV-driven reconciliation.
func InvalidDigests(ctx context.Context, db bun.IDB) ([]InvalidDigest, error) {
	var results []InvalidDigest

	err := db.NewRaw(`
		SELECT entry.url AS url, entry.ts AS timestamp, entry.digest AS expected, snapshot.digest AS actual
		FROM entry_success
		JOIN entry ON entry.id = entry_success.entry_id
		JOIN snapshot ON snapshot.id = entry_success.snapshot_id
		WHERE entry_success.correct_digest = ?
		ORDER BY entry.url, entry.ts
	`, false).Scan(ctx, &results)
	if err != nil {
		return nil, fmt.Errorf("catalog: error listing invalid digests: %w", err)
	}

	return results, nil
}

// FindEntryIDsByDigest returns the ids of every entry whose declared
// digest is digest.
func FindEntryIDsByDigest(ctx context.Context, db bun.IDB, digest string) ([]int64, error) {
	var ids []int64

	if err := db.NewSelect().Model((*Entry)(nil)).Column("id").Where("digest = ?", digest).Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("catalog: error finding entries for digest %q: %w", digest, err)
	}

	return ids, nil
}

// EntryByDigestRow is one row of EntriesByDigest's joined result.
type EntryByDigestRow struct {
	ID        int64  `bun:"id"`
	URL       string `bun:"url"`
	SurtID    int64  `bun:"surt_id"`
	SurtValue string `bun:"surt"`
	Timestamp int64  `bun:"ts"`
	Digest    string `bun:"digest"`
	MimeType  string `bun:"mime_type"`
	Length    int64  `bun:"length"`
}

// EntriesByDigest returns every entry row, joined with its SURT's value,
// whose declared digest matches digest.
func EntriesByDigest(ctx context.Context, db bun.IDB, digest string) ([]EntryByDigestRow, error) {
	var results []EntryByDigestRow

	err := db.NewRaw(`
		SELECT
			entry.id AS id,
			entry.url AS url,
			surt.id AS surt_id,
			surt.value AS surt,
			entry.ts AS ts,
			entry.digest AS digest,
			entry.mime_type AS mime_type,
			entry.length AS length
		FROM entry
		JOIN surt ON surt.id = entry.surt_id
		WHERE entry.digest = ?
	`, digest).Scan(ctx, &results)
	if err != nil {
		return nil, fmt.Errorf("catalog: error finding entries for digest %q: %w", digest, err)
	}

	return results, nil
}

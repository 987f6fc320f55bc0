// Package ingest is the import pipeline (component C10): it loads CDX
// store pages from disk into the catalog, reconciles already-downloaded
// content against the item store, and replays digest corrections recorded
// by the catalog. It is the Go counterpart of
// original_source/manager/src/import/mod.rs.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/travisbrown/archivindex/pkg/catalog"
	"github.com/travisbrown/archivindex/pkg/cdx"
	"github.com/travisbrown/archivindex/pkg/digest"
	"github.com/travisbrown/archivindex/pkg/store"
)

// PatternConfig names one pattern to import, the on-disk CDX store that
// holds its entries, and that store's page compression level. It mirrors
// the JSON shape consumed by the source's run_import.
type PatternConfig struct {
	Surt             string `json:"surt"`
	Prefix           string `json:"prefix"`
	Name             string `json:"name"`
	Slug             string `json:"slug"`
	SortID           int64  `json:"sort_id"`
	Path             string `json:"path"`
	CompressionLevel *int   `json:"compression_level,omitempty"`
}

// LoadPatternConfigs reads a JSON array of PatternConfig from path.
func LoadPatternConfigs(path string) ([]PatternConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: error reading pattern config %q: %w", path, err)
	}

	var configs []PatternConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("ingest: error decoding pattern config %q: %w", path, err)
	}

	return configs, nil
}

// RunImport imports every configured pattern's CDX store into the
// catalog and returns the total number of entries inserted or updated.
// The error returned for a failed pattern carries a run id identifying
// the batch.
func RunImport(ctx context.Context, db *bun.DB, configs []PatternConfig) (int, error) {
	runID := uuid.New()

	total := 0

	for _, config := range configs {
		n, err := ImportCDXStore(ctx, db, config)
		if err != nil {
			return total, fmt.Errorf("ingest: run %s: error importing pattern %q: %w", runID, config.Slug, err)
		}

		total += n
	}

	return total, nil
}

// ImportCDXStore reads every entry of config's CDX store and upserts the
// pattern, its entries, and their pattern_entry links in a single
// transaction, returning the number of entries processed.
func ImportCDXStore(ctx context.Context, db *bun.DB, config PatternConfig) (int, error) {
	entries, err := cdx.NewStore(config.Path).Entries()
	if err != nil {
		return 0, fmt.Errorf("ingest: error reading cdx store %q: %w", config.Path, err)
	}

	count := 0

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		patternID, err := catalog.InsertPattern(ctx, tx, catalog.Pattern{
			Surt: config.Surt, Prefix: config.Prefix, Name: config.Name,
			Slug: config.Slug, SortID: config.SortID,
		})
		if err != nil {
			return err
		}

		for _, entry := range entries {
			entryID, err := catalog.InsertEntry(ctx, tx, entry)
			if err != nil {
				return err
			}

			if err := catalog.InsertPatternEntry(ctx, tx, patternID, entryID); err != nil {
				return err
			}

			count++
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ingest: error importing pattern %q: %w", config.Slug, err)
	}

	return count, nil
}

// FindLocalSnapshots reconciles every entry of mimeType with no recorded
// success against the item store: an entry whose declared digest is
// already present in store is recorded as a (correct-digest) success
// without any download. now is the timestamp to record for each
// reconciled success. It returns the number of entries reconciled.
func FindLocalSnapshots(ctx context.Context, db *bun.DB, st *store.Store, mimeType string, now int64) (int, error) {
	missing, err := catalog.MissingEntries(ctx, db, mimeType, 0)
	if err != nil {
		return 0, fmt.Errorf("ingest: error listing missing entries: %w", err)
	}

	count := 0

	for _, entry := range missing {
		d := digest.Parse(entry.Digest)

		if !st.Contains(ctx, d) {
			continue
		}

		if _, err := catalog.InsertEntrySuccess(ctx, db, entry.EntryID, entry.Digest, true, now); err != nil {
			return count, fmt.Errorf("ingest: error recording local snapshot for entry %d: %w", entry.EntryID, err)
		}

		count++
	}

	return count, nil
}

// MissingSnapshot is one still-undownloaded piece of distinct content:
// the shortest, earliest-seen URL among every entry sharing its expected
// digest, so the downloader fetches each distinct snapshot only once.
type MissingSnapshot struct {
	EntryID        int64
	URL            string
	Timestamp      int64
	ExpectedDigest string
}

// ListMissingSnapshots returns the deduplicated list of content the
// downloader should still fetch for mimeType: MissingEntries grouped by
// expected digest, keeping the shortest URL (ties broken by earliest
// timestamp) from each group, ordered canonically by digest.
func ListMissingSnapshots(ctx context.Context, db bun.IDB, mimeType string) ([]MissingSnapshot, error) {
	missing, err := catalog.MissingEntries(ctx, db, mimeType, 0)
	if err != nil {
		return nil, fmt.Errorf("ingest: error listing missing entries: %w", err)
	}

	candidates := make([]MissingSnapshot, len(missing))

	for i, e := range missing {
		candidates[i] = MissingSnapshot{
			EntryID: e.EntryID, URL: e.URL, Timestamp: e.Timestamp, ExpectedDigest: e.Digest,
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.ExpectedDigest != b.ExpectedDigest {
			return a.ExpectedDigest < b.ExpectedDigest
		}

		if len(a.URL) != len(b.URL) {
			return len(a.URL) < len(b.URL)
		}

		return a.Timestamp < b.Timestamp
	})

	var deduped []MissingSnapshot

	seen := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		if _, ok := seen[c.ExpectedDigest]; ok {
			continue
		}

		seen[c.ExpectedDigest] = struct{}{}

		deduped = append(deduped, c)
	}

	sort.Slice(deduped, func(i, j int) bool { return deduped[i].ExpectedDigest < deduped[j].ExpectedDigest })

	return deduped, nil
}

// ListInvalidDigests lists every entry whose stored snapshot content did
// not match its declared digest.
func ListInvalidDigests(ctx context.Context, db bun.IDB) ([]catalog.InvalidDigest, error) {
	return catalog.InvalidDigests(ctx, db)
}

// ImportInvalidDigests replays the catalog's recorded digest corrections:
// for each invalid digest whose expected content is absent from the item
// store but whose actual (corrected) content is present, every entry
// declaring the expected digest is recorded as a success under the
// actual digest. now is the timestamp to record for each correction. It
// returns the number of entries corrected.
func ImportInvalidDigests(ctx context.Context, db *bun.DB, st *store.Store, invalid []catalog.InvalidDigest, now int64) (int, error) {
	count := 0

	for _, inv := range invalid {
		expected := digest.Parse(inv.Expected)
		actual := digest.Parse(inv.Actual)

		if st.Contains(ctx, expected) || !st.Contains(ctx, actual) {
			continue
		}

		entryIDs, err := catalog.FindEntryIDsByDigest(ctx, db, inv.Expected)
		if err != nil {
			return count, fmt.Errorf("ingest: error finding entries for digest %q: %w", inv.Expected, err)
		}

		for _, entryID := range entryIDs {
			if _, err := catalog.InsertEntrySuccess(ctx, db, entryID, inv.Actual, false, now); err != nil {
				return count, fmt.Errorf("ingest: error correcting entry %d: %w", entryID, err)
			}

			count++
		}
	}

	return count, nil
}

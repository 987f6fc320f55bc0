package catalog

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// InsertLink upserts an outbound link discovered during extraction and
// returns its row id. This SUPPLEMENTs the core catalog with the
// extractor's link-graph output.
func InsertLink(ctx context.Context, db bun.IDB, linkURL, surt string) (int64, error) {
	row := &Link{URL: linkURL, Surt: surt}

	if err := upsertReturningID(ctx, db, row, "link", "url"); err != nil {
		return 0, fmt.Errorf("catalog: error inserting link %q: %w", linkURL, err)
	}

	return row.ID, nil
}

// InsertSnapshotLink records that snapshotID's content links to linkID,
// doing nothing if that pairing is already recorded.
func InsertSnapshotLink(ctx context.Context, db bun.IDB, snapshotID, linkID int64) error {
	row := &SnapshotLink{SnapshotID: snapshotID, LinkID: linkID}

	if err := insertIgnore(ctx, db, row, "snapshot_link"); err != nil {
		return fmt.Errorf("catalog: error linking snapshot %d to link %d: %w", snapshotID, linkID, err)
	}

	return nil
}

package catalog

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// InsertSnapshot upserts a content digest and returns its row id.
func InsertSnapshot(ctx context.Context, db bun.IDB, digest string) (int64, error) {
	row := &Snapshot{Digest: digest}

	if err := upsertReturningID(ctx, db, row, "snapshot", "digest"); err != nil {
		return 0, fmt.Errorf("catalog: error inserting snapshot %q: %w", digest, err)
	}

	return row.ID, nil
}

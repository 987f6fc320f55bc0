package catalog

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// InsertSurt upserts a SURT value and returns its row id.
func InsertSurt(ctx context.Context, db bun.IDB, value string) (int64, error) {
	row := &Surt{Value: value}

	if err := upsertReturningID(ctx, db, row, "surt", "value"); err != nil {
		return 0, fmt.Errorf("catalog: error inserting surt %q: %w", value, err)
	}

	return row.ID, nil
}

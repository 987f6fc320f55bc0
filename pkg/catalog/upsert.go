package catalog

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

//nolint:gochecknoglobals
var upsertTotal, _ = otel.Meter("github.com/travisbrown/archivindex/pkg/catalog").Int64Counter(
	"archivindex_catalog_upsert_total",
	metric.WithDescription("Total number of catalog upserts and insert-or-ignores, by table"),
)

// recordUpsert counts one successful upsert or insert-or-ignore into table.
func recordUpsert(ctx context.Context, table string) {
	upsertTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("table", table)))
}

// settable is implemented by every model the catalog upserts by a unique
// column and expects an id back, regardless of dialect.
type settable interface {
	SetID(int64)
}

// upsertReturningID inserts model, or -- if conflictCol's unique constraint
// already holds a matching row -- leaves that row untouched, either way
// leaving model's ID field set to the existing or newly-assigned id. This
// is the Go shape of the "INSERT ... ON CONFLICT DO UPDATE SET id = id
// RETURNING id" idiom used throughout the original catalog; MySQL has
// neither ON CONFLICT nor RETURNING, so it goes through ON DUPLICATE KEY
// UPDATE plus LAST_INSERT_ID(id) instead.
func upsertReturningID(ctx context.Context, db bun.IDB, model settable, table, conflictCol string) error {
	if db.Dialect().Name() == dialect.MySQL {
		res, err := db.NewInsert().
			Model(model).
			On("DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id)").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("catalog: upsert failed: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("catalog: error reading last insert id: %w", err)
		}

		model.SetID(id)

		recordUpsert(ctx, table)

		return nil
	}

	_, err := db.NewInsert().
		Model(model).
		On(fmt.Sprintf("CONFLICT (%s) DO UPDATE SET id = id", conflictCol)).
		Returning("id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("catalog: upsert failed: %w", err)
	}

	recordUpsert(ctx, table)

	return nil
}

// insertIgnore inserts model, silently doing nothing if it would violate a
// unique constraint. Used for pure many-to-many join rows that carry no id
// of their own (pattern_entry, snapshot_link).
func insertIgnore(ctx context.Context, db bun.IDB, model any, table string) error {
	q := db.NewInsert().Model(model)

	if db.Dialect().Name() == dialect.MySQL {
		q = q.Ignore()
	} else {
		q = q.On("CONFLICT DO NOTHING")
	}

	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("catalog: insert-ignore failed: %w", err)
	}

	recordUpsert(ctx, table)

	return nil
}

package catalog

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// GetAllPatterns returns every configured pattern, ordered by its
// configured sort position.
func GetAllPatterns(ctx context.Context, db bun.IDB) ([]Pattern, error) {
	var rows []Pattern

	if err := db.NewSelect().Model(&rows).Order("sort_id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("catalog: error listing patterns: %w", err)
	}

	return rows, nil
}

// GetAllPatternsWithStats is GetAllPatterns plus, per pattern, the count of
// distinct successfully-indexed entries matched against it.
func GetAllPatternsWithStats(ctx context.Context, db bun.IDB) ([]Pattern, error) {
	var rows []Pattern

	err := db.NewRaw(`
		SELECT
			pattern.id AS id,
			pattern.surt AS surt,
			pattern.prefix AS prefix,
			pattern.name AS name,
			pattern.slug AS slug,
			pattern.sort_id AS sort_id,
			COUNT(DISTINCT entry_success.entry_id) AS indexed_count
		FROM pattern
		LEFT JOIN pattern_entry ON pattern_entry.pattern_id = pattern.id
		LEFT JOIN entry_success ON entry_success.entry_id = pattern_entry.entry_id
		GROUP BY pattern.id, pattern.surt, pattern.prefix, pattern.name, pattern.slug, pattern.sort_id
		ORDER BY pattern.sort_id
	`).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("catalog: error listing patterns with stats: %w", err)
	}

	return rows, nil
}

// InsertPattern upserts a pattern definition and returns its row id.
func InsertPattern(ctx context.Context, db bun.IDB, p Pattern) (int64, error) {
	row := &Pattern{
		Surt:   p.Surt,
		Prefix: p.Prefix,
		Name:   p.Name,
		Slug:   p.Slug,
		SortID: p.SortID,
	}

	if err := upsertReturningID(ctx, db, row, "pattern", "slug"); err != nil {
		return 0, fmt.Errorf("catalog: error inserting pattern %q: %w", p.Slug, err)
	}

	return row.ID, nil
}

// InsertPatternEntry records that entryID matches patternID, doing nothing
// if that pairing is already recorded.
func InsertPatternEntry(ctx context.Context, db bun.IDB, patternID, entryID int64) error {
	row := &PatternEntry{PatternID: patternID, EntryID: entryID}

	if err := insertIgnore(ctx, db, row, "pattern_entry"); err != nil {
		return fmt.Errorf("catalog: error linking pattern %d to entry %d: %w", patternID, entryID, err)
	}

	return nil
}

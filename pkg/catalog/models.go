package catalog

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// Surt is a canonicalized URL key row.
type Surt struct {
	bun.BaseModel `bun:"table:surt"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Value string `bun:"value,notnull,unique"`
}

// Entry is one CDX record: a (url, timestamp) pair pointing at a declared
// snapshot digest, independent of whether that snapshot was ever
// successfully downloaded.
type Entry struct {
	bun.BaseModel `bun:"table:entry"`

	ID         int64  `bun:"id,pk,autoincrement"`
	URL        string `bun:"url,notnull,unique:entry_idempotency"`
	SurtID     int64  `bun:"surt_id,notnull,unique:entry_idempotency"`
	Timestamp  int64  `bun:"ts,notnull,unique:entry_idempotency"`
	Digest     string `bun:"digest,notnull,unique:entry_idempotency"`
	MimeType   string `bun:"mime_type,notnull,unique:entry_idempotency"`
	StatusCode *int32 `bun:"status_code,unique:entry_idempotency"`
	Length     int64  `bun:"length,notnull,unique:entry_idempotency"`

	Surt *Surt `bun:"rel:belongs-to,join:surt_id=id"`
}

// Snapshot is a distinct downloaded-content digest, shared by every entry
// whose declared digest matches it.
type Snapshot struct {
	bun.BaseModel `bun:"table:snapshot"`

	ID     int64  `bun:"id,pk,autoincrement"`
	Digest string `bun:"digest,notnull,unique"`
}

// EntrySuccess records that an entry's content was downloaded and stored,
// and whether the stored digest matched the entry's declared digest.
type EntrySuccess struct {
	bun.BaseModel `bun:"table:entry_success"`

	ID            int64 `bun:"id,pk,autoincrement"`
	EntryID       int64 `bun:"entry_id,notnull,unique:entry_success_entry_snapshot"`
	SnapshotID    int64 `bun:"snapshot_id,notnull,unique:entry_success_entry_snapshot"`
	CorrectDigest bool  `bun:"correct_digest,notnull"`
	Timestamp     int64 `bun:"ts,notnull"`
}

// EntryFailure records one failed download attempt for an entry.
type EntryFailure struct {
	bun.BaseModel `bun:"table:entry_failure"`

	ID           int64  `bun:"id,pk,autoincrement"`
	EntryID      int64  `bun:"entry_id,notnull"`
	Timestamp    int64  `bun:"ts,notnull"`
	StatusCode   int32  `bun:"status_code,notnull"`
	ErrorMessage string `bun:"error_message,notnull"`
}

// Pattern is a configured SURT prefix used to bucket entries into a named,
// ordered facet (e.g. a particular site section).
type Pattern struct {
	bun.BaseModel `bun:"table:pattern"`

	ID           int64  `bun:"id,pk,autoincrement"`
	Surt         string `bun:"surt,notnull"`
	Prefix       string `bun:"prefix,notnull"`
	Name         string `bun:"name,notnull"`
	Slug         string `bun:"slug,notnull,unique"`
	SortID       int64  `bun:"sort_id,notnull"`
	IndexedCount int64  `bun:"indexed_count,scanonly"`
}

// PatternEntry is the many-to-many join between pattern and entry.
type PatternEntry struct {
	bun.BaseModel `bun:"table:pattern_entry"`

	PatternID int64 `bun:"pattern_id,pk"`
	EntryID   int64 `bun:"entry_id,pk"`
}

// Link is an outbound link discovered by the extractor while indexing a
// snapshot's HTML, recorded as its own (url, surt) pair so repeated
// sightings of the same link across snapshots collapse to one row. This
// SUPPLEMENTs the core catalog with the extractor's link-graph output.
type Link struct {
	bun.BaseModel `bun:"table:link"`

	ID   int64  `bun:"id,pk,autoincrement"`
	URL  string `bun:"url,notnull,unique"`
	Surt string `bun:"surt,notnull"`
}

// SnapshotLink associates a snapshot with every link found in its content.
type SnapshotLink struct {
	bun.BaseModel `bun:"table:snapshot_link"`

	SnapshotID int64 `bun:"snapshot_id,pk"`
	LinkID     int64 `bun:"link_id,pk"`
}

// SetID lets the upsert helper write a MySQL LAST_INSERT_ID() result back
// into the model (the only dialect among the three without RETURNING).
func (s *Surt) SetID(id int64) { s.ID = id }

// SetID is the Entry counterpart of Surt.SetID.
func (e *Entry) SetID(id int64) { e.ID = id }

// SetID is the Snapshot counterpart of Surt.SetID.
func (sn *Snapshot) SetID(id int64) { sn.ID = id }

// SetID is the EntrySuccess counterpart of Surt.SetID.
func (es *EntrySuccess) SetID(id int64) { es.ID = id }

// SetID is the Pattern counterpart of Surt.SetID.
func (p *Pattern) SetID(id int64) { p.ID = id }

// SetID is the Link counterpart of Surt.SetID.
func (l *Link) SetID(id int64) { l.ID = id }

// EnsureSchema creates every catalog table if it does not already exist.
// Tables are created in dependency order so foreign keys resolve.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*Surt)(nil),
		(*Entry)(nil),
		(*Snapshot)(nil),
		(*EntrySuccess)(nil),
		(*EntryFailure)(nil),
		(*Pattern)(nil),
		(*PatternEntry)(nil),
		(*Link)(nil),
		(*SnapshotLink)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("catalog: error creating table for %T: %w", model, err)
		}
	}

	return nil
}

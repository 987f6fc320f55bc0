package index

import "time"

// Document is what the extractor produces for one successfully downloaded
// snapshot, mapped onto the catalog identifiers it needs to be searchable
// and groupable by canonical URL.
type Document struct {
	SnapshotID     int64
	SurtID         int64
	PatternSlug    string
	Timestamp      time.Time
	Title          string
	Content        []string
	GravatarHashes []string
}

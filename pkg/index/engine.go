// Package index implements the abstract full-text engine boundary: a
// schema-driven document store with faceted counts and a top-K collector
// that groups hits by canonical URL (SURT) while retaining every matching
// snapshot's score. No third-party full-text engine is wired in here — see
// the module's DESIGN.md for why none of the retrieval pack's dependencies
// could fill that role — so documents are held directly in the catalog's
// own storage via uptrace/bun, and their postings live in an in-process
// inverted map, rebuilt from the stored documents at Open, that serves
// queries.
package index

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/bun"
)

//nolint:gochecknoglobals
var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokenize(s string) []string {
	return tokenRe.FindAllString(strings.ToLower(s), -1)
}

// storedDocument is index.Document's durable row shape: tokenizable text
// fields are flattened to single strings for storage, matching the
// original schema's title/content/gravatar_hashes text fields.
type storedDocument struct {
	bun.BaseModel `bun:"table:index_document,alias:idoc"`

	ID             int64  `bun:"id,pk,autoincrement"`
	SnapshotID     int64  `bun:"snapshot_id,notnull"`
	SurtID         int64  `bun:"surt_id,notnull"`
	PatternSlug    string `bun:"pattern_slug,notnull"`
	Year           int    `bun:"year,notnull"`
	Timestamp      int64  `bun:"ts,notnull"`
	Title          string `bun:"title,notnull"`
	Content        string `bun:"content,notnull"`
	GravatarHashes string `bun:"gravatar_hashes,notnull"`
}

// docEntry is the in-memory, queryable form of a storedDocument: the text
// fields are pre-tokenized so Search never re-tokenizes stored content.
type docEntry struct {
	snapshotID  int64
	surtID      int64
	patternSlug string
	year        int
	timestamp   time.Time
	title       string
	content     string
	titleTerms  map[string]int
	bodyTerms   map[string]int
	gravatar    map[string]struct{}
}

// Engine is the in-process inverted index over indexed documents, backed by
// a bun-managed table for durability across restarts. It is not safe for
// concurrent writers; AddDocument/Commit are expected to run from a single
// indexing goroutine, matching the "one mutator per process" rule the CAS
// and catalog also follow. Reads (Search) may run concurrently with each
// other but are serialized against writes by mu.
type Engine struct {
	mu sync.RWMutex

	db  *bun.DB
	now func() time.Time

	docs []docEntry

	titlePostings    map[string][]int
	contentPostings  map[string][]int
	gravatarPostings map[string][]int

	patternSlugs []string
	years        []int
}

// Open creates the index_document table if it does not exist, loads every
// previously indexed document into memory, and rebuilds the in-process
// postings from them — the Go equivalent of the original's
// initialize_surt_ids pass, generalized to every posting list this engine
// keeps. patternSlugs is the complete configured pattern list and firstYear
// is the earliest year facet counts must report, both needed so facet
// counts can be complete even for slugs/years with zero hits.
func Open(ctx context.Context, db *bun.DB, patternSlugs []string, firstYear int) (*Engine, error) {
	if _, err := db.NewCreateTable().Model((*storedDocument)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("index: error creating index_document table: %w", err)
	}

	e := &Engine{
		db:               db,
		now:              time.Now,
		titlePostings:    make(map[string][]int),
		contentPostings:  make(map[string][]int),
		gravatarPostings: make(map[string][]int),
		patternSlugs:     append([]string(nil), patternSlugs...),
	}

	currentYear := e.now().UTC().Year()
	for y := firstYear; y <= currentYear; y++ {
		e.years = append(e.years, y)
	}

	sort.Sort(sort.Reverse(sort.IntSlice(e.years)))

	var rows []storedDocument
	if err := db.NewSelect().Model(&rows).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("index: error loading indexed documents: %w", err)
	}

	for _, row := range rows {
		e.index(docEntryFromRow(row))
	}

	return e, nil
}

func docEntryFromRow(row storedDocument) docEntry {
	entry := docEntry{
		snapshotID:  row.SnapshotID,
		surtID:      row.SurtID,
		patternSlug: row.PatternSlug,
		year:        row.Year,
		timestamp:   time.Unix(row.Timestamp, 0).UTC(),
		title:       row.Title,
		content:     row.Content,
		titleTerms:  termFreq(row.Title),
		bodyTerms:   termFreq(row.Content),
		gravatar:    make(map[string]struct{}),
	}

	for _, h := range strings.Fields(row.GravatarHashes) {
		entry.gravatar[h] = struct{}{}
	}

	return entry
}

func termFreq(s string) map[string]int {
	freq := make(map[string]int)
	for _, t := range tokenize(s) {
		freq[t]++
	}

	return freq
}

// HasSnapshot reports whether snapshotID has already been indexed, so a
// driver re-running over the catalog's snapshot list can skip documents it
// has already added.
func (e *Engine) HasSnapshot(snapshotID int64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, entry := range e.docs {
		if entry.snapshotID == snapshotID {
			return true
		}
	}

	return false
}

// AddDocument persists doc and makes it searchable. It mirrors the
// original add_document: each call inserts one new document row, which is
// never updated in place. A repeated document is not rejected here;
// HasSnapshot lets callers skip snapshots already indexed.
func (e *Engine) AddDocument(ctx context.Context, doc Document) error {
	gravatarHashes := append([]string(nil), doc.GravatarHashes...)
	sort.Strings(gravatarHashes)

	row := storedDocument{
		SnapshotID:     doc.SnapshotID,
		SurtID:         doc.SurtID,
		PatternSlug:    doc.PatternSlug,
		Year:           doc.Timestamp.UTC().Year(),
		Timestamp:      doc.Timestamp.Unix(),
		Title:          doc.Title,
		Content:        strings.Join(doc.Content, " "),
		GravatarHashes: strings.Join(gravatarHashes, " "),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("index: error inserting document: %w", err)
	}

	e.index(docEntryFromRow(row))

	return nil
}

// index appends entry to the in-memory document list and updates every
// posting list it participates in. Callers must hold e.mu for writing.
func (e *Engine) index(entry docEntry) {
	docID := len(e.docs)
	e.docs = append(e.docs, entry)

	for term := range entry.titleTerms {
		e.titlePostings[term] = append(e.titlePostings[term], docID)
	}

	for term := range entry.bodyTerms {
		e.contentPostings[term] = append(e.contentPostings[term], docID)
	}

	for hash := range entry.gravatar {
		e.gravatarPostings[hash] = append(e.gravatarPostings[hash], docID)
	}
}

// Commit is a no-op: AddDocument is already durable per call. It exists so
// callers that mirror the original writer.commit() call site (one commit
// per indexing run) have something to call.
func (e *Engine) Commit(context.Context) error {
	return nil
}

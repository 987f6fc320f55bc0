package index

import (
	"sort"
	"time"
)

// PatternCount is one entry of a complete, zero-filled pattern facet count.
type PatternCount struct {
	Slug  string
	Count int
}

// YearCount is one entry of a complete, zero-filled year facet count.
type YearCount struct {
	Year  int
	Count int
}

// SearchHit is one matched document within a GroupedHit.
type SearchHit struct {
	Score       float64
	SnapshotID  int64
	PatternSlug string
	Title       string
	Snippet     Snippet
}

// GroupedHit is every matched snapshot for one SURT, the unit the top-K
// collector groups by.
type GroupedHit struct {
	SurtID int64
	Hits   []SearchHit
}

// SearchResults is the engine's answer to a query: complete facet counts
// plus the top-K SURTs ranked by their best matching snapshot.
type SearchResults struct {
	PatternCounts []PatternCount
	YearCounts    []YearCount
	Hits          []GroupedHit
}

// Search runs query against the engine, returning the limit top-scoring
// SURTs (after discarding the first offset), plus complete facet counts
// over every matching document regardless of the limit/offset window.
//
// limit == 0 returns an empty result with zero-filled facets without
// scanning any document, matching the original collector's "limit=0 yields
// an empty result without scanning" edge case.
func (e *Engine) Search(query Query, snippetMaxChars, limit, offset int) (SearchResults, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if limit == 0 {
		return SearchResults{
			PatternCounts: e.zeroPatternCounts(),
			YearCounts:    e.zeroYearCounts(),
		}, nil
	}

	terms := tokenize(query.Content)
	candidates := e.candidates(query, terms)

	results := SearchResults{
		PatternCounts: e.patternCounts(candidates),
		YearCounts:    e.yearCounts(candidates),
	}

	topN := limit + offset

	collector := NewTopNComputer(topN)
	all := make(map[int64][]SearchHit, len(candidates))

	for _, docID := range candidates {
		doc := e.docs[docID]
		score := scoreDoc(doc, terms)

		collector.PushOrUpdate(score, doc.surtID)
		all[doc.surtID] = append(all[doc.surtID], SearchHit{
			Score:       score,
			SnapshotID:  doc.snapshotID,
			PatternSlug: doc.patternSlug,
			Title:       doc.title,
			Snippet:     generateSnippet(doc.content, terms, snippetMaxChars),
		})
	}

	top := collector.IntoSortedSlice()
	if offset < len(top) {
		top = top[offset:]
	} else {
		top = nil
	}

	for _, entry := range top {
		hits := all[entry.Doc]
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].Score != hits[j].Score {
				return hits[i].Score > hits[j].Score
			}

			return hits[i].SnapshotID < hits[j].SnapshotID
		})

		results.Hits = append(results.Hits, GroupedHit{SurtID: entry.Doc, Hits: hits})
	}

	return results, nil
}

// candidates returns the doc IDs matching query's content terms and every
// present facet filter, ANDed together.
func (e *Engine) candidates(query Query, terms []string) []int {
	matched := make(map[int]struct{})

	if len(terms) == 0 {
		for docID := range e.docs {
			matched[docID] = struct{}{}
		}
	} else {
		for i, term := range terms {
			hits := make(map[int]struct{})
			for _, docID := range e.titlePostings[term] {
				hits[docID] = struct{}{}
			}

			for _, docID := range e.contentPostings[term] {
				hits[docID] = struct{}{}
			}

			if i == 0 {
				matched = hits

				continue
			}

			for docID := range matched {
				if _, ok := hits[docID]; !ok {
					delete(matched, docID)
				}
			}
		}
	}

	if query.GravatarHash != nil {
		allowed := make(map[int]struct{}, len(e.gravatarPostings[*query.GravatarHash]))
		for _, docID := range e.gravatarPostings[*query.GravatarHash] {
			allowed[docID] = struct{}{}
		}

		matched = intersect(matched, allowed)
	}

	if query.DateRange != nil {
		for docID := range matched {
			if !withinRange(e.docs[docID].timestamp, query.DateRange) {
				delete(matched, docID)
			}
		}
	}

	if len(query.PatternSlugs) > 0 {
		for docID := range matched {
			if _, ok := query.PatternSlugs[e.docs[docID].patternSlug]; !ok {
				delete(matched, docID)
			}
		}
	}

	if len(query.Years) > 0 {
		for docID := range matched {
			if _, ok := query.Years[e.docs[docID].year]; !ok {
				delete(matched, docID)
			}
		}
	}

	out := make([]int, 0, len(matched))
	for docID := range matched {
		out = append(out, docID)
	}

	sort.Ints(out)

	return out
}

func intersect(a, b map[int]struct{}) map[int]struct{} {
	out := make(map[int]struct{})

	for docID := range a {
		if _, ok := b[docID]; ok {
			out[docID] = struct{}{}
		}
	}

	return out
}

func withinRange(t time.Time, r *TimeRange) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}

	if r.End != nil && !t.Before(*r.End) {
		return false
	}

	return true
}

// scoreDoc is the engine's term-frequency relevance score: title matches
// count for twice as much as body matches, since the title field is the
// strongest relevance signal available without a real ranking function.
func scoreDoc(doc docEntry, terms []string) float64 {
	var score float64

	for _, term := range terms {
		score += float64(doc.titleTerms[term]) * 2
		score += float64(doc.bodyTerms[term])
	}

	return score
}

func (e *Engine) patternCounts(candidates []int) []PatternCount {
	counts := e.zeroPatternCounts()

	index := make(map[string]int, len(counts))
	for i, c := range counts {
		index[c.Slug] = i
	}

	for _, docID := range candidates {
		if i, ok := index[e.docs[docID].patternSlug]; ok {
			counts[i].Count++
		}
	}

	return counts
}

func (e *Engine) yearCounts(candidates []int) []YearCount {
	counts := e.zeroYearCounts()

	index := make(map[int]int, len(counts))
	for i, c := range counts {
		index[c.Year] = i
	}

	for _, docID := range candidates {
		if i, ok := index[e.docs[docID].year]; ok {
			counts[i].Count++
		}
	}

	return counts
}

func (e *Engine) zeroPatternCounts() []PatternCount {
	counts := make([]PatternCount, len(e.patternSlugs))
	for i, slug := range e.patternSlugs {
		counts[i] = PatternCount{Slug: slug}
	}

	return counts
}

func (e *Engine) zeroYearCounts() []YearCount {
	counts := make([]YearCount, len(e.years))
	for i, y := range e.years {
		counts[i] = YearCount{Year: y}
	}

	return counts
}

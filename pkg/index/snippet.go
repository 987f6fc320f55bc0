package index

import (
	"html"
	"sort"
	"strings"
)

// Highlight is a byte range within a Snippet's Fragment that matched the
// query, expressed as a half-open [Start, End) range.
type Highlight struct {
	Start int
	End   int
}

// Snippet is a short excerpt of a document's content with the byte ranges
// that matched the query terms, grounded on the original generator's
// fragment/highlighted-ranges split.
type Snippet struct {
	Fragment    string
	Highlighted []Highlight
}

// ToHTML renders the snippet as HTML-escaped text with each highlighted
// range wrapped in the given tag (e.g. "b").
func (s Snippet) ToHTML(tag string) string {
	var b strings.Builder

	startFrom := 0

	for _, h := range collapseOverlapped(s.Highlighted) {
		b.WriteString(html.EscapeString(s.Fragment[startFrom:h.Start]))
		b.WriteString("<" + tag + ">")
		b.WriteString(html.EscapeString(s.Fragment[h.Start:h.End]))
		b.WriteString("</" + tag + ">")
		startFrom = h.End
	}

	b.WriteString(html.EscapeString(s.Fragment[startFrom:]))

	return b.String()
}

func collapseOverlapped(ranges []Highlight) []Highlight {
	if len(ranges) == 0 {
		return nil
	}

	result := make([]Highlight, 0, len(ranges))
	current := ranges[0]

	for _, r := range ranges {
		if current.End > r.Start {
			if r.End > current.End {
				current.End = r.End
			}
		} else {
			result = append(result, current)
			current = r
		}
	}

	result = append(result, current)

	return result
}

// defaultMaxSnippetChars is used when a caller passes a non-positive
// snippetMaxChars, matching SnippetGenerator's own sane default.
const defaultMaxSnippetChars = 150

// generateSnippet builds a Snippet from content around the first
// occurrence of any term in terms, highlighting every occurrence of any
// term that falls within the chosen window.
func generateSnippet(content string, terms []string, maxChars int) Snippet {
	if maxChars <= 0 {
		maxChars = defaultMaxSnippetChars
	}

	lower := strings.ToLower(content)

	firstMatch := -1

	for _, term := range terms {
		if term == "" {
			continue
		}

		if idx := strings.Index(lower, term); idx != -1 && (firstMatch == -1 || idx < firstMatch) {
			firstMatch = idx
		}
	}

	start := 0
	if firstMatch > maxChars/2 {
		start = firstMatch - maxChars/2
	}

	end := start + maxChars
	if end > len(content) {
		end = len(content)
	}

	if start > len(content) {
		start = len(content)
	}

	fragment := content[start:end]
	lowerFragment := strings.ToLower(fragment)

	var highlights []Highlight

	for _, term := range terms {
		if term == "" {
			continue
		}

		offset := 0

		for {
			idx := strings.Index(lowerFragment[offset:], term)
			if idx == -1 {
				break
			}

			absolute := offset + idx
			highlights = append(highlights, Highlight{Start: absolute, End: absolute + len(term)})
			offset = absolute + len(term)
		}
	}

	sort.Slice(highlights, func(i, j int) bool { return highlights[i].Start < highlights[j].Start })

	return Snippet{Fragment: fragment, Highlighted: highlights}
}

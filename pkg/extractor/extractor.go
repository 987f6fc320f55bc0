// Package extractor turns a downloaded HTML page into the fields the
// indexer cares about: its title, its visible text, the URLs it links to,
// and any Gravatar avatar hashes embedded in it. Extraction is a pure
// function of the HTML bytes -- it never touches the network or the
// catalog.
package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

//nolint:gochecknoglobals
var gravatarSrcRe = regexp.MustCompile(`gravatar\.com/avatar/([0-9a-f]+)`)

// Document is the result of extracting an HTML page.
type Document struct {
	Title          string
	Content        []string
	Links          []string
	GravatarHashes map[string]struct{}
}

// Extract parses html and pulls out its title, body text, outbound http(s)
// links, and any Gravatar avatar hashes. Malformed HTML is never an error:
// golang.org/x/net/html's parser repairs it the way a browser would, so
// Extract's only failure mode is an I/O-level read error from the
// underlying reader, which callers that already hold the bytes in memory
// will never see.
func Extract(rawHTML []byte) (Document, error) {
	doc, err := html.Parse(strings.NewReader(string(rawHTML)))
	if err != nil {
		return Document{}, fmt.Errorf("extractor: error parsing html: %w", err)
	}

	var (
		title          string
		titleLen       int
		content        []string
		links          []string
		gravatarHashes = make(map[string]struct{})
	)

	var walk func(n *html.Node, inHead, inBody bool)
	walk = func(n *html.Node, inHead, inBody bool) {
		switch n.Type {
		case html.ElementNode:
			switch n.DataAtom.String() {
			case "head":
				inHead = true
			case "body":
				inBody = true
			case "title":
				if inHead {
					for _, candidate := range directText(n) {
						if len(candidate) > titleLen {
							title, titleLen = candidate, len(candidate)
						}
					}
				}
			case "a":
				if href := attr(n, "href"); strings.HasPrefix(strings.TrimSpace(href), "http") {
					links = append(links, strings.TrimSpace(href))
				}
			case "img":
				if src := attr(n, "src"); strings.Contains(src, "gravatar.com") {
					for _, m := range gravatarSrcRe.FindAllStringSubmatch(src, -1) {
						gravatarHashes[m[1]] = struct{}{}
					}
				}
			}
		case html.TextNode:
			if inBody {
				if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
					content = append(content, trimmed)
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inHead, inBody)
		}
	}

	walk(doc, false, false)

	return Document{
		Title:          title,
		Content:        content,
		Links:          links,
		GravatarHashes: gravatarHashes,
	}, nil
}

// directText returns every non-empty, trimmed text node under n, not
// descending into further element boundaries beyond n's own subtree --
// this mirrors scraper's ElementRef::text() used by the original title
// selector, which yields every text node inside the matched element.
func directText(n *html.Node) []string {
	var out []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
				out = append(out, trimmed)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)

	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}

	return ""
}

// Package redirect implements the archive's redirect-page convention: the
// canonical HTML body the Wayback Machine stores for a 302 capture, and
// the `redirects-<X>.csv` files that record known (digest, URL) pairs for
// that body, grounded on
// original_source/core/src/redirect.rs and original_source/redirects/src/lib.rs.
package redirect

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/travisbrown/archivindex/pkg/digest"
)

var redirectHTMLRe = regexp.MustCompile(`^<html><body>You are being <a href="([^"]+)">redirected</a>\.</body></html>$`)

// MakeRedirectHTML renders the canonical redirect-page body the Wayback
// Machine stores for a 302 capture pointing at url.
func MakeRedirectHTML(url string) string {
	return fmt.Sprintf(`<html><body>You are being <a href="%s">redirected</a>.</body></html>`, url)
}

// ParseRedirectHTML extracts the target URL from content if it matches the
// canonical redirect-page shape.
func ParseRedirectHTML(content string) (string, bool) {
	m := redirectHTMLRe.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}

	return m[1], true
}

var fileNameRe = regexp.MustCompile(`^redirects-(.)\.csv$`)

// filePrefixes is the Base32 alphabet (digits 2-7, letters A-Z) used to
// shard redirect records across files.
var filePrefixes = func() map[string]struct{} {
	m := make(map[string]struct{}, 32)
	for c := '2'; c <= '7'; c++ {
		m[string(c)] = struct{}{}
	}
	for c := 'A'; c <= 'Z'; c++ {
		m[string(c)] = struct{}{}
	}
	return m
}()

// FilePrefixes returns the sorted list of valid redirects-<X>.csv shard
// prefixes.
func FilePrefixes() []string {
	prefixes := make([]string, 0, len(filePrefixes))
	for p := range filePrefixes {
		prefixes = append(prefixes, p)
	}

	sort.Strings(prefixes)

	return prefixes
}

// IsValidFileName reports whether name matches redirects-<X>.csv for a
// valid shard prefix X.
func IsValidFileName(name string) bool {
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return false
	}

	_, ok := filePrefixes[m[1]]

	return ok
}

// ErrUnsorted is returned when a redirect CSV file's lines are not in
// ascending order.
type ErrUnsorted struct {
	Line int
}

func (e ErrUnsorted) Error() string {
	return fmt.Sprintf("redirect: file is not sorted ascending at line %d", e.Line)
}

// ErrDigestMismatch is returned when a line's recorded digest does not
// match the SHA-1 of the canonical redirect HTML for its URL.
type ErrDigestMismatch struct {
	Line int
	URL  string
}

func (e ErrDigestMismatch) Error() string {
	return fmt.Sprintf("redirect: digest mismatch for %q at line %d", e.URL, e.Line)
}

// ValidateFile checks that the redirects CSV at path is sorted ascending
// and that every line's digest equals the SHA-1 of the canonical redirect
// HTML for its URL.
func ValidateFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("redirect: error opening %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)

	var previous string

	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := scanner.Text()
		if line == "" {
			continue
		}

		if previous != "" && line < previous {
			return ErrUnsorted{Line: lineNo}
		}

		previous = line

		digestStr, url, ok := strings.Cut(line, ",")
		if !ok {
			return fmt.Errorf("redirect: malformed line %d: %q", lineNo, line)
		}

		computed, _, err := digest.Compute(strings.NewReader(MakeRedirectHTML(url)))
		if err != nil {
			return fmt.Errorf("redirect: error computing digest at line %d: %w", lineNo, err)
		}

		if computed.String() != digestStr {
			return ErrDigestMismatch{Line: lineNo, URL: url}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("redirect: error reading %q: %w", path, err)
	}

	return nil
}

package cdx

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	archivzstd "github.com/travisbrown/archivindex/pkg/zstd"
)

// Store is a read handle onto a CDX store directory on disk: a directory
// with `queries/` and `data/` subdirectories, one `data/<ts_ms>.json` (or
// `.json.zst` when the pattern's compression level is configured) page
// per downloaded CDX query.
type Store struct {
	path string
}

// NewStore opens path as a CDX store. It does not validate the directory
// shape eagerly; Entries reports any I/O problem it finds.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Entries reads every page under data/, in filename order, and returns the
// concatenation of their decoded entries. A page's compression is
// determined by its extension, not by a store-wide setting, so a store may
// mix plain and zstd-compressed pages across its lifetime.
func (s *Store) Entries() ([]Entry, error) {
	dataDir := filepath.Join(s.path, "data")

	dirEntries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("cdx: error reading store data directory %q: %w", dataDir, err)
	}

	names := make([]string, 0, len(dirEntries))

	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}

		names = append(names, de.Name())
	}

	sort.Strings(names)

	var entries []Entry

	for _, name := range names {
		pageEntries, err := s.readPage(filepath.Join(dataDir, name))
		if err != nil {
			return nil, fmt.Errorf("cdx: error reading page %q: %w", name, err)
		}

		entries = append(entries, pageEntries...)
	}

	return entries, nil
}

func (s *Store) readPage(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cdx: error opening page: %w", err)
	}
	defer f.Close()

	var r io.Reader = f

	if strings.HasSuffix(path, ".zst") {
		pooled, err := archivzstd.NewPooledReader(f)
		if err != nil {
			return nil, fmt.Errorf("cdx: error opening zstd page: %w", err)
		}
		defer pooled.Close()

		r = pooled
	}

	var list EntryList
	if err := json.NewDecoder(r).Decode(&list); err != nil {
		return nil, fmt.Errorf("cdx: error decoding page: %w", err)
	}

	return list.Values, nil
}

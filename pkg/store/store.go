// Package store implements the content-addressed item store (CAS): a
// two-level Base32-sharded directory of zstd-compressed blobs keyed by
// their SHA-1 digest.
package store

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	kzstd "github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/travisbrown/archivindex/pkg/digest"
	archivzstd "github.com/travisbrown/archivindex/pkg/zstd"
)

const (
	fileMode        = 0o400
	dirMode         = 0o700
	otelPackageName = "github.com/travisbrown/archivindex/pkg/store"

	// DefaultCompressionLevel is the zstd level used when no WithCompressionLevel
	// option is given.
	DefaultCompressionLevel = 14
)

// Sentinel errors for the store's own validation failures.
var (
	// ErrPathMustBeAbsolute is returned if the given base path is not absolute.
	ErrPathMustBeAbsolute = errors.New("store: path must be absolute")

	// ErrPathMustExist is returned if the given base path does not exist.
	ErrPathMustExist = errors.New("store: path must exist")

	// ErrPathMustBeADirectory is returned if the given base path is not a directory.
	ErrPathMustBeADirectory = errors.New("store: path must be a directory")

	// ErrPathMustBeWritable is returned if the given base path is not writable.
	ErrPathMustBeWritable = errors.New("store: path must be writable")

	// ErrInvalidDigest is returned by operations that require a Valid digest
	// (location, Save) when given an opaque one.
	ErrInvalidDigest = errors.New("store: digest is not a valid 32-char base32 sha1")

	// ErrNotFound is returned by Open when d is not present in the store.
	ErrNotFound = errors.New("store: digest not found")
)

//nolint:gochecknoglobals
var tracer = otel.Tracer(otelPackageName)

// Store is a two-level content-addressed blob store rooted at path.
type Store struct {
	path  string
	level kzstd.EncoderLevel
	log   zerolog.Logger
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithCompressionLevel overrides DefaultCompressionLevel.
func WithCompressionLevel(level int) Option {
	return func(s *Store) { s.level = kzstd.EncoderLevelFromZstd(level) }
}

// WithLogger attaches a logger in place of the one carried by New's
// context.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New opens (creating if necessary) a store rooted at an absolute,
// existing, writable directory.
func New(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if err := validatePath(ctx, path); err != nil {
		return nil, err
	}

	s := &Store{
		path:  path,
		level: kzstd.EncoderLevelFromZstd(DefaultCompressionLevel),
		log:   *zerolog.Ctx(ctx),
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(s.tmpPath(), dirMode); err != nil {
		return nil, fmt.Errorf("store: error creating the tmp directory: %w", err)
	}

	return s, nil
}

// location returns the canonical on-disk path for digest d, and false if d
// is not a valid 32-char Base32 SHA-1 (location never touches the
// filesystem).
func (s *Store) location(d digest.Digest) (string, bool) {
	if !d.Valid() {
		return "", false
	}

	encoded := d.String()
	if len(encoded) != digest.EncodedLen {
		return "", false
	}

	return filepath.Join(s.path, encoded[0:2], encoded[2:4], encoded+".zst"), true
}

// Contains reports whether d is present in the store.
func (s *Store) Contains(ctx context.Context, d digest.Digest) bool {
	path, ok := s.location(d)
	if !ok {
		return false
	}

	_, span := tracer.Start(
		ctx,
		"store.Contains",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("digest", d.String())),
	)
	defer span.End()

	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}

// Save streams r into the store under digest d, zstd-encoding as it goes.
// If the digest is already present, Save returns (nil, nil) without
// touching the existing blob. On success it returns the number of
// compressed bytes written. Partial writes never appear under the
// canonical name: Save writes to a temp file in the store's .tmp directory
// and renames it into place only after a clean close.
func (s *Store) Save(ctx context.Context, d digest.Digest, r io.Reader) (*uint64, error) {
	path, ok := s.location(d)
	if !ok {
		return nil, fmt.Errorf("%s: %w", d.String(), ErrInvalidDigest)
	}

	_, span := tracer.Start(
		ctx,
		"store.Save",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("digest", d.String()), attribute.String("path", path)),
	)
	defer span.End()

	if _, err := os.Stat(path); err == nil {
		s.log.Debug().Str("digest", d.String()).Msg("digest already present, skipping save")

		return nil, nil //nolint:nilnil
	}

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, fmt.Errorf("store: error creating the shard directories for %q: %w", path, err)
	}

	f, err := os.CreateTemp(s.tmpPath(), ".save-*")
	if err != nil {
		return nil, fmt.Errorf("store: error creating a temporary file: %w", err)
	}

	written, err := s.encodeInto(f, r)
	if err != nil {
		f.Close()
		os.Remove(f.Name())

		return nil, err
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())

		return nil, fmt.Errorf("store: error closing the temporary file: %w", err)
	}

	if err := os.Rename(f.Name(), path); err != nil {
		return nil, fmt.Errorf("store: error renaming into place %q: %w", path, err)
	}

	if err := os.Chmod(path, fileMode); err != nil {
		return nil, fmt.Errorf("store: error setting mode of %q: %w", path, err)
	}

	recordSave(ctx)

	return &written, nil
}

func (s *Store) encodeInto(f *os.File, r io.Reader) (uint64, error) {
	pw := archivzstd.NewPooledWriterLevel(f, s.level)
	defer pw.Close()

	n, err := io.Copy(pw, r)
	if err != nil {
		return 0, fmt.Errorf("store: error compressing into the temporary file: %w", err)
	}

	if err := pw.Close(); err != nil {
		return 0, fmt.Errorf("store: error finalizing the compressed stream: %w", err)
	}

	return uint64(n), nil
}

// Open returns a reader over digest d's decompressed content. The caller
// must Close the returned reader. ErrNotFound is returned if d is not
// present in the store, ErrInvalidDigest if d is not a valid 32-char
// Base32 SHA-1.
func (s *Store) Open(ctx context.Context, d digest.Digest) (io.ReadCloser, error) {
	path, ok := s.location(d)
	if !ok {
		return nil, fmt.Errorf("%s: %w", d.String(), ErrInvalidDigest)
	}

	_, span := tracer.Start(
		ctx,
		"store.Open",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("digest", d.String())),
	)
	defer span.End()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", d.String(), ErrNotFound)
		}

		return nil, fmt.Errorf("store: error opening %q: %w", path, err)
	}

	dec, err := archivzstd.NewPooledReader(f)
	if err != nil {
		f.Close()

		return nil, fmt.Errorf("store: error opening zstd reader for %q: %w", path, err)
	}

	return &decodingReadCloser{dec: dec, file: f}, nil
}

// decodingReadCloser pairs a zstd reader with the underlying file it reads
// from so both can be released together on Close.
type decodingReadCloser struct {
	dec  *archivzstd.PooledReader
	file *os.File
}

func (r *decodingReadCloser) Read(p []byte) (int, error) { return r.dec.Read(p) }

func (r *decodingReadCloser) Close() error {
	r.dec.Close()

	return r.file.Close()
}

// SaveAllItem is one input to SaveAll: a digest and a path to a
// gzip-compressed source file holding the blob's uncompressed bytes.
type SaveAllItem struct {
	Digest     digest.Digest
	SourcePath string
}

// SaveAllResult is one output of SaveAll, in completion order (not
// necessarily input order).
type SaveAllResult struct {
	Digest  digest.Digest
	Written *uint64
	Err     error
}

// SaveAll decodes each item's gzip source file on the fly while streaming
// it into the store, running up to parallelism saves concurrently. Results
// are emitted on the returned channel in completion order; the channel is
// closed once every item has been processed or ctx is cancelled.
func (s *Store) SaveAll(ctx context.Context, items []SaveAllItem, parallelism int) <-chan SaveAllResult {
	out := make(chan SaveAllResult, len(items))

	go func() {
		defer close(out)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(parallelism)

		for _, item := range items {
			item := item

			g.Go(func() error {
				written, err := s.saveGzipSource(gctx, item.Digest, item.SourcePath)
				out <- SaveAllResult{Digest: item.Digest, Written: written, Err: err}

				return nil // per-item errors are reported, not fatal to the batch
			})
		}

		_ = g.Wait()
	}()

	return out
}

func (s *Store) saveGzipSource(ctx context.Context, d digest.Digest, sourcePath string) (*uint64, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("store: error opening gzip source %q: %w", sourcePath, err)
	}
	defer f.Close()

	gr, err := newGzipReader(f)
	if err != nil {
		return nil, fmt.Errorf("store: error opening gzip reader for %q: %w", sourcePath, err)
	}
	defer gr.Close()

	return s.Save(ctx, d, gr)
}

// Files walks the two-level shard layout and returns every blob path,
// sorted lexically within each directory.
func (s *Store) Files(ctx context.Context) ([]string, error) {
	_, span := tracer.Start(ctx, "store.Files", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	var out []string

	level1, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("store: error reading %q: %w", s.path, err)
	}

	sort.Slice(level1, func(i, j int) bool { return level1[i].Name() < level1[j].Name() })

	for _, d1 := range level1 {
		if !d1.IsDir() || !isShardDirName(d1.Name()) {
			continue
		}

		dir1 := filepath.Join(s.path, d1.Name())

		level2, err := os.ReadDir(dir1)
		if err != nil {
			return nil, fmt.Errorf("store: error reading %q: %w", dir1, err)
		}

		sort.Slice(level2, func(i, j int) bool { return level2[i].Name() < level2[j].Name() })

		for _, d2 := range level2 {
			if !d2.IsDir() || !isShardDirName(d2.Name()) {
				continue
			}

			dir2 := filepath.Join(dir1, d2.Name())

			files, err := os.ReadDir(dir2)
			if err != nil {
				return nil, fmt.Errorf("store: error reading %q: %w", dir2, err)
			}

			sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

			for _, f := range files {
				if f.Type().IsRegular() {
					out = append(out, filepath.Join(dir2, f.Name()))
				}
			}
		}
	}

	return out, nil
}

// Entry is one successfully-validated blob.
type Entry struct {
	Digest digest.Digest
	Path   string
}

// ValidationError describes a non-I/O problem found while validating a
// single file; it does not terminate the surrounding Entries stream.
type ValidationError struct {
	// Unexpected holds the file's path when its shape (directory/filename)
	// does not match the expected [2-7A-Z]{2}/[2-7A-Z]{2}/[2-7A-Z]{32}.zst
	// layout.
	Unexpected string

	// Declared/Actual are set when the file's shape is fine but its
	// recomputed SHA-1 does not match the digest encoded in its path.
	Declared digest.Digest
	Actual   digest.Digest
}

func (e *ValidationError) Error() string {
	if e.Unexpected != "" {
		return fmt.Sprintf("store: unexpected path shape %q", e.Unexpected)
	}

	return fmt.Sprintf("store: digest mismatch: declared %s, actual %s", e.Declared.String(), e.Actual.String())
}

// EntriesResult is one output of Entries: exactly one of Entry,
// ValidationErr or Err is set.
type EntriesResult struct {
	Entry         Entry
	ValidationErr *ValidationError
	Err           error
}

// Entries validates every file under the store, recomputing its SHA-1 and
// comparing it against the digest encoded in its path. Shape violations
// and digest mismatches surface as ValidationErr items without stopping
// the stream; I/O failures surface as Err items, likewise non-fatal to the
// stream as a whole.
func (s *Store) Entries(ctx context.Context, parallelism int) (<-chan EntriesResult, error) {
	paths, err := s.Files(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan EntriesResult, len(paths))

	go func() {
		defer close(out)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(parallelism)

		for _, path := range paths {
			path := path

			g.Go(func() error {
				out <- s.validate(gctx, path)

				return nil
			})
		}

		_ = g.Wait()
	}()

	return out, nil
}

func (s *Store) validate(ctx context.Context, path string) EntriesResult {
	_, span := tracer.Start(ctx, "store.validate", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	rel, err := filepath.Rel(s.path, path)
	if err != nil {
		return EntriesResult{Err: fmt.Errorf("store: error computing relative path for %q: %w", path, err)}
	}

	declared, ok := declaredDigestFromShardPath(rel)
	if !ok {
		recordValidateInvalid(ctx)

		return EntriesResult{ValidationErr: &ValidationError{Unexpected: path}}
	}

	f, err := os.Open(path)
	if err != nil {
		return EntriesResult{Err: fmt.Errorf("store: error opening %q: %w", path, err)}
	}
	defer f.Close()

	dec, err := archivzstd.NewPooledReader(f)
	if err != nil {
		return EntriesResult{Err: fmt.Errorf("store: error opening zstd reader for %q: %w", path, err)}
	}
	defer dec.Close()

	actual, _, err := digest.Compute(dec)
	if err != nil {
		return EntriesResult{Err: fmt.Errorf("store: error recomputing digest for %q: %w", path, err)}
	}

	if !declared.Equal(actual) {
		recordValidateInvalid(ctx)

		return EntriesResult{ValidationErr: &ValidationError{Declared: declared, Actual: actual}}
	}

	return EntriesResult{Entry: Entry{Digest: declared, Path: path}}
}

func (s *Store) tmpPath() string { return filepath.Join(s.path, ".tmp") }

// newGzipReader opens a gzip reader over r. Closing r remains the caller's
// responsibility.
func newGzipReader(r io.Reader) (*gzip.Reader, error) {
	return gzip.NewReader(r)
}

func validatePath(ctx context.Context, path string) error {
	log := zerolog.Ctx(ctx)

	if !filepath.IsAbs(path) {
		log.Error().Str("path", path).Msg("path is not absolute")

		return ErrPathMustBeAbsolute
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Error().Str("path", path).Msg("path does not exist")

		return ErrPathMustExist
	}

	if err != nil {
		return fmt.Errorf("store: error stat'ing %q: %w", path, err)
	}

	if !info.IsDir() {
		log.Error().Str("path", path).Msg("path is not a directory")

		return ErrPathMustBeADirectory
	}

	if !isWritable(path) {
		return ErrPathMustBeWritable
	}

	return nil
}

func isWritable(path string) bool {
	tmpFile, err := os.CreateTemp(path, "write_test")
	if err != nil {
		return false
	}

	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	return true
}

const base32Alphabet = "234567ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func isShardDirName(name string) bool {
	if len(name) != 2 {
		return false
	}

	for _, r := range name {
		if !strings.ContainsRune(base32Alphabet, r) {
			return false
		}
	}

	return true
}

// declaredDigestFromShardPath validates that rel has the shape
// D[0..2]/D[2..4]/D.zst with D a 32-char Base32 string, and returns the
// digest it encodes.
func declaredDigestFromShardPath(rel string) (digest.Digest, bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 {
		return digest.Digest{}, false
	}

	dir1, dir2, file := parts[0], parts[1], parts[2]
	if !isShardDirName(dir1) || !isShardDirName(dir2) {
		return digest.Digest{}, false
	}

	if !strings.HasSuffix(file, ".zst") {
		return digest.Digest{}, false
	}

	encoded := strings.TrimSuffix(file, ".zst")
	if len(encoded) != digest.EncodedLen || !strings.HasPrefix(encoded, dir1+dir2) {
		return digest.Digest{}, false
	}

	for _, r := range encoded {
		if !strings.ContainsRune(base32Alphabet, r) {
			return digest.Digest{}, false
		}
	}

	d, err := digest.ParseStrict(encoded)
	if err != nil {
		return digest.Digest{}, false
	}

	return d, true
}

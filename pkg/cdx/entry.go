package cdx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/travisbrown/archivindex/pkg/digest"
	"github.com/travisbrown/archivindex/pkg/surt"
	"github.com/travisbrown/archivindex/pkg/timestamp"
)

// ErrHeaderMismatch is returned when a CDX page's header row does not match
// either the short or full field-name layout.
var ErrHeaderMismatch = errors.New("cdx: header does not match a known variant")

// ErrInvalidRow is returned when an entry row cannot be decoded against the
// variant established by the page's header.
var ErrInvalidRow = errors.New("cdx: invalid entry row")

// ExtraInfo holds the extra fields present only in the "full" CDX header
// variant. Per the upstream deserializer's observed behavior (never
// documented in the CDX schema itself), field 6 of a full-variant row is
// the redirect target and the true length is field 8 -- not field 6 as a
// naive reading of the header names would suggest.
type ExtraInfo struct {
	Redirect   string
	RobotFlags string
	Offset     uint64
	FileName   string
}

// Entry is one decoded CDX record.
type Entry struct {
	Key        surt.Surt
	Timestamp  timestamp.Timestamp
	Original   string
	MimeType   MimeType
	StatusCode *uint16
	Digest     digest.Digest
	Length     uint64
	ExtraInfo  *ExtraInfo
}

// EntryList is a decoded CDX page: a header row (validated and discarded)
// followed by zero or more entry rows.
type EntryList struct {
	Values []Entry
}

type headerVariant int

const (
	headerShort headerVariant = iota
	headerFull
)

var shortHeader = []string{
	"urlkey", "timestamp", "original", "mimetype", "statuscode", "digest", "length",
}

var fullHeader = []string{
	"urlkey", "timestamp", "original", "mimetype", "statuscode", "digest",
	"redirect", "robotflags", "length", "offset", "filename",
}

// UnmarshalJSON decodes a CDX JSON page: a top-level array whose first
// element is the header array and whose remaining elements are entry
// arrays shaped according to the header variant.
func (el *EntryList) UnmarshalJSON(data []byte) error {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("cdx: error decoding page as an array: %w", err)
	}

	if len(rows) == 0 {
		return fmt.Errorf("cdx: empty page: %w", ErrHeaderMismatch)
	}

	var header []string
	if err := json.Unmarshal(rows[0], &header); err != nil {
		return fmt.Errorf("cdx: error decoding header row: %w", err)
	}

	variant, err := classifyHeader(header)
	if err != nil {
		return err
	}

	values := make([]Entry, 0, len(rows)-1)

	for i, row := range rows[1:] {
		var fields []string
		if err := json.Unmarshal(row, &fields); err != nil {
			return fmt.Errorf("cdx: error decoding row %d: %w", i+1, err)
		}

		entry, err := decodeEntry(fields, variant)
		if err != nil {
			return fmt.Errorf("cdx: row %d: %w", i+1, err)
		}

		values = append(values, entry)
	}

	el.Values = values

	return nil
}

func classifyHeader(header []string) (headerVariant, error) {
	if equalHeader(header, shortHeader) {
		return headerShort, nil
	}

	if equalHeader(header, fullHeader) {
		return headerFull, nil
	}

	return 0, fmt.Errorf("%v: %w", header, ErrHeaderMismatch)
}

func equalHeader(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}

	for i, w := range want {
		if got[i] != w {
			return false
		}
	}

	return true
}

func decodeEntry(fields []string, variant headerVariant) (Entry, error) {
	minLen := len(shortHeader)
	if variant == headerFull {
		minLen = len(fullHeader)
	}

	if len(fields) != minLen {
		return Entry{}, fmt.Errorf("expected %d fields, got %d: %w", minLen, len(fields), ErrInvalidRow)
	}

	key, err := surt.Parse(fields[0])
	if err != nil {
		return Entry{}, fmt.Errorf("invalid urlkey %q: %w", fields[0], err)
	}

	ts, err := timestamp.Parse(fields[1])
	if err != nil {
		return Entry{}, fmt.Errorf("invalid timestamp %q: %w", fields[1], err)
	}

	mimeType := ParseMimeType(fields[3])

	var statusCode *uint16

	if fields[4] != "-" {
		v, err := strconv.ParseUint(fields[4], 10, 16)
		if err != nil {
			return Entry{}, fmt.Errorf("invalid statuscode %q: %w", fields[4], err)
		}

		sc := uint16(v)
		statusCode = &sc
	}

	dgst := digest.Parse(fields[5])

	entry := Entry{
		Key:        key,
		Timestamp:  ts,
		Original:   fields[2],
		MimeType:   mimeType,
		StatusCode: statusCode,
		Digest:     dgst,
	}

	if variant == headerShort {
		length, err := strconv.ParseUint(fields[6], 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("invalid length %q: %w", fields[6], err)
		}

		entry.Length = length

		return entry, nil
	}

	length, err := strconv.ParseUint(fields[8], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid length %q: %w", fields[8], err)
	}

	offset, err := strconv.ParseUint(fields[9], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid offset %q: %w", fields[9], err)
	}

	entry.Length = length
	entry.ExtraInfo = &ExtraInfo{
		Redirect:   fields[6],
		RobotFlags: fields[7],
		Offset:     offset,
		FileName:   fields[10],
	}

	return entry, nil
}

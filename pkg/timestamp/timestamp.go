// Package timestamp implements the 14-digit YYYYMMDDHHMMSS UTC timestamp
// type used to key CDX entries and catalog rows.
package timestamp

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

// Layout is the fixed wire format: YYYYMMDDHHMMSS.
const Layout = "20060102150405"

// Length is the number of digits in a valid timestamp string.
const Length = len(Layout)

// ErrInvalidLength is returned when the input is not exactly Length
// characters long.
var ErrInvalidLength = errors.New("timestamp: must be exactly 14 digits")

// Timestamp wraps a UTC time truncated to second precision.
type Timestamp struct {
	t time.Time
}

// Parse reads a 14-digit YYYYMMDDHHMMSS string as a UTC timestamp.
func Parse(s string) (Timestamp, error) {
	if len(s) != Length {
		return Timestamp{}, fmt.Errorf("%q: %w", s, ErrInvalidLength)
	}

	t, err := time.ParseInLocation(Layout, s, time.UTC)
	if err != nil {
		return Timestamp{}, fmt.Errorf("timestamp: error parsing %q: %w", s, err)
	}

	return Timestamp{t: t}, nil
}

// FromTime truncates t to second precision in UTC.
func FromTime(t time.Time) Timestamp {
	return Timestamp{t: t.UTC().Truncate(time.Second)}
}

// Now returns the current time as a Timestamp.
func Now() Timestamp { return FromTime(time.Now()) }

// Time returns the underlying UTC time.
func (ts Timestamp) Time() time.Time { return ts.t }

// Unix returns the number of seconds since the Unix epoch, for storage in
// the catalog's signed 64-bit `ts` columns.
func (ts Timestamp) Unix() int64 { return ts.t.Unix() }

// FromUnix rebuilds a Timestamp from a stored Unix-seconds value.
func FromUnix(sec int64) Timestamp {
	return Timestamp{t: time.Unix(sec, 0).UTC()}
}

// Year returns the four-digit calendar year.
func (ts Timestamp) Year() int { return ts.t.Year() }

// String renders the canonical 14-digit form.
func (ts Timestamp) String() string { return ts.t.Format(Layout) }

// Before reports whether ts occurs strictly before other.
func (ts Timestamp) Before(other Timestamp) bool { return ts.t.Before(other.t) }

// Compare returns -1, 0 or 1 depending on the chronological ordering of ts
// relative to other.
func (ts Timestamp) Compare(other Timestamp) int { return ts.t.Compare(other.t) }

// Value implements driver.Valuer, storing timestamps as Unix seconds.
func (ts Timestamp) Value() (driver.Value, error) {
	return ts.Unix(), nil
}

// Scan implements sql.Scanner, reading Unix seconds back into a Timestamp.
func (ts *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*ts = FromUnix(v)

		return nil
	case nil:
		*ts = Timestamp{}

		return nil
	default:
		return fmt.Errorf("timestamp: cannot scan %T", src)
	}
}

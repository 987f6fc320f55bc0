package timestamp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travisbrown/archivindex/pkg/timestamp"
)

func TestRoundTrip(t *testing.T) {
	const s = "20160105123045"

	ts, err := timestamp.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, s, ts.String())
	assert.Equal(t, 2016, ts.Year())
}

func TestParseInvalidLength(t *testing.T) {
	_, err := timestamp.Parse("2016")
	require.Error(t, err)
	assert.ErrorIs(t, err, timestamp.ErrInvalidLength)
}

func TestUnixRoundTrip(t *testing.T) {
	ts, err := timestamp.Parse("20160105123045")
	require.NoError(t, err)

	rebuilt := timestamp.FromUnix(ts.Unix())
	assert.Equal(t, ts.String(), rebuilt.String())
}

func TestCompare(t *testing.T) {
	a, err := timestamp.Parse("20160101000000")
	require.NoError(t, err)

	b, err := timestamp.Parse("20160601000000")
	require.NoError(t, err)

	assert.True(t, a.Before(b))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
}

func TestScanValue(t *testing.T) {
	ts, err := timestamp.Parse("20160105123045")
	require.NoError(t, err)

	v, err := ts.Value()
	require.NoError(t, err)

	var scanned timestamp.Timestamp
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, ts.String(), scanned.String())
}

package surt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travisbrown/archivindex/pkg/surt"
)

func TestRoundTrip(t *testing.T) {
	s, err := surt.FromURL("https://www.example.com/foo/bar")
	require.NoError(t, err)

	printed := s.String()
	assert.Equal(t, "com,example,www)/foo/bar", printed)

	parsed, err := surt.Parse(printed)
	require.NoError(t, err)
	assert.Equal(t, printed, parsed.String())
}

func TestFromURL(t *testing.T) {
	t.Run("lowercases host", func(t *testing.T) {
		s, err := surt.FromURL("HTTPS://WWW.Example.COM/Path")
		require.NoError(t, err)
		assert.Equal(t, "com,example,www)/Path", s.String())
	})

	t.Run("rejects unsupported scheme", func(t *testing.T) {
		_, err := surt.FromURL("ftp://example.com/")
		require.Error(t, err)
		assert.ErrorIs(t, err, surt.ErrUnsupportedScheme)
	})

	t.Run("rejects explicit port", func(t *testing.T) {
		_, err := surt.FromURL("https://example.com:8443/")
		require.Error(t, err)
		assert.ErrorIs(t, err, surt.ErrPortNotAllowed)
	})

	t.Run("defaults to root path", func(t *testing.T) {
		s, err := surt.FromURL("https://example.com")
		require.NoError(t, err)
		assert.Equal(t, "com,example)/", s.String())
	})
}

func TestCanonicalURL(t *testing.T) {
	s, err := surt.FromURL("https://www.example.com/foo/bar")
	require.NoError(t, err)

	u := s.CanonicalURL()
	assert.Equal(t, "https://www.example.com/foo/bar", u)
}

func TestParseMalformed(t *testing.T) {
	_, err := surt.Parse("no-closing-paren")
	require.Error(t, err)
	assert.ErrorIs(t, err, surt.ErrMalformed)

	_, err = surt.Parse("com,example)no-leading-slash")
	require.Error(t, err)
	assert.ErrorIs(t, err, surt.ErrMalformed)
}

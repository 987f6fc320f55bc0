package digest_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travisbrown/archivindex/pkg/digest"
)

func TestRoundTrip(t *testing.T) {
	var raw [digest.Size]byte
	for i := range raw {
		raw[i] = byte(i)
	}

	d := digest.FromBytes(raw)
	s := d.String()

	parsed, err := digest.ParseStrict(s)
	require.NoError(t, err)
	assert.True(t, parsed.Valid())
	assert.Equal(t, strings.ToUpper(s), parsed.String())
	assert.True(t, d.Equal(parsed))
}

func TestParseOpaque(t *testing.T) {
	d := digest.Parse("not-a-valid-digest")
	assert.False(t, d.Valid())
	assert.Equal(t, "not-a-valid-digest", d.String())
}

func TestParseStrictInvalidLength(t *testing.T) {
	_, err := digest.ParseStrict("short")
	require.Error(t, err)
	assert.ErrorIs(t, err, digest.ErrInvalidLength)
}

func TestParseStrictInvalidAlphabet(t *testing.T) {
	_, err := digest.ParseStrict(strings.Repeat("!", digest.EncodedLen))
	require.Error(t, err)
	assert.ErrorIs(t, err, digest.ErrInvalidAlphabet)
}

func TestCompute(t *testing.T) {
	d, n, err := digest.Compute(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.EqualValues(t, 11, n)
	assert.True(t, d.Valid())
	assert.Len(t, d.String(), digest.EncodedLen)
}

func TestEqualOpaque(t *testing.T) {
	a := digest.Parse("weird-digest")
	b := digest.Parse("weird-digest")
	c := digest.Parse("other-digest")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

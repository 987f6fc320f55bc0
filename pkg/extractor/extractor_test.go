package extractor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travisbrown/archivindex/pkg/extractor"
)

func TestExtractPicksLongestTitleTextNode(t *testing.T) {
	t.Parallel()

	doc, err := extractor.Extract([]byte(`
		<html><head><title>  short  </title></head>
		<body></body></html>
	`))
	require.NoError(t, err)
	assert.Equal(t, "short", doc.Title)
}

func TestExtractCollectsBodyTextInOrder(t *testing.T) {
	t.Parallel()

	doc, err := extractor.Extract([]byte(`
		<html><head><title>Page</title></head>
		<body>
			<p>First paragraph.</p>
			<div>  </div>
			<p>Second paragraph.</p>
		</body></html>
	`))
	require.NoError(t, err)
	assert.Equal(t, []string{"First paragraph.", "Second paragraph."}, doc.Content)
}

func TestExtractCollectsHTTPLinksOnly(t *testing.T) {
	t.Parallel()

	doc, err := extractor.Extract([]byte(`
		<html><body>
			<a href="https://example.com/a">a</a>
			<a href="/relative">relative</a>
			<a href="mailto:x@example.com">mail</a>
			<a href="  http://example.com/b  ">b</a>
		</body></html>
	`))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a", "http://example.com/b"}, doc.Links)
}

func TestExtractCollectsGravatarHashes(t *testing.T) {
	t.Parallel()

	doc, err := extractor.Extract([]byte(`
		<html><body>
			<img src="https://secure.gravatar.com/avatar/0123456789abcdef">
			<img src="https://secure.gravatar.com/avatar/0123456789abcdef?s=80">
			<img src="https://secure.gravatar.com/avatar/fedcba9876543210">
			<img src="https://example.com/not-gravatar.png">
		</body></html>
	`))
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{
		"0123456789abcdef": {},
		"fedcba9876543210": {},
	}, doc.GravatarHashes)
}

func TestExtractEmptyDocument(t *testing.T) {
	t.Parallel()

	doc, err := extractor.Extract([]byte(``))
	require.NoError(t, err)
	assert.Equal(t, "", doc.Title)
	assert.Empty(t, doc.Content)
	assert.Empty(t, doc.Links)
	assert.Empty(t, doc.GravatarHashes)
}

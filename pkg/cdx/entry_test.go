package cdx_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travisbrown/archivindex/pkg/cdx"
)

const shortPage = `[
  ["urlkey","timestamp","original","mimetype","statuscode","digest","length"],
  ["com,example)/","20160105123045","https://example.com/","text/html","200","ABCDEFGHIJKLMNOPQRSTUVWXYZ234567","1234"],
  ["com,example)/missing","20160601000000","https://example.com/missing","text/html","-","ABCDEFGHIJKLMNOPQRSTUVWXYZ234568","10"]
]`

const fullPage = `[
  ["urlkey","timestamp","original","mimetype","statuscode","digest","redirect","robotflags","length","offset","filename"],
  ["com,example)/","20160105123045","https://example.com/","text/html","302","ABCDEFGHIJKLMNOPQRSTUVWXYZ234567","https://example.com/target","-","1234","555","crawl-0001.warc.gz"]
]`

func TestUnmarshalShort(t *testing.T) {
	var list cdx.EntryList
	require.NoError(t, json.Unmarshal([]byte(shortPage), &list))
	require.Len(t, list.Values, 2)

	e := list.Values[0]
	assert.Equal(t, "com,example)/", e.Key.String())
	assert.Equal(t, "20160105123045", e.Timestamp.String())
	assert.True(t, e.MimeType.IsHTML())
	require.NotNil(t, e.StatusCode)
	assert.EqualValues(t, 200, *e.StatusCode)
	assert.EqualValues(t, 1234, e.Length)
	assert.Nil(t, e.ExtraInfo)

	missing := list.Values[1]
	assert.Nil(t, missing.StatusCode)
}

func TestUnmarshalFull(t *testing.T) {
	var list cdx.EntryList
	require.NoError(t, json.Unmarshal([]byte(fullPage), &list))
	require.Len(t, list.Values, 1)

	e := list.Values[0]
	require.NotNil(t, e.ExtraInfo)
	assert.Equal(t, "https://example.com/target", e.ExtraInfo.Redirect)
	assert.Equal(t, "-", e.ExtraInfo.RobotFlags)
	assert.EqualValues(t, 1234, e.Length)
	assert.EqualValues(t, 555, e.ExtraInfo.Offset)
	assert.Equal(t, "crawl-0001.warc.gz", e.ExtraInfo.FileName)
}

func TestUnmarshalHeaderMismatch(t *testing.T) {
	const badPage = `[["urlkey","timestamp","original","mimetype","statuscode","digest","notlength"]]`

	var list cdx.EntryList
	err := json.Unmarshal([]byte(badPage), &list)
	require.Error(t, err)
	assert.ErrorIs(t, err, cdx.ErrHeaderMismatch)
}

func TestMimeTypeOther(t *testing.T) {
	m := cdx.ParseMimeType("image/png")
	assert.False(t, m.IsHTML())
	assert.Equal(t, "image/png", m.String())
}

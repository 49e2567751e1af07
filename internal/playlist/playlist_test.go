package playlist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-KEY:METHOD=AES-128,URI="key.bin"
#EXTINF:10.0,
segment-001.ts
#EXTINF:10.0,
segment-002.ts
#EXT-X-ENDLIST
`

func TestRewriteAnchorsRelativeSegments(t *testing.T) {
	r := New("/cdn", "vod-bucket")
	out := string(r.Rewrite([]byte(samplePlaylist), "shows/ep1/master.m3u8"))

	assert.Contains(t, out, "/cdn/vod-bucket/shows/ep1/segment-001.ts")
	assert.Contains(t, out, "/cdn/vod-bucket/shows/ep1/segment-002.ts")
}

func TestRewriteAnchorsURIAttribute(t *testing.T) {
	r := New("/cdn", "vod-bucket")
	out := string(r.Rewrite([]byte(samplePlaylist), "shows/ep1/master.m3u8"))

	assert.Contains(t, out, `URI="/cdn/vod-bucket/shows/ep1/key.bin"`)
}

func TestRewritePreservesUnknownTagsAndBlankLines(t *testing.T) {
	r := New("/cdn", "vod-bucket")
	out := string(r.Rewrite([]byte(samplePlaylist), "shows/ep1/master.m3u8"))

	assert.Contains(t, out, "#EXT-X-VERSION:3")
	assert.Contains(t, out, "#EXT-X-ENDLIST")
}

func TestRewriteIsIdempotent(t *testing.T) {
	r := New("/cdn", "vod-bucket")
	once := r.Rewrite([]byte(samplePlaylist), "shows/ep1/master.m3u8")
	twice := r.Rewrite(once, "shows/ep1/master.m3u8")

	assert.Equal(t, string(once), string(twice))
}

func TestRewriteWrapsAbsoluteForeignURLsThroughProxy(t *testing.T) {
	r := New("/cdn", "vod-bucket")
	body := "#EXTM3U\nhttps://other-cdn.example.com/seg.ts\n"
	out := string(r.Rewrite([]byte(body), "shows/ep1/master.m3u8"))

	assert.NotContains(t, out, "https://other-cdn.example.com/seg.ts")
	assert.Contains(t, out, "/cdn/_external/")

	encoded := strings.TrimSpace(strings.TrimPrefix(out, "#EXTM3U\n"))
	require.True(t, strings.HasPrefix(encoded, "/cdn/_external/"))
	decoded, ok := DecodeExternal(strings.TrimPrefix(encoded, "/cdn/_external/"))
	require.True(t, ok)
	assert.Equal(t, "https://other-cdn.example.com/seg.ts", decoded)
}

func TestRewriteWrappedExternalURIIsIdempotent(t *testing.T) {
	r := New("/cdn", "vod-bucket")
	body := "#EXTM3U\nhttps://other-cdn.example.com/seg.ts\n"
	once := r.Rewrite([]byte(body), "shows/ep1/master.m3u8")
	twice := r.Rewrite(once, "shows/ep1/master.m3u8")

	assert.Equal(t, string(once), string(twice))
}

func TestRewriteEscapesSegmentsWithoutManglingSeparators(t *testing.T) {
	r := New("/cdn", "vod-bucket")
	body := "#EXTM3U\nseg ment one.ts\n"
	out := string(r.Rewrite([]byte(body), "shows/ep 1/master.m3u8"))

	assert.Contains(t, out, "/cdn/vod-bucket/shows/ep%201/seg%20ment%20one.ts")
	assert.NotContains(t, out, "%2F")
}

func TestRewriteResolvesRootRelativeURIAgainstBucketRoot(t *testing.T) {
	r := New("/cdn", "vod-bucket")
	body := "#EXTM3U\n/other/path/seg.ts\n"
	out := string(r.Rewrite([]byte(body), "shows/ep1/master.m3u8"))

	assert.Contains(t, out, "/cdn/vod-bucket/other/path/seg.ts")
}

func TestIsPlaylistDetectsM3U8Extensions(t *testing.T) {
	assert.True(t, IsPlaylist("master.m3u8"))
	assert.True(t, IsPlaylist("MASTER.M3U8"))
	assert.False(t, IsPlaylist("segment.ts"))
}

func TestCleanKeyCollapsesDotSegments(t *testing.T) {
	r := New("/cdn", "b")
	out := string(r.Rewrite([]byte("#EXTM3U\n../other/seg.ts\n"), "a/b/master.m3u8"))
	require.Contains(t, out, "/cdn/b/a/other/seg.ts")
}

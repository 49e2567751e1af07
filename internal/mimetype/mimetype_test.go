package mimetype

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromExtensionKnownTypes(t *testing.T) {
	assert.Equal(t, "application/vnd.apple.mpegurl", FromExtension("videos/master.m3u8"))
	assert.Equal(t, "video/mp2t", FromExtension("videos/seg-001.ts"))
	assert.Equal(t, "", FromExtension("videos/unknown.xyz"))
}

func TestSniffMPEGTS(t *testing.T) {
	buf := make([]byte, 188*3)
	buf[0] = 0x47
	buf[188] = 0x47
	buf[376] = 0x47
	assert.Equal(t, "video/mp2t", Sniff(buf))
}

func TestSniffGzip(t *testing.T) {
	assert.Equal(t, "application/gzip", Sniff([]byte{0x1f, 0x8b, 0x08, 0x00}))
}

func TestSniffM3U8Header(t *testing.T) {
	assert.Equal(t, "application/vnd.apple.mpegurl", Sniff([]byte("#EXTM3U\n#EXT-X-VERSION:3\n")))
}

func TestSniffUnrecognizedReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", Sniff(bytes.Repeat([]byte{0x00}, 16)))
}

func TestResolvePrefersExplicitOriginType(t *testing.T) {
	got := Resolve("video/mp4", "movie.mp4", nil)
	assert.Equal(t, "video/mp4", got)
}

func TestResolveFallsBackToExtensionWhenOriginGeneric(t *testing.T) {
	got := Resolve("application/octet-stream", "movie.m3u8", nil)
	assert.Equal(t, "application/vnd.apple.mpegurl", got)
}

func TestResolveFallsBackToSniffWhenNoExtensionMatch(t *testing.T) {
	buf := make([]byte, 188*2)
	buf[0] = 0x47
	buf[188] = 0x47
	got := Resolve("", "segment.bin", buf)
	assert.Equal(t, "video/mp2t", got)
}

func TestResolveUltimateFallback(t *testing.T) {
	got := Resolve("", "unknown.xyz", []byte{0x00, 0x01})
	assert.Equal(t, "application/octet-stream", got)
}

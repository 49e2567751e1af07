// Package mimetype infers a response Content-Type from a key's extension
// and, when that is inconclusive, from magic bytes at the start of the
// payload. Used to override origin-reported application/octet-stream or
// empty content types (§4.9).
package mimetype

import (
	"bytes"
	"path"
	"strings"
)

var extensions = map[string]string{
	".m3u8": "application/vnd.apple.mpegurl",
	".m3u":  "application/vnd.apple.mpegurl",
	".ts":   "video/mp2t",
	".mp4":  "video/mp4",
	".m4s":  "video/iso.segment",
	".webm": "video/webm",
	".mpd":  "application/dash+xml",
	".vtt":  "text/vtt",
	".srt":  "application/x-subrip",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".json": "application/json",
}

// mpegTSSyncByte is the 0x47 sync byte every 188-byte MPEG-TS packet begins with.
const mpegTSSyncByte = 0x47
const mpegTSPacketLen = 188

// FromExtension returns the content type for key's extension, or "" if unknown.
func FromExtension(key string) string {
	ext := strings.ToLower(path.Ext(key))
	return extensions[ext]
}

// Sniff inspects the first bytes of a payload and returns a content type
// when magic bytes identify the format with confidence, or "" otherwise.
func Sniff(data []byte) string {
	switch {
	case looksLikeMPEGTS(data):
		return "video/mp2t"
	case bytes.HasPrefix(data, []byte{0x1f, 0x8b}):
		return "application/gzip"
	case bytes.HasPrefix(data, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}):
		return "application/x-xz"
	case bytes.HasPrefix(data, []byte{0x28, 0xb5, 0x2f, 0xfd}):
		return "application/zstd"
	case bytes.HasPrefix(data, []byte("#EXTM3U")):
		return "application/vnd.apple.mpegurl"
	}
	return ""
}

// looksLikeMPEGTS checks for the 0x47 sync byte at the start of each of the
// first two 188-byte packets (offsets 0 and 188), which isolated 0x47 bytes
// elsewhere in a stream are unlikely to reproduce by chance.
func looksLikeMPEGTS(data []byte) bool {
	if len(data) < mpegTSPacketLen*2 || data[0] != mpegTSSyncByte {
		return false
	}
	return data[mpegTSPacketLen] == mpegTSSyncByte
}

// Resolve picks the content type to serve: an explicit origin type (when
// not generic), else extension-based, else sniffed, else the fallback.
func Resolve(originType, key string, data []byte) string {
	if originType != "" && originType != "application/octet-stream" && originType != "binary/octet-stream" {
		return originType
	}
	if ct := FromExtension(key); ct != "" {
		return ct
	}
	if ct := Sniff(data); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

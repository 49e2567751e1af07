package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePathEmptyIsBad(t *testing.T) {
	_, _, ok := parsePath("", "default")
	assert.False(t, ok)

	_, _, ok = parsePath("///", "default")
	assert.False(t, ok)
}

func TestParsePathSingleSegmentUsesDefaultBucket(t *testing.T) {
	bucket, key, ok := parsePath("/movie.mp4", "default")
	require := assert.New(t)
	require.True(ok)
	require.Equal("default", bucket)
	require.Equal("movie.mp4", key)
}

func TestParsePathFirstSegmentWithoutExtensionIsBucket(t *testing.T) {
	bucket, key, ok := parsePath("/vod-bucket/shows/ep1/master.m3u8", "default")
	assert.True(t, ok)
	assert.Equal(t, "vod-bucket", bucket)
	assert.Equal(t, "shows/ep1/master.m3u8", key)
}

func TestParsePathFirstSegmentWithExtensionFallsBackToDefaultBucket(t *testing.T) {
	bucket, key, ok := parsePath("/a.mp4/fragment", "default")
	assert.True(t, ok)
	assert.Equal(t, "default", bucket)
	assert.Equal(t, "a.mp4/fragment", key)
}

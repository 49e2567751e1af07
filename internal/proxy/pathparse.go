package proxy

import (
	"path"
	"strings"
)

// parsePath implements §4.10's (bucket,key) derivation: split on "/"; a
// single segment uses the default bucket; with multiple segments, the
// first segment is treated as a bucket name unless it carries a file
// extension, in which case the whole path is the key under the default
// bucket.
func parsePath(p, defaultBucket string) (bucket, key string, ok bool) {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return "", "", false
	}

	segments := strings.SplitN(trimmed, "/", 2)
	if len(segments) == 1 {
		return defaultBucket, segments[0], true
	}

	first := segments[0]
	if path.Ext(first) == "" {
		return first, segments[1], true
	}
	return defaultBucket, trimmed, true
}

// Package playlist hand-tokenizes and rewrites HLS/M3U8 manifests so every
// URI they reference re-anchors at the edge proxy instead of the origin
// bucket (C9). This is deliberately not built on a general M3U8 library:
// the rewrite is a narrow, line-oriented transform, and hand-tokenizing it
// keeps the edge free of a parser whose object model we would not use.
package playlist

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// uriAttrRe matches a quoted URI="..." attribute on tags like
// #EXT-X-KEY or #EXT-X-MAP that carry their reference as an attribute
// rather than on their own line.
var uriAttrRe = regexp.MustCompile(`URI="([^"]*)"`)

// Rewriter re-anchors playlist URIs at base (the edge-visible bucket/key
// prefix each rewritten reference should resolve under).
type Rewriter struct {
	// CDNBase is the path prefix the edge serves objects under, e.g. "/cdn".
	CDNBase string
	// Bucket is the bucket this playlist was fetched from, used to resolve
	// origin-relative URIs into edge paths when no explicit scheme is given.
	Bucket string
}

// New constructs a Rewriter for a given CDN base path and source bucket.
func New(cdnBase, bucket string) *Rewriter {
	return &Rewriter{CDNBase: strings.TrimSuffix(cdnBase, "/"), Bucket: bucket}
}

// Rewrite transforms an M3U8 document's URI references to point at the
// edge. It is idempotent: rewriting an already-rewritten playlist is a
// no-op, since re-anchored URIs already carry the CDN base and are left
// untouched on a second pass.
func (r *Rewriter) Rewrite(body []byte, playlistKey string) []byte {
	lines := strings.Split(string(body), "\n")
	out := make([]string, 0, len(lines))

	baseDir := dirOf(playlistKey)

	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		switch {
		case trimmed == "":
			out = append(out, line)
		case strings.HasPrefix(trimmed, "#"):
			out = append(out, r.rewriteTagLine(trimmed, baseDir))
		default:
			out = append(out, r.rewriteURI(trimmed, baseDir))
		}
	}
	return []byte(strings.Join(out, "\n"))
}

// rewriteTagLine rewrites any URI="..." attribute on a directive line;
// unknown tags and tags without a URI attribute pass through unchanged.
func (r *Rewriter) rewriteTagLine(line, baseDir string) string {
	if !strings.Contains(line, "URI=\"") {
		return line
	}
	return uriAttrRe.ReplaceAllStringFunc(line, func(m string) string {
		sub := uriAttrRe.FindStringSubmatch(m)
		if len(sub) != 2 {
			return m
		}
		rewritten := r.rewriteURI(sub[1], baseDir)
		return fmt.Sprintf(`URI="%s"`, rewritten)
	})
}

// ExternalPrefix is the path segment absolute foreign URIs are wrapped
// under, so the client fetches them through this edge instead of going
// straight to the origin host. The request handler mounts its external-
// fetch route at CDNBase/ExternalPrefix/.
const ExternalPrefix = "_external"

// rewriteURI resolves uri (root-relative, or relative to baseDir) and
// re-anchors it under r.CDNBase/r.Bucket. A URI containing "://" is wrapped
// under r.CDNBase/ExternalPrefix instead; a scheme-relative "//host/path"
// is treated as root-relative. A URI already carrying the CDN base is
// returned unchanged, making Rewrite idempotent.
func (r *Rewriter) rewriteURI(uri, baseDir string) string {
	if uri == "" {
		return uri
	}
	if strings.HasPrefix(uri, r.CDNBase+"/") {
		return uri
	}
	if strings.Contains(uri, "://") {
		// Absolute URLs to a foreign host are wrapped through the proxy
		// rather than handed to the client directly, so the edge stays in
		// the request path for every reference the playlist carries.
		return fmt.Sprintf("%s/%s/%s", r.CDNBase, ExternalPrefix, url.QueryEscape(uri))
	}

	key := uri
	if strings.HasPrefix(uri, "/") {
		key = strings.TrimPrefix(uri, "/")
	} else if baseDir != "" {
		key = baseDir + "/" + uri
	}
	key = cleanKey(key)

	return fmt.Sprintf("%s/%s/%s", r.CDNBase, r.Bucket, escapeKeyPath(key))
}

// escapeKeyPath percent-escapes each "/"-separated segment of key
// independently so the separators themselves survive in the edge URL;
// url.PathEscape on the whole key would also escape "/" into "%2F".
func escapeKeyPath(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// dirOf returns the directory portion of an object key, or "" at the root.
func dirOf(key string) string {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return ""
	}
	return key[:idx]
}

// cleanKey collapses "." and ".." segments without touching the filesystem,
// since object keys are never filesystem paths.
func cleanKey(key string) string {
	parts := strings.Split(key, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p {
		case ".", "":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// DecodeExternal recovers the original absolute URI from the suffix
// following CDNBase/ExternalPrefix/ in an edge-wrapped playlist reference.
func DecodeExternal(encoded string) (string, bool) {
	uri, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", false
	}
	return uri, true
}

// IsPlaylist reports whether key names an HLS/M3U8 manifest by extension.
func IsPlaylist(key string) bool {
	lower := strings.ToLower(key)
	return strings.HasSuffix(lower, ".m3u8") || strings.HasSuffix(lower, ".m3u")
}

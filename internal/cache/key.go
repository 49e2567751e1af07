package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeriveKey builds the stable CacheKey for (bucket, key, range): two
// requests produce the same key iff their (bucket,key,range) triple
// matches. Accept/Accept-Encoding are deliberately not projected into the
// key — the spec recognizes them but they do not vary responses here.
func DeriveKey(bucket, objectKey, rangeHeader string) string {
	h := sha256.New()
	h.Write([]byte(bucket))
	h.Write([]byte{0})
	h.Write([]byte(objectKey))
	h.Write([]byte{0})
	h.Write([]byte(rangeHeader))
	return bucket + "/" + objectKey + "#" + hex.EncodeToString(h.Sum(nil))[:16]
}

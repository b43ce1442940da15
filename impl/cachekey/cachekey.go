// Package cachekey maps an image URL to the key used by both the memory cache and
// the disk store. The key content-addresses the URL itself, not the payload, so the
// same URL always lands on the same cache entry regardless of what the server sends.
package cachekey

import (
	"github.com/opencontainers/go-digest"
)

// KeyFor returns the sha256 hex digest of the passed URL. The URL is not validated:
// any string, including a malformed URL, produces a deterministic key.
func KeyFor(url string) string {
	return digest.FromString(url).Encoded()
}

// ShortKey shortens a key for log messages, the way the digests in the echo
// request log are shortened.
func ShortKey(key string) string {
	if len(key) > 10 {
		return key[:10]
	}
	return key
}

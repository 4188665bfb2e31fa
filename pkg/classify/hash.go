package classify

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashOf returns the cache's rendered_hash for bytes written by a deploy
// or update action. Stdlib-only: the cache's content_hash field is an
// opaque string in both spec.md and the original implementation's cache
// format, so any stable digest serves; no third-party hashing library
// appears in the corpus for this narrow a need.
func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

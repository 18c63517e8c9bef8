package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the SHA-256 hex digest of the canonical form of v.
func Hash(v interface{}) string {
	return HashBytes(Bytes(v))
}

// HashBytes returns the SHA-256 hex digest of raw bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

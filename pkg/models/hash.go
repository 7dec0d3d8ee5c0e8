package models

import (
	"crypto/sha256"
	"encoding/hex"
)

// ShortHash returns a deterministic 16-character hex digest of s.
func ShortHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])[:16]
}

// Package fingerprint computes content identity digests for tweets
// and composed messages.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash returns the hex-encoded SHA-256 digest of the normalized text.
// Normalization lowercases and trims surrounding whitespace, so
// superficially different copies of the same tweet produce the same
// fingerprint across process restarts.
func Hash(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

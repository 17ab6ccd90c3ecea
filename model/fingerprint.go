package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fingerprintLen is the number of hex characters kept from the hash.
// Truncation trades collision resistance for a compact index key.
const fingerprintLen = 16

// Fingerprint derives the deduplication key for an item from its title and
// URL. Both inputs are lower-cased and trimmed before hashing, so items
// differing only in case or surrounding whitespace collapse to the same key.
func Fingerprint(title, url string) string {
	text := strings.ToLower(strings.TrimSpace(title)) + strings.ToLower(strings.TrimSpace(url))
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

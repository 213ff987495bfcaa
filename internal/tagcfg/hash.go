package tagcfg

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// hashLen is the number of hex characters kept from the digest. Database
// filenames embed this prefix, so it stays short.
const hashLen = 8

// Hash computes the configuration fingerprint: the first 8 hex characters of
// an MD5 digest over a canonical compact JSON serialization with sorted
// object keys. Two documents that are deep-equal up to key ordering hash
// identically; tag list order is significant.
func Hash(doc Document) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}

	// Round-trip through untyped values so the final marshal emits object
	// keys in sorted order regardless of struct field order.
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("canonicalize document: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("canonicalize document: %w", err)
	}

	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:])[:hashLen], nil
}

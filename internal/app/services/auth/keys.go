package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const keyPrefix = "sprdd_pk_"

// keyLength is the full length of an issued key: the prefix plus 32 random
// bytes in hex.
const keyLength = len(keyPrefix) + 64

// GenerateKey mints a new API key. It returns the full key (shown to the
// caller exactly once), the display prefix, and the SHA-256 hash stored at
// rest.
func GenerateKey() (full, prefix, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generate key material: %w", err)
	}
	full = keyPrefix + hex.EncodeToString(buf)
	return full, full[:16], HashKey(full), nil
}

// HashKey hashes an API key with SHA-256.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ValidFormat reports whether key looks like an issued API key, so obviously
// malformed credentials never hit the store.
func ValidFormat(key string) bool {
	return strings.HasPrefix(key, keyPrefix) && len(key) == keyLength
}

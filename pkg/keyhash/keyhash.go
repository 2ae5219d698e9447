package keyhash

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// PrefixLen is the number of leading plaintext characters stored alongside
// the digest. The prefix narrows candidate rows on lookup; it is not a
// security boundary on its own.
const PrefixLen = 8

const keyNamespace = "sk_live_"

// Generate returns a fresh opaque API key. The plaintext is handed to the
// caller exactly once and never persisted.
func Generate() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return keyNamespace + hex.EncodeToString(b)
}

// Hash produces the stable one-way digest stored for exact-match lookup.
// No per-record salt: the digest itself is the lookup key.
func Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Prefix returns the first PrefixLen characters of the plaintext key.
func Prefix(plaintext string) string {
	if len(plaintext) < PrefixLen {
		return plaintext
	}
	return plaintext[:PrefixLen]
}

// Match compares the digest of plaintext against a stored digest in constant
// time for a given input length.
func Match(plaintext, storedHash string) bool {
	digest := Hash(plaintext)
	return subtle.ConstantTimeCompare([]byte(digest), []byte(storedHash)) == 1
}

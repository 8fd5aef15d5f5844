package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DigestLength is the hex length of a blind index digest.
const DigestLength = sha256.Size * 2

// BlindIndexer produces keyed, one-way digests of normalized values so that
// encrypted identity columns can be searched and uniquely constrained.
type BlindIndexer struct {
	key []byte
}

// NewBlindIndexer uses the blind index half of km.
func NewBlindIndexer(km KeyMaterial) *BlindIndexer {
	key := make([]byte, KeySize)
	copy(key, km.BlindIndexKey[:])
	return &BlindIndexer{key: key}
}

// Digest returns hex(HMAC-SHA256(key, NormalizeIdentity(value))).
func (b *BlindIndexer) Digest(value string) string {
	mac := hmac.New(sha256.New, b.key)
	mac.Write([]byte(NormalizeIdentity(value)))
	return hex.EncodeToString(mac.Sum(nil))
}

// NormalizeIdentity trims and lowercases an identity value.
func NormalizeIdentity(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

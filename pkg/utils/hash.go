package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CalculateStringSHA256 computes the SHA-256 hash of a string.
func CalculateStringSHA256(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// NormalizeDedupKey is the form every sink compares dedup keys in
func NormalizeDedupKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// DedupDigest returns a stable digest for a (batch, key) pair, used as a fixed-length index key
func DedupDigest(batch, key string) string {
	return CalculateStringSHA256(batch + "\x00" + NormalizeDedupKey(key))
}

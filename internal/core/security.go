// AngelaMos | 2026
// security.go

package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

// GenerateNumericCode returns a zero-free code of the given number of
// digits, e.g. 4 digits yields a value in [1000, 9999].
func GenerateNumericCode(digits int) (string, error) {
	if digits < 1 || digits > 9 {
		return "", fmt.Errorf("generate code: digits out of range: %w", ErrInvalidInput)
	}

	low := int64(1)
	for range digits - 1 {
		low *= 10
	}
	span := low*10 - low

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	return fmt.Sprintf("%d", low+n.Int64()), nil
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func CompareTokenHash(token, hash string) bool {
	tokenHash := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(tokenHash), []byte(hash)) == 1
}

// CompareSecret compares two shared secrets without leaking length or
// prefix timing.
func CompareSecret(given, expected string) bool {
	if expected == "" {
		return false
	}
	return CompareTokenHash(given, HashToken(expected))
}

package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 120_000
	keyLen           = 32
	saltLen          = 16
)

// HashPassword derives a PBKDF2-SHA256 key over password+salt and returns
// "hex(hash):hex(salt)". The salt is generated when absent.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLen, sha256.New)
	return hex.EncodeToString(key) + ":" + hex.EncodeToString(salt), nil
}

// VerifyPassword recomputes the derivation and compares in constant time.
// Malformed stored values verify as false, never as an error the caller could
// leak to a client.
func VerifyPassword(password, stored string) bool {
	hashHex, saltHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	want, err := hex.DecodeString(hashHex)
	if err != nil || len(want) == 0 {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, len(want), sha256.New)
	return hmac.Equal(got, want)
}

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// RefreshSecretBytes is the entropy of a refresh secret.
const RefreshSecretBytes = 32

func GenerateSecret(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func HashSecret(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

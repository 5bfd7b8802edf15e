package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// ResetTokenTTL is how long a password reset link stays valid.
	ResetTokenTTL = 10 * time.Minute

	resetSecretBytes = 32
)

// NewResetSecret returns a random hex-encoded secret and its storage hash.
// Only the hash may be persisted.
func NewResetSecret() (secret, hash string, err error) {
	buf := make([]byte, resetSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate reset secret: %w", err)
	}
	secret = hex.EncodeToString(buf)
	return secret, HashResetSecret(secret), nil
}

// HashResetSecret returns the hex SHA-256 digest of a raw reset secret.
func HashResetSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

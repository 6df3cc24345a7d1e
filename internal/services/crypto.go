package services

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// signingKeySalt for PBKDF2 - changing it invalidates every issued bot token
var signingKeySalt = []byte("rappi-flow-tokens-v1")

// DeriveSigningKey derives the 32-byte HMAC key used to sign bot access tokens
func DeriveSigningKey(secret string) []byte {
	return pbkdf2.Key([]byte(secret), signingKeySalt, 100000, 32, sha256.New)
}

// HashClientSecret hashes a bot client secret for BOT_CLIENT_SECRET_HASH
func HashClientSecret(secret string) (string, error) {
	if len(secret) < 16 {
		return "", fmt.Errorf("client secret must be at least 16 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return string(hash), nil
}

// CheckClientSecret reports whether secret matches the stored bcrypt hash
func CheckClientSecret(hash, secret string) bool {
	if hash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

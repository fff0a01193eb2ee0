package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashPassword returns the lowercase hex HMAC-SHA256 of password keyed by username.
// Stored credentials from earlier deployments use this exact scheme.
func HashPassword(username, password string) string {
	mac := hmac.New(sha256.New, []byte(username))
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPassword reports whether password hashes to storedHash for username.
// It returns false for an empty stored hash and never errors.
func VerifyPassword(username, password, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	computed := HashPassword(username, password)
	return hmac.Equal([]byte(computed), []byte(strings.ToLower(strings.TrimSpace(storedHash))))
}

// Package schema decides which DDL text an identity may use for SQL synthesis.
package schema

import (
	"strings"

	"github.com/querypilot/querypilot/internal/catalog"
)

// Resolve returns the effective schema for user. Admins prefer the
// administrator-wide schema and fall back to their own; everyone else only
// ever gets their own. ok is false when nothing usable is configured.
func Resolve(user catalog.User) (string, bool) {
	if user.IsAdmin() {
		if text, ok := nonBlank(user.AdminSchema); ok {
			return text, true
		}
	}
	return nonBlank(user.Schema)
}

func nonBlank(value *string) (string, bool) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return "", false
	}
	return *value, true
}

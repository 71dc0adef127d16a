package oauth

import (
	"crypto/subtle"
	"fmt"
)

// GenerateState creates a 32-character alphanumeric CSRF token.
func GenerateState() (string, error) {
	s, err := randomString(StateTokenLength, alphanumericChars)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return s, nil
}

// ValidateState compares the state echoed by the provider with the one that
// was issued. The comparison does not short-circuit on the first differing
// byte. Empty values never match.
func ValidateState(received, expected string) bool {
	if received == "" || expected == "" {
		return false
	}
	sameLen := subtle.ConstantTimeEq(int32(len(received)), int32(len(expected)))
	if sameLen != 1 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(received), []byte(expected)) == 1
}

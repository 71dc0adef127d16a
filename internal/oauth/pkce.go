package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// unreservedChars is the RFC 3986 unreserved set allowed in a code_verifier.
const unreservedChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

const alphanumericChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// randReader is the entropy source. Tests replace it.
var randReader io.Reader = rand.Reader

// GeneratePKCE creates a fresh code verifier and its S256 challenge.
func GeneratePKCE() (PKCEParams, error) {
	verifier, err := randomString(CodeVerifierLength, unreservedChars)
	if err != nil {
		return PKCEParams{}, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return PKCEParams{
		CodeVerifier:        verifier,
		CodeChallenge:       CodeChallengeS256(verifier),
		CodeChallengeMethod: CodeChallengeMethodS256,
	}, nil
}

// CodeChallengeS256 computes BASE64URL(SHA256(ASCII(verifier))) without padding.
func CodeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// randomString draws n characters uniformly from charset. Bytes at or above
// the largest multiple of len(charset) are rejected so every character has
// the same probability.
func randomString(n int, charset string) (string, error) {
	limit := 256 - (256 % len(charset))
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(randReader, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, charset[int(b)%len(charset)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

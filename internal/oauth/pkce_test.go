package oauth

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePKCE(t *testing.T) {
	params, err := GeneratePKCE()
	require.NoError(t, err)

	assert.Len(t, params.CodeVerifier, CodeVerifierLength)
	assert.Equal(t, CodeChallengeMethodS256, params.CodeChallengeMethod)
	assert.Equal(t, CodeChallengeS256(params.CodeVerifier), params.CodeChallenge)

	for _, c := range params.CodeVerifier {
		if !strings.ContainsRune(unreservedChars, c) {
			t.Fatalf("verifier contains %q outside the unreserved set", c)
		}
	}
	assert.NotContains(t, params.CodeChallenge, "=")
	assert.NotContains(t, params.CodeChallenge, "+")
	assert.NotContains(t, params.CodeChallenge, "/")
}

func TestGeneratePKCE_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		params, err := GeneratePKCE()
		require.NoError(t, err)
		if seen[params.CodeVerifier] {
			t.Fatalf("duplicate verifier after %d draws", i)
		}
		seen[params.CodeVerifier] = true
	}
}

func TestCodeChallengeS256_RFC7636Vector(t *testing.T) {
	// RFC 7636 appendix B
	got := CodeChallengeS256("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", got)
}

func withRandReader(t *testing.T, r interface{ Read([]byte) (int, error) }) {
	t.Helper()
	orig := randReader
	randReader = r
	t.Cleanup(func() { randReader = orig })
}

func TestRandomString_RejectsBiasedBytes(t *testing.T) {
	// 198 is the first byte value rejected for a 66 character alphabet.
	input := append(bytes.Repeat([]byte{255, 198}, CodeVerifierLength/2), bytes.Repeat([]byte{0}, CodeVerifierLength)...)
	withRandReader(t, bytes.NewReader(input))

	params, err := GeneratePKCE()
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("A", CodeVerifierLength), params.CodeVerifier)
}

func TestRandomString_AcceptsBoundary(t *testing.T) {
	// 197 % 66 == 65, the last character of the alphabet.
	withRandReader(t, bytes.NewReader(bytes.Repeat([]byte{197}, CodeVerifierLength)))

	params, err := GeneratePKCE()
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("~", CodeVerifierLength), params.CodeVerifier)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestGeneratePKCE_ReaderFailure(t *testing.T) {
	withRandReader(t, failingReader{})

	_, err := GeneratePKCE()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entropy exhausted")
}

package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	// 24 bytes of entropy, base64url without padding.
	assert.Equal(t, len(TokenPrefix)+32, len(token))

	other, err := GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestGenerateTokenID(t *testing.T) {
	id, err := GenerateTokenID()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "tok_"))
}

func TestHashToken(t *testing.T) {
	hash := HashToken("fed_abc")

	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashToken("fed_abc"))
	assert.NotEqual(t, hash, HashToken("fed_abd"))
	assert.NotContains(t, hash, "fed_")
}

func TestRandomHex(t *testing.T) {
	s, err := RandomHex(3)
	require.NoError(t, err)
	assert.Len(t, s, 6)
	assert.NotContains(t, s, "g")
}

func TestObfuscateRoundTrip(t *testing.T) {
	key := ObfuscationKey("/tmp/a2a.json")

	ciphertext := Obfuscate("fed_secret-token", key)
	assert.NotEqual(t, "fed_secret-token", ciphertext)
	assert.NotContains(t, ciphertext, "fed_")

	plaintext, err := Deobfuscate(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, "fed_secret-token", plaintext)
}

func TestObfuscationKeyDependsOnPath(t *testing.T) {
	a := ObfuscationKey("/tmp/a.json")
	b := ObfuscationKey("/tmp/b.json")

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ObfuscationKey("/tmp/a.json"))
}

func TestDeobfuscateRejectsGarbage(t *testing.T) {
	_, err := Deobfuscate("not base64!!!", ObfuscationKey("/tmp/a.json"))
	assert.Error(t, err)
}

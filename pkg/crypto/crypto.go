// Package crypto provides the credential primitives for the A2A
// runtime: token generation, SHA-256 hashing, and the XOR at-rest
// obfuscation applied to stored peer tokens.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
)

// TokenPrefix identifies tokens issued by this runtime. The prefix is
// cosmetic; validation is always by hash.
const TokenPrefix = "fed_"

// tokenBytes is the entropy of an issued token.
const tokenBytes = 24

// RandomString returns n random bytes encoded as URL-safe base64
// without padding.
func RandomString(n int) (string, error) {
	data := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		return "", errors.Wrap(err, "failed to read random bytes")
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(data), nil
}

// RandomHex returns n random bytes hex-encoded.
func RandomHex(n int) (string, error) {
	data := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		return "", errors.Wrap(err, "failed to read random bytes")
	}
	return hex.EncodeToString(data), nil
}

// GenerateToken returns a fresh plaintext token. The token id is
// generated separately from independent random bytes so that an id can
// never be used to enumerate token prefixes.
func GenerateToken() (string, error) {
	s, err := RandomString(tokenBytes)
	if err != nil {
		return "", err
	}
	return TokenPrefix + s, nil
}

// GenerateTokenID returns an opaque token identifier, unrelated to any
// token's plaintext.
func GenerateTokenID() (string, error) {
	s, err := RandomString(9)
	if err != nil {
		return "", err
	}
	return "tok_" + s, nil
}

// HashToken returns the SHA-256 hex digest of a plaintext token. Only
// this form is ever persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ObfuscationKey derives the at-rest key for stored peer tokens from
// the credential store path. The derivation is stable so existing
// stores remain readable across restarts.
func ObfuscationKey(storePath string) []byte {
	sum := sha256.Sum256([]byte(storePath + "remote-key"))
	return sum[:]
}

// Obfuscate XORs plaintext with the derived key and base64-encodes the
// result. This is obfuscation against casual inspection of the store
// file, not authenticated encryption; the store file's 0600 mode is the
// actual access control.
func Obfuscate(plaintext string, key []byte) string {
	data := []byte(plaintext)
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return base64.StdEncoding.EncodeToString(out)
}

// Deobfuscate reverses Obfuscate.
func Deobfuscate(ciphertext string, key []byte) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode obfuscated token")
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return string(out), nil
}

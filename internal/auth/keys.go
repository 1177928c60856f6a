package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// HashAPIKey returns an Argon2id hash of apiKey in "salt$hash" base64 form,
// suitable for ARCHDOC_API_KEY_HASH.
func HashAPIKey(apiKey string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	sum := argon2.IDKey([]byte(apiKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return base64.StdEncoding.EncodeToString(salt) + "$" + base64.StdEncoding.EncodeToString(sum), nil
}

// parseHash splits an encoded hash into salt and digest.
func parseHash(encoded string) (salt, sum []byte, err error) {
	saltB64, sumB64, ok := strings.Cut(encoded, "$")
	if !ok {
		return nil, nil, fmt.Errorf("auth: invalid hash format")
	}
	if salt, err = base64.StdEncoding.DecodeString(saltB64); err != nil {
		return nil, nil, fmt.Errorf("auth: decode salt: %w", err)
	}
	if sum, err = base64.StdEncoding.DecodeString(sumB64); err != nil {
		return nil, nil, fmt.Errorf("auth: decode hash: %w", err)
	}
	return salt, sum, nil
}

// KeyVerifier checks presented API keys against the configured key. The key
// is held either in plain form or as an Argon2id hash. A zero KeyVerifier has
// auth disabled.
type KeyVerifier struct {
	plain []byte
	salt  []byte
	sum   []byte
}

// NewKeyVerifier builds a verifier from a plain key, an encoded hash, or
// neither. Setting both is an error.
func NewKeyVerifier(plain, hash string) (*KeyVerifier, error) {
	switch {
	case plain != "" && hash != "":
		return nil, fmt.Errorf("auth: set either an API key or an API key hash, not both")
	case hash != "":
		salt, sum, err := parseHash(hash)
		if err != nil {
			return nil, err
		}
		return &KeyVerifier{salt: salt, sum: sum}, nil
	default:
		return &KeyVerifier{plain: []byte(plain)}, nil
	}
}

// Enabled reports whether a key is configured.
func (v *KeyVerifier) Enabled() bool {
	return v != nil && (len(v.plain) > 0 || len(v.sum) > 0)
}

// Verify reports whether key matches. Comparison is constant time.
func (v *KeyVerifier) Verify(key string) bool {
	if !v.Enabled() || key == "" {
		return false
	}
	if len(v.sum) > 0 {
		got := argon2.IDKey([]byte(key), v.salt, argonTime, argonMemory, argonThreads, argonKeyLen)
		return subtle.ConstantTimeCompare(v.sum, got) == 1
	}
	return subtle.ConstantTimeCompare(v.plain, []byte(key)) == 1
}

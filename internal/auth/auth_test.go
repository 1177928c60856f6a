package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/archdoc/internal/auth"
)

func TestJWTIssueAndValidate(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := mgr.IssueToken("ci-runner")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ci-runner", claims.Client)
	assert.Equal(t, "archdoc", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTRejectsTokenFromOtherKey(t *testing.T) {
	a, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	b, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := a.IssueToken("x")
	require.NoError(t, err)
	_, err = b.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTRejectsExpired(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", -time.Minute)
	require.NoError(t, err)
	token, _, err := mgr.IssueToken("x")
	require.NoError(t, err)
	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

// writeKeyPair writes an Ed25519 key pair as PEM files and returns the paths
// along with the private key for forging tokens.
func writeKeyPair(t *testing.T) (string, string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	dir := t.TempDir()

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	privPath := filepath.Join(dir, "priv.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}), 0o600))

	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pubPath := filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o600))

	return privPath, pubPath, priv
}

func TestJWTManagerFromPEM(t *testing.T) {
	privPath, pubPath, _ := writeKeyPair(t)
	mgr, err := auth.NewJWTManager(privPath, pubPath, time.Hour)
	require.NoError(t, err)

	token, _, err := mgr.IssueToken("pem")
	require.NoError(t, err)
	_, err = mgr.ValidateToken(token)
	require.NoError(t, err)
}

func TestGenerateKeyPEM(t *testing.T) {
	privPEM, pubPEM, err := auth.GenerateKeyPEM()
	require.NoError(t, err)
	dir := t.TempDir()
	privPath := filepath.Join(dir, "jwt_private.pem")
	pubPath := filepath.Join(dir, "jwt_public.pem")
	require.NoError(t, os.WriteFile(privPath, privPEM, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0o600))

	mgr, err := auth.NewJWTManager(privPath, pubPath, time.Hour)
	require.NoError(t, err)
	token, _, err := mgr.IssueToken("genkey")
	require.NoError(t, err)
	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "genkey", claims.Client)
}

func TestJWTManagerMismatchedKeys(t *testing.T) {
	privPath, _, _ := writeKeyPair(t)
	_, otherPub, _ := writeKeyPair(t)
	_, err := auth.NewJWTManager(privPath, otherPub, time.Hour)
	assert.ErrorContains(t, err, "does not match")
}

func TestJWTManagerMissingFile(t *testing.T) {
	_, err := auth.NewJWTManager("/nonexistent/priv.pem", "/nonexistent/pub.pem", time.Hour)
	assert.Error(t, err)
}

func TestValidateTokenWrongIssuer(t *testing.T) {
	privPath, pubPath, priv := writeKeyPair(t)
	mgr, err := auth.NewJWTManager(privPath, pubPath, time.Hour)
	require.NoError(t, err)

	now := time.Now()
	forged, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Audience:  jwt.ClaimStrings{"archdoc"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(priv)
	require.NoError(t, err)

	_, err = mgr.ValidateToken(forged)
	assert.Error(t, err)
}

func TestKeyVerifier(t *testing.T) {
	hash, err := auth.HashAPIKey("s3cret")
	require.NoError(t, err)

	tests := []struct {
		name    string
		plain   string
		hash    string
		enabled bool
		accept  string
	}{
		{name: "disabled", enabled: false},
		{name: "plain", plain: "s3cret", enabled: true, accept: "s3cret"},
		{name: "hashed", hash: hash, enabled: true, accept: "s3cret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := auth.NewKeyVerifier(tt.plain, tt.hash)
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, v.Enabled())
			assert.False(t, v.Verify("wrong"))
			assert.False(t, v.Verify(""))
			if tt.accept != "" {
				assert.True(t, v.Verify(tt.accept))
			}
		})
	}
}

func TestKeyVerifierRejectsBadConfig(t *testing.T) {
	_, err := auth.NewKeyVerifier("a", "b$c")
	assert.Error(t, err)
	_, err = auth.NewKeyVerifier("", "no-separator")
	assert.ErrorContains(t, err, "invalid hash format")
	_, err = auth.NewKeyVerifier("", "!!!$abc")
	assert.ErrorContains(t, err, "decode salt")
}

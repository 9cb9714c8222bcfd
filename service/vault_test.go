package service

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(key)
}

func TestVaultRoundTrip(t *testing.T) {
	vault, err := NewVault(testKey(t))
	require.NoError(t, err)

	cases := []string{
		"CARD-1234-5678",
		"",
		"秘密のカード 🔑 ключ",
		"multi\nline\ncontent with spaces",
	}

	for _, content := range cases {
		secret, err := vault.NewCardSecret()
		require.NoError(t, err)

		encrypted, err := vault.Encrypt(content, secret)
		require.NoError(t, err)
		require.NotEqual(t, content, encrypted)

		decrypted, err := vault.Decrypt(encrypted, secret)
		require.NoError(t, err)
		require.Equal(t, content, decrypted)
	}
}

func TestVaultPerCardKeyIsolation(t *testing.T) {
	vault, err := NewVault(testKey(t))
	require.NoError(t, err)

	secretA, err := vault.NewCardSecret()
	require.NoError(t, err)
	secretB, err := vault.NewCardSecret()
	require.NoError(t, err)
	require.NotEqual(t, secretA, secretB)

	encrypted, err := vault.Encrypt("content", secretA)
	require.NoError(t, err)

	// Another card's key material must not open this ciphertext.
	_, err = vault.Decrypt(encrypted, secretB)
	require.Error(t, err)
}

func TestVaultInvalidKeyGeneratesFresh(t *testing.T) {
	for _, bad := range []string{"", "short", "not-base64!!!", base64.StdEncoding.EncodeToString([]byte("short key"))} {
		vault, err := NewVault(bad)
		require.NoError(t, err)
		require.NotNil(t, vault)

		// The generated key must actually work.
		secret, err := vault.NewCardSecret()
		require.NoError(t, err)
		encrypted, err := vault.Encrypt("x", secret)
		require.NoError(t, err)
		decrypted, err := vault.Decrypt(encrypted, secret)
		require.NoError(t, err)
		require.Equal(t, "x", decrypted)
	}
}

func TestVaultDifferentMasterKeysDoNotInterop(t *testing.T) {
	a, err := NewVault(testKey(t))
	require.NoError(t, err)
	b, err := NewVault(testKey(t))
	require.NoError(t, err)

	secret, err := a.NewCardSecret()
	require.NoError(t, err)
	encrypted, err := a.Encrypt("content", secret)
	require.NoError(t, err)

	_, err = b.Decrypt(encrypted, secret)
	require.Error(t, err)
}

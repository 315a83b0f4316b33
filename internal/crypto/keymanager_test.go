package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("kQH5HW/8p1uGOVjbgWA7FunAmGO8mOYz", "hunter2")
	require.NoError(t, err)

	secret, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "kQH5HW/8p1uGOVjbgWA7FunAmGO8mOYz", secret)
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptSecret("secret", "right")
	require.NoError(t, err)

	_, err = DecryptSecret(blob, "wrong")
	assert.Error(t, err)
}

func TestLoadSecretPrefersRaw(t *testing.T) {
	secret, err := LoadSecret(SecretConfig{RawSecret: "plain"})
	require.NoError(t, err)
	assert.Equal(t, "plain", secret)
}

func TestLoadSecretFromFile(t *testing.T) {
	blob, err := EncryptSecret("from-file", "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	secret, err := LoadSecret(SecretConfig{EncryptedSecretPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", secret)
}

func TestLoadSecretNoSource(t *testing.T) {
	_, err := LoadSecret(SecretConfig{})
	assert.Error(t, err)
}

package crypto_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CourageToGroww/secret-keeper/internal/crypto"
	dserrors "github.com/CourageToGroww/secret-keeper/internal/errors"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	key := []byte("correct horse battery staple")
	plaintext := []byte("s3cr3t-value")

	blob, err := crypto.Encrypt(plaintext, key)
	require.NoError(t, err)

	out, err := crypto.Decrypt(blob, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	t.Parallel()

	blob, err := crypto.Encrypt([]byte("value"), []byte("key-a"))
	require.NoError(t, err)

	_, err = crypto.Decrypt(blob, []byte("key-b"))
	assert.ErrorIs(t, err, dserrors.ErrDecryptionFailed)
}

func TestEncryptionIsNonDeterministic(t *testing.T) {
	t.Parallel()

	key := []byte("same-key")
	a, err := crypto.Encrypt([]byte("same-plaintext"), key)
	require.NoError(t, err)
	b, err := crypto.Encrypt([]byte("same-plaintext"), key)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "fresh salt+nonce must make every encryption distinct")
}

func TestDecryptRejectsGarbageBlobs(t *testing.T) {
	t.Parallel()

	_, err := crypto.Decrypt("not-valid-base64!!!", []byte("key"))
	assert.ErrorIs(t, err, dserrors.ErrDecryptionFailed)

	short, _ := crypto.Encrypt([]byte(""), []byte("key"))
	_, err = crypto.Decrypt(short[:10], []byte("key"))
	assert.ErrorIs(t, err, dserrors.ErrDecryptionFailed)
}

func TestDeriveKeyIsDeterministicForSameSalt(t *testing.T) {
	t.Parallel()

	salt := make([]byte, crypto.SaltSize)
	a := crypto.DeriveKey([]byte("material"), salt)
	b := crypto.DeriveKey([]byte("material"), salt)
	assert.Equal(t, a, b)
	assert.Len(t, a, crypto.KeySize)
}

func TestGenerateKeyProducesDistinctPrintableTokens(t *testing.T) {
	t.Parallel()

	a, err := crypto.GenerateKey()
	require.NoError(t, err)
	b, err := crypto.GenerateKey()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}

func TestSecureEraseRemovesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "keyfile")
	require.NoError(t, os.WriteFile(path, []byte("top-secret-master-key"), 0o600))

	ok := crypto.SecureErase(path, 1)
	assert.True(t, ok)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSecureEraseMissingFileStillReportsGone(t *testing.T) {
	t.Parallel()

	ok := crypto.SecureErase(filepath.Join(t.TempDir(), "never-existed"), 1)
	assert.True(t, ok)
}

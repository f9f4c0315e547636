// Package crypto implements the vault's authenticated-encryption-at-rest
// primitives: PBKDF2 key derivation, AES-256-GCM encrypt/decrypt, master-key
// generation, and best-effort secure file erasure.
//
// Grounded in the teacher's indirect golang.org/x/crypto dependency and the
// PBKDF2 usage pattern in other_examples' arimxyer-pass-cli audit logger.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"

	dserrors "github.com/CourageToGroww/secret-keeper/internal/errors"
)

const (
	// SaltSize is the size, in bytes, of the per-encryption PBKDF2 salt.
	SaltSize = 32
	// NonceSize is the AES-GCM nonce size in bytes.
	NonceSize = 12
	// KeySize is the derived symmetric key size in bytes (AES-256).
	KeySize = 32
	// PBKDF2Iterations is the work factor for key derivation.
	PBKDF2Iterations = 600_000
	// MasterKeyBytes is the number of random bytes in a generated master token.
	MasterKeyBytes = 24
	// DefaultErasePasses is the number of random-data overwrite passes
	// performed by SecureErase before the final zero pass.
	DefaultErasePasses = 3
)

// DeriveKey derives a 32-byte AES-256 key from key material (a password or
// master token, as raw bytes) and a salt via PBKDF2-HMAC-SHA-256.
func DeriveKey(keyMaterial, salt []byte) []byte {
	return pbkdf2.Key(keyMaterial, salt, PBKDF2Iterations, KeySize, sha256.New)
}

// GenerateKey returns a fresh master token: 24 random bytes, URL-safe
// base64 encoded.
func GenerateKey() (string, error) {
	buf := make([]byte, MasterKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

// Encrypt seals plaintext under a key freshly derived from keyMaterial and a
// fresh random salt/nonce pair, and returns the base64-encoded blob
// salt(32) ‖ nonce(12) ‖ ciphertext-with-tag, per the vault's ciphertext
// layout (spec §3).
func Encrypt(plaintext, keyMaterial []byte) (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	key := DeriveKey(keyMaterial, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	blob := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt. Any base64 error, any length
// shorter than salt+nonce+tag, and any authentication failure collapse to
// the single dserrors.ErrDecryptionFailed outcome — the only way to tell a
// wrong key from corrupted data is to have no way to tell them apart.
func Decrypt(blob string, keyMaterial []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, dserrors.ErrDecryptionFailed
	}

	minLen := SaltSize + NonceSize + 16 // AES-GCM tag is 16 bytes
	if len(raw) < minLen {
		return nil, dserrors.ErrDecryptionFailed
	}

	salt := raw[:SaltSize]
	nonce := raw[SaltSize : SaltSize+NonceSize]
	ciphertext := raw[SaltSize+NonceSize:]

	key := DeriveKey(keyMaterial, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dserrors.ErrDecryptionFailed
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dserrors.ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, dserrors.ErrDecryptionFailed
	}

	return plaintext, nil
}

// SecureErase best-effort shreds a regular file before unlinking it:
// `passes` random-byte overwrites (default DefaultErasePasses when passes
// <= 0), a zero-byte overwrite, fsync after each, then remove. Any failure
// along the way falls back to a plain remove. Returns whether the file no
// longer exists afterward.
func SecureErase(path string, passes int) bool {
	if passes <= 0 {
		passes = DefaultErasePasses
	}

	// Whether or not the overwrite passes succeeded, always attempt the
	// unlink — a shred failure should not leave the file behind.
	shred(path, passes)

	err := os.Remove(path)
	return err == nil || os.IsNotExist(err)
}

func shred(path string, passes int) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	size := info.Size()

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, size)

	for i := 0; i < passes; i++ {
		if _, err := rand.Read(buf); err != nil {
			return false
		}
		if err := overwrite(f, buf); err != nil {
			return false
		}
	}

	zero := make([]byte, size)
	if err := overwrite(f, zero); err != nil {
		return false
	}

	return true
}

func overwrite(f *os.File, data []byte) error {
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}


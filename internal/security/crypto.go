// Package security provides credential encryption for exchange member secrets.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// EncryptionKeySize is the size of the AES-256 key in bytes.
	EncryptionKeySize = 32
	// SaltSize is the size of the salt for key derivation.
	SaltSize = 16
	// NonceSize is the size of the GCM nonce.
	NonceSize = 12
	// PBKDF2Iterations is the number of iterations for key derivation.
	PBKDF2Iterations = 100000
)

// FieldCipher encrypts individual credential fields at rest. Each field gets
// its own nonce; the stored form is base64(nonce || ciphertext).
type FieldCipher struct {
	key []byte
}

// NewFieldCipher derives an AES-256 key from the master key and salt.
func NewFieldCipher(masterKey string, salt []byte) (*FieldCipher, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("master key must not be empty")
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	key := pbkdf2.Key([]byte(masterKey), salt, PBKDF2Iterations, EncryptionKeySize, sha256.New)
	return &FieldCipher{key: key}, nil
}

// EncryptField encrypts a plaintext field value.
func (c *FieldCipher) EncryptField(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

// DecryptField decrypts a value produced by EncryptField.
func (c *FieldCipher) DecryptField(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(raw) < NonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, raw[:NonceSize], raw[NonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}

	return string(plaintext), nil
}

// LoadOrCreateSalt reads the key-derivation salt from the config directory,
// creating it on first run. The salt file carries restricted permissions.
func LoadOrCreateSalt(configDir string) ([]byte, error) {
	path := filepath.Join(configDir, "credential.salt")

	if data, err := os.ReadFile(path); err == nil {
		if len(data) != SaltSize {
			return nil, fmt.Errorf("corrupt salt file %s: %d bytes", path, len(data))
		}
		return data, nil
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, fmt.Errorf("writing salt: %w", err)
	}

	return salt, nil
}

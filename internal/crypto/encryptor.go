// Package crypto seals credential payloads with AES-256-GCM before they reach
// the database. Columns written through it are opaque ciphertext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyIterations = 10_000
	keyLength     = 32
)

// derivation salt is static so the same passphrase always yields the same key.
var keySalt = []byte("tokenvault-storage-v1")

// Encryptor provides authenticated encryption for stored token material.
// It is safe for concurrent use.
type Encryptor struct {
	key []byte
}

// NewEncryptor derives a 32-byte AES key from the configured passphrase.
func NewEncryptor(passphrase string) (*Encryptor, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encryption key must not be empty")
	}
	key := pbkdf2.Key([]byte(passphrase), keySalt, keyIterations, keyLength, sha256.New)
	return &Encryptor{key: key}, nil
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext).
func (e *Encryptor) Seal(plaintext []byte) (string, error) {
	gcm, err := e.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Tampered or truncated input fails
// authentication and returns an error.
func (e *Encryptor) Open(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

func (e *Encryptor) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

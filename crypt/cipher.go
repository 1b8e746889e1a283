package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the required key length in bytes (AES-256).
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes, prepended to every
	// ciphertext.
	NonceSize = 12
)

var (
	// ErrInvalidKeySize is returned by [New] when the key is not exactly
	// [KeySize] bytes. Key length is a configuration error raised at
	// construction, never at call time.
	ErrInvalidKeySize = errors.New("encryption key must be exactly 32 bytes")

	// ErrDecryptionFailed is returned when a ciphertext is truncated, has
	// been tampered with, or was produced under a different key. The cause
	// is deliberately not distinguished.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Cipher performs authenticated encryption of at-rest secrets such as TOTP
// seeds. Output layout is nonce || ciphertext || tag.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a [Cipher] from a 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce. The nonce is prepended
// to the returned ciphertext. Empty plaintext is valid input.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt splits off the nonce and opens the ciphertext. Any input shorter
// than the nonce, or failing authentication, yields [ErrDecryptionFailed].
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	if len(data) < NonceSize {
		return nil, ErrDecryptionFailed
	}

	nonce, sealed := data[:NonceSize], data[NonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// EncryptString encrypts s and base64-encodes the result for storage in
// text columns.
func (c *Cipher) EncryptString(s string) (string, error) {
	sealed, err := c.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses [Cipher.EncryptString].
func (c *Cipher) DecryptString(s string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	plaintext, err := c.Decrypt(raw)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

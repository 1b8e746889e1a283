package crypt

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	return key
}

func TestRoundTrip(t *testing.T) {
	c, err := New(testKey(t))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	cases := [][]byte{
		nil,
		{},
		[]byte("x"),
		[]byte("a totp seed that must survive the round trip"),
		bytes.Repeat([]byte{0x00, 0xff}, 512),
	}
	for _, plaintext := range cases {
		sealed, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt error: %v", err)
		}

		got, err := c.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt error: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("round trip mismatch: got %x want %x", got, plaintext)
		}
	}
}

func TestNonceUniquePerCall(t *testing.T) {
	c, err := New(testKey(t))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	a, err := c.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	b, err := c.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	if bytes.Equal(a[:NonceSize], b[:NonceSize]) {
		t.Fatal("expected distinct nonces for repeated encryption")
	}
}

func TestDecryptShortInput(t *testing.T) {
	c, err := New(testKey(t))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	for length := 0; length < NonceSize; length++ {
		if _, err := c.Decrypt(make([]byte, length)); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("length %d: expected ErrDecryptionFailed, got %v", length, err)
		}
	}
}

func TestDecryptTamperDetected(t *testing.T) {
	c, err := New(testKey(t))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	sealed, err := c.Encrypt([]byte("integrity protected"))
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}

	sealed[len(sealed)-1] ^= 0x01
	if _, err := c.Decrypt(sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed after tamper, got %v", err)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	first, err := New(testKey(t))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	second, err := New(testKey(t))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	sealed, err := first.Encrypt([]byte("keyed to first"))
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	if _, err := second.Decrypt(sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed under wrong key, got %v", err)
	}
}

func TestNewRejectsBadKeySize(t *testing.T) {
	for _, size := range []int{0, 16, 31, 33, 64} {
		if _, err := New(make([]byte, size)); !errors.Is(err, ErrInvalidKeySize) {
			t.Fatalf("size %d: expected ErrInvalidKeySize, got %v", size, err)
		}
	}
}

func TestStringHelpers(t *testing.T) {
	c, err := New(testKey(t))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	encoded, err := c.EncryptString("stored in a text column")
	if err != nil {
		t.Fatalf("EncryptString error: %v", err)
	}

	got, err := c.DecryptString(encoded)
	if err != nil {
		t.Fatalf("DecryptString error: %v", err)
	}
	if got != "stored in a text column" {
		t.Fatalf("string round trip mismatch: %q", got)
	}

	if _, err := c.DecryptString("%%% not base64 %%%"); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed for invalid base64, got %v", err)
	}
}

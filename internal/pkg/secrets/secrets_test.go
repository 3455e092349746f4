package secrets_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/helpmaton/billing-api/internal/pkg/secrets"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box, err := secrets.NewBox(testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plaintext := []byte("sk-or-v1-abcdef0123456789")

	ciphertext, err := box.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Fatal("ciphertext leaks plaintext")
	}

	decrypted, err := box.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("round trip mismatch: %q", decrypted)
	}
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	box, err := secrets.NewBox(testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, err := box.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := box.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if bytes.Equal(a, b) {
		t.Fatal("two encryptions of the same input must differ")
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	box, err := secrets.NewBox(testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ciphertext, err := box.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	ciphertext[len(ciphertext)-1] ^= 0x01

	if _, err := box.Decrypt(ciphertext); err == nil {
		t.Fatal("tampered ciphertext must not decrypt")
	}
}

func TestNewBoxRejectsBadKeys(t *testing.T) {
	cases := []string{
		"",
		"deadbeef",
		strings.Repeat("z", 64),
	}
	for _, key := range cases {
		if _, err := secrets.NewBox(key); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

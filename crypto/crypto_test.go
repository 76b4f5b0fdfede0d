package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate random key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewAESEncryptor(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		errorMsg string
	}{
		{"empty key", "", "encryption key is empty"},
		{"invalid base64", "not-valid-base64!@#$", "base64 decode failed"},
		{"key too short", base64.StdEncoding.EncodeToString(make([]byte, 16)), "must be 32 bytes"},
		{"key too long", base64.StdEncoding.EncodeToString(make([]byte, 64)), "must be 32 bytes"},
		{"valid key", base64.StdEncoding.EncodeToString(make([]byte, 32)), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewAESEncryptor(tt.key)
			if tt.errorMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Fatalf("NewAESEncryptor() error = %v, want %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil || enc == nil {
				t.Fatalf("NewAESEncryptor() = %v, %v", enc, err)
			}
		})
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}
	for _, pt := range []string{"hunter2", "oauth:abcdef0123456789", strings.Repeat("a", 1000), "pässwörd ✓", `!@#$%^&*()"'<>`} {
		ct, err := enc.Encrypt([]byte(pt))
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if bytes.Contains(ct, []byte(pt)) {
			t.Errorf("ciphertext contains plaintext %q", pt)
		}
		got, err := enc.Decrypt(ct)
		if err != nil || string(got) != pt {
			t.Errorf("Decrypt() = %q, %v; want %q", got, err, pt)
		}
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	a, _ := enc.Encrypt([]byte("same"))
	b, _ := enc.Encrypt([]byte("same"))
	if bytes.Equal(a, b) {
		t.Error("identical ciphertexts for identical plaintext")
	}
}

func TestDecryptRejectsBadInput(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	other, _ := NewAESEncryptor(testKey(t))
	ct, _ := enc.Encrypt([]byte("secret"))

	tampered := append([]byte(nil), ct...)
	tampered[len(tampered)-1] ^= 0xff

	tests := map[string]struct {
		e  *AESEncryptor
		ct []byte
	}{
		"empty":     {enc, nil},
		"too short": {enc, []byte{1, 2, 3}},
		"tampered":  {enc, tampered},
		"wrong key": {other, ct},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := tt.e.Decrypt(tt.ct); err == nil {
				t.Error("Decrypt() succeeded")
			}
		})
	}
}

func TestEncryptEmptyPlaintext(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	if _, err := enc.Encrypt(nil); err == nil {
		t.Error("Encrypt(nil) succeeded")
	}
	s, err := EncryptString(enc, "")
	if err != nil || s != "" {
		t.Errorf("EncryptString(\"\") = %q, %v", s, err)
	}
	s, err = DecryptString(enc, "")
	if err != nil || s != "" {
		t.Errorf("DecryptString(\"\") = %q, %v", s, err)
	}
	if _, err := DecryptString(enc, "%%%"); err == nil {
		t.Error("DecryptString() accepted invalid base64")
	}
}

func TestSealReveal(t *testing.T) {
	key := testKey(t)
	enc, _ := NewAESEncryptor(key)

	sealed, err := Seal(enc, "hunter2")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if !IsSealed(sealed) || strings.Contains(sealed, "hunter2") {
		t.Fatalf("Seal() = %q", sealed)
	}
	got, err := Reveal(sealed, key)
	if err != nil || got != "hunter2" {
		t.Fatalf("Reveal() = %q, %v", got, err)
	}

	if got, err := Reveal("plain", ""); err != nil || got != "plain" {
		t.Errorf("Reveal(plain) = %q, %v", got, err)
	}
	if _, err := Reveal(sealed, ""); err == nil {
		t.Error("Reveal() without key succeeded")
	}
	if _, err := Reveal(sealed, testKey(t)); err == nil {
		t.Error("Reveal() with wrong key succeeded")
	}
}

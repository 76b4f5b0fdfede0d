// Package crypto seals secrets at rest: the Paylocity password in the
// environment (enc:<base64>) and OAuth tokens in the database. It uses
// AES-256-GCM, so tampered or wrong-key ciphertext fails to open.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// SealedPrefix marks a sealed value inside an otherwise plain string setting.
const SealedPrefix = "enc:"

// Encryptor encrypts and authenticates opaque byte payloads.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// AESEncryptor implements Encryptor with AES-256-GCM.
type AESEncryptor struct {
	aead cipher.AEAD
}

// NewAESEncryptor creates an encryptor from a base64-encoded 32-byte key
// (generate one with `openssl rand -base64 32`).
func NewAESEncryptor(base64Key string) (*AESEncryptor, error) {
	if base64Key == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(base64Key))
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: base64 decode failed: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key: must be 32 bytes (256 bits), got %d bytes", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &AESEncryptor{aead: aead}, nil
}

// Encrypt returns nonce || ciphertext || tag with a fresh random nonce.
func (e *AESEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("plaintext is empty")
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. Authentication failures are reported without detail.
func (e *AESEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("ciphertext is empty")
	}
	n := e.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, fmt.Errorf("ciphertext too short: expected at least %d bytes, got %d", n, len(ciphertext))
	}
	plaintext, err := e.aead.Open(nil, ciphertext[:n], ciphertext[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: authentication or integrity check failed")
	}
	return plaintext, nil
}

// EncryptString encrypts s and base64-encodes the result for text columns.
// The empty string stays empty.
func EncryptString(enc Encryptor, s string) (string, error) {
	if s == "" {
		return "", nil
	}
	ct, err := enc.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptString reverses EncryptString.
func DecryptString(enc Encryptor, b64 string) (string, error) {
	if b64 == "" {
		return "", nil
	}
	ct, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("base64 decode failed: %w", err)
	}
	pt, err := enc.Decrypt(ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// Seal returns s as "enc:<base64>".
func Seal(enc Encryptor, s string) (string, error) {
	b64, err := EncryptString(enc, s)
	if err != nil || b64 == "" {
		return b64, err
	}
	return SealedPrefix + b64, nil
}

// IsSealed reports whether v carries the sealed prefix.
func IsSealed(v string) bool { return strings.HasPrefix(v, SealedPrefix) }

// Reveal opens a sealed value with the base64 key. Unsealed values pass through
// unchanged; a sealed value without a key is an error.
func Reveal(v, base64Key string) (string, error) {
	if !IsSealed(v) {
		return v, nil
	}
	if base64Key == "" {
		return "", fmt.Errorf("sealed value requires ENCRYPTION_KEY")
	}
	enc, err := NewAESEncryptor(base64Key)
	if err != nil {
		return "", err
	}
	return DecryptString(enc, strings.TrimPrefix(v, SealedPrefix))
}

// Package secretbox seals short secrets (TOTP shared secrets) with
// AES-256-GCM under a key derived from the operator secret.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32
	nonceSize = 12

	// MaxPlaintext bounds what Seal accepts.
	MaxPlaintext = 4096

	kdfSalt = "xxvpn/totp-secret/v1"
	kdfInfo = "aes-256-gcm"
)

var (
	ErrKeyNotConfigured = errors.New("secretbox: encryption key not configured")
	ErrEmptyPlaintext   = errors.New("secretbox: plaintext is empty")
	ErrTooLarge         = errors.New("secretbox: plaintext too large")
	ErrMalformed        = errors.New("secretbox: ciphertext malformed")
	ErrDecrypt          = errors.New("secretbox: ciphertext could not be authenticated")
)

// Box encrypts and decrypts with one derived key. It is safe for concurrent use.
type Box struct {
	aead  cipher.AEAD
	nonce io.Reader
}

// New derives the AES key from operatorSecret with HKDF-SHA256.
func New(operatorSecret string) (*Box, error) {
	if operatorSecret == "" {
		return nil, ErrKeyNotConfigured
	}
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(operatorSecret), []byte(kdfSalt), []byte(kdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return newWithKey(key, rand.Reader)
}

func newWithKey(key []byte, nonce io.Reader) (*Box, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Box{aead: aead, nonce: nonce}, nil
}

// Seal returns base64(nonce || ciphertext) with a fresh random nonce.
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}
	if len(plaintext) > MaxPlaintext {
		return "", ErrTooLarge
	}
	nonce := make([]byte, nonceSize, nonceSize+len(plaintext)+b.aead.Overhead())
	if _, err := io.ReadFull(b.nonce, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. The first 12 decoded bytes are the nonce.
func (b *Box) Open(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrMalformed
	}
	if len(raw) < nonceSize+b.aead.Overhead() {
		return "", ErrMalformed
	}
	plain, err := b.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const gcmNonceSize = 12

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// DeriveKey expands secret into a 32-byte key with HKDF-SHA256.
func DeriveKey(secret, salt, info []byte) ([32]byte, error) {
	var key [32]byte
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), key[:]); err != nil {
		return key, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// EncryptAESGCM encrypts plaintext under key with AES-256-GCM.
//
// Format: [nonce (12 bytes)][ciphertext with tag]
func EncryptAESGCM(key [32]byte, plaintext, aad []byte) ([]byte, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aesGCM.Seal(nonce, nonce, plaintext, aad), nil
}

// DecryptAESGCM reverses EncryptAESGCM.
func DecryptAESGCM(key [32]byte, blob, aad []byte) ([]byte, error) {
	if len(blob) < gcmNonceSize {
		return nil, ErrCiphertextTooShort
	}
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesGCM.Open(nil, blob[:gcmNonceSize], blob[gcmNonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}

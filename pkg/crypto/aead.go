package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// Seal encrypts plaintext with AES-GCM under key, using nonce (whose length
// fixes the GCM nonce size for this call) and aad as associated data.
func Seal(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key, len(nonce))
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open decrypts ciphertext previously produced by Seal with the same key,
// nonce, and aad.
func Open(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(key, len(nonce))
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("aead open: %w", err)
	}
	return pt, nil
}

func newAEAD(key []byte, nonceSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}

package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// sigLen is the fixed-width encoding of an ECDSA signature over P-256: r and
// s each zero-padded to 32 bytes.
const sigLen = 64

// Sign produces a fixed-width ECDSA signature (r||s, 32 bytes each) over
// SHA-256(msg).
func Sign(priv *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("sign: nil private key")
	}
	hash := sha256.Sum256(msg)
	r, s, err := ecdsa.Sign(rand.Reader, priv, hash[:])
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	sig := make([]byte, sigLen)
	rBytes, sBytes := r.Bytes(), s.Bytes()
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	return sig, nil
}

// Verify checks a fixed-width ECDSA signature produced by Sign.
func Verify(pub *ecdsa.PublicKey, msg, sig []byte) bool {
	if pub == nil || len(sig) != sigLen {
		return false
	}
	hash := sha256.Sum256(msg)
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	return ecdsa.Verify(pub, hash[:], r, s)
}

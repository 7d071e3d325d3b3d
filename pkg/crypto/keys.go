// Package crypto provides the cryptographic primitives claimchain builds on:
// ECDSA signing, an ECVRF, ECDH key agreement, AES-GCM AEAD, and a
// domain-separated SHA-256 key-derivation helper. All elliptic-curve
// operations use P-256.
package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
)

// Curve is the elliptic curve used throughout claimchain for signing, VRF
// evaluation, and key agreement.
func Curve() elliptic.Curve { return elliptic.P256() }

// SigKeyPair is an ECDSA signing key pair.
type SigKeyPair struct {
	Private *ecdsa.PrivateKey
	Public  *ecdsa.PublicKey
}

// GenerateSigKeyPair generates a new P-256 ECDSA signing key pair.
func GenerateSigKeyPair() (*SigKeyPair, error) {
	priv, err := ecdsa.GenerateKey(Curve(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &SigKeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// VRFKeyPair is a P-256 key pair used for ECVRF evaluation. It shares the
// curve and key format with SigKeyPair but is kept as a distinct type so
// callers cannot accidentally use a signing key where a VRF key is required.
type VRFKeyPair struct {
	Private *ecdsa.PrivateKey
	Public  *ecdsa.PublicKey
}

// GenerateVRFKeyPair generates a new P-256 VRF key pair.
func GenerateVRFKeyPair() (*VRFKeyPair, error) {
	priv, err := ecdsa.GenerateKey(Curve(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate vrf key: %w", err)
	}
	return &VRFKeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// DHKeyPair is a P-256 Diffie-Hellman key pair.
type DHKeyPair struct {
	Private *ecdh.PrivateKey
	Public  *ecdh.PublicKey
}

// GenerateDHKeyPair generates a new P-256 ECDH key pair.
func GenerateDHKeyPair() (*DHKeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate dh key: %w", err)
	}
	return &DHKeyPair{Private: priv, Public: priv.PublicKey()}, nil
}

// DH computes the shared secret between a local private key and a peer's
// public key.
func DH(priv *ecdh.PrivateKey, peerPub *ecdh.PublicKey) ([]byte, error) {
	if priv == nil || peerPub == nil {
		return nil, fmt.Errorf("dh: nil key")
	}
	shared, err := priv.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("dh: %w", err)
	}
	return shared, nil
}

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("random bytes: %w", err)
	}
	return b, nil
}

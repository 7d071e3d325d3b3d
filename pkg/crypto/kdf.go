package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Domain-separation tags for the claimchain key-derivation strings.
const (
	TagLookup    = "lookup"
	TagEnc       = "enc"
	TagCapLookup = "cap-lookup"
	TagCapEnc    = "cap-enc"
)

// DeriveKey computes H(tag || parts...) with SHA-256, the domain-separated
// key-derivation primitive claimchain's codec uses for every lookup key and
// encryption key it produces.
func DeriveKey(tag string, parts ...[]byte) []byte {
	h := sha256.New()
	h.Write([]byte(tag))
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// DeriveSessionKey expands masterKey into a keyLen-byte key using
// HKDF-SHA256, bound to salt and info. This is used to derive the object
// store's at-rest encryption key; it is deliberately not part of the
// codec's lookup/encryption key derivation, which must remain the plain
// domain-separated hash DeriveKey computes so lookup keys stay a pure,
// independently-verifiable function of the VRF value or DH shared secret.
func DeriveSessionKey(masterKey, salt []byte, info string, keyLen int) ([]byte, error) {
	r := hkdf.New(sha256.New, masterKey, salt, []byte(info))
	out := make([]byte, keyLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("stretch key: %w", err)
	}
	return out, nil
}
